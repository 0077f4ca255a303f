package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/ristretto/classfile"
	"github.com/chazu/ristretto/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Registry lookup errors
// ---------------------------------------------------------------------------

var (
	ErrClassNotFound  = errors.New("class not found")
	ErrMethodNotFound = errors.New("method not found")
)

// LookupError names the class or signature the registry could not find.
// It wraps ErrClassNotFound or ErrMethodNotFound.
type LookupError struct {
	Name string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Name)
}

func (e *LookupError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Frame faults
// ---------------------------------------------------------------------------

// FaultReason says which frame invariant broke.
type FaultReason uint8

const (
	StackUnderflow FaultReason = iota + 1
	StackOverflow
	InvalidLocal
	InvalidJump
	UnknownOpcode
)

func (r FaultReason) String() string {
	switch r {
	case StackUnderflow:
		return "operand stack underflow"
	case StackOverflow:
		return "operand stack overflow"
	case InvalidLocal:
		return "invalid local index"
	case InvalidJump:
		return "invalid jump target"
	case UnknownOpcode:
		return "unknown opcode"
	default:
		return fmt.Sprintf("FaultReason(%d)", r)
	}
}

// FrameFault is raised by a frame whose instruction stream breaks an
// invariant. There is no verifier, so these abort the run.
type FrameFault struct {
	Reason    FaultReason
	Signature string // method that faulted
	PC        int    // index of the faulting instruction, -1 when raised at frame setup
	Op        bytecode.Opcode
	Detail    string
}

func (f *FrameFault) Error() string {
	where := f.Signature
	if f.PC >= 0 {
		where = fmt.Sprintf("%s pc=%d %s", f.Signature, f.PC, f.Op)
	}
	if f.Detail == "" {
		return fmt.Sprintf("%s: %s", where, f.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", where, f.Reason, f.Detail)
}

// ---------------------------------------------------------------------------
// Run outcome
// ---------------------------------------------------------------------------

// FaultKind groups faults into the three families a run can abort with.
type FaultKind uint8

const (
	FaultConstantResolution FaultKind = iota + 1
	FaultRegistryLookup
	FaultFrame
)

func (k FaultKind) String() string {
	switch k {
	case FaultConstantResolution:
		return "ConstantResolutionError"
	case FaultRegistryLookup:
		return "RegistryLookupError"
	case FaultFrame:
		return "FrameFault"
	default:
		return fmt.Sprintf("FaultKind(%d)", k)
	}
}

// Fault describes why a run aborted.
type Fault struct {
	Kind    FaultKind
	Message string
	err     error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap exposes the original error for errors.Is and errors.As.
func (f *Fault) Unwrap() error { return f.err }

// classify maps an abort error onto its fault family.
func classify(err error) *Fault {
	var (
		resolveErr *classfile.ResolveError
		lookupErr  *LookupError
		frameFault *FrameFault
	)
	kind := FaultFrame
	switch {
	case errors.As(err, &resolveErr):
		kind = FaultConstantResolution
	case errors.As(err, &lookupErr):
		kind = FaultRegistryLookup
	case errors.As(err, &frameFault):
		kind = FaultFrame
	}
	return &Fault{Kind: kind, Message: err.Error(), err: err}
}
