package vm

import (
	"fmt"

	"github.com/chazu/ristretto/classfile"
	"github.com/chazu/ristretto/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Signals: what a frame tells the call stack when it stops
// ---------------------------------------------------------------------------

// SignalKind says why Frame.Run stopped.
type SignalKind uint8

const (
	// SignalEnd: the frame finished without a value (return, or fell off the end).
	SignalEnd SignalKind = iota + 1
	// SignalReturnValue: the frame returned Signal.Value.
	SignalReturnValue
	// SignalInvoke: the frame wants Signal.Signature called and is suspended.
	SignalInvoke
)

func (k SignalKind) String() string {
	switch k {
	case SignalEnd:
		return "End"
	case SignalReturnValue:
		return "ReturnValue"
	case SignalInvoke:
		return "Invoke"
	default:
		return fmt.Sprintf("SignalKind(%d)", k)
	}
}

// Signal is the result of running a frame until it stops.
type Signal struct {
	Kind      SignalKind
	Value     int32  // SignalReturnValue
	Signature string // SignalInvoke
	Special   bool   // SignalInvoke via invokespecial: a receiver slot precedes the arguments
}

// ---------------------------------------------------------------------------
// Frame: one activation of a method
// ---------------------------------------------------------------------------

// Frame holds the program counter, locals and operand stack of one
// method activation. pc is an instruction index.
type Frame struct {
	method *Method
	pool   *classfile.ConstantPool

	pc     int
	locals []int32
	stack  []int32

	at       int // index of the instruction being executed, for faults
	executed uint64
	trace    bool
}

// NewFrame creates a frame for m with locals sized to m.MaxLocals.
// args fill the leading local slots; the rest start at zero.
func NewFrame(m *Method, pool *classfile.ConstantPool, args []int32) (*Frame, error) {
	if len(args) > m.MaxLocals {
		return nil, &FrameFault{
			Reason:    InvalidLocal,
			Signature: m.Signature(),
			PC:        -1,
			Detail:    fmt.Sprintf("%d argument slots exceed %d locals", len(args), m.MaxLocals),
		}
	}

	locals := make([]int32, m.MaxLocals)
	copy(locals, args)

	return &Frame{
		method: m,
		pool:   pool,
		locals: locals,
		stack:  make([]int32, 0, m.MaxStack),
	}, nil
}

// Method returns the method this frame executes.
func (f *Frame) Method() *Method { return f.method }

// PC returns the index of the next instruction to execute.
func (f *Frame) PC() int { return f.pc }

// Locals returns a copy of the local variable slots.
func (f *Frame) Locals() []int32 { return append([]int32(nil), f.locals...) }

// Stack returns a copy of the operand stack, bottom first.
func (f *Frame) Stack() []int32 { return append([]int32(nil), f.stack...) }

// Executed returns the number of instructions this frame has executed.
func (f *Frame) Executed() uint64 { return f.executed }

// ---------------------------------------------------------------------------
// Stack and local operations
// ---------------------------------------------------------------------------

func (f *Frame) fault(reason FaultReason, detail string) *FrameFault {
	var op bytecode.Opcode
	if f.at < len(f.method.Code) {
		op = f.method.Code[f.at].Op
	}
	return &FrameFault{
		Reason:    reason,
		Signature: f.method.Signature(),
		PC:        f.at,
		Op:        op,
		Detail:    detail,
	}
}

func (f *Frame) push(v int32) error {
	if len(f.stack) >= f.method.MaxStack {
		return f.fault(StackOverflow, fmt.Sprintf("max stack %d", f.method.MaxStack))
	}
	f.stack = append(f.stack, v)
	return nil
}

func (f *Frame) pop() (int32, error) {
	n := len(f.stack)
	if n == 0 {
		return 0, f.fault(StackUnderflow, "")
	}
	v := f.stack[n-1]
	f.stack = f.stack[:n-1]
	return v, nil
}

// popArgs removes the top n values, returned in push order.
func (f *Frame) popArgs(n int) ([]int32, error) {
	if n > len(f.stack) {
		return nil, f.fault(StackUnderflow, fmt.Sprintf("need %d arguments, have %d", n, len(f.stack)))
	}
	split := len(f.stack) - n
	args := append([]int32(nil), f.stack[split:]...)
	f.stack = f.stack[:split]
	return args, nil
}

func (f *Frame) load(slot int) (int32, error) {
	if slot < 0 || slot >= len(f.locals) {
		return 0, f.fault(InvalidLocal, fmt.Sprintf("slot %d of %d", slot, len(f.locals)))
	}
	return f.locals[slot], nil
}

func (f *Frame) store(slot int, v int32) error {
	if slot < 0 || slot >= len(f.locals) {
		return f.fault(InvalidLocal, fmt.Sprintf("slot %d of %d", slot, len(f.locals)))
	}
	f.locals[slot] = v
	return nil
}

// jump sets pc to an absolute instruction index. The end of the code
// is a valid target and ends the frame.
func (f *Frame) jump(target int32) error {
	if target < 0 || int(target) > len(f.method.Code) {
		return f.fault(InvalidJump, fmt.Sprintf("target %d of %d", target, len(f.method.Code)))
	}
	f.pc = int(target)
	return nil
}

// ---------------------------------------------------------------------------
// Execution loop
// ---------------------------------------------------------------------------

// Run executes instructions until the frame returns, falls off the end,
// or invokes another method. After an Invoke signal pc already points
// past the invoke, so calling Run again resumes the caller.
func (f *Frame) Run() (Signal, error) {
	code := f.method.Code

	for {
		if f.pc >= len(code) {
			return Signal{Kind: SignalEnd}, nil
		}

		f.at = f.pc
		in := code[f.pc]
		f.pc++
		f.executed++

		if f.trace {
			log.Debugf("%s %04d %-20s stack=%v locals=%v",
				f.method.Signature(), f.at, in, f.stack, f.locals)
		}

		var err error
		switch in.Op {
		// --- Constants ---
		case bytecode.OpIconstM1, bytecode.OpIconst0, bytecode.OpIconst1,
			bytecode.OpIconst2, bytecode.OpIconst3, bytecode.OpIconst4, bytecode.OpIconst5:
			err = f.push(int32(in.Op) - int32(bytecode.OpIconst0))

		case bytecode.OpBipush, bytecode.OpSipush:
			err = f.push(in.A)

		// --- Locals ---
		case bytecode.OpIload, bytecode.OpIload0, bytecode.OpIload1,
			bytecode.OpIload2, bytecode.OpIload3, bytecode.OpAload0:
			var v int32
			if v, err = f.load(in.Slot()); err == nil {
				err = f.push(v)
			}

		case bytecode.OpIstore, bytecode.OpIstore0, bytecode.OpIstore1,
			bytecode.OpIstore2, bytecode.OpIstore3:
			var v int32
			if v, err = f.pop(); err == nil {
				err = f.store(in.Slot(), v)
			}

		case bytecode.OpIinc:
			var v int32
			if v, err = f.load(in.Slot()); err == nil {
				err = f.store(in.Slot(), v+in.B)
			}

		// --- Arithmetic ---
		case bytecode.OpIadd:
			var a, b int32
			if b, err = f.pop(); err != nil {
				break
			}
			if a, err = f.pop(); err != nil {
				break
			}
			err = f.push(a + b) // two's complement wraparound

		// --- Control flow ---
		case bytecode.OpGoto:
			err = f.jump(in.A)

		case bytecode.OpIfIcmplt:
			var v1, v2 int32
			if v2, err = f.pop(); err != nil {
				break
			}
			if v1, err = f.pop(); err != nil {
				break
			}
			if v1 < v2 {
				err = f.jump(in.A)
			}

		// --- Returns ---
		case bytecode.OpReturn:
			return Signal{Kind: SignalEnd}, nil

		case bytecode.OpIreturn:
			v, err := f.pop()
			if err != nil {
				return Signal{}, err
			}
			return Signal{Kind: SignalReturnValue, Value: v}, nil

		// --- Invocation ---
		case bytecode.OpInvokestatic, bytecode.OpInvokespecial:
			sig, err := f.pool.Resolve(uint16(in.A))
			if err != nil {
				return Signal{}, fmt.Errorf("%s pc=%d %s: %w", f.method.Signature(), f.at, in.Op, err)
			}
			return Signal{
				Kind:      SignalInvoke,
				Signature: sig,
				Special:   in.Op == bytecode.OpInvokespecial,
			}, nil

		default:
			err = f.fault(UnknownOpcode, fmt.Sprintf("0x%02X", byte(in.Op)))
		}

		if err != nil {
			return Signal{}, err
		}
	}
}
