package vm

import (
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("ristretto.vm")

// ---------------------------------------------------------------------------
// Execution options
// ---------------------------------------------------------------------------

type options struct {
	trace bool
	args  []int32
}

// Option configures a call to Execute.
type Option func(*options)

// WithTrace logs every executed instruction at debug level.
func WithTrace(on bool) Option {
	return func(o *options) { o.trace = on }
}

// WithArgs seeds the entry frame's leading local slots.
func WithArgs(args ...int32) Option {
	return func(o *options) { o.args = append([]int32(nil), args...) }
}

// ---------------------------------------------------------------------------
// Exit status
// ---------------------------------------------------------------------------

// Status is the outcome of a run.
type Status uint8

const (
	Completed Status = iota + 1
	Faulted
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "Completed"
	case Faulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

// ExitStatus reports how a run ended. Result is set when the entry
// method returned a value with ireturn.
type ExitStatus struct {
	Status    Status
	Fault     *Fault
	Result    int32
	HasResult bool
	Stats     Stats
}

// OK reports whether the run completed.
func (s ExitStatus) OK() bool { return s.Status == Completed }

// ---------------------------------------------------------------------------
// Execute
// ---------------------------------------------------------------------------

// Execute runs the method registered under entry until the call stack
// drains or a fault aborts the run.
func Execute(reg *Registry, entry string, opts ...Option) ExitStatus {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cs := NewCallStack(reg)
	cs.trace = o.trace

	if err := start(cs, reg, entry, o.args); err != nil {
		return faulted(entry, err, cs.Stats())
	}

	log.Debugf("run %s", entry)
	if err := cs.Run(); err != nil {
		return faulted(entry, err, cs.Stats())
	}

	status := ExitStatus{Status: Completed, Stats: cs.Stats()}
	status.Result, status.HasResult = cs.Result()
	log.Debugf("run %s completed: %d instructions, %d invocations, depth %d",
		entry, status.Stats.Instructions, status.Stats.Invocations, status.Stats.MaxDepth)
	return status
}

func start(cs *CallStack, reg *Registry, entry string, args []int32) error {
	m, err := reg.LookupMethod(entry)
	if err != nil {
		return err
	}
	class, err := reg.LookupClass(m.Class)
	if err != nil {
		return err
	}
	f, err := NewFrame(m, class.Pool, args)
	if err != nil {
		return err
	}
	cs.Push(f)
	return nil
}

func faulted(entry string, err error, stats Stats) ExitStatus {
	fault := classify(err)
	log.Warningf("run %s faulted: %s", entry, fault)
	return ExitStatus{Status: Faulted, Fault: fault, Stats: stats}
}
