package vm

// ---------------------------------------------------------------------------
// CallStack: drives frames through the invoke/return protocol
// ---------------------------------------------------------------------------

// Stats counts what a run did.
type Stats struct {
	Instructions uint64 `cbor:"1,keyasint"`
	Invocations  uint64 `cbor:"2,keyasint"`
	MaxDepth     int    `cbor:"3,keyasint"`
}

// CallStack is a LIFO of suspended frames. The frame on top is the one
// that runs next.
type CallStack struct {
	registry *Registry
	frames   []*Frame
	trace    bool

	stats     Stats
	result    int32
	hasResult bool
}

// NewCallStack creates an empty call stack that resolves invocations
// against reg.
func NewCallStack(reg *Registry) *CallStack {
	return &CallStack{registry: reg}
}

// Push places f on top of the stack.
func (cs *CallStack) Push(f *Frame) {
	f.trace = cs.trace
	cs.frames = append(cs.frames, f)
	if len(cs.frames) > cs.stats.MaxDepth {
		cs.stats.MaxDepth = len(cs.frames)
	}
}

func (cs *CallStack) pop() *Frame {
	n := len(cs.frames)
	f := cs.frames[n-1]
	cs.frames[n-1] = nil
	cs.frames = cs.frames[:n-1]
	return f
}

// Depth returns the number of frames on the stack.
func (cs *CallStack) Depth() int { return len(cs.frames) }

// Frames returns the frames bottom first. After a fault the faulting
// frame is on top.
func (cs *CallStack) Frames() []*Frame {
	return append([]*Frame(nil), cs.frames...)
}

// Stats returns the counters accumulated so far.
func (cs *CallStack) Stats() Stats { return cs.stats }

// Result returns the value returned by the bottom frame, if it returned one.
func (cs *CallStack) Result() (int32, bool) { return cs.result, cs.hasResult }

// Run pops and runs frames until the stack is empty or a frame faults.
//
//	End          the frame is discarded
//	ReturnValue  the value is pushed onto the caller's operand stack
//	Invoke       arguments move from caller to a new callee frame;
//	             the caller goes back on the stack with the callee above it
func (cs *CallStack) Run() error {
	for len(cs.frames) > 0 {
		f := cs.pop()

		before := f.executed
		sig, err := f.Run()
		cs.stats.Instructions += f.executed - before
		if err != nil {
			cs.Push(f)
			return err
		}

		switch sig.Kind {
		case SignalEnd:
			if cs.trace {
				log.Debugf("%s end", f.method.Signature())
			}

		case SignalReturnValue:
			if cs.trace {
				log.Debugf("%s return %d", f.method.Signature(), sig.Value)
			}
			if len(cs.frames) == 0 {
				cs.result, cs.hasResult = sig.Value, true
				continue
			}
			caller := cs.frames[len(cs.frames)-1]
			if err := caller.push(sig.Value); err != nil {
				return err
			}

		case SignalInvoke:
			callee, err := cs.invoke(f, sig)
			if err != nil {
				cs.Push(f)
				return err
			}
			cs.Push(f)
			cs.Push(callee)
		}
	}
	return nil
}

// invoke resolves sig and builds the callee frame, moving its arguments
// off the caller's operand stack.
func (cs *CallStack) invoke(caller *Frame, sig Signal) (*Frame, error) {
	m, err := cs.registry.LookupMethod(sig.Signature)
	if err != nil {
		return nil, err
	}
	class, err := cs.registry.LookupClass(m.Class)
	if err != nil {
		return nil, err
	}

	slots := m.ArgSlots
	if sig.Special {
		slots++
	}
	args, err := caller.popArgs(slots)
	if err != nil {
		return nil, err
	}

	callee, err := NewFrame(m, class.Pool, args)
	if err != nil {
		return nil, err
	}
	cs.stats.Invocations++

	if cs.trace {
		log.Debugf("%s invoke %s args=%v", caller.method.Signature(), sig.Signature, args)
	}
	return callee, nil
}
