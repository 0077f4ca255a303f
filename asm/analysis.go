package asm

import (
	"fmt"
	"strings"

	"github.com/chazu/ristretto/classfile"
	"github.com/chazu/ristretto/pkg/bytecode"
	"github.com/chazu/ristretto/vm"
)

// inferLocals sizes the local array: room for the arguments (plus the
// receiver of an instance method) and for every slot the code touches.
func inferLocals(code []bytecode.Instruction, argSlots int, static bool) int {
	n := argSlots
	if !static {
		n++
	}
	for _, in := range code {
		if slot := in.Slot(); slot >= 0 && slot+1 > n {
			n = slot + 1
		}
	}
	return n
}

// maxStack computes the deepest operand stack any path through code
// reaches. Every instruction must see the same depth on every path to it,
// as the class-file verifier requires.
func maxStack(code []bytecode.Instruction, pool []classfile.Entry) (int, error) {
	cp := classfile.NewConstantPool(pool)
	depth := make([]int, len(code))
	for i := range depth {
		depth[i] = -1
	}

	deepest := 0
	work := []int{0}
	if len(code) > 0 {
		depth[0] = 0
	} else {
		work = nil
	}

	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		in := code[pc]
		h := depth[pc]

		pop, push, err := stackEffect(in, cp)
		if err != nil {
			return 0, fmt.Errorf("instruction %d (%s): %w", pc, in, err)
		}
		if h < pop {
			return 0, fmt.Errorf("instruction %d (%s): stack underflow", pc, in)
		}
		h = h - pop + push
		if h > deepest {
			deepest = h
		}

		var succ []int
		switch {
		case in.Op.IsReturn():
		case in.Op == bytecode.OpGoto:
			succ = []int{int(in.A)}
		case in.Op == bytecode.OpIfIcmplt:
			succ = []int{pc + 1, int(in.A)}
		default:
			succ = []int{pc + 1}
		}

		for _, s := range succ {
			if s == len(code) {
				continue
			}
			if s < 0 || s > len(code) {
				return 0, fmt.Errorf("instruction %d (%s): branch out of range", pc, in)
			}
			switch depth[s] {
			case -1:
				depth[s] = h
				work = append(work, s)
			case h:
			default:
				return 0, fmt.Errorf("instruction %d: stack depth %d and %d on different paths", s, depth[s], h)
			}
		}
	}
	return deepest, nil
}

// stackEffect returns how many values in pops and pushes. Invocations
// take theirs from the callee descriptor.
func stackEffect(in bytecode.Instruction, cp *classfile.ConstantPool) (pop, push int, err error) {
	if !in.Op.IsInvoke() {
		info := bytecode.GetOpcodeInfo(in.Op)
		return info.StackPop, info.StackPush, nil
	}

	sig, err := cp.Resolve(uint16(in.A))
	if err != nil {
		return 0, 0, err
	}
	desc := sig[strings.LastIndexByte(sig, ':')+1:]
	slots, void, err := vm.ParseDescriptor(desc)
	if err != nil {
		return 0, 0, err
	}
	if in.Op == bytecode.OpInvokespecial {
		slots++
	}
	if !void {
		push = 1
	}
	return slots, push, nil
}
