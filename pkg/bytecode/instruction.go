package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Instruction is one decoded instruction.
//
// A holds the single operand of most opcodes: the local slot, the pushed
// immediate, the absolute branch target (an instruction index), or the
// constant pool index of an invoke. B holds the iinc delta.
type Instruction struct {
	Op Opcode `cbor:"1,keyasint"`
	A  int32  `cbor:"2,keyasint,omitempty"`
	B  int32  `cbor:"3,keyasint,omitempty"`
}

// Op builds an instruction without operands.
func Op(op Opcode) Instruction { return Instruction{Op: op} }

// Bipush pushes a byte-sized immediate.
func Bipush(v int8) Instruction { return Instruction{Op: OpBipush, A: int32(v)} }

// Sipush pushes a short-sized immediate.
func Sipush(v int16) Instruction { return Instruction{Op: OpSipush, A: int32(v)} }

// Iload copies local slot onto the operand stack.
func Iload(slot uint8) Instruction { return Instruction{Op: OpIload, A: int32(slot)} }

// Istore pops the operand stack into local slot.
func Istore(slot uint8) Instruction { return Instruction{Op: OpIstore, A: int32(slot)} }

// Iinc adds delta to local slot.
func Iinc(slot uint8, delta int8) Instruction {
	return Instruction{Op: OpIinc, A: int32(slot), B: int32(delta)}
}

// Goto jumps to the instruction at index target.
func Goto(target int) Instruction { return Instruction{Op: OpGoto, A: int32(target)} }

// IfIcmplt branches to target when value1 < value2.
func IfIcmplt(target int) Instruction { return Instruction{Op: OpIfIcmplt, A: int32(target)} }

// Invokestatic calls the method named by constant pool entry index.
func Invokestatic(index uint16) Instruction {
	return Instruction{Op: OpInvokestatic, A: int32(index)}
}

// Invokespecial calls the method named by constant pool entry index.
func Invokespecial(index uint16) Instruction {
	return Instruction{Op: OpInvokespecial, A: int32(index)}
}

// Slot returns the local slot an instruction addresses, or -1 when it has none.
// Short forms such as iload_2 encode the slot in the opcode.
func (in Instruction) Slot() int {
	switch in.Op {
	case OpIload, OpIstore, OpIinc:
		return int(in.A)
	case OpIload0, OpIload1, OpIload2, OpIload3:
		return int(in.Op - OpIload0)
	case OpIstore0, OpIstore1, OpIstore2, OpIstore3:
		return int(in.Op - OpIstore0)
	case OpAload0:
		return 0
	}
	return -1
}

// String renders the instruction the way Disassemble prints it.
func (in Instruction) String() string {
	switch in.Op {
	case OpBipush, OpSipush, OpIload, OpIstore:
		return fmt.Sprintf("%s %d", in.Op, in.A)
	case OpIinc:
		return fmt.Sprintf("%s %d, %d", in.Op, in.A, in.B)
	case OpGoto, OpIfIcmplt:
		return fmt.Sprintf("%s -> %d", in.Op, in.A)
	case OpInvokestatic, OpInvokespecial:
		return fmt.Sprintf("%s #%d", in.Op, in.A)
	}
	return in.Op.String()
}

// ---------------------------------------------------------------------------
// Decoding from class-file Code bytes
// ---------------------------------------------------------------------------

var (
	// ErrUnknownOpcode is returned for bytes outside the supported set.
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrTruncated is returned when an instruction's operands run past the code.
	ErrTruncated = errors.New("truncated instruction")

	// ErrBadBranch is returned when a branch does not land on an instruction boundary.
	ErrBadBranch = errors.New("branch target is not an instruction boundary")

	// ErrOperandRange is returned by Encode for an operand its encoding cannot hold.
	ErrOperandRange = errors.New("operand out of range")
)

// Decode converts raw Code attribute bytes into instructions.
// Branch offsets, which class files store relative to the branching
// instruction's byte offset, become absolute instruction indices.
// A branch to the end of the code maps to len(instructions).
func Decode(code []byte) ([]Instruction, error) {
	var (
		instrs  []Instruction
		offsets []int
		indexOf = make(map[int]int)
	)

	for pc := 0; pc < len(code); {
		op := Opcode(code[pc])
		if !op.Known() {
			return nil, fmt.Errorf("%w 0x%02X at byte %d", ErrUnknownOpcode, byte(op), pc)
		}
		n := op.InstructionLen()
		if pc+n > len(code) {
			return nil, fmt.Errorf("%w: %s at byte %d", ErrTruncated, op, pc)
		}

		in := Instruction{Op: op}
		operands := code[pc+1 : pc+n]
		switch op {
		case OpBipush:
			in.A = int32(int8(operands[0]))
		case OpSipush, OpGoto, OpIfIcmplt:
			in.A = int32(int16(binary.BigEndian.Uint16(operands)))
		case OpIload, OpIstore:
			in.A = int32(operands[0])
		case OpIinc:
			in.A = int32(operands[0])
			in.B = int32(int8(operands[1]))
		case OpInvokestatic, OpInvokespecial:
			in.A = int32(binary.BigEndian.Uint16(operands))
		}

		indexOf[pc] = len(instrs)
		offsets = append(offsets, pc)
		instrs = append(instrs, in)
		pc += n
	}
	indexOf[len(code)] = len(instrs)

	for i := range instrs {
		if !instrs[i].Op.IsBranch() {
			continue
		}
		target := offsets[i] + int(instrs[i].A)
		idx, ok := indexOf[target]
		if !ok {
			return nil, fmt.Errorf("%w: %s at byte %d targets byte %d",
				ErrBadBranch, instrs[i].Op, offsets[i], target)
		}
		instrs[i].A = int32(idx)
	}

	return instrs, nil
}

// Encode is the inverse of Decode: it lays instructions out as Code bytes,
// turning absolute branch indices back into relative byte offsets.
func Encode(instrs []Instruction) ([]byte, error) {
	offsets := make([]int, len(instrs)+1)
	for i, in := range instrs {
		if !in.Op.Known() {
			return nil, fmt.Errorf("%w 0x%02X at index %d", ErrUnknownOpcode, byte(in.Op), i)
		}
		offsets[i+1] = offsets[i] + in.Op.InstructionLen()
	}

	code := make([]byte, 0, offsets[len(instrs)])
	for i, in := range instrs {
		code = append(code, byte(in.Op))
		switch in.Op {
		case OpBipush:
			if err := checkOperand(in, i, in.A, math.MinInt8, math.MaxInt8); err != nil {
				return nil, err
			}
			code = append(code, byte(in.A))
		case OpIload, OpIstore:
			if err := checkOperand(in, i, in.A, 0, math.MaxUint8); err != nil {
				return nil, err
			}
			code = append(code, byte(in.A))
		case OpSipush:
			if err := checkOperand(in, i, in.A, math.MinInt16, math.MaxInt16); err != nil {
				return nil, err
			}
			code = binary.BigEndian.AppendUint16(code, uint16(int16(in.A)))
		case OpIinc:
			if err := checkOperand(in, i, in.A, 0, math.MaxUint8); err != nil {
				return nil, err
			}
			if err := checkOperand(in, i, in.B, math.MinInt8, math.MaxInt8); err != nil {
				return nil, err
			}
			code = append(code, byte(in.A), byte(int8(in.B)))
		case OpGoto, OpIfIcmplt:
			if in.A < 0 || int(in.A) > len(instrs) {
				return nil, fmt.Errorf("%w: %s at index %d targets index %d",
					ErrBadBranch, in.Op, i, in.A)
			}
			rel := offsets[in.A] - offsets[i]
			if rel < math.MinInt16 || rel > math.MaxInt16 {
				return nil, fmt.Errorf("%w: %s at index %d jumps %d bytes",
					ErrOperandRange, in.Op, i, rel)
			}
			code = binary.BigEndian.AppendUint16(code, uint16(int16(rel)))
		case OpInvokestatic, OpInvokespecial:
			if err := checkOperand(in, i, in.A, 0, math.MaxUint16); err != nil {
				return nil, err
			}
			code = binary.BigEndian.AppendUint16(code, uint16(in.A))
		}
	}
	return code, nil
}

func checkOperand(in Instruction, index int, v int32, lo, hi int64) error {
	if int64(v) < lo || int64(v) > hi {
		return fmt.Errorf("%w: %s at index %d has operand %d, want %d..%d",
			ErrOperandRange, in.Op, index, v, lo, hi)
	}
	return nil
}
