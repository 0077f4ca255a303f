package bytecode

import (
	"fmt"
	"strings"
)

// ConstantResolver turns an invoke operand into readable text.
// classfile.ConstantPool satisfies it.
type ConstantResolver interface {
	Resolve(index uint16) (string, error)
}

// Listing describes one method body for disassembly.
type Listing struct {
	Name      string // signature or display name, optional
	MaxStack  int
	MaxLocals int
	Code      []Instruction
	Pool      ConstantResolver // optional, annotates invoke targets
}

// Disassemble returns a human-readable listing of instructions.
func Disassemble(code []Instruction) string {
	return (&Listing{Code: code}).String()
}

// String returns the listing text: a header followed by one instruction per line.
func (l *Listing) String() string {
	var sb strings.Builder

	if l.Name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", l.Name))
	}
	if l.MaxStack > 0 || l.MaxLocals > 0 {
		sb.WriteString(fmt.Sprintf("; stack=%d locals=%d\n", l.MaxStack, l.MaxLocals))
	}

	targets := make(map[int32]bool)
	for _, in := range l.Code {
		if in.Op.IsBranch() {
			targets[in.A] = true
		}
	}

	for i, in := range l.Code {
		marker := "  "
		if targets[int32(i)] {
			marker = "> "
		}
		line := in.String()
		if in.Op.IsInvoke() && l.Pool != nil {
			if sig, err := l.Pool.Resolve(uint16(in.A)); err == nil {
				line = fmt.Sprintf("%-24s ; %s", line, sig)
			}
		}
		sb.WriteString(fmt.Sprintf("%s%04d  %s\n", marker, i, line))
	}

	return sb.String()
}
