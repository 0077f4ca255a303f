package classfile

import (
	"fmt"
	"strings"
)

// Dump renders the pool one entry per line, javap style:
//
//	#2 = MethodRef          #3.#15       // Adder.add:(II)I
//
// The second slot of a Long or Double is omitted.
func (cp *ConstantPool) Dump() string {
	var sb strings.Builder
	for i := 1; i < len(cp.entries); i++ {
		e := cp.entries[i]
		if e.Tag == TagPlaceholder {
			continue
		}

		var operands string
		switch e.Tag {
		case TagUtf8:
			operands = e.Text
		case TagInteger, TagLong:
			operands = fmt.Sprintf("%d", e.Int)
		case TagFloat, TagDouble:
			operands = fmt.Sprintf("%g", e.Float)
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			operands = fmt.Sprintf("#%d", e.Index1)
		case TagMethodHandle:
			operands = fmt.Sprintf("%d:#%d", e.Kind, e.Index1)
		default:
			operands = fmt.Sprintf("#%d.#%d", e.Index1, e.Index2)
		}

		line := fmt.Sprintf("%5s = %-18s %s", fmt.Sprintf("#%d", i), e.Tag, operands)
		if e.Tag != TagUtf8 {
			if text, err := cp.Resolve(uint16(i)); err == nil {
				line = fmt.Sprintf("%-44s // %s", line, text)
			}
		}
		sb.WriteString(strings.TrimRight(line, " "))
		sb.WriteByte('\n')
	}
	return sb.String()
}
