package vm

import (
	"fmt"
	"strings"
)

// Disassemble renders the class header, its constant pool and every
// method listing in signature order.
func (c *Class) Disassemble() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "class %s", c.Name)
	if c.SuperName != "" {
		fmt.Fprintf(&sb, " extends %s", c.SuperName)
	}
	sb.WriteString("\n\nConstant pool:\n")
	if c.Pool != nil {
		sb.WriteString(c.Pool.Dump())
	}

	for _, sig := range c.Signatures() {
		sb.WriteByte('\n')
		sb.WriteString(c.Methods[sig].Listing(c.Pool).String())
	}
	return sb.String()
}

// Disassemble renders every registered class, sorted by name.
func (r *Registry) Disassemble() string {
	var sb strings.Builder
	for i, c := range r.Classes() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(c.Disassemble())
	}
	return sb.String()
}
