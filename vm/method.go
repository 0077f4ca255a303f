package vm

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chazu/ristretto/classfile"
	"github.com/chazu/ristretto/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Loader boundary
// ---------------------------------------------------------------------------

// ClassDef is what a loader hands to Load for one class.
type ClassDef struct {
	Name      string            `cbor:"1,keyasint"`
	SuperName string            `cbor:"2,keyasint,omitempty"`
	Pool      []classfile.Entry `cbor:"3,keyasint"`
	Methods   []MethodDef       `cbor:"4,keyasint"`
}

// MethodDef is one decoded method body.
type MethodDef struct {
	Name       string                 `cbor:"1,keyasint"`
	Descriptor string                 `cbor:"2,keyasint"`
	MaxStack   int                    `cbor:"3,keyasint"`
	MaxLocals  int                    `cbor:"4,keyasint"`
	Code       []bytecode.Instruction `cbor:"5,keyasint"`
}

// Signature builds the registry key "Class.name:descriptor".
func Signature(class, name, descriptor string) string {
	return class + "." + name + ":" + descriptor
}

// ---------------------------------------------------------------------------
// Method
// ---------------------------------------------------------------------------

// Method is an immutable, loaded method body.
type Method struct {
	Class      string // owning class name
	Name       string
	Descriptor string
	MaxStack   int
	MaxLocals  int

	// ArgSlots is the number of local slots filled from the caller's
	// operand stack on invocation, derived from Descriptor.
	ArgSlots int
	// Void is true when the descriptor's return type is V.
	Void bool

	Code []bytecode.Instruction
}

// Signature returns the method's registry key.
func (m *Method) Signature() string {
	return Signature(m.Class, m.Name, m.Descriptor)
}

// Listing returns the method as a disassembly listing.
func (m *Method) Listing(pool *classfile.ConstantPool) *bytecode.Listing {
	l := &bytecode.Listing{
		Name:      m.Signature(),
		MaxStack:  m.MaxStack,
		MaxLocals: m.MaxLocals,
		Code:      m.Code,
	}
	if pool != nil {
		l.Pool = pool
	}
	return l
}

// ErrBadDescriptor is returned for method descriptors that do not parse.
var ErrBadDescriptor = errors.New("malformed method descriptor")

// ParseDescriptor returns the argument slot count and whether the method
// returns void. long and double take two slots.
func ParseDescriptor(desc string) (slots int, void bool, err error) {
	if len(desc) < 3 || desc[0] != '(' {
		return 0, false, fmt.Errorf("%w %q", ErrBadDescriptor, desc)
	}

	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, size, ok := fieldType(desc[i:])
		if !ok {
			return 0, false, fmt.Errorf("%w %q", ErrBadDescriptor, desc)
		}
		slots += size
		i += n
	}
	if i >= len(desc) {
		return 0, false, fmt.Errorf("%w %q", ErrBadDescriptor, desc)
	}

	ret := desc[i+1:]
	if ret == "V" {
		return slots, true, nil
	}
	if n, _, ok := fieldType(ret); !ok || n != len(ret) {
		return 0, false, fmt.Errorf("%w %q", ErrBadDescriptor, desc)
	}
	return slots, false, nil
}

// fieldType measures one field descriptor at the start of s.
// It returns the bytes consumed and the local slots the type occupies.
func fieldType(s string) (n, size int, ok bool) {
	if s == "" {
		return 0, 0, false
	}
	switch s[0] {
	case 'B', 'C', 'F', 'I', 'S', 'Z':
		return 1, 1, true
	case 'J', 'D':
		return 1, 2, true
	case 'L':
		for i := 1; i < len(s); i++ {
			if s[i] == ';' {
				return i + 1, 1, i > 1
			}
		}
		return 0, 0, false
	case '[':
		n, _, ok := fieldType(s[1:])
		return n + 1, 1, ok
	}
	return 0, 0, false
}

// ---------------------------------------------------------------------------
// Class
// ---------------------------------------------------------------------------

// Class is a loaded class. SuperName is a registry key, not a pointer.
type Class struct {
	Name      string
	SuperName string
	Pool      *classfile.ConstantPool
	Methods   map[string]*Method // signature -> method
}

// Signatures returns the class's method signatures in sorted order.
func (c *Class) Signatures() []string {
	sigs := make([]string, 0, len(c.Methods))
	for sig := range c.Methods {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)
	return sigs
}
