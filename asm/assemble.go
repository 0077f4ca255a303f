package asm

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/chazu/ristretto/classfile"
	"github.com/chazu/ristretto/pkg/bytecode"
	"github.com/chazu/ristretto/vm"
)

// FileExt is the conventional extension for assembly sources.
const FileExt = ".rasm"

// Assemble parses src and builds one class definition per class block.
func Assemble(src string) ([]vm.ClassDef, error) {
	f, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return Generate(f)
}

// AssembleFile reads and assembles a source file.
func AssembleFile(path string) ([]vm.ClassDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defs, err := Assemble(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s:\n%w", path, err)
	}
	return defs, nil
}

// Generate builds class definitions from a parsed file.
func Generate(f *File) ([]vm.ClassDef, error) {
	g := &generator{}
	var defs []vm.ClassDef
	for _, c := range f.Classes {
		defs = append(defs, g.class(c))
	}
	if len(g.errors) > 0 {
		return nil, g.errors
	}
	return defs, nil
}

// ---------------------------------------------------------------------------
// Constant pool construction
// ---------------------------------------------------------------------------

// poolBuilder interns the entries a class needs, javac style: each
// distinct string, class, name-and-type and method reference appears once.
type poolBuilder struct {
	entries []classfile.Entry
	index   map[classfile.Entry]uint16
}

func newPoolBuilder() *poolBuilder {
	return &poolBuilder{
		entries: []classfile.Entry{classfile.Placeholder()},
		index:   make(map[classfile.Entry]uint16),
	}
}

func (b *poolBuilder) add(e classfile.Entry) uint16 {
	if i, ok := b.index[e]; ok {
		return i
	}
	i := uint16(len(b.entries))
	b.entries = append(b.entries, e)
	b.index[e] = i
	return i
}

func (b *poolBuilder) utf8(s string) uint16 { return b.add(classfile.Utf8(s)) }

func (b *poolBuilder) class(name string) uint16 {
	return b.add(classfile.ClassRef(b.utf8(name)))
}

func (b *poolBuilder) methodRef(class, name, desc string) uint16 {
	nat := b.add(classfile.NameAndType(b.utf8(name), b.utf8(desc)))
	return b.add(classfile.MethodRef(b.class(class), nat))
}

func (b *poolBuilder) full() bool { return len(b.entries) >= math.MaxUint16 }

// ---------------------------------------------------------------------------
// Code generation
// ---------------------------------------------------------------------------

type generator struct {
	errors ErrorList
}

func (g *generator) errorf(pos Position, format string, args ...any) {
	g.errors = append(g.errors, &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

func (g *generator) class(c *ClassDecl) vm.ClassDef {
	pool := newPoolBuilder()
	pool.class(c.Name)
	if c.Super != "" {
		pool.class(c.Super)
	}

	def := vm.ClassDef{Name: c.Name, SuperName: c.Super}
	seen := make(map[string]bool)
	for _, m := range c.Methods {
		key := m.Name + ":" + m.Descriptor
		if seen[key] {
			g.errorf(m.Pos, "duplicate method %s", key)
			continue
		}
		seen[key] = true
		def.Methods = append(def.Methods, g.method(c, m, pool))
	}
	if pool.full() {
		g.errorf(c.Pos, "class %s: constant pool overflow", c.Name)
	}
	def.Pool = pool.entries
	return def
}

func (g *generator) method(c *ClassDecl, m *MethodDecl, pool *poolBuilder) vm.MethodDef {
	md := vm.MethodDef{Name: m.Name, Descriptor: m.Descriptor}

	slots, _, err := vm.ParseDescriptor(m.Descriptor)
	if err != nil {
		g.errorf(m.Pos, "method %s: %v", m.Name, err)
		return md
	}

	labels := make(map[string]int)
	n := 0
	for _, line := range m.Body {
		if line.Label != "" {
			if _, dup := labels[line.Label]; dup {
				g.errorf(line.Pos, "duplicate label %s", line.Label)
			}
			labels[line.Label] = n
		}
		if line.Mnemonic != "" {
			n++
		}
	}

	before := len(g.errors)
	code := make([]bytecode.Instruction, 0, n)
	for _, line := range m.Body {
		if line.Mnemonic == "" {
			continue
		}
		in, ok := g.instruction(c, line, labels, pool)
		if ok {
			code = append(code, in)
		}
	}
	md.Code = code
	if len(g.errors) > before {
		return md
	}

	md.MaxLocals = m.MaxLocals
	if md.MaxLocals < 0 {
		md.MaxLocals = inferLocals(code, slots, m.Static)
	}
	md.MaxStack = m.MaxStack
	if md.MaxStack < 0 {
		depth, err := maxStack(code, pool.entries)
		if err != nil {
			g.errorf(m.Pos, "method %s: %v", m.Name, err)
		}
		md.MaxStack = depth
	}
	return md
}

func (g *generator) instruction(c *ClassDecl, line *Line, labels map[string]int, pool *poolBuilder) (bytecode.Instruction, bool) {
	op, ok := bytecode.Lookup(line.Mnemonic)
	if !ok {
		g.errorf(line.Pos, "unknown instruction %q", line.Mnemonic)
		return bytecode.Instruction{}, false
	}
	in := bytecode.Instruction{Op: op}

	want := 0
	switch op {
	case bytecode.OpBipush, bytecode.OpSipush, bytecode.OpIload, bytecode.OpIstore,
		bytecode.OpGoto, bytecode.OpIfIcmplt, bytecode.OpInvokestatic, bytecode.OpInvokespecial:
		want = 1
	case bytecode.OpIinc:
		want = 2
	}
	if len(line.Operands) != want {
		g.errorf(line.Pos, "%s takes %d operand(s), got %d", op, want, len(line.Operands))
		return in, false
	}

	var err error
	switch op {
	case bytecode.OpBipush:
		in.A, err = intOperand(line.Operands[0], math.MinInt8, math.MaxInt8)
	case bytecode.OpSipush:
		in.A, err = intOperand(line.Operands[0], math.MinInt16, math.MaxInt16)
	case bytecode.OpIload, bytecode.OpIstore:
		in.A, err = intOperand(line.Operands[0], 0, math.MaxUint8)
	case bytecode.OpIinc:
		if in.A, err = intOperand(line.Operands[0], 0, math.MaxUint8); err == nil {
			in.B, err = intOperand(line.Operands[1], math.MinInt8, math.MaxInt8)
		}
	case bytecode.OpGoto, bytecode.OpIfIcmplt:
		in.A, err = branchOperand(line.Operands[0], labels)
	case bytecode.OpInvokestatic, bytecode.OpInvokespecial:
		var class, name, desc string
		class, name, desc, err = splitSignature(line.Operands[0].Literal, c.Name)
		if err == nil {
			in.A = int32(pool.methodRef(class, name, desc))
		}
	}
	if err != nil {
		g.errorf(line.Operands[0].Pos, "%s: %v", op, err)
		return in, false
	}
	return in, true
}

func intOperand(tok Token, lo, hi int64) (int32, error) {
	if tok.Type != TokenInteger {
		return 0, fmt.Errorf("expected integer, got %s", tok)
	}
	if tok.Value < lo || tok.Value > hi {
		return 0, fmt.Errorf("%d out of range [%d, %d]", tok.Value, lo, hi)
	}
	return int32(tok.Value), nil
}

// branchOperand accepts a label or an absolute instruction index.
func branchOperand(tok Token, labels map[string]int) (int32, error) {
	if tok.Type == TokenInteger {
		return intOperand(tok, 0, math.MaxInt32)
	}
	target, ok := labels[tok.Literal]
	if !ok {
		return 0, fmt.Errorf("undefined label %s", tok.Literal)
	}
	return int32(target), nil
}

// splitSignature splits "Class.name:desc". Without a class part the
// method belongs to self.
func splitSignature(sig, self string) (class, name, desc string, err error) {
	head, desc, ok := strings.Cut(sig, ":")
	if !ok || desc == "" {
		return "", "", "", fmt.Errorf("malformed method reference %q; want Class.name:descriptor", sig)
	}
	class, name = self, head
	if i := strings.LastIndexByte(head, '.'); i >= 0 {
		class, name = head[:i], head[i+1:]
	}
	if class == "" || name == "" {
		return "", "", "", fmt.Errorf("malformed method reference %q; want Class.name:descriptor", sig)
	}
	if _, _, err := vm.ParseDescriptor(desc); err != nil {
		return "", "", "", err
	}
	return class, name, desc, nil
}
