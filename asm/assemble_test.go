package asm

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/chazu/ristretto/classfile"
	"github.com/chazu/ristretto/pkg/bytecode"
	"github.com/chazu/ristretto/vm"
)

const counterSrc = `
class Counter extends java/lang/Object
  method <init> ()V
    aload_0
    invokespecial java/lang/Object.<init>:()V
    return
  end

  method static main ([Ljava/lang/String;)V
    bipush 10
    invokestatic sum:(I)I
    istore_1
    return
  end

  method static sum (I)I
    iconst_0
    istore_1
    iconst_0
    istore_2
    goto test
  body:
    iload_1
    iload_2
    iadd
    istore_1
    iinc 2 1
  test:
    iload_2
    iload_0
    if_icmplt body
    iload_1
    ireturn
  end
end
`

func assembleCounter(t *testing.T) vm.ClassDef {
	t.Helper()
	defs, err := Assemble(counterSrc)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("defs = %d, want 1", len(defs))
	}
	return defs[0]
}

func method(t *testing.T, def vm.ClassDef, name string) vm.MethodDef {
	t.Helper()
	for _, m := range def.Methods {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("no method %s", name)
	return vm.MethodDef{}
}

func TestAssembleCounter(t *testing.T) {
	def := assembleCounter(t)
	if def.Name != "Counter" || def.SuperName != "java/lang/Object" {
		t.Errorf("class = %s extends %s", def.Name, def.SuperName)
	}

	sum := method(t, def, "sum")
	want := []bytecode.Instruction{
		bytecode.Op(bytecode.OpIconst0),
		bytecode.Op(bytecode.OpIstore1),
		bytecode.Op(bytecode.OpIconst0),
		bytecode.Op(bytecode.OpIstore2),
		bytecode.Goto(10),
		bytecode.Op(bytecode.OpIload1),
		bytecode.Op(bytecode.OpIload2),
		bytecode.Op(bytecode.OpIadd),
		bytecode.Op(bytecode.OpIstore1),
		bytecode.Iinc(2, 1),
		bytecode.Op(bytecode.OpIload2),
		bytecode.Op(bytecode.OpIload0),
		bytecode.IfIcmplt(5),
		bytecode.Op(bytecode.OpIload1),
		bytecode.Op(bytecode.OpIreturn),
	}
	if !slices.Equal(sum.Code, want) {
		t.Errorf("sum code:\n%s\nwant:\n%s", bytecode.Disassemble(sum.Code), bytecode.Disassemble(want))
	}
	if sum.MaxStack != 2 || sum.MaxLocals != 3 {
		t.Errorf("sum stack=%d locals=%d, want 2 and 3", sum.MaxStack, sum.MaxLocals)
	}

	ctor := method(t, def, "<init>")
	if ctor.MaxStack != 1 || ctor.MaxLocals != 1 {
		t.Errorf("<init> stack=%d locals=%d, want 1 and 1", ctor.MaxStack, ctor.MaxLocals)
	}
	entry := method(t, def, "main")
	if entry.MaxStack != 1 || entry.MaxLocals != 2 {
		t.Errorf("main stack=%d locals=%d, want 1 and 2", entry.MaxStack, entry.MaxLocals)
	}
}

func TestAssembleBuildsPool(t *testing.T) {
	def := assembleCounter(t)
	pool := classfile.NewConstantPool(def.Pool)

	sigs := make(map[string]bool)
	for _, m := range def.Methods {
		for _, in := range m.Code {
			if !in.Op.IsInvoke() {
				continue
			}
			sig, err := pool.Resolve(uint16(in.A))
			if err != nil {
				t.Fatalf("Resolve(#%d): %v", in.A, err)
			}
			sigs[sig] = true
		}
	}
	for _, want := range []string{"java/lang/Object.<init>:()V", "Counter.sum:(I)I"} {
		if !sigs[want] {
			t.Errorf("no invoke resolves to %s (got %v)", want, sigs)
		}
	}

	// Interned: "Counter" appears once however often it is referenced.
	n := 0
	for _, e := range def.Pool {
		if e.Tag == classfile.TagUtf8 && e.Text == "Counter" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("Utf8 Counter appears %d times, want 1", n)
	}
}

func TestAssembledCodeRuns(t *testing.T) {
	reg, err := vm.Load([]vm.ClassDef{assembleCounter(t)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	st := vm.Execute(reg, "Counter.sum:(I)I", vm.WithArgs(10))
	if !st.OK() || st.Result != 45 {
		t.Errorf("sum(10) = %d (%v, %v), want 45", st.Result, st.Status, st.Fault)
	}

	st = vm.Execute(reg, vm.DefaultEntry("Counter"))
	if !st.OK() || st.Stats.Invocations != 1 {
		t.Errorf("main = %+v", st)
	}
}

func TestAssembleExplicitSizesSkipAnalysis(t *testing.T) {
	// iadd on an empty stack is left for the interpreter to report.
	defs, err := Assemble("class A\nmethod static bad ()I stack 2 locals 0\niadd\nireturn\nend\nend\n")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	reg, err := vm.Load(defs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	st := vm.Execute(reg, "A.bad:()I")
	if st.OK() || st.Fault.Kind != vm.FaultFrame {
		t.Errorf("Execute = %+v, want a frame fault", st)
	}
}

func TestAssembleBranchToEnd(t *testing.T) {
	defs, err := Assemble("class A\nmethod static m ()V\ngoto out\niconst_1\nout:\nend\nend\n")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	m := defs[0].Methods[0]
	if m.Code[0].A != 2 || len(m.Code) != 2 {
		t.Errorf("code = %v, want goto 2 past the last instruction", m.Code)
	}
}

func TestAssembleErrors(t *testing.T) {
	wrap := func(body string) string {
		return "class A\nmethod static m ()V\n" + body + "\nend\nend\n"
	}

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown instruction", wrap("imul"), `unknown instruction "imul"`},
		{"missing operand", wrap("bipush"), "bipush takes 1 operand(s), got 0"},
		{"extra operand", wrap("iadd 1"), "iadd takes 0 operand(s), got 1"},
		{"bipush range", wrap("bipush 200"), "200 out of range [-128, 127]"},
		{"sipush range", wrap("sipush 40000"), "out of range"},
		{"slot range", wrap("iload 256"), "out of range [0, 255]"},
		{"iinc delta", wrap("iinc 0 300"), "out of range [-128, 127]"},
		{"not an integer", wrap("bipush x"), `expected integer, got "x"`},
		{"undefined label", wrap("goto nowhere"), "undefined label nowhere"},
		{"duplicate label", wrap("a:\na:\nreturn"), "duplicate label a"},
		{"bad reference", wrap("invokestatic foo"), "malformed method reference"},
		{"bad reference descriptor", wrap("invokestatic A.m:(Q)V"), "malformed method descriptor"},
		{"underflow", wrap("iadd\nreturn"), "stack underflow"},
		{"inconsistent depth", wrap("iconst_0\niconst_0\nif_icmplt join\niconst_1\njoin:\nreturn"), "on different paths"},
		{"bad descriptor", "class A\nmethod m nope\nreturn\nend\nend\n", "method m: malformed method descriptor"},
		{"duplicate method", "class A\nmethod m ()V\nreturn\nend\nmethod m ()V\nreturn\nend\nend\n", "duplicate method m:()V"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tt.src)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Assemble error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestAssembleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Counter"+FileExt)
	if err := os.WriteFile(path, []byte(counterSrc), 0644); err != nil {
		t.Fatal(err)
	}
	defs, err := AssembleFile(path)
	if err != nil || len(defs) != 1 {
		t.Fatalf("AssembleFile = %d defs, %v", len(defs), err)
	}

	bad := filepath.Join(t.TempDir(), "Bad"+FileExt)
	if err := os.WriteFile(bad, []byte("class\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := AssembleFile(bad); err == nil || !strings.Contains(err.Error(), bad) {
		t.Errorf("AssembleFile error = %v, want it to name the file", err)
	}
}
