package bytecode

import (
	"errors"
	"strings"
	"testing"
)

// loopCode is the counting loop `for (i = 0; i < 100; i++) {}`.
func loopCode() []Instruction {
	return []Instruction{
		Op(OpIconst0), // 0
		Op(OpIstore1), // 1
		Goto(4),       // 2
		Iinc(1, 1),    // 3
		Op(OpIload1),  // 4
		Bipush(100),   // 5
		IfIcmplt(3),   // 6
		Op(OpReturn),  // 7
	}
}

func TestDecodeJavacLoop(t *testing.T) {
	// Bytes as javac emits them: branch operands are relative byte offsets.
	code := []byte{
		0x03,             // 0: iconst_0
		0x3C,             // 1: istore_1
		0xA7, 0x00, 0x06, // 2: goto +6 -> byte 8
		0x84, 0x01, 0x01, // 5: iinc 1, 1
		0x1B,             // 8: iload_1
		0x10, 0x64,       // 9: bipush 100
		0xA1, 0xFF, 0xFA, // 11: if_icmplt -6 -> byte 5
		0xB1,             // 14: return
	}

	got, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := loopCode()
	if len(got) != len(want) {
		t.Fatalf("decoded %d instructions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("instruction %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	code := append(loopCode(),
		Sipush(-300),
		Iload(7),
		Istore(9),
		Iinc(2, -5),
		Invokestatic(2),
		Invokespecial(1),
		Op(OpIadd),
		Op(OpIreturn),
	)

	raw, err := Encode(code)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := range code {
		if got[i] != code[i] {
			t.Errorf("instruction %d = %v, want %v", i, got[i], code[i])
		}
	}
}

func TestDecodeBranchToEnd(t *testing.T) {
	raw, err := Encode([]Instruction{Goto(1)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got[0].A != 1 {
		t.Errorf("goto target = %d, want 1", got[0].A)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want error
	}{
		{"unknown opcode", []byte{0xCA}, ErrUnknownOpcode},
		{"truncated bipush", []byte{0x10}, ErrTruncated},
		{"truncated invoke", []byte{0xB8, 0x00}, ErrTruncated},
		{"branch into operand", []byte{0x10, 0x01, 0xA7, 0xFF, 0xFF}, ErrBadBranch},
		{"branch past end", []byte{0xA7, 0x00, 0x09}, ErrBadBranch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.code)
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncodeOperandRange(t *testing.T) {
	far := make([]Instruction, 0, 40000)
	for range 40000 {
		far = append(far, Op(OpIadd))
	}
	far = append(far, Goto(0))

	tests := []struct {
		name string
		code []Instruction
	}{
		{"bipush", []Instruction{{Op: OpBipush, A: 200}}},
		{"sipush", []Instruction{{Op: OpSipush, A: 40000}}},
		{"iload slot", []Instruction{{Op: OpIload, A: 256}}},
		{"istore negative slot", []Instruction{{Op: OpIstore, A: -1}}},
		{"iinc slot", []Instruction{{Op: OpIinc, A: 300, B: 1}}},
		{"iinc delta", []Instruction{{Op: OpIinc, A: 1, B: 128}}},
		{"invoke index", []Instruction{{Op: OpInvokestatic, A: 70000}}},
		{"branch offset", far},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(tt.code); !errors.Is(err, ErrOperandRange) {
				t.Errorf("Encode error = %v, want ErrOperandRange", err)
			}
		})
	}

	if _, err := Encode([]Instruction{Iload(255), Iinc(255, -128), Bipush(-128), Sipush(32767)}); err != nil {
		t.Errorf("Encode at the operand limits: %v", err)
	}
}

func TestSlot(t *testing.T) {
	tests := []struct {
		in   Instruction
		want int
	}{
		{Op(OpIload0), 0},
		{Op(OpIload3), 3},
		{Op(OpIstore2), 2},
		{Op(OpAload0), 0},
		{Iload(12), 12},
		{Istore(5), 5},
		{Iinc(4, 1), 4},
		{Op(OpIadd), -1},
		{Goto(3), -1},
	}
	for _, tt := range tests {
		if got := tt.in.Slot(); got != tt.want {
			t.Errorf("%v.Slot() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestOpcodeInfoComplete(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("opcode 0x%02X has no name", byte(op))
		}
		if op.IsBranch() && info.OperandLen != 2 {
			t.Errorf("%s operand length = %d, want 2", op, info.OperandLen)
		}
		if got, ok := Lookup(info.Name); !ok || got != op {
			t.Errorf("Lookup(%q) = %v, %v", info.Name, got, ok)
		}
	}
	if _, ok := Lookup("imul"); ok {
		t.Error("Lookup found imul")
	}
	if Opcode(0xFE).Known() {
		t.Error("0xFE reported as known")
	}
}

type fakePool map[uint16]string

func (p fakePool) Resolve(index uint16) (string, error) {
	if s, ok := p[index]; ok {
		return s, nil
	}
	return "", errors.New("missing")
}

func TestDisassemble(t *testing.T) {
	l := &Listing{
		Name:      "Adder.main:()V",
		MaxStack:  2,
		MaxLocals: 1,
		Code: []Instruction{
			Op(OpIconst1),
			Op(OpIconst1),
			Invokestatic(2),
			Op(OpIstore0),
			Op(OpReturn),
		},
		Pool: fakePool{2: "Adder.add:(II)I"},
	}
	out := l.String()

	for _, want := range []string{
		"; === Adder.main:()V ===",
		"; stack=2 locals=1",
		"0002  invokestatic #2",
		"; Adder.add:(II)I",
		"0004  return",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}

	loop := Disassemble(loopCode())
	if !strings.Contains(loop, "> 0003  iinc 1, 1") {
		t.Errorf("branch target not marked:\n%s", loop)
	}
	if !strings.Contains(loop, "0006  if_icmplt -> 3") {
		t.Errorf("branch not rendered:\n%s", loop)
	}
}
