package bytecode

import "fmt"

// Opcode is a JVM instruction byte.
// The values match the class-file encoding so decoded and raw forms agree.
type Opcode byte

const (
	// ========================================================================
	// Constants (0x02-0x11)
	// ========================================================================

	OpIconstM1 Opcode = 0x02 // Push -1
	OpIconst0  Opcode = 0x03 // Push 0
	OpIconst1  Opcode = 0x04 // Push 1
	OpIconst2  Opcode = 0x05 // Push 2
	OpIconst3  Opcode = 0x06 // Push 3
	OpIconst4  Opcode = 0x07 // Push 4
	OpIconst5  Opcode = 0x08 // Push 5
	OpBipush   Opcode = 0x10 // Push sign-extended byte: bipush <value:i8>
	OpSipush   Opcode = 0x11 // Push sign-extended short: sipush <value:i16>

	// ========================================================================
	// Loads (0x15-0x2A)
	// ========================================================================

	OpIload  Opcode = 0x15 // Push local: iload <slot:u8>
	OpIload0 Opcode = 0x1A // Push local 0
	OpIload1 Opcode = 0x1B // Push local 1
	OpIload2 Opcode = 0x1C // Push local 2
	OpIload3 Opcode = 0x1D // Push local 3
	OpAload0 Opcode = 0x2A // Push local 0 (receiver slot, scalar here)

	// ========================================================================
	// Stores (0x36-0x3E)
	// ========================================================================

	OpIstore  Opcode = 0x36 // Pop into local: istore <slot:u8>
	OpIstore0 Opcode = 0x3B // Pop into local 0
	OpIstore1 Opcode = 0x3C // Pop into local 1
	OpIstore2 Opcode = 0x3D // Pop into local 2
	OpIstore3 Opcode = 0x3E // Pop into local 3

	// ========================================================================
	// Arithmetic (0x60-0x84)
	// ========================================================================

	OpIadd Opcode = 0x60 // Pop two, push sum
	OpIinc Opcode = 0x84 // Add to local in place: iinc <slot:u8> <delta:i8>

	// ========================================================================
	// Control flow (0xA1-0xA7)
	// ========================================================================

	OpIfIcmplt Opcode = 0xA1 // Pop value2, value1; branch if value1 < value2
	OpGoto     Opcode = 0xA7 // Unconditional branch

	// ========================================================================
	// Returns (0xAC-0xB1)
	// ========================================================================

	OpIreturn Opcode = 0xAC // Return int from method
	OpReturn  Opcode = 0xB1 // Return void from method

	// ========================================================================
	// Invocation (0xB7-0xB8)
	// ========================================================================

	OpInvokespecial Opcode = 0xB7 // invokespecial <index:u16>
	OpInvokestatic  Opcode = 0xB8 // invokestatic <index:u16>
)

// OpcodeInfo provides metadata about each opcode for decoding and listings.
type OpcodeInfo struct {
	Name       string // JVM mnemonic
	StackPop   int    // values popped from the operand stack
	StackPush  int    // values pushed to the operand stack
	OperandLen int    // operand bytes following the opcode in class files
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Constants
	OpIconstM1: {"iconst_m1", 0, 1, 0},
	OpIconst0:  {"iconst_0", 0, 1, 0},
	OpIconst1:  {"iconst_1", 0, 1, 0},
	OpIconst2:  {"iconst_2", 0, 1, 0},
	OpIconst3:  {"iconst_3", 0, 1, 0},
	OpIconst4:  {"iconst_4", 0, 1, 0},
	OpIconst5:  {"iconst_5", 0, 1, 0},
	OpBipush:   {"bipush", 0, 1, 1},
	OpSipush:   {"sipush", 0, 1, 2},

	// Loads
	OpIload:  {"iload", 0, 1, 1},
	OpIload0: {"iload_0", 0, 1, 0},
	OpIload1: {"iload_1", 0, 1, 0},
	OpIload2: {"iload_2", 0, 1, 0},
	OpIload3: {"iload_3", 0, 1, 0},
	OpAload0: {"aload_0", 0, 1, 0},

	// Stores
	OpIstore:  {"istore", 1, 0, 1},
	OpIstore0: {"istore_0", 1, 0, 0},
	OpIstore1: {"istore_1", 1, 0, 0},
	OpIstore2: {"istore_2", 1, 0, 0},
	OpIstore3: {"istore_3", 1, 0, 0},

	// Arithmetic
	OpIadd: {"iadd", 2, 1, 0},
	OpIinc: {"iinc", 0, 0, 2},

	// Control flow
	OpIfIcmplt: {"if_icmplt", 2, 0, 2},
	OpGoto:     {"goto", 0, 0, 2},

	// Returns
	OpIreturn: {"ireturn", 1, 0, 0},
	OpReturn:  {"return", 0, 0, 0},

	// Invocation (stack effect depends on the callee descriptor)
	OpInvokespecial: {"invokespecial", -1, -1, 2},
	OpInvokestatic:  {"invokestatic", -1, -1, 2},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with an "UNKNOWN" name if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		m[info.Name] = op
	}
	return m
}()

// Lookup returns the opcode with the given JVM mnemonic.
func Lookup(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// Known reports whether op belongs to the supported instruction set.
func (op Opcode) Known() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the JVM mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the encoded length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsBranch returns true if the first operand is a branch target.
func (op Opcode) IsBranch() bool {
	return op == OpGoto || op == OpIfIcmplt
}

// IsReturn returns true if this opcode terminates the frame.
func (op Opcode) IsReturn() bool {
	return op == OpIreturn || op == OpReturn
}

// IsInvoke returns true if this opcode suspends the frame for a call.
func (op Opcode) IsInvoke() bool {
	return op == OpInvokespecial || op == OpInvokestatic
}

// AllOpcodes returns a slice of all defined opcodes.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}
