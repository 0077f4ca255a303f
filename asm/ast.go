package asm

// File is a parsed assembly source file.
type File struct {
	Classes []*ClassDecl
}

// ClassDecl is one "class ... end" block.
type ClassDecl struct {
	Pos     Position
	Name    string
	Super   string // empty when no extends clause
	Methods []*MethodDecl
}

// MethodDecl is one "method ... end" block. MaxStack and MaxLocals are -1
// when the header leaves them to be inferred.
type MethodDecl struct {
	Pos        Position
	Name       string
	Descriptor string
	Static     bool
	MaxStack   int
	MaxLocals  int
	Body       []*Line
}

// Line is one body line: a label, an instruction, or a label followed by
// an instruction.
type Line struct {
	Pos      Position
	Label    string
	Mnemonic string
	Operands []Token
}
