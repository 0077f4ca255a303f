package asm

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the assembly lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNewline

	TokenInteger // 42, -7, 0x1F
	TokenLabel   // loop:
	TokenWord    // iadd, Calc.add:(II)I, java/lang/Object
)

var tokenNames = map[TokenType]string{
	TokenEOF:     "EOF",
	TokenNewline: "NEWLINE",
	TokenInteger: "INTEGER",
	TokenLabel:   "LABEL",
	TokenWord:    "WORD",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is a lexical token. Value holds the parsed number for TokenInteger.
type Token struct {
	Type    TokenType
	Literal string
	Value   int64
	Pos     Position
}

func (t Token) String() string {
	if t.Type == TokenNewline {
		return "newline"
	}
	if t.Type == TokenEOF {
		return "end of file"
	}
	return fmt.Sprintf("%q", t.Literal)
}
