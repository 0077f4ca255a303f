package asm

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for assembly source
// ---------------------------------------------------------------------------

// Lexer splits assembly source into whitespace-separated tokens.
// Line breaks are significant; "//" starts a comment that runs to the end
// of the line.
type Lexer struct {
	input     string
	pos       int // current position in input
	line      int // current line (1-based)
	lineStart int // offset of current line start
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1}
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.pos - l.lineStart + 1}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipBlanksAndComments()
	pos := l.position()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: pos}
	}

	if l.input[l.pos] == '\n' {
		l.pos++
		l.line++
		l.lineStart = l.pos
		return Token{Type: TokenNewline, Literal: "\n", Pos: pos}
	}

	start := l.pos
	for l.pos < len(l.input) && !isBlank(l.input[l.pos]) && l.input[l.pos] != '\n' {
		l.pos++
	}
	word := l.input[start:l.pos]

	if n, err := strconv.ParseInt(word, 0, 64); err == nil {
		return Token{Type: TokenInteger, Literal: word, Value: n, Pos: pos}
	}
	if len(word) > 1 && strings.HasSuffix(word, ":") && strings.Count(word, ":") == 1 {
		return Token{Type: TokenLabel, Literal: strings.TrimSuffix(word, ":"), Pos: pos}
	}
	return Token{Type: TokenWord, Literal: word, Pos: pos}
}

// Tokenize returns all tokens up to and including EOF.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}

func (l *Lexer) skipBlanksAndComments() {
	for l.pos < len(l.input) {
		switch {
		case isBlank(l.input[l.pos]):
			l.pos++
		case strings.HasPrefix(l.input[l.pos:], "//"):
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r'
}
