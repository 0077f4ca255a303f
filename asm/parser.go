package asm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: line-oriented parser for assembly source
// ---------------------------------------------------------------------------
//
//	class Calc extends java/lang/Object
//	  method static add (II)I stack 2 locals 2
//	    iload_0
//	    iload_1
//	    iadd
//	    ireturn
//	  end
//	end

// Error is a parse or assembly error at a source position.
type Error struct {
	Pos Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %s", e.Pos.Line, e.Msg)
}

// ErrorList collects every error found in a source file.
type ErrorList []*Error

func (l ErrorList) Error() string {
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// Parser parses assembly source into a File.
type Parser struct {
	tokens []Token
	pos    int
	errors ErrorList
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	return &Parser{tokens: NewLexer(input).Tokenize()}
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() ErrorList {
	return p.errors
}

func (p *Parser) cur() Token {
	return p.tokens[p.pos]
}

func (p *Parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) errorf(pos Position, format string, args ...any) {
	p.errors = append(p.errors, &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// skipLine discards tokens up to and including the next newline.
func (p *Parser) skipLine() {
	for {
		tok := p.next()
		if tok.Type == TokenNewline || tok.Type == TokenEOF {
			return
		}
	}
}

func (p *Parser) skipNewlines() {
	for p.cur().Type == TokenNewline {
		p.next()
	}
}

// restOfLine returns the tokens before the next newline and consumes it.
func (p *Parser) restOfLine() []Token {
	var toks []Token
	for p.cur().Type != TokenNewline && p.cur().Type != TokenEOF {
		toks = append(toks, p.next())
	}
	if p.cur().Type == TokenNewline {
		p.next()
	}
	return toks
}

func isKeyword(tok Token, kw string) bool {
	return tok.Type == TokenWord && tok.Literal == kw
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseFile parses every class in the input.
func (p *Parser) ParseFile() *File {
	f := &File{}
	for {
		p.skipNewlines()
		tok := p.cur()
		if tok.Type == TokenEOF {
			return f
		}
		if !isKeyword(tok, "class") {
			p.errorf(tok.Pos, "expected class, got %s", tok)
			p.skipLine()
			continue
		}
		if c := p.parseClass(); c != nil {
			f.Classes = append(f.Classes, c)
		}
	}
}

// parseClass parses "class Name [extends Super]" through its "end".
func (p *Parser) parseClass() *ClassDecl {
	start := p.next().Pos
	header := p.restOfLine()

	c := &ClassDecl{Pos: start}
	switch {
	case len(header) == 1 && header[0].Type == TokenWord:
		c.Name = header[0].Literal
	case len(header) == 3 && header[0].Type == TokenWord && isKeyword(header[1], "extends") && header[2].Type == TokenWord:
		c.Name, c.Super = header[0].Literal, header[2].Literal
	default:
		p.errorf(start, "malformed class header; want: class Name [extends Super]")
	}

	for {
		p.skipNewlines()
		tok := p.cur()
		switch {
		case tok.Type == TokenEOF:
			p.errorf(start, "class %s: missing end", c.Name)
			return c
		case isKeyword(tok, "end"):
			p.next()
			p.expectLineEnd()
			return c
		case isKeyword(tok, "method"):
			if m := p.parseMethod(); m != nil {
				c.Methods = append(c.Methods, m)
			}
		default:
			p.errorf(tok.Pos, "expected method or end, got %s", tok)
			p.skipLine()
		}
	}
}

// parseMethod parses
//
//	method [static] name descriptor [stack N] [locals N]
//
// and the body up to its "end".
func (p *Parser) parseMethod() *MethodDecl {
	start := p.next().Pos
	header := p.restOfLine()

	m := &MethodDecl{Pos: start, MaxStack: -1, MaxLocals: -1}
	if len(header) > 0 && isKeyword(header[0], "static") {
		m.Static = true
		header = header[1:]
	}
	if len(header) < 2 || header[0].Type != TokenWord || header[1].Type != TokenWord {
		p.errorf(start, "malformed method header; want: method [static] name descriptor [stack N] [locals N]")
		p.skipBody()
		return nil
	}
	m.Name, m.Descriptor = header[0].Literal, header[1].Literal

	for rest := header[2:]; len(rest) > 0; rest = rest[2:] {
		if len(rest) < 2 || rest[1].Type != TokenInteger || rest[1].Value < 0 || rest[1].Value > 0xFFFF {
			p.errorf(rest[0].Pos, "expected stack N or locals N, got %s", rest[0])
			break
		}
		switch {
		case isKeyword(rest[0], "stack"):
			m.MaxStack = int(rest[1].Value)
		case isKeyword(rest[0], "locals"):
			m.MaxLocals = int(rest[1].Value)
		default:
			p.errorf(rest[0].Pos, "unknown method attribute %s", rest[0])
		}
	}

	for {
		p.skipNewlines()
		tok := p.cur()
		switch {
		case tok.Type == TokenEOF:
			p.errorf(start, "method %s: missing end", m.Name)
			return m
		case isKeyword(tok, "end"):
			p.next()
			p.expectLineEnd()
			return m
		}
		m.Body = append(m.Body, p.parseLine())
	}
}

func (p *Parser) parseLine() *Line {
	toks := p.restOfLine()
	line := &Line{Pos: toks[0].Pos}

	if toks[0].Type == TokenLabel {
		line.Label = toks[0].Literal
		toks = toks[1:]
	}
	if len(toks) == 0 {
		return line
	}
	if toks[0].Type != TokenWord {
		p.errorf(toks[0].Pos, "expected instruction, got %s", toks[0])
		return line
	}
	line.Mnemonic = toks[0].Literal
	line.Operands = toks[1:]
	return line
}

// skipBody discards a malformed method through its "end".
func (p *Parser) skipBody() {
	for {
		p.skipNewlines()
		tok := p.next()
		if tok.Type == TokenEOF {
			return
		}
		if isKeyword(tok, "end") {
			p.expectLineEnd()
			return
		}
		p.skipLine()
	}
}

func (p *Parser) expectLineEnd() {
	if tok := p.cur(); tok.Type != TokenNewline && tok.Type != TokenEOF {
		p.errorf(tok.Pos, "unexpected %s after end", tok)
		p.skipLine()
	}
}

// Parse parses input into a File, returning every error found.
func Parse(input string) (*File, error) {
	p := NewParser(input)
	f := p.ParseFile()
	if len(p.errors) > 0 {
		return nil, p.errors
	}
	return f, nil
}
