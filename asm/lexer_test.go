package asm

import "testing"

func TestLexer(t *testing.T) {
	input := "top:  iinc 1 -1 // decrement\n\tinvokestatic Calc.add:(II)I 0x10\n"
	want := []struct {
		typ TokenType
		lit string
	}{
		{TokenLabel, "top"},
		{TokenWord, "iinc"},
		{TokenInteger, "1"},
		{TokenInteger, "-1"},
		{TokenNewline, "\n"},
		{TokenWord, "invokestatic"},
		{TokenWord, "Calc.add:(II)I"},
		{TokenInteger, "0x10"},
		{TokenNewline, "\n"},
		{TokenEOF, ""},
	}

	tokens := NewLexer(input).Tokenize()
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(want), tokens)
	}
	for i, w := range want {
		if tokens[i].Type != w.typ || tokens[i].Literal != w.lit {
			t.Errorf("token %d = %v %q, want %v %q", i, tokens[i].Type, tokens[i].Literal, w.typ, w.lit)
		}
	}
	if tokens[3].Value != -1 || tokens[7].Value != 16 {
		t.Errorf("integer values = %d, %d", tokens[3].Value, tokens[7].Value)
	}
}

func TestLexerPositions(t *testing.T) {
	tokens := NewLexer("class A\n  end").Tokenize()
	// class, A, newline, end, EOF
	end := tokens[3]
	if end.Literal != "end" || end.Pos.Line != 2 || end.Pos.Column != 3 {
		t.Errorf("end token at %v, want 2:3", end.Pos)
	}
}

func TestLexerCommentOnlyLine(t *testing.T) {
	tokens := NewLexer("// nothing here\n").Tokenize()
	if len(tokens) != 2 || tokens[0].Type != TokenNewline || tokens[1].Type != TokenEOF {
		t.Errorf("tokens = %v, want newline, EOF", tokens)
	}
}
