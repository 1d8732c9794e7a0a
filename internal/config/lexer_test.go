package config

import "testing"

func TestLexerTokenStream(t *testing.T) {
	src := `cmd "sleeper" { exec = "sleep 10"; auto_respawn = true; }`
	want := []TokenType{
		TokIdentifier, TokString, TokOpenBrace,
		TokIdentifier, TokAssign, TokString, TokSemicolon,
		TokIdentifier, TokAssign, TokIdentifier, TokSemicolon,
		TokCloseBrace, TokEOF,
	}
	lex := NewLexer(src)
	for i, wantType := range want {
		tok, err := lex.Next()
		if err != nil {
			t.Fatalf("token %d: unexpected error: %v", i, err)
		}
		if tok.Type != wantType {
			t.Fatalf("token %d: type = %v, want %v (val=%q)", i, tok.Type, wantType, tok.Val)
		}
	}
}

func TestLexerSkipsComments(t *testing.T) {
	lex := NewLexer("# a comment\nexec")
	tok, err := lex.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Type != TokComment {
		t.Fatalf("first token type = %v, want Comment", tok.Type)
	}
	tok, err = lex.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Type != TokIdentifier || tok.Val != "exec" {
		t.Fatalf("second token = %+v, want identifier 'exec'", tok)
	}
}

func TestLexerStringEscaping(t *testing.T) {
	lex := NewLexer(`"a\"b\\c\nd"`)
	tok, err := lex.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "a\"b\\c\nd"
	if tok.Val != want {
		t.Fatalf("Val = %q, want %q", tok.Val, want)
	}
}

func TestLexerUnterminatedStringIsParseError(t *testing.T) {
	lex := NewLexer(`"no closing quote`)
	_, err := lex.Next()
	if err == nil {
		t.Fatal("expected an error for an unterminated string")
	}
	if _, ok := err.(*ParseError); !ok {
		t.Fatalf("error type = %T, want *ParseError", err)
	}
}

func TestLexerInvalidCharacter(t *testing.T) {
	lex := NewLexer(`@`)
	_, err := lex.Next()
	if err == nil {
		t.Fatal("expected an error for an invalid character")
	}
}

func TestLexerIntegerToken(t *testing.T) {
	lex := NewLexer("12345")
	tok, err := lex.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Type != TokInteger || tok.Val != "12345" {
		t.Fatalf("token = %+v, want Integer 12345", tok)
	}
}

func TestLexerLineAndColTracking(t *testing.T) {
	lex := NewLexer("cmd\n  exec")
	first, err := lex.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Line != 1 || first.Col != 1 {
		t.Fatalf("first token line/col = %d/%d, want 1/1", first.Line, first.Col)
	}
	second, err := lex.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Line != 2 {
		t.Fatalf("second token line = %d, want 2", second.Line)
	}
}
