package main

import "testing"

func TestSplitTypeArg(t *testing.T) {
	tests := []struct {
		in, typ, rest string
	}{
		{"i32 1 + 2", "i32", "1 + 2"},
		{"map<string, i32> ({a: 1})", "map<string, i32>", "({a: 1})"},
		{"struct P{x: i32, y: i32} new P(1, 2)", "struct P{x: i32, y: i32}", "new P(1, 2)"},
		{"enum{S:string, Null} null", "enum{S:string, Null}", "null"},
		{"seq<i8>", "seq<i8>", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		typ, rest := splitTypeArg(tt.in)
		if typ != tt.typ || rest != tt.rest {
			t.Errorf("splitTypeArg(%q) = %q, %q, want %q, %q", tt.in, typ, rest, tt.typ, tt.rest)
		}
	}
}

func TestParseTypedArgUsage(t *testing.T) {
	if _, _, err := parseTypedArg("i32", ".de <type> <expr>"); err == nil {
		t.Error("missing expression accepted")
	}
	if _, _, err := parseTypedArg("seq< 1", ".de <type> <expr>"); err == nil {
		t.Error("bad type accepted")
	}
	typ, expr, err := parseTypedArg("option<bool> true", ".de <type> <expr>")
	if err != nil {
		t.Fatal(err)
	}
	if typ.String() != "option<bool>" || expr != "true" {
		t.Errorf("got %s, %q", typ, expr)
	}
}

func TestNeedsContinuation(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"1 + 1", false},
		{"function f() {", true},
		{"[1, 2", true},
		{"'open", true},
		{`"a\"b"`, false},
		{"f(x)", false},
	}
	for _, tt := range tests {
		if got := needsContinuation(tt.line); got != tt.want {
			t.Errorf("needsContinuation(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestIsExitCommand(t *testing.T) {
	for _, s := range []string{".exit", ".QUIT", ".q"} {
		if !isExitCommand(s) {
			t.Errorf("%s is not an exit command", s)
		}
	}
	if isExitCommand(".help") {
		t.Error(".help is an exit command")
	}
}
