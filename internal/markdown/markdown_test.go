package markdown

import "testing"

func TestToText_Literal(t *testing.T) {
	got := ToText("**Hello** [world](http://x)")
	if got != "Hello world (http://x)" {
		t.Fatalf("ToText = %q", got)
	}
}

func TestToText_Cases(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "just text", "just text"},
		{"fence keeps body", "before\n```go\nfmt.Println(1)\n```\nafter", "before\nfmt.Println(1)\nafter"},
		{"inline code", "run `make test` now", "run make test now"},
		{"image", "![logo](http://img/x.png)", "logo (http://img/x.png)"},
		{"image without alt", "![](http://img/x.png)", "(http://img/x.png)"},
		{"link", "see [docs]( http://d )", "see docs (http://d)"},
		{"headings", "# Title\n### Sub", "Title\nSub"},
		{"blockquote nested", "> > quoted", "quoted"},
		{"quoted heading", "> # Title", "Title"},
		{"bold underscores", "__strong__ text", "strong text"},
		{"italic star", "an *emphasis* here", "an emphasis here"},
		{"italic underscore", "an _emphasis_ here", "an emphasis here"},
		{"snake_case kept", "call my_func_name now", "call my_func_name now"},
		{"strike", "~~old~~ new", "old new"},
		{"triple star", "***both***", "both"},
		{"bullets", "* one\n+ two\n  - three", "- one\n- two\n- three"},
		{"numbered", "1. first\n2.  second", "1) first\n2) second"},
		{"table", "| a | b |\n|---|---|\n| 1 | 2 |", "a b\n1 2"},
		{"stray pipe", "x | y", "x y"},
		{"blank lines", "a\n\n\n\n\nb", "a\n\nb"},
		{"whitespace-only lines", "a\n \n\t\n \nb", "a\n\nb"},
		{"trailing spaces", "a   \nb\t\n", "a\nb"},
		{"crlf", "a\r\nb", "a\nb"},
		{"bullet with bold", "* **x** y", "- x y"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ToText(tc.in); got != tc.want {
				t.Fatalf("ToText(%q) = %q; want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestToText_Idempotent(t *testing.T) {
	inputs := []string{
		"**Hello** [world](http://x)",
		"# # double heading",
		"> > > deep quote\n> # heading in quote",
		"**# heading inside bold**",
		"***x*** and **y** and *z* and _w_",
		"| h1 | h2 |\n| :--- | ---: |\n| **a** | `b` |",
		"```\n# not a heading\n* not a bullet\n```",
		"* item with *emph*\n* item two\n\n\n\n1. one\n2. two",
		"odd ** markers * everywhere __",
		"mixed ~~strike **bold** ~~ end",
		"![img](u) [link](v) [[nested]](w)",
		"line   \n \n \n \nnext",
		"> - quoted bullet\n>\n> 1. quoted number",
		"plain text with no markup at all.",
		"*a**b*",
		"trailing pipe |\n| leading pipe",
	}
	for _, in := range inputs {
		once := ToText(in)
		twice := ToText(once)
		if once != twice {
			t.Fatalf("not idempotent for %q:\n once=%q\ntwice=%q", in, once, twice)
		}
	}
}
