package render

import (
	"strings"
	"testing"
)

func TestHTML(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  []string
	}{
		{"paragraphs", "Dear HR,\n\nI am unwell.", []string{"<p>Dear HR,</p>", "<p>I am unwell.</p>"}},
		{"hard wraps", "Roses are red\nViolets are blue", []string{"Roses are red<br>"}},
		{"emphasis", "a **bold** word", []string{"<strong>bold</strong>"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := HTML(tc.input)
			if err != nil {
				t.Fatalf("HTML: %v", err)
			}
			for _, w := range tc.want {
				if !strings.Contains(got, w) {
					t.Fatalf("expected %q in %q", w, got)
				}
			}
		})
	}
}

func TestHTMLDropsRawHTML(t *testing.T) {
	got, err := HTML("<script>alert(1)</script>")
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if strings.Contains(got, "<script>") {
		t.Fatalf("raw html passed through: %q", got)
	}
}
