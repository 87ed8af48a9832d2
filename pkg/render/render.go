// Package render converts generated text to HTML.
package render

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.Typographer),
	// Line breaks matter in poems and email signatures.
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// HTML renders text as markdown. Raw HTML in the input is not passed through.
func HTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}
