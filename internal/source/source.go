// Package source renders the raw markup of a message part as highlighted,
// escaped HTML for the view-source page.
package source

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Highlighter renders source with chroma CSS classes.
type Highlighter struct {
	formatter *chromahtml.Formatter
}

func New() *Highlighter {
	return &Highlighter{
		formatter: chromahtml.New(
			chromahtml.WithClasses(true),
			chromahtml.WithLineNumbers(true),
		),
	}
}

// Render highlights src using the lexer for mediaType ("text/html",
// "text/plain", ...). Unknown types fall back to plain text.
func (h *Highlighter) Render(src []byte, mediaType string) ([]byte, error) {
	code := string(src)
	lineCount := strings.Count(code, "\n")
	if len(code) > 0 && code[len(code)-1] != '\n' {
		lineCount++
	}

	lexer := lexerFor(mediaType)
	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return nil, fmt.Errorf("tokenize source: %w", err)
	}

	var highlighted bytes.Buffer
	if err := h.formatter.Format(&highlighted, styles.Fallback, iterator); err != nil {
		return nil, fmt.Errorf("format source: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<div class="mailview-source" data-type="%s" data-line-count="%d">`, html.EscapeString(mediaType), lineCount)
	buf.WriteByte('\n')
	buf.Write(highlighted.Bytes())
	buf.WriteString("\n</div>")
	return buf.Bytes(), nil
}

// CSS returns the stylesheet for the chroma classes used by Render in the
// named chroma style. Unknown names get the fallback style.
func (h *Highlighter) CSS(style string) (string, error) {
	var b strings.Builder
	if err := h.formatter.WriteCSS(&b, styles.Get(style)); err != nil {
		return "", fmt.Errorf("write source css: %w", err)
	}
	return b.String(), nil
}

func lexerFor(mediaType string) chroma.Lexer {
	var l chroma.Lexer
	if mt, _, _ := strings.Cut(mediaType, ";"); mt != "" {
		l = lexers.MatchMimeType(strings.TrimSpace(strings.ToLower(mt)))
	}
	if l == nil {
		l = lexers.Fallback
	}
	return l
}
