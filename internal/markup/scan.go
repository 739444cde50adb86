// Package markup reports the start tags of a document together with the byte
// spans of their attributes, so later stages can splice the text without
// re-serializing it. Tokens come from golang.org/x/net/html; only the
// attribute spans inside each raw start tag are measured here.
package markup

import (
	"strings"

	"golang.org/x/net/html"
)

// Quote is the quoting style of an attribute value or CSS url() argument.
type Quote int

const (
	Unquoted Quote = iota
	Single
	Double
)

// Char returns the quote character, or "" for Unquoted.
func (q Quote) Char() string {
	switch q {
	case Single:
		return "'"
	case Double:
		return `"`
	}
	return ""
}

func (q Quote) String() string {
	switch q {
	case Single:
		return "single"
	case Double:
		return "double"
	}
	return "unquoted"
}

// QuoteOf classifies a quote byte.
func QuoteOf(c byte) Quote {
	switch c {
	case '\'':
		return Single
	case '"':
		return Double
	}
	return Unquoted
}

// Attr is one attribute of a start tag. Offsets index the scanned document.
type Attr struct {
	Name     string // lower-cased
	Start    int    // first byte of the name
	End      int    // one past the value, including a closing quote
	HasValue bool

	// ValueStart and ValueEnd bound the value text without its quotes.
	ValueStart int
	ValueEnd   int
	Quote      Quote
}

// Value returns the raw (still entity-encoded) value text.
func (a Attr) Value(doc string) string {
	if !a.HasValue {
		return ""
	}
	return doc[a.ValueStart:a.ValueEnd]
}

// ValueSpan returns the value span including its quotes.
func (a Attr) ValueSpan() (start, end int) {
	if a.Quote == Unquoted {
		return a.ValueStart, a.ValueEnd
	}
	return a.ValueStart - 1, a.ValueEnd + 1
}

// Tag is a start tag found by Scan.
type Tag struct {
	Name    string // lower-cased
	Start   int    // offset of '<'
	NameEnd int    // one past the tag name
	End     int    // one past '>'
	Attrs   []Attr
}

// Attr returns the first attribute with the given lower-case name. Browsers
// ignore repeated attributes, so the first one is the effective one.
func (t *Tag) Attr(name string) (Attr, bool) {
	for _, a := range t.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}

// Has reports whether the tag carries the attribute at all.
func (t *Tag) Has(name string) bool {
	_, ok := t.Attr(name)
	return ok
}

// Scan calls fn for every start tag of doc, left to right. Tokens come from
// the same x/net/html tokenizer the sanitizer uses, so comments, end tags,
// doctypes and raw-text bodies are recognized exactly as it recognizes them.
// Offsets are the running sum of the raw token lengths. Scanning stops at an
// unterminated tag; its text is left to the caller untouched.
func Scan(doc string, fn func(t *Tag)) {
	z := html.NewTokenizer(strings.NewReader(doc))
	pos := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return
		}
		n := len(z.Raw())
		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			fn(parseTag(doc, pos, pos+n))
		}
		pos += n
	}
}

// parseTag reads the attribute spans of the complete start tag doc[p:end],
// following the tokenizer's attribute states.
func parseTag(doc string, p, end int) *Tag {
	k := p + 1
	for k < end && !isSpace(doc[k]) && doc[k] != '/' && doc[k] != '>' {
		k++
	}
	t := &Tag{Name: strings.ToLower(doc[p+1 : k]), Start: p, NameEnd: k, End: end}

	k = skipSpace(doc, k, end)
	for k < end && doc[k] != '>' {
		a := Attr{Start: k}
		for k < end {
			c := doc[k]
			if c == '=' && k == a.Start {
				k++ // a leading '=' belongs to the name
				continue
			}
			if isSpace(c) || c == '/' || c == '>' || c == '=' {
				break
			}
			k++
		}
		a.Name = strings.ToLower(doc[a.Start:k])
		a.End = k

		v := skipSpace(doc, k, end)
		switch {
		case v < end && doc[v] == '/':
			k = v + 1
		case v < end && doc[v] == '=':
			v = skipSpace(doc, v+1, end)
			a.HasValue = true
			a.ValueStart, a.ValueEnd, a.End = v, v, v
			if v < end && doc[v] != '>' {
				if q := QuoteOf(doc[v]); q != Unquoted {
					e := v + 1
					for e < end && doc[e] != doc[v] {
						e++
					}
					a.Quote = q
					a.ValueStart = v + 1
					a.ValueEnd = e
					a.End = min(e+1, end)
				} else {
					e := v
					for e < end && !isSpace(doc[e]) && doc[e] != '>' {
						e++
					}
					a.ValueStart = v
					a.ValueEnd = e
					a.End = e
				}
			}
			k = a.End
		default:
			k = v
		}
		if a.Name != "" {
			t.Attrs = append(t.Attrs, a)
		}
		k = skipSpace(doc, k, end)
	}
	return t
}

func skipSpace(doc string, k, end int) int {
	for k < end && isSpace(doc[k]) {
		k++
	}
	return k
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
