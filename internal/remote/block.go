package remote

import (
	"strings"

	"github.com/air-gapped/mailview/internal/markup"
)

// Blocker replaces remote references with a local placeholder image and
// keeps each original URL in a blocked attribute for the unblock script.
type Blocker struct {
	// Placeholder is the same-origin URL substituted for remote ones. It
	// must not contain quotes, spaces or parentheses.
	Placeholder string
}

// Block rewrites every reference Locate finds and returns the new document
// with the references that were replaced. Bytes outside the replaced spans
// are kept as they are.
func (b *Blocker) Block(doc string) (string, []Reference) {
	refs := Locate(doc)
	if len(refs) == 0 {
		return doc, nil
	}

	edits := make([]markup.Edit, 0, 2*len(refs))
	sheet := -1 // index of the open blocked insert of a style element
	for i, r := range refs {
		blocked := ` blocked="` + EncodeURL(r.URL) + `"`
		switch r.Origin {
		case OriginAttribute:
			edits = append(edits, markup.Edit{
				Start: r.Start,
				End:   r.End,
				Text:  `"` + b.Placeholder + `"` + blocked,
			})
		case OriginStyle:
			edits = append(edits,
				markup.Edit{Start: r.Start, End: r.End, Text: b.Placeholder},
				markup.Edit{Start: r.InsertAt, End: r.InsertAt, Text: blocked},
			)
		case OriginSheet:
			// One attribute per element lists every URL of its body in
			// order, separated by spaces.
			enc := rawURLEncode(r.URL)
			if i > 0 && refs[i-1].Origin == OriginSheet && refs[i-1].InsertAt == r.InsertAt {
				e := &edits[sheet]
				e.Text = strings.TrimSuffix(e.Text, `"`) + " " + enc + `"`
			} else {
				sheet = len(edits)
				edits = append(edits, markup.Edit{Start: r.InsertAt, End: r.InsertAt, Text: ` blocked="` + enc + `"`})
			}
			edits = append(edits, markup.Edit{Start: r.Start, End: r.End, Text: b.Placeholder})
		}
	}
	return markup.Apply(doc, edits), refs
}

// EncodeURL turns the raw text of a blocked URL into the value of a blocked
// attribute: "&amp;" is unescaped, surrounding quotes and spaces trimmed,
// and the result percent-encoded as RFC 3986 does for everything outside the
// unreserved set. The script reverses it with decodeURIComponent.
func EncodeURL(raw string) string {
	v := strings.Trim(strings.ReplaceAll(raw, "&amp;", "&"), `'" `)
	return rawURLEncode(v)
}

func rawURLEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '.' || c == '_' || c == '~'
}
