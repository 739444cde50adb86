package markup

import (
	"sort"
	"strings"
)

// Edit replaces doc[Start:End] with Text. Start == End inserts.
type Edit struct {
	Start int
	End   int
	Text  string
}

// Apply splices edits into doc. Overlapping edits are dropped, keeping the
// earliest one, so callers can emit edits per tag without coordinating.
func Apply(doc string, edits []Edit) string {
	if len(edits) == 0 {
		return doc
	}
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].Start < edits[j].Start })

	var b strings.Builder
	b.Grow(len(doc) + 64*len(edits))
	pos := 0
	for _, e := range edits {
		if e.Start < pos || e.End < e.Start || e.End > len(doc) {
			continue
		}
		b.WriteString(doc[pos:e.Start])
		b.WriteString(e.Text)
		pos = e.End
	}
	b.WriteString(doc[pos:])
	return b.String()
}

// QuoteValue renders raw (already entity-encoded) value text using q,
// falling back to double quotes when q cannot hold it.
func QuoteValue(raw string, q Quote) string {
	switch {
	case q == Single && !strings.Contains(raw, "'"):
		return "'" + raw + "'"
	case q == Unquoted && raw != "" && !strings.ContainsAny(raw, " \t\r\n\f\"'=<>`"):
		return raw
	}
	return `"` + strings.ReplaceAll(raw, `"`, "&quot;") + `"`
}

// EscapeAttr escapes a value for a double-quoted attribute. Only '&' and '"'
// are escaped so single quotes inside style values survive verbatim.
func EscapeAttr(v string) string {
	if !strings.ContainsAny(v, `&"`) {
		return v
	}
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '&':
			b.WriteString("&amp;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteByte(v[i])
		}
	}
	return b.String()
}
