// Package remote finds markup that makes a mail client fetch external
// resources and replaces those references with a local placeholder.
package remote

import (
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/air-gapped/mailview/internal/markup"
)

// Origin tells where a reference was found.
type Origin int

const (
	// OriginAttribute is a URL-valued attribute such as img src.
	OriginAttribute Origin = iota
	// OriginStyle is a url() inside a background declaration of a style
	// attribute.
	OriginStyle
	// OriginSheet is any url() in the body of a <style> element.
	OriginSheet
)

func (o Origin) String() string {
	switch o {
	case OriginStyle:
		return "style"
	case OriginSheet:
		return "sheet"
	}
	return "attribute"
}

// Reference is one remote resource found in a document. Offsets index the
// document passed to Locate.
type Reference struct {
	URL    string // verbatim document text, still entity-encoded
	Tag    string
	Attr   string
	Origin Origin

	AttrQuote markup.Quote
	URLQuote  markup.Quote // Unquoted for attribute references

	// Start and End bound the text replaced by the placeholder: the whole
	// value including quotes for attributes, the bare URL for styles and
	// sheets.
	Start int
	End   int
	// InsertAt is where the blocked attribute goes for style and sheet
	// references.
	InsertAt int
}

// urlTags maps elements to the attribute that loads a resource directly.
var urlTags = map[string]string{
	"img":   "src",
	"image": "src", // parsed as img by browsers
	"input": "src",
	"body":  "background",
	"table": "background",
	"td":    "background",
	"th":    "background",
}

// backgroundRe matches the property names whose url() is blocked.
var backgroundRe = regexp.MustCompile(`(?i)background(?:-image)?\s*:`)

// urlOpenRe matches the start of a CSS url() argument.
var urlOpenRe = regexp.MustCompile(`(?i)^url\s*\(`)

// localSchemes never leave the client.
var localSchemes = map[string]bool{
	"data":  true,
	"cid":   true,
	"about": true,
	"blob":  true,
}

var schemeRe = regexp.MustCompile(`^([a-z][a-z0-9+.-]*):`)

// Locate returns the remote references of doc in document order. A tag can
// yield more than one reference, for example an img with a remote src and a
// background style.
func Locate(doc string) []Reference {
	var refs []Reference
	markup.Scan(doc, func(t *markup.Tag) {
		refs = append(refs, tagReferences(doc, t)...)
	})
	return refs
}

// HasRemote reports whether doc references at least one remote resource.
func HasRemote(doc string) bool {
	has := false
	markup.Scan(doc, func(t *markup.Tag) {
		has = has || len(tagReferences(doc, t)) > 0
	})
	return has
}

func tagReferences(doc string, t *markup.Tag) []Reference {
	if t.Name == "style" {
		return sheetReferences(doc, t)
	}
	var found []Reference
	if name, ok := urlTags[t.Name]; ok {
		if a, ok := t.Attr(name); ok && a.HasValue && isRemote(a.Value(doc)) {
			s, e := a.ValueSpan()
			found = append(found, Reference{
				URL:       a.Value(doc),
				Tag:       t.Name,
				Attr:      name,
				Origin:    OriginAttribute,
				AttrQuote: a.Quote,
				Start:     s,
				End:       e,
			})
		}
	}
	if a, ok := t.Attr("style"); ok && a.HasValue {
		if r, ok := styleReference(doc, a, t.End-1); ok {
			r.Tag = t.Name
			found = append(found, r)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Start < found[j].Start })
	return found
}

// sheetURLRe matches the opening of a url() and the space after it.
var sheetURLRe = regexp.MustCompile(`(?i)url\s*\(\s*`)

// sheetReferences returns every remote url() in the body of the style
// element opened by t. Unlike style attributes, any property counts. The
// body runs to the closing tag, or to the end of doc when there is none.
func sheetReferences(doc string, t *markup.Tag) []Reference {
	start, end := t.End, sheetEnd(doc, t.End)
	var refs []Reference
	next := start
	for _, m := range sheetURLRe.FindAllStringIndex(doc[start:end], -1) {
		if start+m[0] < next {
			continue // inside the previous argument
		}
		r := Reference{Tag: t.Name, Origin: OriginSheet, InsertAt: t.NameEnd, Start: start + m[1]}
		if r.Start < end {
			r.URLQuote = markup.QuoteOf(doc[r.Start])
		}
		if r.URLQuote != markup.Unquoted {
			r.Start++
			r.End = end
			if e := strings.IndexByte(doc[r.Start:end], r.URLQuote.Char()[0]); e >= 0 {
				r.End = r.Start + e
			}
		} else {
			r.End = r.Start
			for r.End < end && doc[r.End] != ')' && !isSpace(doc[r.End]) {
				r.End++
			}
		}
		next = r.End
		r.URL = doc[r.Start:r.End]
		if isRemote(cssUnescape(r.URL)) {
			refs = append(refs, r)
		}
	}
	return refs
}

// sheetEnd returns the offset of the end tag closing a style body that
// starts at p, matching it the way the tokenizer does.
func sheetEnd(doc string, p int) int {
	for {
		i := strings.Index(doc[p:], "</")
		if i < 0 {
			return len(doc)
		}
		k := p + i + 2
		if k+5 <= len(doc) && strings.EqualFold(doc[k:k+5], "style") {
			if k+5 == len(doc) || isSpace(doc[k+5]) || doc[k+5] == '/' || doc[k+5] == '>' {
				return p + i
			}
		}
		p = k
	}
}

// styleReference finds the url() of the first background declaration in a
// style attribute. limit is the offset of the tag's closing '>'. The url()
// argument may run past the attribute value when it reuses the attribute's
// own quote character; the text is still blocked.
func styleReference(doc string, a markup.Attr, limit int) (Reference, bool) {
	value := doc[a.ValueStart:a.ValueEnd]
	for _, m := range backgroundRe.FindAllStringIndex(value, -1) {
		open := -1
		for k := a.ValueStart + m[1]; k < a.ValueEnd; k++ {
			c := doc[k]
			if c == '"' || c == '\'' || c == ';' {
				break
			}
			if c == 'u' || c == 'U' {
				if loc := urlOpenRe.FindStringIndex(doc[k:limit]); loc != nil {
					open = k + loc[1]
					break
				}
			}
		}
		if open < 0 {
			continue
		}
		r, ok := urlArgument(doc, open, limit)
		if !ok {
			// Only the first declaration that reaches url( counts.
			return Reference{}, false
		}
		if !isRemote(cssUnescape(html.UnescapeString(r.URL))) {
			return Reference{}, false
		}
		r.Attr = "style"
		r.Origin = OriginStyle
		r.AttrQuote = a.Quote
		r.InsertAt = a.End
		if r.End >= a.ValueEnd {
			r.InsertAt = pastRemainder(doc, r.End, limit, a.Quote)
		}
		return r, true
	}
	return Reference{}, false
}

// urlArgument parses the argument of url( starting at p, up to and
// including the closing parenthesis.
func urlArgument(doc string, p, limit int) (Reference, bool) {
	for p < limit && isSpace(doc[p]) {
		p++
	}
	if p >= limit {
		return Reference{}, false
	}

	var r Reference
	r.URLQuote = markup.QuoteOf(doc[p])
	if r.URLQuote != markup.Unquoted {
		p++
	}
	r.Start = p
	if r.URLQuote != markup.Unquoted {
		end := strings.IndexAny(doc[p:limit], `"')>`)
		if end < 0 || doc[p+end] != doc[p-1] {
			return Reference{}, false
		}
		r.End = p + end
		p = r.End + 1
	} else {
		for p < limit && !isSpace(doc[p]) && doc[p] != ')' && doc[p] != '>' {
			p++
		}
		r.End = p
	}

	for p < limit && isSpace(doc[p]) {
		p++
	}
	if p >= limit || doc[p] != ')' {
		return Reference{}, false
	}
	r.URL = doc[r.Start:r.End]
	return r, true
}

// pastRemainder skips the rest of a style value that a url() argument ran
// into, and the attribute's closing quote.
func pastRemainder(doc string, p, limit int, q markup.Quote) int {
	if p < limit && doc[p] != ')' {
		p++ // closing url quote
	}
	for p < limit && doc[p] != ')' {
		p++
	}
	if p < limit {
		p++
	}
	for p < limit {
		c := doc[p]
		if c == '>' || (q == markup.Unquoted && isSpace(c)) || (q != markup.Unquoted && (c == '"' || c == '\'')) {
			break
		}
		p++
	}
	if q != markup.Unquoted && p < limit && doc[p] == q.Char()[0] {
		p++
	}
	return p
}

// isRemote reports whether a raw attribute or url() value points off the
// client: an absolute URL with a non-local scheme or a protocol-relative URL.
func isRemote(raw string) bool {
	v := html.UnescapeString(raw)
	v = strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, v)
	v = strings.ToLower(strings.Trim(v, "'\" \f"))
	if v == "" {
		return false
	}
	for _, p := range []string{"//", `\\`, `/\`, `\/`} {
		if strings.HasPrefix(v, p) {
			return true
		}
	}
	m := schemeRe.FindStringSubmatch(v)
	return m != nil && !localSchemes[m[1]]
}

// cssUnescape resolves CSS escapes ("\2f", "\:") so they cannot hide a
// scheme or a leading "//".
func cssUnescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(s) && j < i+7 && isHex(s[j]) {
			j++
		}
		if j == i+1 {
			b.WriteByte(s[j])
			i = j
			continue
		}
		r, _ := strconv.ParseUint(s[i+1:j], 16, 32)
		if r == 0 || r > unicode.MaxRune || (0xd800 <= r && r <= 0xdfff) {
			r = unicode.ReplacementChar
		}
		b.WriteRune(rune(r))
		if j < len(s) && isSpace(s[j]) {
			j++
		}
		i = j - 1
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
