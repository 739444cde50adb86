// Package rewrite adjusts links in sanitized message markup: cid:
// references become attachment URLs, hyperlinks open in a new browsing
// context and mailto: links start local compose.
package rewrite

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/air-gapped/mailview/internal/markup"
)

// Composer builds a link that opens local compose for a mailto: target.
type Composer interface {
	// ComposeURL receives everything after "mailto:", decoded to UTF-8.
	ComposeURL(mailto string) string
}

// Links applies the link rewrites in order: cid resolution, target
// isolation, mailto interception. Rewrite must run once per document; a
// second pass would see its own output.
type Links struct {
	CIDs     map[string]string // content-id without brackets -> view URL
	Composer Composer          // nil leaves mailto: links alone
}

// Rewrite runs the three rewrites over doc.
func (l Links) Rewrite(doc string) string {
	doc = ResolveCIDs(doc, l.CIDs)
	doc = IsolateTargets(doc)
	return InterceptMailto(doc, l.Composer)
}

// cidAttrs can reference related parts.
var cidAttrs = []string{"href", "src", "background"}

// ResolveCIDs replaces cid: references in href, src and background values
// with the URL mapped to their content-id. References without a mapping are
// left as they are.
func ResolveCIDs(doc string, cids map[string]string) string {
	if len(cids) == 0 {
		return doc
	}
	var edits []markup.Edit
	markup.Scan(doc, func(t *markup.Tag) {
		for _, name := range cidAttrs {
			a, ok := t.Attr(name)
			if !ok || !a.HasValue {
				continue
			}
			target, ok := lookupCID(attrValue(doc, a), cids)
			if !ok {
				continue
			}
			s, e := a.ValueSpan()
			edits = append(edits, markup.Edit{Start: s, End: e, Text: `"` + markup.EscapeAttr(target) + `"`})
		}
	})
	return markup.Apply(doc, edits)
}

func lookupCID(v string, cids map[string]string) (string, bool) {
	if len(v) < 4 || !strings.EqualFold(v[:4], "cid:") {
		return "", false
	}
	id := strings.Trim(v[4:], "<>")
	if target, ok := cids[id]; ok {
		return target, true
	}
	// cid URLs are percent-encoded (RFC 2392).
	if dec, err := url.PathUnescape(id); err == nil {
		if target, ok := cids[dec]; ok {
			return target, true
		}
	}
	return "", false
}

// IsolateTargets gives every <a> and <area> target="_blank", plus
// rel="noopener noreferrer" when the tag has no rel, unless the tag already
// declares a target or its href is a same-page anchor or mailto: link.
// Running it on its own output changes nothing.
func IsolateTargets(doc string) string {
	var edits []markup.Edit
	markup.Scan(doc, func(t *markup.Tag) {
		if (t.Name != "a" && t.Name != "area") || t.Has("target") {
			return
		}
		if a, ok := t.Attr("href"); ok {
			v := strings.ToLower(attrValue(doc, a))
			if strings.HasPrefix(v, "#") || strings.HasPrefix(v, "mailto:") {
				return
			}
		}
		text := ` target="_blank"`
		if !t.Has("rel") {
			text += ` rel="noopener noreferrer"`
		}
		edits = append(edits, markup.Edit{Start: t.NameEnd, End: t.NameEnd, Text: text})
	})
	return markup.Apply(doc, edits)
}

// InterceptMailto points mailto: hrefs at c. Link text is untouched. With a
// nil Composer doc is returned unchanged.
func InterceptMailto(doc string, c Composer) string {
	if c == nil {
		return doc
	}
	var edits []markup.Edit
	markup.Scan(doc, func(t *markup.Tag) {
		a, ok := t.Attr("href")
		if !ok || !a.HasValue {
			return
		}
		v := attrValue(doc, a)
		if len(v) < 7 || !strings.EqualFold(v[:7], "mailto:") {
			return
		}
		s, e := a.ValueSpan()
		edits = append(edits, markup.Edit{Start: s, End: e, Text: `"` + markup.EscapeAttr(c.ComposeURL(v[7:])) + `"`})
	})
	return markup.Apply(doc, edits)
}

// attrValue returns an attribute value as a browser sees it: entities
// decoded, valid UTF-8, surrounding space trimmed.
func attrValue(doc string, a markup.Attr) string {
	v := html.UnescapeString(a.Value(doc))
	return strings.TrimSpace(strings.ToValidUTF8(v, "\uFFFD"))
}

// positionRe matches an absolute positioning declaration in raw style text.
var positionRe = regexp.MustCompile(`(?i)position\s*:\s*absolute\s*(?:!\s*important\s*)?;?\s*`)

// ResetPositioning removes position:absolute from style attributes, so a
// message shown inside a page cannot draw over it.
func ResetPositioning(doc string) string {
	var edits []markup.Edit
	markup.Scan(doc, func(t *markup.Tag) {
		a, ok := t.Attr("style")
		if !ok || !a.HasValue {
			return
		}
		raw := a.Value(doc)
		if !positionRe.MatchString(raw) {
			return
		}
		s, e := a.ValueSpan()
		edits = append(edits, markup.Edit{Start: s, End: e, Text: markup.QuoteValue(positionRe.ReplaceAllString(raw, ""), a.Quote)})
	})
	return markup.Apply(doc, edits)
}

// ComposeLink is a Composer that sends mailto: targets to a compose page.
// The address becomes the "to" parameter and RFC 6068 header fields
// (subject, cc, body, ...) become parameters of their own.
type ComposeLink struct {
	Base string
}

// ComposeURL implements Composer.
func (c ComposeLink) ComposeURL(mailto string) string {
	to, hfields, _ := strings.Cut(mailto, "?")
	q := url.Values{}
	if to = unescape(to); to != "" {
		q.Add("to", to)
	}
	for _, field := range strings.Split(hfields, "&") {
		if field == "" {
			continue
		}
		k, v, _ := strings.Cut(field, "=")
		k = strings.ToLower(unescape(k))
		if k == "" {
			continue
		}
		q.Add(k, unescape(v))
	}

	sep := "?"
	if strings.Contains(c.Base, "?") {
		sep = "&"
	}
	if len(q) == 0 {
		return c.Base
	}
	return c.Base + sep + q.Encode()
}

// unescape percent-decodes s, keeping it as is when it is not valid.
func unescape(s string) string {
	if dec, err := url.PathUnescape(s); err == nil {
		return dec
	}
	return s
}
