package sanitize

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/air-gapped/mailview/internal/markup"
)

// dropWithContent are elements removed together with everything inside them.
var dropWithContent = map[string]bool{
	"script":   true,
	"iframe":   true,
	"object":   true,
	"applet":   true,
	"noembed":  true,
	"noframes": true,
	"frameset": true,
	"template": true,
	"svg":      true,
	"math":     true,
}

// rawTextTags make the tokenizer read their body as text, so a self-closing
// spelling still opens them.
var rawTextTags = map[string]bool{
	"script":   true,
	"iframe":   true,
	"noembed":  true,
	"noframes": true,
}

// dropTag are elements whose tags are removed but whose content is kept.
var dropTag = map[string]bool{
	"embed":  true,
	"frame":  true,
	"meta":   true,
	"link":   true,
	"base":   true,
	"form":   true,
	"param":  true,
	"audio":  true,
	"video":  true,
	"source": true,
	"track":  true,
}

// literalText are elements whose tags are removed and whose raw body is
// escaped, so it renders as plain text instead of being reparsed as markup.
var literalText = map[string]bool{
	"xmp":       true,
	"plaintext": true,
	"noscript":  true,
}

// dropAttrs are removed from every element.
var dropAttrs = map[string]bool{
	"formaction": true,
	"action":     true,
	"srcdoc":     true,
	"dynsrc":     true,
	"lowsrc":     true,
	"srcset":     true, // candidate URLs the image blocker does not rewrite
	"blocked":    true, // reserved for the image blocker
}

// urlAttrs hold URLs and are checked against allowedSchemes.
var urlAttrs = map[string]bool{
	"href":       true,
	"src":        true,
	"background": true,
	"cite":       true,
	"longdesc":   true,
	"poster":     true,
	"usemap":     true,
	"xlink:href": true,
}

var allowedSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"ftp":    true,
	"mailto": true,
	"cid":    true,
	"tel":    true,
}

// dataImageRe matches data: URIs that are safe as image sources.
var dataImageRe = regexp.MustCompile(`^data:image/(?:png|gif|jpe?g|webp|bmp)[;,]`)

// eventHandlerRe matches on* event handler attribute names.
var eventHandlerRe = regexp.MustCompile(`^on[a-z]`)

// dangerousCSS are removed from <style> bodies and make a style attribute
// drop entirely.
var dangerousCSS = []*regexp.Regexp{
	regexp.MustCompile(`(?i)@import[^;]*;?`),
	regexp.MustCompile(`(?i)expression\s*\(`),
	regexp.MustCompile(`(?i)(?:java|vb)script\s*:`),
	regexp.MustCompile(`(?i)behavior\s*:`),
	regexp.MustCompile(`(?i)-moz-binding`),
	regexp.MustCompile(`(?i)image-set\s*\(`), // bare string URLs
}

// Sanitizer strips active content from HTML. The zero value is not usable;
// build one with New. A Sanitizer is safe for concurrent use.
type Sanitizer struct {
	keepComments bool
}

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithComments controls whether ordinary comments are kept. Conditional
// comments are always removed.
func WithComments(keep bool) Option {
	return func(s *Sanitizer) { s.keepComments = keep }
}

// New creates a Sanitizer.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{keepComments: true}
	for _, o := range opts {
		o(s)
	}
	return s
}

// HTML strips dangerous elements, event handlers and unsafe URLs from input.
// Tokens that need no change are copied byte for byte, so clean input comes
// back unchanged and a second pass is a no-op.
func (s *Sanitizer) HTML(input string) string {
	var b bytes.Buffer
	b.Grow(len(input))

	z := html.NewTokenizer(strings.NewReader(input))
	var (
		skip    string // element being dropped with its content
		depth   int
		literal bool // inside an element whose body is emitted as text
		dropped bool // tokens were removed since the last write
	)

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// A tag cut off by the end of input is kept as text.
			if skip == "" {
				b.WriteString(html.EscapeString(string(z.Raw())))
			}
			return b.String()
		}
		n := b.Len()
		// TagName and TagAttr lower-case and unescape in place, so copy the
		// raw bytes first.
		raw := append([]byte(nil), z.Raw()...)

		name := ""
		if tt == html.StartTagToken || tt == html.SelfClosingTagToken || tt == html.EndTagToken {
			n, _ := z.TagName()
			name = string(n)
		}

		if skip != "" {
			switch {
			case tt == html.StartTagToken && name == skip:
				depth++
			case tt == html.EndTagToken && name == skip:
				depth--
				if depth == 0 {
					skip = ""
				}
			}
			dropped = true
			continue
		}

		switch tt {
		case html.TextToken:
			// A "<" left in front of removed markup must not join the
			// following text into a new tag.
			if dropped && n > 0 && b.Bytes()[n-1] == '<' {
				b.Truncate(n - 1)
				b.WriteString("&lt;")
			}
			if literal {
				b.WriteString(html.EscapeString(string(raw)))
			} else {
				b.Write(raw)
			}

		case html.CommentToken:
			data := strings.TrimSpace(string(z.Text()))
			if !s.keepComments || strings.HasPrefix(data, "[if") || strings.HasPrefix(data, "[endif") {
				break
			}
			b.Write(raw)

		case html.DoctypeToken:
			b.Write(raw)

		case html.EndTagToken:
			switch {
			case dropWithContent[name], dropTag[name]:
			case literalText[name]:
				literal = false
			default:
				b.Write(raw)
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			switch {
			case dropWithContent[name]:
				if tt == html.StartTagToken || rawTextTags[name] {
					skip, depth = name, 1
				}
			case dropTag[name]:
			case literalText[name]:
				literal = true
			case name == "style":
				b.Write(s.tag(z, tt, name, raw))
				s.styleBody(z, &b)
			default:
				b.Write(s.tag(z, tt, name, raw))
			}
		}
		dropped = b.Len() == n && (dropped || len(raw) > 0)
	}
}

// styleEndRe matches text that would close a style element early.
var styleEndRe = regexp.MustCompile(`(?i)</(style)`)

// styleBody copies the text of a <style> element with dangerous CSS
// removed. The tokenizer reads the body as raw text.
func (s *Sanitizer) styleBody(z *html.Tokenizer, b *bytes.Buffer) {
	// Peek by consuming: a style element is always followed by its text
	// (possibly empty) and end tag.
	tt := z.Next()
	switch tt {
	case html.TextToken:
		b.WriteString(styleEndRe.ReplaceAllString(cleanCSS(string(z.Raw())), `<\/$1`))
	case html.EndTagToken:
		b.Write(z.Raw())
	case html.ErrorToken:
	}
}

// tag returns the start tag with unsafe attributes removed. When nothing is
// removed the raw bytes are returned unchanged.
func (s *Sanitizer) tag(z *html.Tokenizer, tt html.TokenType, name string, raw []byte) []byte {
	type attr struct{ key, val string }

	var kept []attr
	changed := false
	for {
		k, v, more := z.TagAttr()
		if k != nil {
			key, val := string(k), string(v)
			if keepAttr(key, val) {
				kept = append(kept, attr{key, val})
			} else {
				changed = true
			}
		}
		if !more {
			break
		}
	}
	if !changed {
		return raw
	}

	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(name)
	for _, a := range kept {
		b.WriteByte(' ')
		b.WriteString(a.key)
		if a.val != "" {
			b.WriteString(`="`)
			b.WriteString(markup.EscapeAttr(a.val))
			b.WriteByte('"')
		}
	}
	if tt == html.SelfClosingTagToken {
		b.WriteString(" /")
	}
	b.WriteByte('>')
	return []byte(b.String())
}

func keepAttr(key, val string) bool {
	switch {
	case dropAttrs[key], eventHandlerRe.MatchString(key), strings.HasPrefix(key, "xmlns"):
		return false
	case key == "style":
		return safeCSS(val)
	case urlAttrs[key]:
		return safeURL(key, val)
	}
	return true
}

// safeURL reports whether a decoded URL attribute value may stay.
func safeURL(key, val string) bool {
	u := strings.ToLower(stripControl(val))
	colon := strings.IndexByte(u, ':')
	if colon < 0 || strings.ContainsAny(u[:colon], "/?#") {
		return true // relative
	}
	scheme := u[:colon]
	if scheme == "data" {
		return (key == "src" || key == "background") && dataImageRe.MatchString(u)
	}
	return allowedSchemes[scheme]
}

func safeCSS(val string) bool {
	v := stripCSSNoise(val)
	for _, re := range dangerousCSS {
		if re.MatchString(v) {
			return false
		}
	}
	return true
}

// cleanCSS removes dangerous constructs until none are left, so removals
// cannot assemble a new match.
func cleanCSS(css string) string {
	for {
		out := css
		for _, re := range dangerousCSS {
			out = re.ReplaceAllString(out, "")
		}
		if out == css {
			return out
		}
		css = out
	}
}

// stripControl removes whitespace and control characters that browsers
// ignore inside URL schemes ("java\tscript:").
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// cssCommentRe matches CSS comments, which can split keywords.
var cssCommentRe = regexp.MustCompile(`/\*.*?\*/`)

// stripCSSNoise removes comments and escapes that can hide keywords.
func stripCSSNoise(s string) string {
	s = cssCommentRe.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, `\`, "")
}

// ContainsDangerousContent reports whether input still holds elements or
// attributes that HTML would remove. Useful for testing.
func ContainsDangerousContent(input string) bool {
	z := html.NewTokenizer(strings.NewReader(input))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			n, hasAttr := z.TagName()
			name := string(n)
			if dropWithContent[name] || dropTag[name] || literalText[name] {
				return true
			}
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				if !keepAttr(string(k), string(v)) {
					return true
				}
			}
		}
	}
}
