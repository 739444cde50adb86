package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var textPolicy = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

var blankLinesRe = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)

// PlainText reduces HTML to its text content for text-only views. Script and
// style bodies are dropped; entities are decoded.
func PlainText(input string) string {
	text := html.UnescapeString(textPolicy.Sanitize(input))
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
