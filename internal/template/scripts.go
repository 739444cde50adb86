package template

import (
	"bytes"
	"fmt"
	"html"
)

// DefaultPageScript is served from the asset route. The content security
// policy forbids inline script, so pages only reference it.
const DefaultPageScript = "/_mailview/page.js"

func writeScripts(buf *bytes.Buffer, paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		fmt.Fprintf(buf, "  <script src=\"%s\" defer></script>\n", html.EscapeString(p))
	}
}
