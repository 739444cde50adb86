package template

import (
	"bytes"
	"fmt"
	"html"
	htmltemplate "html/template"
	"net/http"
	"net/url"

	"github.com/air-gapped/mailview/internal/viewer"
)

// View names the representation of a message shown on a page.
type View string

const (
	ViewHTML   View = "html"
	ViewText   View = "text"
	ViewSource View = "source"
)

// PageData holds all the data needed to render a message page.
type PageData struct {
	Version      string
	MessageID    string
	Subject      string
	From         string
	Date         string
	Size         int64
	DefaultTheme string
	View         View
	Content      htmltemplate.HTML
	Status       []viewer.Status
	Blocked      int
	Print        bool
}

// ErrorData holds data for error pages.
type ErrorData struct {
	Version      string
	MessageID    string
	StatusCode   int
	ErrorType    string
	Message      string
	DefaultTheme string
}

// IndexEntry is one stored message on the index page.
type IndexEntry struct {
	ID      string
	Subject string
	From    string
}

// Renderer renders full HTML pages.
type Renderer struct {
	chromaLightCSS string
	chromaDarkCSS  string
	pageScript     string
}

// NewRenderer creates a template renderer. The stylesheets style the
// highlighted source view.
func NewRenderer(chromaLightCSS, chromaDarkCSS string) *Renderer {
	return &Renderer{
		chromaLightCSS: chromaLightCSS,
		chromaDarkCSS:  chromaDarkCSS,
		pageScript:     DefaultPageScript,
	}
}

func (r *Renderer) writeHead(buf *bytes.Buffer, title string) {
	fmt.Fprintf(buf, `<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <meta name="referrer" content="no-referrer">
  <title>%s — mailview</title>
  <link rel="icon" type="image/svg+xml" href="data:image/svg+xml,%s">
  <style>
`,
		html.EscapeString(title),
		faviconSVG,
	)
	writeThemeCSS(buf, r.chromaLightCSS, r.chromaDarkCSS)
	buf.WriteString(layoutCSS)
	buf.WriteString("\n  </style>\n</head>\n")
}

// RenderPage produces a complete message page.
func (r *Renderer) RenderPage(data PageData) []byte {
	var buf bytes.Buffer

	title := data.Subject
	if title == "" {
		title = "(no subject)"
	}
	view := data.View
	if view == "" {
		view = ViewHTML
	}

	fmt.Fprintf(&buf, `<!DOCTYPE html>
<html lang="en"
      data-theme="%s"
      data-mailview-version="%s"
      data-message-id="%s"
      data-view="%s"
      data-print="%v">
`,
		html.EscapeString(data.DefaultTheme),
		html.EscapeString(data.Version),
		html.EscapeString(data.MessageID),
		html.EscapeString(string(view)),
		data.Print,
	)
	r.writeHead(&buf, title)
	buf.WriteString("<body>\n")

	fmt.Fprintf(&buf, "  <!-- mailview: header -->\n")
	writeHeader(&buf, data, title, view)

	fmt.Fprintf(&buf, "  <!-- mailview: status -->\n")
	writeStatus(&buf, data.Status)

	fmt.Fprintf(&buf, "  <!-- mailview: content -->\n")
	fmt.Fprintf(&buf, `  <main>
    <article id="mailview-content"
             data-view="%s"
             data-blocked="%d">
      %s
    </article>
  </main>
`,
		html.EscapeString(string(view)),
		data.Blocked,
		data.Content,
	)

	fmt.Fprintf(&buf, "  <!-- mailview: scripts -->\n")
	writeScripts(&buf, r.pageScript)
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes()
}

func writeHeader(buf *bytes.Buffer, data PageData, title string, view View) {
	base := messagePath(data.MessageID)

	fmt.Fprintf(buf, `  <header id="mailview-header" data-size="%d">
    <div class="mailview-meta">
      <span id="mailview-subject">%s</span>
      <span id="mailview-from">%s</span>
`,
		data.Size,
		html.EscapeString(title),
		html.EscapeString(data.From),
	)
	if data.Date != "" {
		fmt.Fprintf(buf, "      <span id=\"mailview-date\">%s</span>\n", html.EscapeString(data.Date))
	}
	fmt.Fprintf(buf, "    </div>\n    <div class=\"mailview-controls\">\n")

	links := []struct {
		view  View
		href  string
		label string
	}{
		{ViewHTML, base, "HTML"},
		{ViewText, base + "?text=1", "Text"},
		{ViewSource, base + "/source", "Source"},
	}
	for _, l := range links {
		current := ""
		if l.view == view {
			current = ` aria-current="page"`
		}
		fmt.Fprintf(buf, "      <a id=\"mailview-view-%s\" href=\"%s\"%s>%s</a>\n",
			l.view, html.EscapeString(l.href), current, l.label)
	}
	fmt.Fprintf(buf, "      <a id=\"mailview-print\" href=\"%s\" target=\"_blank\">Print</a>\n", html.EscapeString(base+"?print=1"))
	fmt.Fprintf(buf, "      <button id=\"mailview-theme-toggle\" title=\"Toggle theme\">&#x25D1;</button>\n")
	fmt.Fprintf(buf, "    </div>\n  </header>\n")
}

// writeStatus renders the status annotations in render order. Action is
// markup built by the viewer and is written as is.
func writeStatus(buf *bytes.Buffer, status []viewer.Status) {
	if len(status) == 0 {
		return
	}
	fmt.Fprintf(buf, "  <section id=\"mailview-status\">\n")
	for _, s := range status {
		fmt.Fprintf(buf, "    <div class=\"mailview-notice\" id=\"%s\">", html.EscapeString(s.ID))
		if s.Icon != "" {
			fmt.Fprintf(buf, "<img src=\"%s\" alt=\"\">", html.EscapeString(s.Icon))
		}
		fmt.Fprintf(buf, "<span>%s</span>", html.EscapeString(s.Text))
		if s.Action != "" {
			buf.WriteString(" ")
			buf.WriteString(s.Action)
		}
		buf.WriteString("</div>\n")
	}
	fmt.Fprintf(buf, "  </section>\n")
}

// RenderIndex produces the list of stored messages for GET /.
func (r *Renderer) RenderIndex(version, defaultTheme string, entries []IndexEntry) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, `<!DOCTYPE html>
<html lang="en" data-theme="%s" data-mailview-version="%s">
`,
		html.EscapeString(defaultTheme),
		html.EscapeString(version),
	)
	r.writeHead(&buf, "Messages")
	fmt.Fprintf(&buf, `<body>
  <header id="mailview-header">
    <div class="mailview-meta"><span id="mailview-subject">Messages</span></div>
    <div class="mailview-controls">
      <button id="mailview-theme-toggle" title="Toggle theme">&#x25D1;</button>
    </div>
  </header>
  <main>
    <nav id="mailview-index" data-count="%d">
`, len(entries))

	if len(entries) == 0 {
		buf.WriteString("      <p>No messages.</p>\n")
	} else {
		buf.WriteString("      <ul>\n")
		for _, e := range entries {
			subject := e.Subject
			if subject == "" {
				subject = "(no subject)"
			}
			fmt.Fprintf(&buf, `        <li><a href="%s"><span class="mailview-index-subject">%s</span><br><span class="mailview-index-from">%s</span></a></li>
`,
				html.EscapeString(messagePath(e.ID)),
				html.EscapeString(subject),
				html.EscapeString(e.From),
			)
		}
		buf.WriteString("      </ul>\n")
	}
	buf.WriteString("    </nav>\n  </main>\n")
	writeScripts(&buf, r.pageScript)
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes()
}

// RenderError produces an error page.
func (r *Renderer) RenderError(data ErrorData) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, `<!DOCTYPE html>
<html lang="en"
      data-theme="%s"
      data-mailview-version="%s"
      data-message-id="%s"
      data-view="error"
      data-error-type="%s">
`,
		html.EscapeString(data.DefaultTheme),
		html.EscapeString(data.Version),
		html.EscapeString(data.MessageID),
		html.EscapeString(data.ErrorType),
	)
	r.writeHead(&buf, "Error")

	fmt.Fprintf(&buf, `<body>
  <!-- mailview: content -->
  <main>
    <div id="mailview-error"
         data-status-code="%d"
         data-error-message="%s">
      <h1>%d %s</h1>
      <p>%s</p>
      <p><a href="/">Back to messages</a></p>
    </div>
  </main>
  <!-- mailview: scripts -->
`,
		data.StatusCode, html.EscapeString(data.Message),
		data.StatusCode, html.EscapeString(http.StatusText(data.StatusCode)),
		html.EscapeString(data.Message),
	)
	writeScripts(&buf, r.pageScript)
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes()
}

// Preformatted wraps plain text for display on a page.
func Preformatted(text string) htmltemplate.HTML {
	return htmltemplate.HTML(`<pre class="mailview-text">` + html.EscapeString(text) + `</pre>`)
}

func messagePath(id string) string {
	return "/messages/" + url.PathEscape(id)
}
