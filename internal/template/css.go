package template

import (
	"bytes"
	"fmt"
	"strings"
)

// faviconSVG is an inline SVG favicon, an envelope.
const faviconSVG = `%3Csvg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'%3E%3Ctext y='.9em' font-size='90'%3E✉%3C/text%3E%3C/svg%3E`

// writeThemeCSS scopes the chroma stylesheets to the active theme. The
// message body itself is never themed: senders style for a light page.
func writeThemeCSS(buf *bytes.Buffer, chromaLightCSS, chromaDarkCSS string) {
	fmt.Fprintf(buf, "    /* Theme: light */\n")
	fmt.Fprintf(buf, "    [data-theme=\"light\"] { color-scheme: light; }\n")
	buf.WriteString(prefixThemeCSS(chromaLightCSS, `[data-theme="light"]`))

	fmt.Fprintf(buf, "    /* Theme: dark */\n")
	fmt.Fprintf(buf, "    [data-theme=\"dark\"] { color-scheme: dark; }\n")
	buf.WriteString(prefixThemeCSS(chromaDarkCSS, `[data-theme="dark"]`))

	fmt.Fprintf(buf, "    /* Theme: auto (system preference) */\n")
	fmt.Fprintf(buf, "    [data-theme=\"auto\"] { color-scheme: light dark; }\n")
	buf.WriteString(prefixThemeCSS(chromaLightCSS, `[data-theme="auto"]`))
	fmt.Fprintf(buf, "    @media (prefers-color-scheme: dark) {\n")
	fmt.Fprintf(buf, "      [data-theme=\"auto\"] { color-scheme: dark; }\n")
	buf.WriteString(prefixThemeCSS(chromaDarkCSS, `[data-theme="auto"]`))
	fmt.Fprintf(buf, "    }\n")
}

// prefixThemeCSS puts themeSelector in front of every .chroma selector so
// the light and dark stylesheets can coexist on one page.
func prefixThemeCSS(css, themeSelector string) string {
	if css == "" {
		return ""
	}
	return strings.ReplaceAll(css, ".chroma", themeSelector+" .chroma") + "\n"
}

const layoutCSS = `
    /* mailview layout */
    * { box-sizing: border-box; }
    body { margin: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Helvetica, Arial, sans-serif; }

    #mailview-header {
      position: sticky; top: 0; z-index: 100;
      display: flex; align-items: center; justify-content: space-between;
      padding: 6px 16px; font-size: 13px;
      border-bottom: 1px solid rgba(128,128,128,0.2);
      background: rgba(246,248,250,0.95); color: #424a53;
    }
    [data-theme="dark"] #mailview-header { background: rgba(22,27,34,0.95); color: #c9d1d9; }
    @media (prefers-color-scheme: dark) {
      [data-theme="auto"] #mailview-header { background: rgba(22,27,34,0.95); color: #c9d1d9; }
    }

    .mailview-meta { display: flex; flex-direction: column; overflow: hidden; flex: 1; }
    .mailview-meta span { white-space: nowrap; overflow: hidden; text-overflow: ellipsis; }
    #mailview-subject { font-weight: 600; font-size: 15px; }
    .mailview-controls { display: flex; gap: 4px; align-items: center; }
    .mailview-controls a, .mailview-controls button {
      background: none; border: 1px solid rgba(128,128,128,0.3); border-radius: 4px;
      cursor: pointer; padding: 2px 8px; font-size: 12px; color: inherit; text-decoration: none;
    }
    .mailview-controls a[aria-current="page"] { background: rgba(128,128,128,0.15); }
    .mailview-controls a:hover, .mailview-controls button:hover { background: rgba(128,128,128,0.1); }

    #mailview-status { max-width: 1012px; margin: 12px auto 0; padding: 0 16px; }
    .mailview-notice {
      display: flex; align-items: center; gap: 8px; flex-wrap: wrap;
      padding: 8px 12px; margin-bottom: 8px; font-size: 13px;
      border: 1px solid #d4a72c; border-radius: 6px; background: #fff8c5; color: #3b2300;
    }
    .mailview-notice img { width: 16px; height: 16px; }
    .mailview-notice a { color: #0969da; }

    main { max-width: 1012px; margin: 0 auto; padding: 16px; }
    #mailview-content {
      border: 1px solid #d0d7de; border-radius: 6px; padding: 16px;
      background: #fff; color: #1f2328; overflow-x: auto;
    }
    #mailview-content[data-view="source"] { padding: 0; }
    .mailview-text { white-space: pre-wrap; word-wrap: break-word; margin: 0; font-size: 14px; }
    .mailview-source pre { margin: 0; padding: 16px; overflow-x: auto; font-size: 12px; }

    #mailview-index ul { list-style: none; padding: 0; margin: 0; }
    #mailview-index li { padding: 8px 0; border-bottom: 1px solid rgba(128,128,128,0.2); }
    #mailview-index a { color: inherit; text-decoration: none; display: block; }
    #mailview-index a:hover .mailview-index-subject { text-decoration: underline; }
    .mailview-index-subject { font-weight: 600; }
    .mailview-index-from { font-size: 12px; color: #656d76; }

    #mailview-error { text-align: center; padding: 80px 16px; }
    #mailview-error h1 { font-size: 48px; margin: 0 0 16px; color: #656d76; }
    #mailview-error p { color: #656d76; font-size: 16px; }
    #mailview-error a { color: #0969da; }

    @media print {
      #mailview-header, #mailview-status { display: none !important; }
      main { max-width: 100%; padding: 0; }
      #mailview-content { border: none; border-radius: 0; padding: 0; }
      html { color: #000 !important; background: #fff !important; }
    }

    @media (max-width: 768px) {
      main { padding: 8px 0; }
      #mailview-content { border-radius: 0; border-left: 0; border-right: 0; }
    }
`
