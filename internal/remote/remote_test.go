package remote

import (
	"net/url"
	"strings"
	"testing"

	"github.com/air-gapped/mailview/internal/markup"
)

const placeholder = "/_mailview/blocked.svg"

func block(doc string) (string, []Reference) {
	b := &Blocker{Placeholder: placeholder}
	return b.Block(doc)
}

func TestBlock_ImgSrcQuoting(t *testing.T) {
	const want = `<img src="/_mailview/blocked.svg" blocked="http%3A%2F%2Fevil.example%2Fx.png" alt="x">`
	tests := []struct {
		name  string
		input string
		quote markup.Quote
	}{
		{"unquoted", `<img src=http://evil.example/x.png alt="x">`, markup.Unquoted},
		{"single", `<img src='http://evil.example/x.png' alt="x">`, markup.Single},
		{"double", `<img src="http://evil.example/x.png" alt="x">`, markup.Double},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, refs := block(tc.input)
			if got != want {
				t.Errorf("got  %s\nwant %s", got, want)
			}
			if len(refs) != 1 {
				t.Fatalf("got %d refs, want 1", len(refs))
			}
			if refs[0].AttrQuote != tc.quote {
				t.Errorf("AttrQuote = %v, want %v", refs[0].AttrQuote, tc.quote)
			}
			if refs[0].Origin != OriginAttribute {
				t.Errorf("Origin = %v", refs[0].Origin)
			}
		})
	}
}

func TestBlock_EndToEnd(t *testing.T) {
	got, _ := block(`<img src=http://evil.example/x.png>`)
	want := `src="` + placeholder + `" blocked="http%3A%2F%2Fevil.example%2Fx.png"`
	if !strings.Contains(got, want) {
		t.Errorf("got %s\nwant it to contain %s", got, want)
	}
}

func TestBlock_StyleQuotingCombinations(t *testing.T) {
	quotes := []struct {
		name string
		char string
		q    markup.Quote
	}{
		{"unquoted", "", markup.Unquoted},
		{"single", "'", markup.Single},
		{"double", `"`, markup.Double},
	}

	for _, aq := range quotes {
		for _, uq := range quotes {
			t.Run(aq.name+"_attr/"+uq.name+"_url", func(t *testing.T) {
				input := `<td style=` + aq.char + `background-image:url(` + uq.char +
					`http://e.example/a.png` + uq.char + `);color:red` + aq.char + `>cell</td>`
				want := `<td style=` + aq.char + `background-image:url(` + uq.char +
					placeholder + uq.char + `);color:red` + aq.char +
					` blocked="http%3A%2F%2Fe.example%2Fa.png">cell</td>`

				got, refs := block(input)
				if got != want {
					t.Errorf("\ninput %s\ngot   %s\nwant  %s", input, got, want)
				}
				if len(refs) != 1 {
					t.Fatalf("got %d refs, want 1", len(refs))
				}
				r := refs[0]
				if r.Origin != OriginStyle || r.Attr != "style" || r.Tag != "td" {
					t.Errorf("ref = %+v", r)
				}
				if r.AttrQuote != aq.q || r.URLQuote != uq.q {
					t.Errorf("quotes = %v/%v, want %v/%v", r.AttrQuote, r.URLQuote, aq.q, uq.q)
				}
				if r.URL != "http://e.example/a.png" {
					t.Errorf("URL = %q", r.URL)
				}
			})
		}
	}
}

func TestBlock_StyleKeepsDeclarations(t *testing.T) {
	input := `<div class="hero" style="color: red; BACKGROUND : #fff url( 'https://t.example/bg.jpg' ) no-repeat; margin: 0" id="h">`
	want := `<div class="hero" style="color: red; BACKGROUND : #fff url( '` + placeholder +
		`' ) no-repeat; margin: 0" blocked="https%3A%2F%2Ft.example%2Fbg.jpg" id="h">`
	got, _ := block(input)
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestBlock_BackgroundAttribute(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{
			`<body BACKGROUND="http://t.example/b.gif" bgcolor=white>`,
			`<body BACKGROUND="` + placeholder + `" blocked="http%3A%2F%2Ft.example%2Fb.gif" bgcolor=white>`,
		},
		{
			`<table background='//cdn.example/t.png'>`,
			`<table background="` + placeholder + `" blocked="%2F%2Fcdn.example%2Ft.png">`,
		},
		{
			`<td width=3 background = http://t.example/c.png>`,
			`<td width=3 background = "` + placeholder + `" blocked="http%3A%2F%2Ft.example%2Fc.png">`,
		},
	}
	for _, tc := range tests {
		if got, _ := block(tc.input); got != tc.want {
			t.Errorf("got  %s\nwant %s", got, tc.want)
		}
	}
}

func TestBlock_InputImage(t *testing.T) {
	got, refs := block(`<input type="image" src="https://t.example/go.png">`)
	if len(refs) != 1 || refs[0].Tag != "input" {
		t.Fatalf("refs = %+v", refs)
	}
	if !strings.Contains(got, `src="`+placeholder+`"`) {
		t.Errorf("got %s", got)
	}
}

func TestBlock_AmpersandUnescaped(t *testing.T) {
	got, _ := block(`<img src="http://t.example/p?a=1&amp;b=2">`)
	want := `blocked="http%3A%2F%2Ft.example%2Fp%3Fa%3D1%26b%3D2"`
	if !strings.Contains(got, want) {
		t.Errorf("got %s\nwant %s", got, want)
	}
}

func TestBlock_RoundTripsThroughDecodeURIComponent(t *testing.T) {
	urls := []string{
		"http://evil.example/x.png",
		"https://t.example/a b/ü.png?x=1&y=[2]#f",
		"//cdn.example/~user/a_b-c.png",
	}
	for _, u := range urls {
		enc := EncodeURL(u)
		dec, err := url.PathUnescape(enc)
		if err != nil {
			t.Fatalf("unescape %q: %v", enc, err)
		}
		if dec != u {
			t.Errorf("round trip %q -> %q -> %q", u, enc, dec)
		}
		if strings.ContainsAny(enc, `:/?&=#" `) {
			t.Errorf("reserved character left in %q", enc)
		}
	}
}

func TestEncodeURL_TrimsQuotesAndSpaces(t *testing.T) {
	if got := EncodeURL(` 'http://a.example/x' `); got != "http%3A%2F%2Fa.example%2Fx" {
		t.Errorf("got %q", got)
	}
}

func TestLocate_NotRemote(t *testing.T) {
	tests := []string{
		`<img src="cid:part1@example.com">`,
		`<img src="CID:part1">`,
		`<img src="data:image/png;base64,AAAA">`,
		`<img src="images/logo.png">`,
		`<img src="/static/logo.png">`,
		`<img src="about:blank">`,
		`<img src="">`,
		`<img alt="no src">`,
		`<p style="background: red">`,
		`<p style="background-image: url(/local.png)">`,
		`<p style="background-image: url('data:image/gif;base64,R0l')">`,
		`<a href="http://t.example/">link</a>`,
		`<div background="http://t.example/x.png">`,
		`<!-- <img src="http://t.example/x.png"> -->`,
		`<style>td { background: url(/local.png) } p { x: url('cid:a') }</style>`,
		`<p>url(http://t.example/x.png)</p>`,
		`<p style="color: url(http://t.example/x.png)">`,
		`<p style="background: 'x'; url(http://t.example/x.png)">`,
	}
	for _, doc := range tests {
		if refs := Locate(doc); len(refs) != 0 {
			t.Errorf("Locate(%s) = %+v, want none", doc, refs)
		}
		if HasRemote(doc) {
			t.Errorf("HasRemote(%s) = true", doc)
		}
		if got, _ := block(doc); got != doc {
			t.Errorf("Block changed %s to %s", doc, got)
		}
	}
}

func TestLocate_Remote(t *testing.T) {
	tests := []string{
		`<img src="http://t.example/x.png">`,
		`<IMG SRC="HTTPS://T.EXAMPLE/X.PNG">`,
		`<img src="//t.example/x.png">`,
		`<img src="\\t.example\x.png">`,
		`<img src="ht&#9;tp://t.example/x.png">`,
		`<img src=" http://t.example/x.png">`,
		`<image src="http://t.example/x.png">`,
		`<th background="ftp://t.example/x.png">`,
		`<span style="background:url(http://t.example/x.png)">`,
		`<span style="background:url(\2f\2ft.example/x.png)">`,
		`<style>td { background: url(http://t.example/x.png) }</style>`,
		`<style>ul { list-style-image: URL( "//t.example/x.png" ) }</style>`,
		`<style>p { cursor: url(htt\70://t.example/x.cur) }</style>`,
	}
	for _, doc := range tests {
		if refs := Locate(doc); len(refs) != 1 {
			t.Errorf("Locate(%s) found %d refs, want 1", doc, len(refs))
		}
		if !HasRemote(doc) {
			t.Errorf("HasRemote(%s) = false", doc)
		}
	}
}

func TestLocate_FirstBackgroundOnly(t *testing.T) {
	doc := `<div style="background:url(http://a.example/1.png);background-image:url(http://b.example/2.png)">`
	refs := Locate(doc)
	if len(refs) != 1 {
		t.Fatalf("got %d refs, want 1", len(refs))
	}
	if refs[0].URL != "http://a.example/1.png" {
		t.Errorf("URL = %q, want the first declaration", refs[0].URL)
	}
	got, _ := block(doc)
	if !strings.Contains(got, "http://b.example/2.png") {
		t.Errorf("second declaration was rewritten: %s", got)
	}
}

func TestLocate_SkipsDeclarationWithoutURL(t *testing.T) {
	doc := `<div style="background: #000; background-image: url(http://b.example/2.png)">`
	refs := Locate(doc)
	if len(refs) != 1 || refs[0].URL != "http://b.example/2.png" {
		t.Errorf("refs = %+v", refs)
	}
}

func TestLocate_DocumentOrder(t *testing.T) {
	doc := `<p>hi</p><img style="background:url(http://c.example/3.png)" src="http://a.example/1.png"><td background=http://b.example/2.png>`
	refs := Locate(doc)
	want := []string{"http://c.example/3.png", "http://a.example/1.png", "http://b.example/2.png"}
	if len(refs) != len(want) {
		t.Fatalf("got %d refs, want %d", len(refs), len(want))
	}
	for i := range want {
		if refs[i].URL != want[i] {
			t.Errorf("refs[%d] = %q, want %q", i, refs[i].URL, want[i])
		}
	}
}

func TestBlock_PreservesSurroundingBytes(t *testing.T) {
	doc := "<html>\n<body>\n<p class=x>Hello &amp; welcome</p>\n<img\tsrc=\"http://t.example/x.png\"\n\talt='A'>\n</body>\n</html>\n"
	want := "<html>\n<body>\n<p class=x>Hello &amp; welcome</p>\n<img\tsrc=\"" + placeholder +
		"\" blocked=\"http%3A%2F%2Ft.example%2Fx.png\"\n\talt='A'>\n</body>\n</html>\n"
	if got, _ := block(doc); got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestBlock_NoRefs(t *testing.T) {
	doc := `<p>plain</p>`
	got, refs := block(doc)
	if got != doc || refs != nil {
		t.Errorf("got %q, %v", got, refs)
	}
}

func TestBlock_StyleSheet(t *testing.T) {
	doc := `<style type="text/css">td { background: url(http://a.example/1.png) } ` +
		`p { content: url('https://b.example/2.png') } i { x: url(/local.png) }</style><p>x</p>`
	got, refs := block(doc)
	want := `<style blocked="http%3A%2F%2Fa.example%2F1.png https%3A%2F%2Fb.example%2F2.png" type="text/css">` +
		`td { background: url(` + placeholder + `) } p { content: url('` + placeholder + `') } ` +
		`i { x: url(/local.png) }</style><p>x</p>`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2", len(refs))
	}
	for _, r := range refs {
		if r.Origin != OriginSheet || r.Tag != "style" || r.Attr != "" {
			t.Errorf("ref = %+v", r)
		}
	}
	if refs[1].URLQuote != markup.Single {
		t.Errorf("URLQuote = %v, want single", refs[1].URLQuote)
	}
}

func TestBlock_StyleSheetsSeparately(t *testing.T) {
	doc := `<style>a{b:url(http://a.example/1.png)}</style><style>c{d:url(http://b.example/2.png)}</style>`
	got, _ := block(doc)
	for _, want := range []string{
		`<style blocked="http%3A%2F%2Fa.example%2F1.png">`,
		`<style blocked="http%3A%2F%2Fb.example%2F2.png">`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("got %s\nwant it to contain %s", got, want)
		}
	}
}

func TestLocate_StyleSheetEnds(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want int
	}{
		{"closed", `<style>a{}</style><p style="x">url(http://t.example/x.png)</p>`, 0},
		{"upper case end tag", `<style>a{}</STYLE >url(http://t.example/x.png)`, 0},
		{"not an end tag", `<style>a{}</styles>b{c:url(http://t.example/x.png)}</style>`, 1},
		{"unterminated", `<style>a{b:url(http://t.example/x.png)}`, 1},
		{"quoted url with url inside", `<style>a{b:url("http://t.example/url(x).png")}</style>`, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if refs := Locate(tc.doc); len(refs) != tc.want {
				t.Errorf("got %d refs, want %d: %+v", len(refs), tc.want, refs)
			}
		})
	}
}

func TestCSSUnescape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`http://x`, `http://x`},
		{`\2f\2f x`, `//x`},
		{`htt\70 ://x`, `http://x`},
		{`\68ttp\:`, `http:`},
		{`a\`, `a\`},
		{`\0`, "\uFFFD"},
	}
	for _, tc := range tests {
		if got := cssUnescape(tc.in); got != tc.want {
			t.Errorf("cssUnescape(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
