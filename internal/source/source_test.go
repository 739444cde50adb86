package source

import (
	"strings"
	"testing"
)

func TestRender_EscapesMarkup(t *testing.T) {
	h := New()
	src := []byte("<html>\n<script>alert(1)</script>\n<img src=\"http://t.example/p.gif\" onerror=\"x()\">\n")
	out, err := h.Render(src, "text/html; charset=utf-8")
	if err != nil {
		t.Fatal(err)
	}

	s := string(out)
	for _, bad := range []string{"<script", "<img", "<html>"} {
		if strings.Contains(s, bad) {
			t.Errorf("output contains live markup %q", bad)
		}
	}
	if !strings.Contains(s, "&lt;") {
		t.Error("expected escaped angle brackets")
	}
	if !strings.Contains(s, `data-line-count="3"`) {
		t.Errorf("wrong line count in %s", s[:min(len(s), 120)])
	}
	if !strings.Contains(s, `class="chroma"`) {
		t.Error("missing chroma classes")
	}
}

func TestRender_LineCount(t *testing.T) {
	h := New()
	tests := []struct {
		input string
		want  string
	}{
		{"", `data-line-count="0"`},
		{"a", `data-line-count="1"`},
		{"a\n", `data-line-count="1"`},
		{"a\nb", `data-line-count="2"`},
	}
	for _, tc := range tests {
		out, err := h.Render([]byte(tc.input), "text/plain")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(out), tc.want) {
			t.Errorf("Render(%q): want %s", tc.input, tc.want)
		}
	}
}

func TestRender_UnknownType(t *testing.T) {
	out, err := New().Render([]byte("1 < 2"), "application/x-unknown")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "1 &lt; 2") {
		t.Errorf("fallback output = %s", out)
	}
}

func TestCSS(t *testing.T) {
	for _, style := range []string{"github", "github-dark", "no-such-style"} {
		css, err := New().CSS(style)
		if err != nil {
			t.Fatalf("CSS(%q): %v", style, err)
		}
		if !strings.Contains(css, ".chroma") {
			t.Errorf("CSS(%q) has no chroma rules", style)
		}
	}
}
