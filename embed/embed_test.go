package embed

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
)

func TestAssets(t *testing.T) {
	if err := fstest.TestFS(Assets, "unblock.js", "page.js", "blocked.svg", "image.svg"); err != nil {
		t.Fatal(err)
	}
}

func TestUnblockScript_Contract(t *testing.T) {
	b, err := fs.ReadFile(Assets, "unblock.js")
	if err != nil {
		t.Fatal(err)
	}
	js := string(b)
	for _, want := range []string{
		"[blocked]",
		"decodeURIComponent",
		"data-unblock",
		"data-safe-sender",
		"'/_mailview/blocked.svg'",
		"method: 'POST'",
		"'STYLE'",
	} {
		if !strings.Contains(js, want) {
			t.Errorf("unblock.js missing %q", want)
		}
	}
}
