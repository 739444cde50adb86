package sanitize

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeCharset(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		charset string
		want    string
		wantErr bool
	}{
		{"utf-8", []byte("héllo"), "UTF-8", "héllo", false},
		{"empty charset", []byte("plain"), "", "plain", false},
		{"quoted", []byte("x"), `"us-ascii"`, "x", false},
		{"latin1", []byte{'c', 'a', 'f', 0xe9}, "ISO-8859-1", "café", false},
		{"windows-1252", []byte{0x93, 'q', 0x94}, "windows-1252", "“q”", false},
		{"undeclared 8-bit", []byte{'n', 0xe4, 'h'}, "", "näh", false},
		{"bad utf-8", []byte{0xff, 'a'}, "utf-8", "\xffa", true},
		{"unknown", []byte("raw"), "x-no-such-charset", "raw", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeCharset(tc.data, tc.charset)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeCharset_UnknownIsSentinel(t *testing.T) {
	_, err := DecodeCharset([]byte("x"), "bogus-9")
	if !errors.Is(err, ErrUnknownCharset) {
		t.Errorf("err = %v, want ErrUnknownCharset", err)
	}
}

func TestPlainText(t *testing.T) {
	input := `<html><head><style>p{color:red}</style></head><body><p>Hello&nbsp;<b>you</b> &amp; me</p><script>alert(1)</script>


<p>Bye</p></body></html>`
	got := PlainText(input)
	if strings.Contains(got, "<") || strings.Contains(got, "alert") || strings.Contains(got, "color:red") {
		t.Errorf("markup left in text: %q", got)
	}
	if !strings.Contains(got, "Hello\u00a0") || !strings.Contains(got, "& me") {
		t.Errorf("entities not decoded: %q", got)
	}
	if !strings.HasSuffix(got, "Bye") {
		t.Errorf("trailing text lost: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank lines not collapsed: %q", got)
	}
}
