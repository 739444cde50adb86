package sanitize

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// ErrUnknownCharset is returned by DecodeCharset for charsets without a
// known decoder.
var ErrUnknownCharset = errors.New("unknown charset")

// DecodeCharset converts data from the named charset to UTF-8. On failure the
// bytes are returned unconverted together with the error, so callers can
// still display them.
func DecodeCharset(data []byte, charset string) (string, error) {
	cs := strings.ToLower(strings.Trim(strings.TrimSpace(charset), `"`))
	switch cs {
	case "", "us-ascii", "ascii", "utf-8", "utf8":
		if utf8.Valid(data) {
			return string(data), nil
		}
		if cs == "utf-8" || cs == "utf8" {
			return string(data), fmt.Errorf("decode %s: invalid utf-8", cs)
		}
		// Undeclared 8-bit text is most often latin1.
		cs = "iso-8859-1"
	}

	enc, err := ianaindex.MIME.Encoding(cs)
	if err != nil || enc == nil {
		enc, err = ianaindex.IANA.Encoding(cs)
	}
	if err != nil || enc == nil {
		return string(data), fmt.Errorf("decode %q: %w", charset, ErrUnknownCharset)
	}
	if enc == encoding.Nop {
		return string(data), nil
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return string(data), fmt.Errorf("decode %q: %w", charset, err)
	}
	return string(out), nil
}
