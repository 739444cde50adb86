package trust

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/mjl-/mox/message"
)

// ErrNoAddress is returned when a header value holds no usable address.
var ErrNoAddress = errors.New("no sender address")

// BareAddress returns the first address of a From-style header value as a
// lower-cased user@host, without display name or angle brackets.
func BareAddress(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrNoAddress
	}
	if addrs, err := message.ParseAddressList(header); err == nil {
		for _, a := range addrs {
			if a.User != "" && a.Host != "" {
				return strings.ToLower(a.User + "@" + a.Host), nil
			}
		}
	}
	// Lenient fallback for addresses the strict parser rejects.
	if a, err := mail.ParseAddress(header); err == nil && strings.Contains(a.Address, "@") {
		return strings.ToLower(a.Address), nil
	}
	return "", ErrNoAddress
}
