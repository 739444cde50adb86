package trust

import (
	"fmt"
	"strings"

	"github.com/air-gapped/mailview/internal/prefs"
)

// SafeSenders is the list of addresses whose remote images are always
// shown. It is stored in a preference as one address per line.
type SafeSenders struct {
	store prefs.Store
}

// NewSafeSenders returns the list kept in store.
func NewSafeSenders(store prefs.Store) *SafeSenders {
	return &SafeSenders{store: store}
}

// List returns the stored addresses.
func (s *SafeSenders) List() []string {
	return prefs.Lines(s.store.Value(prefs.SafeAddrs))
}

// Contains reports whether addr, compared case-insensitively, is listed.
func (s *SafeSenders) Contains(addr string) bool {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return false
	}
	for _, l := range s.List() {
		if strings.ToLower(l) == addr {
			return true
		}
	}
	return false
}

// Add appends addr to the list. Adding a listed address is a no-op and
// reports added == false with a nil error. Stores that implement
// prefs.Appender add atomically; others get a read-modify-write.
func (s *SafeSenders) Add(addr string) (added bool, err error) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return false, ErrNoAddress
	}
	if a, ok := s.store.(prefs.Appender); ok {
		return a.AppendLine(prefs.SafeAddrs, addr)
	}

	if s.Contains(addr) {
		return false, nil
	}
	list := append(s.List(), addr)
	if err := s.store.SetValue(prefs.SafeAddrs, strings.Join(list, "\n")); err != nil {
		return false, fmt.Errorf("store safe senders: %w", err)
	}
	return true, nil
}

// Confirmation is the user-visible outcome of AddSender.
type Confirmation struct {
	OK      bool   `json:"ok"`
	Address string `json:"address,omitempty"`
	Added   bool   `json:"added"`
	Message string `json:"message"`
}

// AddSender adds the sender in a raw From header value to the safe-sender
// list of store. An address that is already listed still succeeds.
func AddSender(store prefs.Store, rawFrom string) Confirmation {
	addr, err := BareAddress(rawFrom)
	if err != nil {
		return Confirmation{Message: "No sender address found in this message."}
	}
	added, err := NewSafeSenders(store).Add(addr)
	if err != nil {
		return Confirmation{
			Address: addr,
			Message: fmt.Sprintf("Could not add %s to the safe sender list.", addr),
		}
	}
	return Confirmation{
		OK:      true,
		Address: addr,
		Added:   added,
		Message: fmt.Sprintf("Always showing images in messages sent by %s.", addr),
	}
}
