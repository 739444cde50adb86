// Package prefs holds user preferences: a small string key-value store with
// an in-memory and a SQLite implementation.
package prefs

import (
	"errors"
	"strings"
	"sync"
)

// Preference names read by the viewer.
const (
	// ImageReplacement enables blocking of remote images.
	ImageReplacement = "html_image_replacement"
	// ImageAddrbook trusts senders found in the address book.
	ImageAddrbook = "html_image_addrbook"
	// SafeAddrs is the newline-separated safe-sender list.
	SafeAddrs = "image_replacement_safe_addrs"
)

// ErrNotFound is returned by LoadDefaults when the file does not exist.
var ErrNotFound = errors.New("preferences file not found")

// Store reads and writes preferences. Unknown names read as "" and false.
type Store interface {
	Bool(name string) bool
	Value(name string) string
	SetValue(name, value string) error
}

// Appender is implemented by stores that can add a line to a list-valued
// preference atomically. added is false when the line was already present.
type Appender interface {
	AppendLine(name, line string) (added bool, err error)
}

// ParseBool interprets a stored preference value.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// FormatBool is the stored form of b.
func FormatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Lines splits a list-valued preference into its non-empty lines.
func Lines(v string) []string {
	var out []string
	for _, l := range strings.Split(v, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// appendLine returns v with line added, or false when it is already there
// in any letter case.
func appendLine(v, line string) (string, bool) {
	for _, l := range Lines(v) {
		if strings.EqualFold(l, line) {
			return v, false
		}
	}
	if v = strings.TrimRight(v, "\n"); v != "" {
		v += "\n"
	}
	return v + line, true
}

// Memory is a Store kept in memory. It is safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns a Memory store seeded with values.
func NewMemory(values map[string]string) *Memory {
	m := &Memory{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

func (m *Memory) Bool(name string) bool {
	return ParseBool(m.Value(name))
}

func (m *Memory) Value(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[name]
}

func (m *Memory) SetValue(name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	return nil
}

// AppendLine implements Appender.
func (m *Memory) AppendLine(name, line string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, added := appendLine(m.values[name], line)
	m.values[name] = v
	return added, nil
}
