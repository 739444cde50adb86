package server

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/air-gapped/mailview/internal/mime"
	mailtemplate "github.com/air-gapped/mailview/internal/template"
)

var (
	// ErrInvalidID is returned for message ids that cannot name a file.
	ErrInvalidID = errors.New("invalid message id")
	// ErrTooLarge is returned for messages over the configured size.
	ErrTooLarge = errors.New("message too large")
)

// idPattern allows ids usable as a single file name. A leading dot is
// refused so hidden files stay hidden.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]*$`)

const maxIDLength = 200

// ValidateID checks a message id taken from a URL.
func ValidateID(id string) error {
	err := validation.Validate(id,
		validation.Required,
		validation.Length(1, maxIDLength),
		validation.Match(idPattern),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return nil
}

// MailDir reads messages stored as <dir>/<id>.eml.
type MailDir struct {
	dir     string
	maxSize int64
	logger  *slog.Logger
}

func NewMailDir(dir string, maxSize int64, logger *slog.Logger) *MailDir {
	return &MailDir{dir: dir, maxSize: maxSize, logger: logger}
}

// Open reads and parses a message. A missing message yields an error
// matching fs.ErrNotExist.
func (d *MailDir) Open(id string) (*mime.Message, int64, error) {
	if err := ValidateID(id); err != nil {
		return nil, 0, err
	}
	p := filepath.Join(d.dir, id+".eml")

	info, err := os.Stat(p)
	if err != nil {
		return nil, 0, fmt.Errorf("open message %s: %w", id, err)
	}
	if !info.Mode().IsRegular() {
		return nil, 0, fmt.Errorf("open message %s: %w", id, os.ErrNotExist)
	}
	if d.maxSize > 0 && info.Size() > d.maxSize {
		return nil, 0, fmt.Errorf("%w: %d bytes, limit is %d", ErrTooLarge, info.Size(), d.maxSize)
	}

	// Parts are read lazily, so the message keeps the whole file.
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, 0, fmt.Errorf("read message %s: %w", id, err)
	}
	msg, err := mime.ParseBytes(data, d.logger.With("message_id", id))
	if err != nil {
		return nil, 0, fmt.Errorf("parse message %s: %w", id, err)
	}
	return msg, info.Size(), nil
}

// List returns the stored messages in id order. Unreadable messages are
// logged and skipped.
func (d *MailDir) List() []mailtemplate.IndexEntry {
	dirEntries, err := os.ReadDir(d.dir)
	if err != nil {
		d.logger.Warn("list mail directory failed", "dir", d.dir, "error", err)
		return nil
	}

	var out []mailtemplate.IndexEntry
	for _, e := range dirEntries {
		id, ok := strings.CutSuffix(e.Name(), ".eml")
		if !ok || !e.Type().IsRegular() || ValidateID(id) != nil {
			continue
		}
		msg, _, err := d.Open(id)
		if err != nil {
			d.logger.Warn("skipping message", "message_id", id, "error", err)
			continue
		}
		out = append(out, mailtemplate.IndexEntry{
			ID:      id,
			Subject: msg.Subject(),
			From:    msg.From(),
		})
	}
	return out
}
