// Package mime parses stored RFC 5322 messages and exposes their parts to
// the viewer: the HTML body, its charset and headers, and the sibling parts
// of a multipart/related body.
package mime

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mjl-/mox/message"

	"github.com/air-gapped/mailview/internal/viewer"
)

// ErrNoHTMLPart is returned when a message has no text/html body.
var ErrNoHTMLPart = errors.New("message has no html part")

// ErrNoPart is returned for an unknown part id.
var ErrNoPart = errors.New("no such part")

// Message is a parsed message. Part ids follow IMAP section numbering:
// "1", "2", "2.1", ...; a single-part message has the one part "1".
type Message struct {
	root   *message.Part
	parts  map[string]*message.Part
	parent map[string]string // part id -> parent id, "" for the root
	order  []string
	logger *slog.Logger
}

// Parse reads a message from r. Structural damage does not fail the parse:
// the message is then treated as a single opaque part, as mox does.
func Parse(r io.ReaderAt, size int64, logger *slog.Logger) (*Message, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p, err := message.EnsurePart(logger, false, r, size)
	if err != nil {
		logger.Warn("message structure damaged, showing as single part", "error", err)
	}

	m := &Message{
		root:   &p,
		parts:  map[string]*message.Part{},
		parent: map[string]string{},
		logger: logger,
	}
	if len(p.Parts) == 0 {
		m.add("1", "", &p)
	} else {
		m.index(&p, "")
	}
	if len(m.order) == 0 {
		return nil, fmt.Errorf("parse message: no parts")
	}
	return m, nil
}

// ParseBytes parses a message held in memory. Bare LF line endings, common
// in files saved by hand, are converted to CRLF first; mox treats them as
// damage.
func ParseBytes(data []byte, logger *slog.Logger) (*Message, error) {
	data = toCRLF(data)
	return Parse(bytes.NewReader(data), int64(len(data)), logger)
}

func toCRLF(b []byte) []byte {
	if bytes.Count(b, []byte("\n")) == bytes.Count(b, []byte("\r\n")) {
		return b
	}
	out := make([]byte, 0, len(b)+bytes.Count(b, []byte("\n")))
	for i, c := range b {
		if c == '\n' && (i == 0 || b[i-1] != '\r') {
			out = append(out, '\r')
		}
		out = append(out, c)
	}
	return out
}

func (m *Message) add(id, parent string, p *message.Part) {
	m.parts[id] = p
	m.parent[id] = parent
	m.order = append(m.order, id)
}

func (m *Message) index(p *message.Part, id string) {
	for i := range p.Parts {
		child := strconv.Itoa(i + 1)
		if id != "" {
			child = id + "." + child
		}
		m.add(child, id, &p.Parts[i])
		m.index(&p.Parts[i], child)
	}
}

// Header returns the first value of a top-level header.
func (m *Message) Header(name string) string {
	h, err := m.root.Header()
	if err != nil {
		m.logger.Debug("message header unreadable", "error", err)
	}
	if h == nil {
		return ""
	}
	return h.Get(name)
}

// From returns the raw From header value.
func (m *Message) From() string {
	return m.Header("From")
}

// Subject returns the decoded subject.
func (m *Message) Subject() string {
	if m.root.Envelope != nil {
		return m.root.Envelope.Subject
	}
	return m.Header("Subject")
}

// IDs returns all part ids in document order.
func (m *Message) IDs() []string {
	return append([]string(nil), m.order...)
}

// Part returns the part with the given id.
func (m *Message) Part(id string) (*Part, error) {
	p, ok := m.parts[id]
	if !ok {
		return nil, fmt.Errorf("part %q: %w", id, ErrNoPart)
	}
	return &Part{ID: id, msg: m, p: p}, nil
}

// HTMLPart returns the first text/html part that is not an attachment.
func (m *Message) HTMLPart() (*Part, error) {
	return m.firstText("HTML", ErrNoHTMLPart)
}

// TextPart returns the first text/plain part that is not an attachment.
// A message without a content type counts as text/plain.
func (m *Message) TextPart() (*Part, error) {
	return m.firstText("PLAIN", fmt.Errorf("message has no text part: %w", ErrNoPart))
}

func (m *Message) firstText(sub string, notFound error) (*Part, error) {
	for _, id := range m.order {
		p := m.parts[id]
		mt, st := p.MediaType, p.MediaSubType
		if mt == "" && sub == "PLAIN" {
			mt, st = "TEXT", "PLAIN"
		}
		if mt != "TEXT" || st != sub || isAttachment(p) {
			continue
		}
		return &Part{ID: id, msg: m, p: p}, nil
	}
	return nil, notFound
}

func isAttachment(p *message.Part) bool {
	return p.ContentDisposition != nil && strings.HasPrefix(strings.ToLower(*p.ContentDisposition), "attachment")
}

// Part is one leaf or multipart of a Message. It implements viewer.Part and
// viewer.Related.
type Part struct {
	ID  string
	msg *Message
	p   *message.Part
}

var (
	_ viewer.Part    = (*Part)(nil)
	_ viewer.Related = (*Part)(nil)
)

// Contents returns the body with its transfer encoding removed.
func (p *Part) Contents() ([]byte, error) {
	b, err := io.ReadAll(p.p.Reader())
	if err != nil {
		return nil, fmt.Errorf("read part %s: %w", p.ID, err)
	}
	return b, nil
}

// Charset returns the charset parameter of the content type.
func (p *Part) Charset() string {
	return p.p.ContentTypeParams["charset"]
}

// Type returns the lower-case media type, text/plain when absent.
func (p *Part) Type() string {
	if p.p.MediaType == "" {
		return "text/plain"
	}
	return strings.ToLower(p.p.MediaType + "/" + p.p.MediaSubType)
}

// Filename returns the attachment file name, if any.
func (p *Part) Filename() string {
	_, name, err := p.p.DispositionFilename()
	if err != nil {
		return ""
	}
	return name
}

// HeaderValue returns a header of the part, falling back to the message
// headers for fields such as From that only the top level carries.
func (p *Part) HeaderValue(name string) string {
	if h, err := p.p.Header(); err == nil {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return p.msg.Header(name)
}

// RelatedContentIDs maps the ids of parts inside the nearest enclosing
// multipart/related to their Content-ID, brackets removed.
func (p *Part) RelatedContentIDs() map[string]string {
	rel, ok := p.relatedRoot()
	if !ok {
		return nil
	}
	out := map[string]string{}
	for _, id := range p.msg.order {
		if id == p.ID || !within(id, rel) {
			continue
		}
		if cid := p.msg.parts[id].ContentID; cid != nil {
			if v := strings.Trim(strings.TrimSpace(*cid), "<>"); v != "" {
				out[id] = v
			}
		}
	}
	return out
}

// ResolvePart returns a reference to a related part.
func (p *Part) ResolvePart(id string) (viewer.PartRef, bool) {
	rp, err := p.msg.Part(id)
	if err != nil {
		return viewer.PartRef{}, false
	}
	return viewer.PartRef{ID: rp.ID, Type: rp.Type()}, true
}

func (p *Part) relatedRoot() (string, bool) {
	for id := p.msg.parent[p.ID]; ; id = p.msg.parent[id] {
		mp := p.msg.root
		if id != "" {
			mp = p.msg.parts[id]
		}
		if mp.MediaType == "MULTIPART" && mp.MediaSubType == "RELATED" {
			return id, true
		}
		if id == "" {
			return "", false
		}
	}
}

// within reports whether part id lies under ancestor; every part lies under
// the root "".
func within(id, ancestor string) bool {
	return ancestor == "" || strings.HasPrefix(id, ancestor+".")
}
