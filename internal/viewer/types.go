package viewer

import (
	"net/url"
	"strings"
)

// Part is the MIME part being rendered.
type Part interface {
	Contents() ([]byte, error)
	Charset() string
	Type() string
	HeaderValue(name string) string
}

// PartRef identifies a part for building view URLs.
type PartRef struct {
	ID   string
	Type string
}

// Related exposes the sibling parts of a multipart/related body.
type Related interface {
	// RelatedContentIDs maps part ids to Content-IDs.
	RelatedContentIDs() map[string]string
	ResolvePart(id string) (PartRef, bool)
}

// AttachmentURLs builds same-origin URLs that show a part.
type AttachmentURLs interface {
	ViewURL(ref PartRef, imgData bool) string
}

// PartURL builds Base?id=<id>[&img_data=1].
type PartURL struct {
	Base string
}

func (u PartURL) ViewURL(ref PartRef, imgData bool) string {
	q := url.Values{}
	q.Set("id", ref.ID)
	if imgData {
		q.Set("img_data", "1")
	}
	sep := "?"
	if strings.Contains(u.Base, "?") {
		sep = "&"
	}
	return u.Base + sep + q.Encode()
}

// Mode selects how the body is embedded.
type Mode int

const (
	// Inline renders the body inside a host page.
	Inline Mode = iota
	// Full renders the body as a page of its own.
	Full
)

func (m Mode) String() string {
	if m == Full {
		return "full"
	}
	return "inline"
}

// Request is one render.
type Request struct {
	Part        Part
	Related     Related        // optional
	Attachments AttachmentURLs // required for cid: resolution
	Mode        Mode
	Print       bool
	TextOnly    bool
	ShowImages  bool // the user asked to show images for this request

	// UnblockURL reloads the message with images shown. SafeSenderURL,
	// when set, is offered as a second action that also remembers the
	// sender.
	UnblockURL    string
	SafeSenderURL string
}

// Status is a notice for the host UI about a decision made during the
// render.
type Status struct {
	Icon   string `json:"icon"`
	ID     string `json:"id"`
	Text   string `json:"text"`
	Action string `json:"action,omitempty"` // HTML
}

// Result is the rendered body.
type Result struct {
	HTML    string
	Status  []Status
	Type    string
	Blocked int // remote references replaced
}
