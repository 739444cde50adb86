// Package viewer runs the HTML message pipeline: charset decoding,
// sanitizing, link rewriting and, for inline views of untrusted senders,
// remote image blocking.
package viewer

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/air-gapped/mailview/internal/prefs"
	"github.com/air-gapped/mailview/internal/remote"
	"github.com/air-gapped/mailview/internal/rewrite"
	"github.com/air-gapped/mailview/internal/sanitize"
	"github.com/air-gapped/mailview/internal/trust"
)

// Asset paths served by the host.
const (
	DefaultPlaceholder = "/_mailview/blocked.svg"
	DefaultUnblockJS   = "/_mailview/unblock.js"
	DefaultIcon        = "/_mailview/image.svg"
)

// BlockedStatusID identifies the images-blocked notice.
const BlockedStatusID = "impblockimages"

// Resolver decides whether remote images load without asking.
type Resolver interface {
	Allow(ctx context.Context, in trust.Input) bool
}

// Viewer renders message bodies. It holds no per-render state and is safe
// for concurrent use.
type Viewer struct {
	prefs     prefs.Store
	trust     Resolver
	sanitizer *sanitize.Sanitizer
	blocker   remote.Blocker
	composer  rewrite.Composer
	scripts   []string
	icon      string
	logger    *slog.Logger
}

// Option configures a Viewer.
type Option func(*Viewer)

func WithPlaceholder(u string) Option { return func(v *Viewer) { v.blocker.Placeholder = u } }

// WithScripts replaces the scripts appended when images are blocked.
func WithScripts(urls ...string) Option { return func(v *Viewer) { v.scripts = urls } }

func WithIcon(u string) Option { return func(v *Viewer) { v.icon = u } }

// WithComposer enables mailto: interception.
func WithComposer(c rewrite.Composer) Option { return func(v *Viewer) { v.composer = c } }

func WithSanitizer(s *sanitize.Sanitizer) Option { return func(v *Viewer) { v.sanitizer = s } }

func WithLogger(l *slog.Logger) Option { return func(v *Viewer) { v.logger = l } }

// New creates a Viewer. resolver may be nil, in which case only the
// per-request override shows images.
func New(store prefs.Store, resolver Resolver, opts ...Option) *Viewer {
	v := &Viewer{
		prefs:     store,
		trust:     resolver,
		sanitizer: sanitize.New(),
		blocker:   remote.Blocker{Placeholder: DefaultPlaceholder},
		scripts:   []string{DefaultUnblockJS},
		icon:      DefaultIcon,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Render transforms req.Part into displayable HTML. The only error is a
// failure to read the part; everything else degrades and is logged.
func (v *Viewer) Render(ctx context.Context, req Request) (*Result, error) {
	data, err := req.Part.Contents()
	if err != nil {
		return nil, fmt.Errorf("read message body: %w", err)
	}

	res := &Result{Type: "text/html; charset=utf-8"}
	charset := req.Part.Charset()
	doc, err := sanitize.DecodeCharset(data, charset)
	if err != nil {
		v.logger.Warn("charset conversion failed, showing raw bytes", "charset", charset, "error", err)
		if charset != "" {
			res.Type = "text/html; charset=" + charset
		}
	}

	doc = v.sanitizer.HTML(doc)

	if req.TextOnly {
		res.HTML = sanitize.PlainText(doc)
		res.Type = strings.Replace(res.Type, "text/html", "text/plain", 1)
		return res, nil
	}

	inline := req.Mode == Inline
	if inline {
		doc = rewrite.ResetPositioning(doc)
	}
	doc = rewrite.Links{CIDs: v.cids(req), Composer: v.composer}.Rewrite(doc)
	if inline {
		doc = `<div id="html-message">` + doc + `</div>`
	}

	if v.shouldBlock(ctx, req, doc) {
		var refs []remote.Reference
		doc, refs = v.blocker.Block(doc)
		res.Blocked = len(refs)
		var b strings.Builder
		b.WriteString(doc)
		for _, s := range v.scripts {
			fmt.Fprintf(&b, `<script src="%s" defer></script>`, html.EscapeString(s))
		}
		doc = b.String()
		res.Status = append(res.Status, v.blockedStatus(req))
	}

	res.HTML = doc
	v.logger.Debug("message rendered",
		"mode", req.Mode,
		"print", req.Print,
		"blocked", res.Blocked,
		"bytes", len(doc),
	)
	return res, nil
}

func (v *Viewer) shouldBlock(ctx context.Context, req Request, doc string) bool {
	if req.Mode != Inline || req.Print || !v.prefs.Bool(prefs.ImageReplacement) {
		return false
	}
	if !remote.HasRemote(doc) {
		return false
	}
	if v.trust == nil {
		return !req.ShowImages
	}
	return !v.trust.Allow(ctx, trust.Input{Override: req.ShowImages, From: req.Part.HeaderValue("From")})
}

// cids maps Content-IDs of related parts to their view URLs.
func (v *Viewer) cids(req Request) map[string]string {
	if req.Related == nil || req.Attachments == nil {
		return nil
	}
	out := map[string]string{}
	for id, cid := range req.Related.RelatedContentIDs() {
		ref, ok := req.Related.ResolvePart(id)
		if !ok {
			continue
		}
		out[strings.Trim(cid, "<>")] = req.Attachments.ViewURL(ref, true)
	}
	return out
}

func (v *Viewer) blockedStatus(req Request) Status {
	unblock := req.UnblockURL
	if unblock == "" {
		unblock = "?view_html_images=1"
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<a href="%s" class="unblock-images" data-unblock="html-message" data-status="%s">Show Images?</a>`,
		html.EscapeString(unblock), BlockedStatusID)
	if req.SafeSenderURL != "" {
		fmt.Fprintf(&b, ` <a href="%s" class="safe-sender" data-safe-sender="%s">Always show images from this sender</a>`,
			html.EscapeString(req.SafeSenderURL), BlockedStatusID)
	}
	return Status{
		Icon:   v.icon,
		ID:     BlockedStatusID,
		Text:   "Images have been blocked to protect your privacy.",
		Action: b.String(),
	}
}
