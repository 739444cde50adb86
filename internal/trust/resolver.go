// Package trust decides whether remote images in a message may load
// without asking, and maintains the safe-sender list behind that decision.
package trust

import (
	"context"
	"log/slog"
	"time"

	"github.com/air-gapped/mailview/internal/contacts"
	"github.com/air-gapped/mailview/internal/prefs"
)

// DefaultTimeout bounds an address-book lookup.
const DefaultTimeout = 2 * time.Second

// Reason says why images were allowed.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonOverride    Reason = "override"
	ReasonSafeSender  Reason = "safe_sender"
	ReasonAddressBook Reason = "address_book"
)

// Input is what a render knows about the viewer's intent and the message.
type Input struct {
	Override bool   // the user asked to show images for this request
	From     string // raw From header value
}

// Decision is the outcome of Decide.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Resolver decides whether remote images are shown automatically. It is
// safe for concurrent use when its store and provider are.
type Resolver struct {
	prefs    prefs.Store
	safe     *SafeSenders
	contacts contacts.Provider
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithContacts sets the address-book provider. Without one, address-book
// trust is never granted.
func WithContacts(p contacts.Provider) Option {
	return func(r *Resolver) { r.contacts = p }
}

// WithTimeout bounds each address-book lookup.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger for degraded lookups.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a Resolver reading preferences and the safe-sender
// list from store.
func NewResolver(store prefs.Store, opts ...Option) *Resolver {
	r := &Resolver{
		prefs:   store,
		safe:    NewSafeSenders(store),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Allow reports whether remote images may load for in.
func (r *Resolver) Allow(ctx context.Context, in Input) bool {
	return r.Decide(ctx, in).Allowed
}

// Decide checks, in order: the per-request override, the safe-sender list
// and, when the address-book preference is on, the contacts provider. A
// lookup that fails or times out means not trusted.
func (r *Resolver) Decide(ctx context.Context, in Input) Decision {
	if in.Override {
		return Decision{Allowed: true, Reason: ReasonOverride}
	}

	addr, err := BareAddress(in.From)
	if err != nil {
		r.logger.Debug("no sender address for trust check", "from", in.From)
		return Decision{}
	}
	if r.safe.Contains(addr) {
		return Decision{Allowed: true, Reason: ReasonSafeSender}
	}
	if !r.prefs.Bool(prefs.ImageAddrbook) {
		return Decision{}
	}
	if r.inAddressBook(ctx, addr) {
		return Decision{Allowed: true, Reason: ReasonAddressBook}
	}
	return Decision{}
}

// inAddressBook asks the provider under the resolver's timeout. The
// answer is abandoned when the deadline passes, even if the provider
// ignores ctx.
func (r *Resolver) inAddressBook(ctx context.Context, addr string) bool {
	if r.contacts == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		found bool
		err   error
	}
	ch := make(chan result, 1)
	start := time.Now()
	go func() {
		found, err := r.contacts.LookupByAddress(ctx, addr)
		ch <- result{found, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			r.logger.Warn("address book lookup failed",
				"error", res.err,
				"lookup_ms", time.Since(start).Milliseconds(),
			)
			return false
		}
		return res.found
	case <-ctx.Done():
		r.logger.Warn("address book lookup abandoned",
			"error", ctx.Err(),
			"lookup_ms", time.Since(start).Milliseconds(),
		)
		return false
	}
}
