package contacts

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/air-gapped/mailview/internal/cache"
)

// sharedLookupTimeout bounds a provider call shared by concurrent lookups.
const sharedLookupTimeout = 10 * time.Second

// Cached wraps a Provider with a verdict cache. Concurrent lookups of the
// same address share one provider call. Errors are not cached.
type Cached struct {
	provider Provider
	cache    *cache.Cache
	group    singleflight.Group
	logger   *slog.Logger
	timeout  time.Duration
}

// NewCached creates a caching provider.
func NewCached(p Provider, c *cache.Cache, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{provider: p, cache: c, logger: logger, timeout: sharedLookupTimeout}
}

// LookupByAddress implements Provider. It returns when ctx is done even if
// the shared provider call is still running. The shared call keeps the
// values of the first caller's ctx but not its cancellation, so one caller
// giving up does not fail the others.
func (cp *Cached) LookupByAddress(ctx context.Context, addr string) (bool, error) {
	key := strings.ToLower(strings.TrimSpace(addr))

	entry, status := cp.cache.Get(key)
	if status == cache.StatusHit {
		cp.logger.Debug("contacts lookup", "cache", status, "found", entry.Found)
		return entry.Found, nil
	}

	ch := cp.group.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cp.timeout)
		defer cancel()
		found, err := cp.provider.LookupByAddress(sctx, key)
		if err != nil {
			return false, err
		}
		cp.cache.Put(key, found)
		return found, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return false, r.Err
		}
		found := r.Val.(bool)
		cp.logger.Debug("contacts lookup", "cache", status, "found", found, "shared", r.Shared)
		return found, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Cache returns the underlying cache for direct access.
func (cp *Cached) Cache() *cache.Cache {
	return cp.cache
}
