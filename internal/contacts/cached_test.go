package contacts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/air-gapped/mailview/internal/cache"
)

func TestCached_HitSkipsProvider(t *testing.T) {
	var calls atomic.Int32
	p := ProviderFunc(func(ctx context.Context, addr string) (bool, error) {
		calls.Add(1)
		return addr == "friend@example.com", nil
	})
	cp := NewCached(p, cache.New(time.Minute, 10), nil)

	for i := 0; i < 3; i++ {
		found, err := cp.LookupByAddress(context.Background(), "Friend@Example.com")
		if err != nil || !found {
			t.Fatalf("lookup %d: found=%v err=%v", i, found, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("provider called %d times, want 1", n)
	}
}

func TestCached_NegativeVerdictCached(t *testing.T) {
	var calls atomic.Int32
	p := ProviderFunc(func(ctx context.Context, addr string) (bool, error) {
		calls.Add(1)
		return false, nil
	})
	cp := NewCached(p, cache.New(time.Minute, 10), nil)

	cp.LookupByAddress(context.Background(), "a@example.com")
	cp.LookupByAddress(context.Background(), "a@example.com")

	if n := calls.Load(); n != 1 {
		t.Errorf("provider called %d times, want 1", n)
	}
}

func TestCached_ErrorsNotCached(t *testing.T) {
	var calls atomic.Int32
	p := ProviderFunc(func(ctx context.Context, addr string) (bool, error) {
		if calls.Add(1) == 1 {
			return false, errors.New("service down")
		}
		return true, nil
	})
	cp := NewCached(p, cache.New(time.Minute, 10), nil)

	if _, err := cp.LookupByAddress(context.Background(), "a@example.com"); err == nil {
		t.Fatal("expected error on first lookup")
	}
	found, err := cp.LookupByAddress(context.Background(), "a@example.com")
	if err != nil || !found {
		t.Errorf("second lookup: found=%v err=%v", found, err)
	}
	if cp.Cache().Len() != 1 {
		t.Errorf("cache Len = %d, want 1", cp.Cache().Len())
	}
}

func TestCached_ConcurrentLookupsShareCall(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	p := ProviderFunc(func(ctx context.Context, addr string) (bool, error) {
		calls.Add(1)
		<-release
		return true, nil
	})
	cp := NewCached(p, cache.New(time.Minute, 10), nil)

	var wg sync.WaitGroup
	results := make(chan bool, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			found, _ := cp.LookupByAddress(context.Background(), "a@example.com")
			results <- found
		}()
	}
	// Let the goroutines queue up behind the first call.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for found := range results {
		if !found {
			t.Error("a shared lookup returned false")
		}
	}
	if n := calls.Load(); n > 2 {
		t.Errorf("provider called %d times, want calls to be shared", n)
	}
}

func TestCached_ContextDone(t *testing.T) {
	release := make(chan struct{})
	p := ProviderFunc(func(ctx context.Context, addr string) (bool, error) {
		select {
		case <-release:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	})
	cp := NewCached(p, cache.New(time.Minute, 10), nil)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	found, err := cp.LookupByAddress(ctx, "slow@example.com")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if found {
		t.Error("found = true after timeout")
	}
}

func TestCached_SharedCallOutlivesFirstCaller(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	p := ProviderFunc(func(ctx context.Context, addr string) (bool, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	})
	cp := NewCached(p, cache.New(time.Minute, 10), nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := cp.LookupByAddress(ctx, "a@example.com")
		first <- err
	}()
	<-started

	type result struct {
		found bool
		err   error
	}
	second := make(chan result, 1)
	go func() {
		found, err := cp.LookupByAddress(context.Background(), "a@example.com")
		second <- result{found, err}
	}()
	// Let the second lookup join the shared call.
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("first lookup err = %v, want canceled", err)
	}
	close(release)

	r := <-second
	if r.err != nil || !r.found {
		t.Errorf("second lookup: found=%v err=%v", r.found, r.err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("provider called %d times, want 1", n)
	}
}

func TestCached_SharedCallTimeout(t *testing.T) {
	p := ProviderFunc(func(ctx context.Context, addr string) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	})
	cp := NewCached(p, cache.New(time.Minute, 10), nil)
	cp.timeout = 10 * time.Millisecond

	_, err := cp.LookupByAddress(context.Background(), "slow@example.com")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
