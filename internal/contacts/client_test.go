package contacts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newProvider(t *testing.T, h http.HandlerFunc) *HTTPProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	p, err := NewHTTPProvider(srv.URL+"/lookup?source=personal", 5*time.Second, false)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		p.CloseIdleConnections()
		srv.Close()
	})
	return p
}

func TestHTTPProvider_Found(t *testing.T) {
	var gotQuery string
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"Friend"}`))
	})

	found, err := p.LookupByAddress(context.Background(), "friend@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Error("found = false, want true")
	}
	if gotQuery != "address=friend%40example.com&source=personal" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestHTTPProvider_NotFound(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	found, err := p.LookupByAddress(context.Background(), "stranger@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("found = true, want false")
	}
}

func TestHTTPProvider_ServerError(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	found, err := p.LookupByAddress(context.Background(), "a@example.com")
	if err == nil {
		t.Fatal("expected error")
	}
	if found {
		t.Error("found = true on error")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error = %v, want status in message", err)
	}
}

func TestHTTPProvider_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := p.LookupByAddress(ctx, "slow@example.com"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestNewHTTPProvider_InvalidURL(t *testing.T) {
	for _, u := range []string{"ftp://contacts.example", "::bad", ""} {
		if _, err := NewHTTPProvider(u, time.Second, false); err == nil {
			t.Errorf("NewHTTPProvider(%q) succeeded", u)
		}
	}
}
