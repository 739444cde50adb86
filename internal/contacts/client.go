// Package contacts answers whether an address is in the user's address
// book. The HTTP provider asks an external contacts service; Cached keeps
// recent answers.
package contacts

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Provider looks an address up in an address book.
type Provider interface {
	LookupByAddress(ctx context.Context, addr string) (bool, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, addr string) (bool, error)

func (f ProviderFunc) LookupByAddress(ctx context.Context, addr string) (bool, error) {
	return f(ctx, addr)
}

// maxBody bounds how much of a response is drained.
const maxBody = 64 * 1024

// HTTPProvider queries a contacts service with GET <base>?address=<addr>.
// 200 means found, 404 means not found; anything else is an error.
type HTTPProvider struct {
	httpClient *http.Client
	base       *url.URL
}

// NewHTTPProvider creates a provider for the service at baseURL.
func NewHTTPProvider(baseURL string, timeout time.Duration, tlsSkipVerify bool) (*HTTPProvider, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse contacts url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("contacts url %q: scheme must be http or https", baseURL)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if tlsSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
	}

	return &HTTPProvider{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		base: u,
	}, nil
}

// LookupByAddress implements Provider. No credentials from the browser
// request are forwarded.
func (p *HTTPProvider) LookupByAddress(ctx context.Context, addr string) (bool, error) {
	u := *p.base
	q := u.Query()
	q.Set("address", addr)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("contacts lookup: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("contacts lookup: unexpected status %d", resp.StatusCode)
}

// CloseIdleConnections closes idle keep-alive connections to the service.
func (p *HTTPProvider) CloseIdleConnections() {
	p.httpClient.CloseIdleConnections()
}
