package sts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PolicyPath is the well-known location of the policy document on the policy host.
const PolicyPath = "/.well-known/mta-sts.txt"

// Fetcher retrieves policy documents over HTTP.
type Fetcher struct {
	client *http.Client
	scheme string
}

// FetcherOpts formalizes policy fetcher configuration options.
type FetcherOpts struct {
	// Scheme is the URL scheme used to reach the policy host. Defaults to http.
	Scheme string
	// Timeout bounds a whole fetch. Zero relies on the platform defaults.
	Timeout time.Duration
	// Transport overrides the HTTP transport, e.g. to pin the policy host to a fixed address.
	Transport http.RoundTripper
}

// NewFetcher creates a fetcher that never follows redirects.
func NewFetcher(opts FetcherOpts) *Fetcher {
	scheme := opts.Scheme
	if scheme == "" {
		scheme = "http"
	}

	return &Fetcher{
		client: &http.Client{
			Transport: opts.Transport,
			Timeout:   opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		scheme: scheme,
	}
}

// URL returns the location of the policy document served by host.
func (f *Fetcher) URL(host string) string {
	return fmt.Sprintf("%s://%s%s", f.scheme, host, PolicyPath)
}

// Fetch performs a single GET of the policy document served by host and returns its body
// unmodified. Any status outside [200, 300) is an error, including redirects.
func (f *Fetcher) Fetch(ctx context.Context, host string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(host), nil)
	if err != nil {
		return "", fmt.Errorf("fetch: error creating request: err=%v", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: request failed: err=%w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("fetch: empty response")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch: unexpected status: status=%d", resp.StatusCode)
	}

	if resp.Body == nil {
		return "", nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fetch: error reading body: err=%w", err)
	}

	return string(body), nil
}
