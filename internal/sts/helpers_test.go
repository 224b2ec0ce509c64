package sts

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"mtastsd/internal/log"
	"mtastsd/internal/metrics"
	"mtastsd/internal/resolver"
)

// testClient is a Client whose liveness is controlled by the test.
type testClient struct {
	destroyed atomic.Bool
}

func (c *testClient) ID() string {
	return "00000042"
}

func (c *testClient) Destroyed() bool {
	return c.destroyed.Load()
}

// staticResolver answers every lookup with the same records, and remembers the queried names.
func staticResolver(records []string, err error, queried *[]string) resolver.TXTResolver {
	return resolver.TXTResolverFunc(func(ctx context.Context, name string) ([]string, error) {
		if queried != nil {
			*queried = append(*queried, name)
		}
		return records, err
	})
}

// pinnedFetcher returns a Fetcher whose connections all go to server, whatever the policy host.
func pinnedFetcher(server *httptest.Server) *Fetcher {
	addr := server.Listener.Addr().String()
	dialer := &net.Dialer{}

	return NewFetcher(FetcherOpts{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
		},
	})
}

func newTestPipeline(t *testing.T, r resolver.TXTResolver, f *Fetcher) *Pipeline {
	t.Helper()

	return &Pipeline{
		Resolver: r,
		Fetcher:  f,
		Hook:     metrics.NewNoopPipelineHook(),
		Stats:    metrics.NewStats(),
		Logger:   log.NewConsoleLogger(log.Error),
	}
}
