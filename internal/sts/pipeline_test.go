package sts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPolicy = "version: STSv1\nmode: enforce\nmx: mail.example.com\nmax_age: 86400\n"

// requireFailure asserts that err is a *Failure of the expected kind.
func requireFailure(t *testing.T, err error, kind Kind) {
	t.Helper()

	var failure *Failure
	require.True(t, errors.As(err, &failure), "not a failure: %v", err)
	assert.Equal(t, kind, failure.Kind)
}

func TestNewPolicyRequest(t *testing.T) {
	client := &testClient{}

	_, err := NewPolicyRequest("", client)
	requireFailure(t, err, HostMissing)

	_, err = NewPolicyRequest("not-a-domain", client)
	requireFailure(t, err, HostInvalid)

	req, err := NewPolicyRequest("example.com", client)
	require.NoError(t, err)
	assert.Equal(t, "_mta-sts.example.com", req.RecordName())
	assert.Equal(t, "mta-sts.example.com", req.PolicyHost())

	req, err = NewPolicyRequest("bücher.de", client)
	require.NoError(t, err)
	assert.Equal(t, "bücher.de", req.Host)
	assert.Equal(t, "_mta-sts.xn--bcher-kva.de", req.RecordName())
}

func TestPipelineResolve(t *testing.T) {
	var host string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host = r.Host
		assert.Equal(t, PolicyPath, r.URL.Path)
		w.Write([]byte(testPolicy))
	}))
	defer server.Close()

	var queried []string
	p := newTestPipeline(t, staticResolver([]string{"v=STSv1; id=2019ABC"}, nil, &queried), pinnedFetcher(server))

	req, err := NewPolicyRequest("example.com", &testClient{})
	require.NoError(t, err)

	policy, err := p.Resolve(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, testPolicy, policy)
	assert.Equal(t, []string{"_mta-sts.example.com"}, queried)
	assert.Equal(t, "mta-sts.example.com", host)
	assert.True(t, req.Version)
	assert.Equal(t, "2019ABC", req.ID)
	assert.Empty(t, p.Stats.Snapshot().Failures)
}

func TestPipelineLookupFailures(t *testing.T) {
	cases := map[string]struct {
		records []string
		err     error
	}{
		"lookup error":     {nil, errors.New("resolver: boom")},
		"no records":       {nil, nil},
		"multiple records": {[]string{"v=STSv1; id=1", "v=STSv1; id=2"}, nil},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			p := newTestPipeline(t, staticResolver(c.records, c.err, nil), NewFetcher(FetcherOpts{}))

			req, err := NewPolicyRequest("example.com", &testClient{})
			require.NoError(t, err)

			_, err = p.Resolve(context.Background(), req)
			requireFailure(t, err, TXTMissing)
			assert.Equal(t, int64(1), p.Stats.Snapshot().Failures["EMPTY OR MISSING TXT RECORD"])
		})
	}
}

func TestPipelineValidationFailures(t *testing.T) {
	cases := map[string]struct {
		record string
		kind   Kind
	}{
		"empty":           {"", TXTMalformed},
		"whitespace only": {" \t ", TXTMalformed},
		"missing version": {"id=xyz", TXTInvalid},
		"wrong version":   {"v=STSv2; id=xyz", TXTInvalid},
		"missing id":      {"v=STSv1;", TXTInvalid},
		"empty id":        {"v=STSv1; id=", TXTInvalid},
		"no attributes":   {"garbage", TXTInvalid},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			p := newTestPipeline(t, staticResolver([]string{c.record}, nil, nil), NewFetcher(FetcherOpts{}))

			req, err := NewPolicyRequest("example.com", &testClient{})
			require.NoError(t, err)

			_, err = p.Resolve(context.Background(), req)
			requireFailure(t, err, c.kind)
		})
	}
}

func TestPipelineSkipsFetchForClosedClient(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	p := newTestPipeline(t, staticResolver([]string{"v=STSv1; id=1"}, nil, nil), pinnedFetcher(server))

	client := &testClient{}
	client.destroyed.Store(true)

	req, err := NewPolicyRequest("example.com", client)
	require.NoError(t, err)

	_, err = p.Resolve(context.Background(), req)
	requireFailure(t, err, ClientClosed)
	assert.Equal(t, int32(0), hits.Load())
}

func TestPipelineHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	p := newTestPipeline(t, staticResolver([]string{"v=STSv1; id=1"}, nil, nil), pinnedFetcher(server))

	req, err := NewPolicyRequest("example.com", &testClient{})
	require.NoError(t, err)

	_, err = p.Resolve(context.Background(), req)
	requireFailure(t, err, HTTPFailed)
	assert.Contains(t, err.Error(), "status=404")
	assert.Equal(t, "HTTP LOOKUP FAILED", err.(*Failure).Kind.String())
}

func TestPipelineReportsPlainStageErrorsAsHTTPFailure(t *testing.T) {
	p := newTestPipeline(t, staticResolver(nil, nil, nil), nil)

	req, err := NewPolicyRequest("example.com", &testClient{})
	require.NoError(t, err)

	cause := errors.New("boom")
	stages := []stage{
		{"plain", func(ctx context.Context, req *PolicyRequest) error { return cause }},
		{"unreached", func(ctx context.Context, req *PolicyRequest) error {
			t.Error("stage ran after a failure")
			return nil
		}},
	}

	err = p.run(context.Background(), req, stages)
	requireFailure(t, err, HTTPFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, int64(1), p.Stats.Snapshot().Failures[HTTPFailed.String()])
}

func TestFailureError(t *testing.T) {
	assert.Equal(t, "sts: INVALID TXT RR", (&Failure{Kind: TXTInvalid}).Error())

	cause := errors.New("boom")
	failure := &Failure{Kind: HTTPFailed, Err: cause}
	assert.Equal(t, "sts: HTTP LOOKUP FAILED: err=boom", failure.Error())
	assert.True(t, errors.Is(failure, cause))

	assert.Equal(t, "Kind(99)", Kind(99).String())
}
