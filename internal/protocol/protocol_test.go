package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtastsd/internal/log"
	"mtastsd/internal/metrics"
	"mtastsd/internal/network"
	"mtastsd/internal/resolver"
	"mtastsd/internal/sts"
)

// harness runs a Handler on one end of an in-memory pipe and talks to it from the other.
type harness struct {
	client net.Conn
	reader *bufio.Reader
	done   chan error
}

func newHarness(t *testing.T, r PolicyResolver, maxLineLength int) *harness {
	t.Helper()

	server, client := net.Pipe()
	logger := log.NewConsoleLogger(log.Error)
	stats := metrics.NewStats()

	dispatcher := &Dispatcher{
		Resolver: r,
		Stats:    stats,
		Hook:     metrics.NewNoopCommandHook(),
		Logger:   logger,
		Version:  "mtastsd/1.0.0",
	}
	handler := &Handler{
		Dispatcher:    dispatcher,
		Stats:         stats,
		Logger:        logger,
		MaxLineLength: maxLineLength,
	}

	ctx := context.WithValue(context.Background(), network.ConnectionIDContextKey, "00000001")
	done := make(chan error, 1)
	go func() {
		done <- handler.Handle(ctx, server)
	}()
	t.Cleanup(func() { client.Close() })

	return &harness{
		client: client,
		reader: bufio.NewReader(client),
		done:   done,
	}
}

func (h *harness) send(t *testing.T, data string) {
	t.Helper()

	_, err := h.client.Write([]byte(data))
	require.NoError(t, err)
}

func (h *harness) readLine(t *testing.T) string {
	t.Helper()

	require.NoError(t, h.client.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := h.reader.ReadString('\n')
	require.NoError(t, err)

	return line
}

func (h *harness) requireClosed(t *testing.T) {
	t.Helper()

	require.NoError(t, h.client.SetReadDeadline(time.Now().Add(5*time.Second)))
	rest, err := h.reader.ReadString('\n')
	assert.Equal(t, "", rest)
	assert.ErrorIs(t, err, io.EOF)
}

// awaitHandler waits for Handle to return, which happens once every resolution it started is over.
func (h *harness) awaitHandler(t *testing.T) error {
	t.Helper()

	select {
	case err := <-h.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return")
		return nil
	}
}

// resolverFunc adapts a function to PolicyResolver.
type resolverFunc func(ctx context.Context, req *sts.PolicyRequest) (string, error)

func (f resolverFunc) Resolve(ctx context.Context, req *sts.PolicyRequest) (string, error) {
	return f(ctx, req)
}

// unreachable fails the test if a policy resolution is attempted.
func unreachable(t *testing.T) PolicyResolver {
	return resolverFunc(func(ctx context.Context, req *sts.PolicyRequest) (string, error) {
		t.Errorf("unexpected resolution of %s", req.Host)
		return "", nil
	})
}

func TestVersion(t *testing.T) {
	h := newHarness(t, unreachable(t), 0)

	h.send(t, "VERSION\r\n")
	assert.Equal(t, "+mtastsd/1.0.0\r\n", h.readLine(t))

	h.send(t, "version\n")
	assert.Equal(t, "+mtastsd/1.0.0\r\n", h.readLine(t))
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t, unreachable(t), 0)

	for _, line := range []string{"HELO example.com\r\n", "\r\n", "   \n", "STSX example.com\r\n"} {
		h.send(t, line)
		assert.Equal(t, "-UNKNOWN COMMAND\r\n", h.readLine(t), line)
	}

	// The connection is still usable.
	h.send(t, "VERSION\r\n")
	assert.Equal(t, "+mtastsd/1.0.0\r\n", h.readLine(t))
}

func TestSTSHostValidation(t *testing.T) {
	h := newHarness(t, unreachable(t), 0)

	cases := map[string]string{
		"STS\r\n":                   "-HOST MISSING\r\n",
		"STS   \r\n":                "-HOST MISSING\r\n",
		"sts\n":                     "-HOST MISSING\r\n",
		"STS not-a-domain\r\n":      "-HOST INVALID\r\n",
		"STS example.com.\r\n":      "-HOST INVALID\r\n",
		"STS foo_bar.example.com\n": "-HOST INVALID\r\n",
	}

	for line, reply := range cases {
		h.send(t, line)
		assert.Equal(t, reply, h.readLine(t), line)
	}
}

func TestSTSSuccessForwardsBodyUnmodified(t *testing.T) {
	policy := "version: STSv1\nmode: enforce\nmx: mail.example.com\nmax_age: 604800\n"
	h := newHarness(t, resolverFunc(func(ctx context.Context, req *sts.PolicyRequest) (string, error) {
		assert.Equal(t, "example.com", req.Host)
		return policy, nil
	}), 0)

	h.send(t, "STS example.com\r\n")

	expected := "+" + policy + "\r\n"
	buf := make([]byte, len(expected))
	require.NoError(t, h.client.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := io.ReadFull(h.reader, buf)
	require.NoError(t, err)
	assert.Equal(t, expected, string(buf))
}

func TestSTSFailureReply(t *testing.T) {
	h := newHarness(t, resolverFunc(func(ctx context.Context, req *sts.PolicyRequest) (string, error) {
		return "", &sts.Failure{Kind: sts.TXTInvalid}
	}), 0)

	h.send(t, "STS example.com\r\n")
	assert.Equal(t, "-INVALID TXT RR\r\n", h.readLine(t))
}

func TestStats(t *testing.T) {
	h := newHarness(t, unreachable(t), 0)

	h.send(t, "VERSION\r\n")
	h.readLine(t)
	h.send(t, "BOGUS\r\n")
	h.readLine(t)
	h.send(t, "STATS\r\n")

	line := h.readLine(t)
	require.True(t, strings.HasPrefix(line, "+"))
	require.True(t, strings.HasSuffix(line, "\r\n"))

	var snapshot metrics.StatsSnapshot
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(line[1:], "\r\n")), &snapshot))
	assert.Equal(t, int64(1), snapshot.Connections)
	assert.Equal(t, map[string]int64{"VERSION": 1, "UNKNOWN": 1, "STATS": 1}, snapshot.Commands)
}

func TestQuit(t *testing.T) {
	h := newHarness(t, unreachable(t), 0)

	h.send(t, "quit\r\n")
	assert.Equal(t, "+BYE\r\n", h.readLine(t))
	h.requireClosed(t)

	assert.NoError(t, <-h.done)
}

// Every line of a chunk is dispatched, in order, until QUIT.
func TestMultipleLinesInOneChunk(t *testing.T) {
	h := newHarness(t, unreachable(t), 0)

	h.send(t, "VERSION\r\nNOPE\nQUIT\r\nVERSION\r\n")

	assert.Equal(t, "+mtastsd/1.0.0\r\n", h.readLine(t))
	assert.Equal(t, "-UNKNOWN COMMAND\r\n", h.readLine(t))
	assert.Equal(t, "+BYE\r\n", h.readLine(t))
	h.requireClosed(t)
}

// A QUIT issued while the policy fetch is in progress closes the connection, and the late policy
// is never written.
func TestQuitDuringPolicyFetch(t *testing.T) {
	arrived := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(arrived)
		<-release
		w.Write([]byte("version: STSv1\n"))
	}))
	defer server.Close()

	addr := server.Listener.Addr().String()
	dialer := &net.Dialer{}
	pipeline := &sts.Pipeline{
		Resolver: resolver.TXTResolverFunc(func(ctx context.Context, name string) ([]string, error) {
			return []string{"v=STSv1; id=1"}, nil
		}),
		Fetcher: sts.NewFetcher(sts.FetcherOpts{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
					return dialer.DialContext(ctx, network, addr)
				},
			},
		}),
		Hook:   metrics.NewNoopPipelineHook(),
		Stats:  metrics.NewStats(),
		Logger: log.NewConsoleLogger(log.Error),
	}

	h := newHarness(t, pipeline, 0)

	h.send(t, "STS example.com\r\n")
	select {
	case <-arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("policy fetch did not start")
	}

	h.send(t, "QUIT\r\n")
	assert.Equal(t, "+BYE\r\n", h.readLine(t))

	close(release)
	h.requireClosed(t)
	require.NoError(t, h.awaitHandler(t))
}

// A QUIT issued during the DNS lookup means the policy is never fetched.
func TestQuitDuringLookupSkipsFetch(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var fetched atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetched.Store(true)
	}))
	defer server.Close()

	pipeline := &sts.Pipeline{
		Resolver: resolver.TXTResolverFunc(func(ctx context.Context, name string) ([]string, error) {
			close(started)
			<-release
			return []string{"v=STSv1; id=1"}, nil
		}),
		Fetcher: sts.NewFetcher(sts.FetcherOpts{}),
		Hook:    metrics.NewNoopPipelineHook(),
		Stats:   metrics.NewStats(),
		Logger:  log.NewConsoleLogger(log.Error),
	}

	h := newHarness(t, pipeline, 0)

	h.send(t, "STS example.com\r\n")
	<-started
	h.send(t, "QUIT\r\n")
	assert.Equal(t, "+BYE\r\n", h.readLine(t))

	close(release)
	h.requireClosed(t)
	require.NoError(t, h.awaitHandler(t))
	assert.False(t, fetched.Load())
	assert.Equal(t, int64(1), pipeline.Stats.Snapshot().Failures["CLIENT CONNECTION CLOSED"])
}

func TestClientDisconnect(t *testing.T) {
	h := newHarness(t, unreachable(t), 0)

	h.send(t, "VERSION\r\n")
	h.readLine(t)
	require.NoError(t, h.client.Close())

	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return after disconnect")
	}
}

// A read error ends the session with a goodbye.
func TestLineTooLong(t *testing.T) {
	h := newHarness(t, unreachable(t), 16)

	go h.client.Write([]byte(strings.Repeat("A", 64)))

	assert.Equal(t, "+BYE\r\n", h.readLine(t))

	select {
	case err := <-h.done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "handler: error reading from client: id=00000001")
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return after read error")
	}
}

func TestConsumeErrorLogs(t *testing.T) {
	var out strings.Builder
	handler := &Handler{Logger: log.NewWriterLogger(log.Error, &out)}

	ctx := context.WithValue(context.Background(), network.ConnectionIDContextKey, "00000042")
	handler.ConsumeError(ctx, io.ErrUnexpectedEOF)

	assert.Contains(t, out.String(), "ERROR")
	assert.Contains(t, out.String(), io.ErrUnexpectedEOF.Error())
}
