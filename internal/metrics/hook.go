package metrics

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// ConnectionLifecycleHook is a metrics hook interface for reporting events that occur during a
// client TCP connection lifecycle.
type ConnectionLifecycleHook interface {
	// EmitConnectionOpen reports the event that a connection was successfully opened.
	EmitConnectionOpen(addr net.Addr)

	// EmitConnectionClose reports the event that a connection was closed.
	EmitConnectionClose(addr net.Addr)

	// EmitConnectionError reports occurrence of an error establishing a connection.
	EmitConnectionError()
}

// CommandHook is a metrics hook interface for reporting commands dispatched on a connection.
type CommandHook interface {
	// EmitCommand reports that a command was dispatched. Unrecognized commands are reported
	// under a single catch-all name.
	EmitCommand(command string, addr net.Addr)
}

// PipelineHook is a metrics hook interface for reporting events and latencies of the policy
// resolution pipeline.
type PipelineHook interface {
	// EmitStageLatency reports the time taken by a single pipeline stage.
	EmitStageLatency(stage string, latency time.Duration)

	// EmitFailure reports that a pipeline run terminated with a failure of the given kind.
	EmitFailure(kind string)

	// EmitSuccess reports the end-to-end latency of a successful pipeline run.
	EmitSuccess(latency time.Duration)
}

// AsyncStatsdConnectionLifecycleHook is an implementation of ConnectionLifecycleHook that outputs
// metrics asynchronously to statsd.
type AsyncStatsdConnectionLifecycleHook struct {
	client *StatsdClient
	source string
}

// AsyncStatsdCommandHook is an implementation of CommandHook that outputs metrics asynchronously to
// statsd.
type AsyncStatsdCommandHook struct {
	client *StatsdClient
}

// AsyncStatsdPipelineHook is an implementation of PipelineHook that outputs metrics asynchronously
// to statsd.
type AsyncStatsdPipelineHook struct {
	client *StatsdClient
}

// NoopConnectionLifecycleHook implements the ConnectionLifecycleHook interface but noops on all
// emissions.
type NoopConnectionLifecycleHook struct{}

// NoopCommandHook implements the CommandHook interface but noops on all emissions.
type NoopCommandHook struct{}

// NoopPipelineHook implements the PipelineHook interface but noops on all emissions.
type NoopPipelineHook struct{}

// NewAsyncStatsdConnectionLifecycleHook creates a new client with the specified source, statsd
// address, and statsd sample rate. The source denotes the entity with whom the server is opening
// and closing TCP connections.
func NewAsyncStatsdConnectionLifecycleHook(source string, addr string, sampleRate float32) (ConnectionLifecycleHook, error) {
	client, err := statsdClientFactory(addr, sampleRate)
	if err != nil {
		return nil, err
	}

	return &AsyncStatsdConnectionLifecycleHook{
		client: client,
		source: source,
	}, nil
}

// EmitConnectionOpen statsd implementation
func (h *AsyncStatsdConnectionLifecycleHook) EmitConnectionOpen(addr net.Addr) {
	go h.client.Count(fmt.Sprintf("event.%s.cx_open", h.source), 1, map[string]string{
		"addr": ipFromAddr(addr),
	})
}

// EmitConnectionClose statsd implementation
func (h *AsyncStatsdConnectionLifecycleHook) EmitConnectionClose(addr net.Addr) {
	go h.client.Count(fmt.Sprintf("event.%s.cx_close", h.source), 1, map[string]string{
		"addr": ipFromAddr(addr),
	})
}

// EmitConnectionError statsd implementation
func (h *AsyncStatsdConnectionLifecycleHook) EmitConnectionError() {
	go h.client.Count(fmt.Sprintf("event.%s.cx_error", h.source), 1, nil)
}

// NewNoopConnectionLifecycleHook creates a noop implementation of ConnectionLifecycleHook.
func NewNoopConnectionLifecycleHook() ConnectionLifecycleHook {
	return &NoopConnectionLifecycleHook{}
}

// EmitConnectionOpen noops.
func (h *NoopConnectionLifecycleHook) EmitConnectionOpen(addr net.Addr) {}

// EmitConnectionClose noops.
func (h *NoopConnectionLifecycleHook) EmitConnectionClose(addr net.Addr) {}

// EmitConnectionError noops.
func (h *NoopConnectionLifecycleHook) EmitConnectionError() {}

// NewAsyncStatsdCommandHook creates a new client with the specified statsd address and sample rate.
func NewAsyncStatsdCommandHook(addr string, sampleRate float32) (CommandHook, error) {
	client, err := statsdClientFactory(addr, sampleRate)
	if err != nil {
		return nil, err
	}

	return &AsyncStatsdCommandHook{client}, nil
}

// EmitCommand statsd implementation.
func (h *AsyncStatsdCommandHook) EmitCommand(command string, addr net.Addr) {
	go h.client.Count(fmt.Sprintf("event.command.%s", strings.ToLower(command)), 1, map[string]string{
		"addr": ipFromAddr(addr),
	})
}

// NewNoopCommandHook creates a noop implementation of CommandHook.
func NewNoopCommandHook() CommandHook {
	return &NoopCommandHook{}
}

// EmitCommand noops.
func (h *NoopCommandHook) EmitCommand(command string, addr net.Addr) {}

// NewAsyncStatsdPipelineHook creates a new client with the specified statsd address and sample
// rate.
func NewAsyncStatsdPipelineHook(addr string, sampleRate float32) (PipelineHook, error) {
	client, err := statsdClientFactory(addr, sampleRate)
	if err != nil {
		return nil, err
	}

	return &AsyncStatsdPipelineHook{client}, nil
}

// EmitStageLatency statsd implementation
func (h *AsyncStatsdPipelineHook) EmitStageLatency(stage string, latency time.Duration) {
	go h.client.Timing(fmt.Sprintf("latency.pipeline.%s", stage), latency, nil)
}

// EmitFailure statsd implementation
func (h *AsyncStatsdPipelineHook) EmitFailure(kind string) {
	go h.client.Count("event.pipeline.failure", 1, map[string]string{
		"kind": kind,
	})
}

// EmitSuccess statsd implementation
func (h *AsyncStatsdPipelineHook) EmitSuccess(latency time.Duration) {
	go func() {
		h.client.Count("event.pipeline.success", 1, nil)
		h.client.Timing("latency.pipeline.total", latency, nil)
	}()
}

// NewNoopPipelineHook creates a noop implementation of PipelineHook.
func NewNoopPipelineHook() PipelineHook {
	return &NoopPipelineHook{}
}

// EmitStageLatency noops.
func (h *NoopPipelineHook) EmitStageLatency(stage string, latency time.Duration) {}

// EmitFailure noops.
func (h *NoopPipelineHook) EmitFailure(kind string) {}

// EmitSuccess noops.
func (h *NoopPipelineHook) EmitSuccess(latency time.Duration) {}

// statsdClientFactory creates a configured StatsdClient with reasonable defaults for the given
// statsd server address and sample rate.
func statsdClientFactory(addr string, sampleRate float32) (*StatsdClient, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, err
	}

	defaultTags := map[string]string{
		"host": hostname,
	}

	return NewStatsdClient(addr, "mtastsd", defaultTags, sampleRate)
}

// ipFromAddr returns the IP address from a full net.Addr, or null if unavailable.
func ipFromAddr(addr net.Addr) string {
	switch networkAddr := addr.(type) {
	case *net.TCPAddr:
		return networkAddr.IP.String()
	default:
		return "null"
	}
}
