package metrics

import (
	"net"
	"time"
)

// MultiConnectionLifecycleHook fans out every emission to several ConnectionLifecycleHooks.
type MultiConnectionLifecycleHook []ConnectionLifecycleHook

// MultiCommandHook fans out every emission to several CommandHooks.
type MultiCommandHook []CommandHook

// MultiPipelineHook fans out every emission to several PipelineHooks.
type MultiPipelineHook []PipelineHook

// EmitConnectionOpen forwards to all hooks.
func (m MultiConnectionLifecycleHook) EmitConnectionOpen(addr net.Addr) {
	for _, hook := range m {
		hook.EmitConnectionOpen(addr)
	}
}

// EmitConnectionClose forwards to all hooks.
func (m MultiConnectionLifecycleHook) EmitConnectionClose(addr net.Addr) {
	for _, hook := range m {
		hook.EmitConnectionClose(addr)
	}
}

// EmitConnectionError forwards to all hooks.
func (m MultiConnectionLifecycleHook) EmitConnectionError() {
	for _, hook := range m {
		hook.EmitConnectionError()
	}
}

// EmitCommand forwards to all hooks.
func (m MultiCommandHook) EmitCommand(command string, addr net.Addr) {
	for _, hook := range m {
		hook.EmitCommand(command, addr)
	}
}

// EmitStageLatency forwards to all hooks.
func (m MultiPipelineHook) EmitStageLatency(stage string, latency time.Duration) {
	for _, hook := range m {
		hook.EmitStageLatency(stage, latency)
	}
}

// EmitFailure forwards to all hooks.
func (m MultiPipelineHook) EmitFailure(kind string) {
	for _, hook := range m {
		hook.EmitFailure(kind)
	}
}

// EmitSuccess forwards to all hooks.
func (m MultiPipelineHook) EmitSuccess(latency time.Duration) {
	for _, hook := range m {
		hook.EmitSuccess(latency)
	}
}
