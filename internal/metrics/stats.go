package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Stats is a process-wide set of monotonic counters. Counters are never reset; a single instance
// is created at startup and shared by every connection served by a listener.
type Stats struct {
	connections atomic.Int64
	mutex       sync.Mutex
	commands    map[string]int64
	failures    map[string]int64
}

// StatsSnapshot is a point-in-time copy of Stats, suitable for serialization.
type StatsSnapshot struct {
	Connections int64            `json:"connections"`
	Commands    map[string]int64 `json:"commands"`
	Failures    map[string]int64 `json:"failures"`
}

// NewStats creates a zeroed set of counters.
func NewStats() *Stats {
	return &Stats{
		commands: make(map[string]int64),
		failures: make(map[string]int64),
	}
}

// IncConnections records an accepted connection.
func (s *Stats) IncConnections() {
	s.connections.Add(1)
}

// IncCommand records a dispatched command.
func (s *Stats) IncCommand(command string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.commands[command]++
}

// IncFailure records a policy resolution failure of the given kind.
func (s *Stats) IncFailure(kind string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.failures[kind]++
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	snapshot := StatsSnapshot{
		Connections: s.connections.Load(),
		Commands:    make(map[string]int64, len(s.commands)),
		Failures:    make(map[string]int64, len(s.failures)),
	}

	for command, count := range s.commands {
		snapshot.Commands[command] = count
	}
	for kind, count := range s.failures {
		snapshot.Failures[kind] = count
	}

	return snapshot
}

// JSON serializes a snapshot of the counters on a single line.
func (s *Stats) JSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}
