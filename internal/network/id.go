package network

import (
	"fmt"
	"sync/atomic"
)

// IDSource issues monotonically increasing connection identifiers, used to correlate log lines
// belonging to the same client. The first identifier issued is 00000001.
type IDSource struct {
	last atomic.Uint64
}

// NewIDSource creates an identifier source starting from zero.
func NewIDSource() *IDSource {
	return &IDSource{}
}

// Next returns the next identifier, zero-padded to 8 digits.
func (s *IDSource) Next() string {
	return fmt.Sprintf("%08d", s.last.Add(1))
}
