//go:generate go run golang.org/x/tools/cmd/stringer -type=LoadBalancingPolicy

package resolver

import (
	"math/rand"
	"strings"
	"sync"
)

// LoadBalancingPolicy formalizes the order in which nameservers are tried for a single query.
type LoadBalancingPolicy int

const (
	// RoundRobin statefully rotates the first nameserver tried on every query.
	RoundRobin LoadBalancingPolicy = iota
	// Random tries nameservers in a random order.
	Random
	// Failover tries nameservers in configured order, only moving on to secondary nameservers
	// when the primary fails.
	Failover
)

// selector produces the attempt order of nameservers for each query.
type selector interface {
	order() []string
}

// roundRobinSelector starts each query at the next nameserver in the list.
type roundRobinSelector struct {
	servers []string
	idx     int
	mutex   sync.Mutex
}

// randomSelector tries nameservers in a shuffled order.
type randomSelector struct {
	servers []string
}

// failoverSelector always tries nameservers in configured order.
type failoverSelector struct {
	servers []string
}

// newSelector creates the selector for a load balancing policy. Unknown policies fall back to
// round robin.
func newSelector(servers []string, policy LoadBalancingPolicy) selector {
	switch policy {
	case Random:
		return &randomSelector{servers}
	case Failover:
		return &failoverSelector{servers}
	default:
		return &roundRobinSelector{servers: servers}
	}
}

func (s *roundRobinSelector) order() []string {
	s.mutex.Lock()
	start := s.idx
	s.idx = (s.idx + 1) % len(s.servers)
	s.mutex.Unlock()

	ordered := make([]string, 0, len(s.servers))
	for i := range s.servers {
		ordered = append(ordered, s.servers[(start+i)%len(s.servers)])
	}

	return ordered
}

func (s *randomSelector) order() []string {
	ordered := make([]string, len(s.servers))
	for i, j := range rand.Perm(len(s.servers)) {
		ordered[i] = s.servers[j]
	}

	return ordered
}

func (s *failoverSelector) order() []string {
	return s.servers
}

// ParseLoadBalancingPolicy parses a LoadBalancingPolicy constant from its stringified
// representation in a case-insensitive manner.
func ParseLoadBalancingPolicy(lbPolicy string) (LoadBalancingPolicy, bool) {
	knownLbPolicies := []LoadBalancingPolicy{
		RoundRobin,
		Random,
		Failover,
	}

	for _, knownLbPolicy := range knownLbPolicies {
		if strings.EqualFold(lbPolicy, knownLbPolicy.String()) {
			return knownLbPolicy, true
		}
	}

	return RoundRobin, false
}
