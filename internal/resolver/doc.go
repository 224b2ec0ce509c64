// Package resolver performs the DNS TXT lookups behind policy discovery. Queries are sent directly
// to a set of recursive nameservers, selected per query by a load balancing policy.
package resolver
