// Package network contains the TCP listener and connection abstractions used to serve clients. It
// assigns each accepted connection a correlation identifier and hands it to a ServerHandler, which
// owns the connection's protocol semantics.
package network
