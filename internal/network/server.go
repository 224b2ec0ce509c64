package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"mtastsd/internal/metrics"
)

// contextKey is a type alias for context keys passed to server handlers.
type contextKey int

// ServerHandler is a common interface that wraps logic for handling incoming connections.
type ServerHandler interface {
	// Handle describes the routine to run when the server establishes a successful connection
	// with a client. The passed conn is a net.Conn-implementing TCPConn. The connection is
	// closed by the server after Handle returns.
	Handle(ctx context.Context, conn net.Conn) error

	// ConsumeError is a callback invoked when the server fails to establish a connection with a
	// client, or when the handler returns an error.
	ConsumeError(ctx context.Context, err error)
}

// TCPServer describes a server that listens on a TCP address.
type TCPServer struct {
	addr   string
	ids    *IDSource
	cxHook metrics.ConnectionLifecycleHook
	opts   TCPServerOpts
}

// TCPServerOpts formalizes TCP server configuration options.
type TCPServerOpts struct {
	// ReadTimeout is the maximum amount of time the server will wait to read from a client
	// after it has established a connection with the server, after which the server will
	// consider the read to have failed. Zero waits indefinitely.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum amount of time the server is allowed to take to write to a
	// client, after which the server will consider the write to have failed. Zero waits
	// indefinitely.
	WriteTimeout time.Duration
}

const (
	// ConnectionIDContextKey is the name of the context key holding the identifier assigned to
	// the connection at accept time.
	ConnectionIDContextKey contextKey = iota
)

// NewTCPServer creates a TCP server listening on the specified address. Connection identifiers are
// drawn from ids.
func NewTCPServer(addr string, ids *IDSource, cxHook metrics.ConnectionLifecycleHook, opts TCPServerOpts) *TCPServer {
	return &TCPServer{addr, ids, cxHook, opts}
}

// ConnectionID extracts the connection identifier from a handler context, or the empty string if
// absent.
func ConnectionID(ctx context.Context) string {
	id, _ := ctx.Value(ConnectionIDContextKey).(string)
	return id
}

// ListenAndServe starts listening on the TCP address with which the server was configured and
// indefinitely serves connections using the specified handler. It returns an error if it fails to
// bind to the initialized address.
func (s *TCPServer) ListenAndServe(handler ServerHandler) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: failed to listen on TCP socket: err=%w", err)
	}

	return s.Serve(ln, handler)
}

// Serve accepts connections on an existing listener until it is closed.
func (s *TCPServer) Serve(ln net.Listener, handler ServerHandler) error {
	for {
		conn, err := ln.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			s.cxHook.EmitConnectionError()
			handler.ConsumeError(context.Background(), err)
			continue
		}

		ctx := context.WithValue(context.Background(), ConnectionIDContextKey, s.ids.Next())
		tcpConn := NewTCPConn(conn, s.opts.ReadTimeout, s.opts.WriteTimeout)
		s.cxHook.EmitConnectionOpen(tcpConn.RemoteAddr())

		go func() {
			defer func() {
				s.cxHook.EmitConnectionClose(tcpConn.RemoteAddr())
				tcpConn.Close()
			}()

			if err := handler.Handle(ctx, tcpConn); err != nil {
				handler.ConsumeError(ctx, err)
			}
		}()
	}
}
