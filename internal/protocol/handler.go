package protocol

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"github.com/getsentry/raven-go"

	"mtastsd/internal/log"
	"mtastsd/internal/metrics"
	"mtastsd/internal/network"
)

// DefaultMaxLineLength is the longest command line accepted when none is configured.
const DefaultMaxLineLength = 64 * 1024

// Handler is the network.ServerHandler serving the command protocol. Each connection is read line
// by line, and every line is dispatched in order of arrival.
type Handler struct {
	Dispatcher *Dispatcher
	Stats      *metrics.Stats
	Logger     log.Logger
	// MaxLineLength bounds the size of a single command line. Longer lines end the session.
	MaxLineLength int
}

// ConsumeError logs the error and reports it to Sentry.
func (h *Handler) ConsumeError(ctx context.Context, err error) {
	h.Logger.Error("%v", err)

	raven.CaptureError(err, map[string]string{
		"connection": network.ConnectionID(ctx),
	})
}

// Handle serves a single client until it quits, disconnects, or fails. The connection is closed
// as soon as reading stops, but Handle only returns once the policy resolutions it started have
// finished; their replies are dropped.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) error {
	session := NewSession(network.ConnectionID(ctx), conn, h.Logger)
	defer session.wait()
	defer session.Destroy()

	h.Stats.IncConnections()
	h.Logger.Info("handler: client connected: id=%s addr=%v", session.ID(), conn.RemoteAddr())

	maxLineLength := h.MaxLineLength
	if maxLineLength <= 0 {
		maxLineLength = DefaultMaxLineLength
	}

	initialBufferSize := 4096
	if maxLineLength < initialBufferSize {
		initialBufferSize = maxLineLength
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, initialBufferSize), maxLineLength)

	for scanner.Scan() {
		if session.Destroyed() {
			break
		}

		if quit := h.Dispatcher.Dispatch(ctx, session, scanner.Text()); quit {
			h.Logger.Info("handler: client quit: id=%s", session.ID())
			return nil
		}
	}

	if err := scanner.Err(); err != nil && !session.Destroyed() {
		h.Logger.Warn("handler: read error; closing connection: id=%s err=%v", session.ID(), err)
		session.SendFinal("BYE")

		return fmt.Errorf("handler: error reading from client: id=%s err=%w", session.ID(), err)
	}

	h.Logger.Info("handler: client disconnected: id=%s", session.ID())

	return nil
}
