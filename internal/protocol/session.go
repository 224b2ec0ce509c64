package protocol

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"mtastsd/internal/log"
)

const crlf = "\r\n"

// Session is a client connection as seen by the protocol. Replies may be written from several
// goroutines; once the session is destroyed, every write is silently dropped.
type Session struct {
	id        string
	conn      net.Conn
	logger    log.Logger
	destroyed atomic.Bool
	mutex     sync.Mutex
	inflight  sync.WaitGroup
}

// NewSession wraps conn, identified by id.
func NewSession(id string, conn net.Conn, logger log.Logger) *Session {
	return &Session{id: id, conn: conn, logger: logger}
}

// ID returns the connection identifier.
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the client address.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Destroyed reports whether the session has been torn down.
func (s *Session) Destroyed() bool {
	return s.destroyed.Load()
}

// Destroy closes the connection. It is safe to call more than once.
func (s *Session) Destroy() {
	if s.destroyed.Swap(true) {
		return
	}

	if err := s.conn.Close(); err != nil {
		s.logger.Debug("session: error closing connection: id=%s err=%v", s.id, err)
	}
}

// Send writes payload as-is, unless the session is destroyed. A failed write destroys the session.
func (s *Session) Send(payload string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.write(payload)
}

// SendFinal writes a success reply and destroys the session without releasing the write lock in
// between, so that no other reply can follow it.
func (s *Session) SendFinal(payload string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.write(okReply(payload))
	s.Destroy()
}

// SendOK writes a success reply. CRLF is appended unless payload already ends with it.
func (s *Session) SendOK(payload string) {
	s.Send(okReply(payload))
}

// SendError writes an error reply.
func (s *Session) SendError(message string) {
	s.Send(fmt.Sprintf("-%s%s", message, crlf))
}

// spawn runs fn in the background as work owned by the session.
func (s *Session) spawn(fn func()) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		fn()
	}()
}

// wait blocks until all work started with spawn has returned.
func (s *Session) wait() {
	s.inflight.Wait()
}

// write must be called with the mutex held.
func (s *Session) write(payload string) {
	if s.Destroyed() {
		s.logger.Debug("session: dropping reply to destroyed connection: id=%s bytes=%d", s.id, len(payload))
		return
	}

	if _, err := s.conn.Write([]byte(payload)); err != nil {
		s.logger.Warn("session: error writing reply: id=%s err=%v", s.id, err)
		s.Destroy()
	}
}

func okReply(payload string) string {
	if !strings.HasSuffix(payload, crlf) {
		payload += crlf
	}

	return "+" + payload
}
