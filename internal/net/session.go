package net

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Session wraps one websocket connection. Outbound frames go through a
// buffered queue drained by a dedicated writer goroutine; a send on a closed
// session is a silent no-op.
type Session struct {
	ID   string
	conn *websocket.Conn

	out chan []byte

	closeOnce sync.Once
	closed    atomic.Bool
	closeCh   chan struct{}

	log *zap.Logger
}

func NewSession(id string, conn *websocket.Conn, outSize int, log *zap.Logger) *Session {
	return &Session{
		ID:      id,
		conn:    conn,
		out:     make(chan []byte, outSize),
		closeCh: make(chan struct{}),
		log:     log.With(zap.String("conn", id)),
	}
}

// Send marshals a frame and queues it. No-op once the session is closed;
// a full queue disconnects the slow client (backpressure).
func (s *Session) Send(v any) {
	if s.closed.Load() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshal outbound frame", zap.Error(err))
		return
	}
	select {
	case s.out <- data:
	default:
		s.log.Warn("outbound queue full, dropping slow connection")
		s.Close()
	}
}

// Close shuts the session down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
}

// CloseAfter closes the session once the given delay has elapsed, giving the
// writer a chance to drain (used by the takeover forceClose sequence).
func (s *Session) CloseAfter(d time.Duration) {
	time.AfterFunc(d, s.Close)
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// writeLoop drains the outbound queue onto the wire.
func (s *Session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-s.closeCh:
			return
		case <-ctx.Done():
			s.Close()
			return
		case data := <-s.out:
			wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := s.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				if !s.closed.Load() {
					s.log.Debug("write failed", zap.Error(err))
				}
				s.Close()
				return
			}
		}
	}
}

// readLoop feeds inbound frames to the handler in receive order. Returns
// when the peer disconnects or the session is closed.
func (s *Session) readLoop(ctx context.Context, handle func(*Session, []byte)) {
	defer s.Close()
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		handle(s, data)
	}
}
