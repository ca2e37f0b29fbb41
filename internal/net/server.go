package net

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FrameHandler processes one inbound frame from a session.
type FrameHandler func(sess *Session, frame []byte)

// DisconnectHandler runs after a session's read loop exits.
type DisconnectHandler func(sess *Session)

// Server upgrades HTTP requests to websocket sessions and runs their I/O
// loops. Game semantics live entirely in the handlers it is given.
type Server struct {
	httpSrv      *http.Server
	outSize      int
	onFrame      FrameHandler
	onDisconnect DisconnectHandler
	log          *zap.Logger
}

func NewServer(port, outSize int, onFrame FrameHandler, onDisconnect DisconnectHandler, log *zap.Logger) *Server {
	s := &Server{
		outSize:      outSize,
		onFrame:      onFrame,
		onDisconnect: onDisconnect,
		log:          log,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/ws", s.handleWS)

	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
	return s
}

// ListenAndServe blocks until the server shuts down.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", zap.String("addr", s.httpSrv.Addr))
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin checks are the reverse proxy's job
	})
	if err != nil {
		s.log.Debug("websocket accept failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	sess := NewSession(id, conn, s.outSize, s.log)
	s.log.Info("client connected", zap.String("conn", id), zap.String("ip", r.RemoteAddr))

	ctx, cancel := context.WithCancel(context.Background())
	go sess.writeLoop(ctx)

	sess.readLoop(ctx, s.onFrame)
	cancel()

	// Give the writer a beat to flush anything queued before teardown.
	time.Sleep(10 * time.Millisecond)
	if s.onDisconnect != nil {
		s.onDisconnect(sess)
	}
	s.log.Info("client disconnected", zap.String("conn", id))
}
