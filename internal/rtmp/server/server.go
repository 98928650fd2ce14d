package server

// TCP accept loop wiring the session engine to an Application. This is glue:
// all protocol work lives in internal/rtmp/conn and below.

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zhangwz/rtmp-core/internal/logger"
	"github.com/zhangwz/rtmp-core/internal/rtmp/conn"
	"github.com/zhangwz/rtmp-core/internal/rtmp/session"
)

// Application consumes session events and answers pending requests.
type Application interface {
	HandleEvent(c *conn.Conn, ev session.Event)
}

// AutoAcceptApplication approves every connection request. Used by the cmd
// binary and as the default when no application is supplied.
type AutoAcceptApplication struct{}

// HandleEvent accepts ConnectionRequested events and ignores the rest.
func (AutoAcceptApplication) HandleEvent(c *conn.Conn, ev session.Event) {
	if cr, ok := ev.(session.ConnectionRequested); ok {
		if err := c.AcceptRequest(cr.RequestID); err != nil {
			logger.Logger().Warn("auto accept failed",
				zap.Uint32("request_id", cr.RequestID), zap.Error(err))
		}
	}
}

// Config for the server glue layer.
type Config struct {
	ListenAddr string
	Session    session.Config
	App        Application // nil selects AutoAcceptApplication
}

// Server accepts TCP connections and drives one session engine per
// connection.
type Server struct {
	cfg Config
	app Application
	log *zap.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// New creates a Server. Start must be called to begin listening.
func New(cfg Config) *Server {
	app := cfg.App
	if app == nil {
		app = AutoAcceptApplication{}
	}
	return &Server{
		cfg: cfg,
		app: app,
		log: logger.Logger().With(zap.String("component", "server")),
	}
}

// Start binds the listener and launches the accept loop.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	s.ln = ln
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound listener address (nil before Start).
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop closes the listener and waits for connection goroutines to finish
// their teardown.
func (s *Server) Stop() error {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	s.wg.Wait()
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.Error("accept failed", zap.Error(err))
			}
			return
		}
		s.log.Debug("connection accepted", zap.String("remote", nc.RemoteAddr().String()))
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := conn.Serve(nc, s.cfg.Session, s.app.HandleEvent); err != nil {
				s.log.Warn("session ended with error",
					zap.String("remote", nc.RemoteAddr().String()), zap.Error(err))
			}
		}()
	}
}
