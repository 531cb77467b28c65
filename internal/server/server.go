// Package server runs the broker's TCP accept loop: one listener, an
// admission check per inbound connection (§5 "Memory & limits"), and a
// session opened per accepted socket.
package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/screenbroker/broker/internal/config"
	"github.com/screenbroker/broker/internal/session"
)

// Server owns the listener and the admission bookkeeping; the session
// manager and dispatcher are supplied by the caller (cmd/broker), which
// wires the rest of the handler graph.
type Server struct {
	cfg        *config.Config
	sessions   *session.Manager
	dispatcher session.Dispatcher
	logger     *zap.Logger

	listener net.Listener

	mu       sync.Mutex
	perIP    map[string]int
}

func New(cfg *config.Config, sessions *session.Manager, dispatcher session.Dispatcher, logger *zap.Logger) *Server {
	return &Server{
		cfg: cfg, sessions: sessions, dispatcher: dispatcher, logger: logger,
		perIP: make(map[string]int),
	}
}

// ListenAndServe binds the listener and accepts connections until ctx
// is cancelled or the listener errors.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.logger.Info("listening", zap.String("addr", addr))

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.logger.Warn("accept failed", zap.Error(err))
				return err
			}
		}
		s.admit(conn)
	}
}

// admit enforces §5's connection-count and per-IP caps before spawning
// a session; a rejected connection is closed immediately with no frame
// exchanged.
func (s *Server) admit(conn net.Conn) {
	if s.sessions.Count() >= s.cfg.Server.MaxConnections {
		s.logger.Warn("rejecting connection: max_connections reached")
		_ = conn.Close()
		return
	}

	ip := remoteIP(conn)
	if s.cfg.Security.MaxConnectionsPerIP > 0 {
		s.mu.Lock()
		if s.perIP[ip] >= s.cfg.Security.MaxConnectionsPerIP {
			s.mu.Unlock()
			s.logger.Warn("rejecting connection: max_connections_per_ip reached", zap.String("ip", ip))
			_ = conn.Close()
			return
		}
		s.perIP[ip]++
		s.mu.Unlock()
	}

	sess := s.sessions.Open(conn, s.dispatcher)
	s.logger.Debug("session opened", zap.String("session_id", sess.ID.String()), zap.String("remote_ip", ip))

	go func() {
		<-sess.Done()
		if s.cfg.Security.MaxConnectionsPerIP > 0 {
			s.mu.Lock()
			s.perIP[ip]--
			if s.perIP[ip] <= 0 {
				delete(s.perIP, ip)
			}
			s.mu.Unlock()
		}
	}()
}

func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	if i := strings.LastIndex(addr, ":"); i != -1 {
		return addr[:i]
	}
	return addr
}

// Addr returns the listener's bound address; only valid after
// ListenAndServe has started accepting. Useful for tests that bind to
// port 0 and need to discover the assigned port.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting and drains live sessions per §5's graceful
// shutdown sequence, delegating the drain itself to session.Manager.
func (s *Server) Shutdown(ctx context.Context) {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.sessions.Shutdown(ctx, s.cfg.Timing.ShutdownGrace)
}
