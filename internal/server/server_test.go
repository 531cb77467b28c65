package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/screenbroker/broker/internal/config"
	"github.com/screenbroker/broker/internal/frame"
	"github.com/screenbroker/broker/internal/message"
	"github.com/screenbroker/broker/internal/session"
)

type echoDispatcher struct{}

func (echoDispatcher) Dispatch(ctx context.Context, s *session.Session, f *frame.Frame) {
	_ = s.Enqueue(ctx, f)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.MaxConnections = 2
	cfg.Security.MaxConnectionsPerIP = 1
	cfg.Provider.AppID = "app-1"
	cfg.Auth.TokenSecret = "s3cr3t"
	return cfg
}

func waitForAddr(t *testing.T, srv *Server) net.Addr {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if addr := srv.Addr(); addr != nil {
			return addr
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server never bound a listener")
	return nil
}

func TestServerEchoesPingOverTCP(t *testing.T) {
	cfg := testConfig()
	sessCfg := session.Config{
		RegistrationTimeout: time.Second, HeartbeatInterval: time.Second,
		HeartbeatTimeout: 5 * time.Second, SendQueueSize: 16, MaxMessageSize: 1 << 16,
	}
	mgr := session.NewManager(sessCfg, zap.NewNop(), nil, nil)
	srv := New(cfg, mgr, echoDispatcher{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.ListenAndServe(ctx)

	addr := waitForAddr(t, srv)

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	payload, _ := json.Marshal(message.Ping{Timestamp: 7})
	req := &frame.Frame{MessageType: frame.Ping, MessageID: frame.NewMessageID(), PayloadType: frame.PayloadJSON, Payload: payload}
	w := bufio.NewWriter(conn)
	if err := frame.Encode(w, req); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := frame.Decode(bufio.NewReader(conn), 1<<16)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.MessageType != frame.Ping {
		t.Fatalf("expected echoed PING, got %v", resp.MessageType)
	}
}

func TestServerRejectsOverMaxConnectionsPerIP(t *testing.T) {
	cfg := testConfig()
	sessCfg := session.Config{
		RegistrationTimeout: time.Second, HeartbeatInterval: time.Second,
		HeartbeatTimeout: 5 * time.Second, SendQueueSize: 16, MaxMessageSize: 1 << 16,
	}
	mgr := session.NewManager(sessCfg, zap.NewNop(), nil, nil)
	srv := New(cfg, mgr, echoDispatcher{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.ListenAndServe(ctx)

	addr := waitForAddr(t, srv)

	connA, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial A: %v", err)
	}
	defer connA.Close()
	time.Sleep(50 * time.Millisecond)

	connB, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial B: %v", err)
	}
	defer connB.Close()

	// The second connection from the same IP exceeds max_connections_per_ip
	// (1) and should be closed by the server without any frame exchange.
	connB.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	if _, err := connB.Read(buf); err == nil {
		t.Error("expected connB to be closed by the server, got readable data")
	}
}
