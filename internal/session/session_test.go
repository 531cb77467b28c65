package session

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/screenbroker/broker/internal/frame"
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(ctx context.Context, s *Session, f *frame.Frame) {}

type recordingEvents struct {
	published []string
}

func (r *recordingEvents) Publish(eventType string, subjectIDs []string, metadata map[string]interface{}) {
	r.published = append(r.published, eventType)
}

func testConfig() Config {
	return Config{
		RegistrationTimeout: time.Second,
		HeartbeatInterval:   50 * time.Millisecond,
		HeartbeatTimeout:    200 * time.Millisecond,
		SendQueueSize:       16,
		MaxMessageSize:      1 << 16,
	}
}

func TestBindEvictsPriorSession(t *testing.T) {
	events := &recordingEvents{}
	mgr := NewManager(testConfig(), zap.NewNop(), events, nil)

	connA, _ := net.Pipe()
	defer connA.Close()
	sessA := mgr.Open(connA, nopDispatcher{})

	connB, _ := net.Pipe()
	defer connB.Close()
	sessB := mgr.Open(connB, nopDispatcher{})

	ctx := context.Background()
	mgr.Bind(ctx, sessA, "u1")

	// Drain sessA's courtesy DISCONNECT asynchronously so eviction doesn't
	// block on a full/unread send queue.
	go func() {
		select {
		case <-sessA.sendCh:
		case <-time.After(time.Second):
		}
	}()

	mgr.Bind(ctx, sessB, "u1")

	time.Sleep(50 * time.Millisecond)

	found, ok := mgr.Lookup("u1")
	if !ok {
		t.Fatal("expected u1 to resolve to a session")
	}
	if found.ID != sessB.ID {
		t.Errorf("expected u1 bound to sessB after eviction, got session %v", found.ID)
	}
}

func TestTouchUpdatesLastActivity(t *testing.T) {
	mgr := NewManager(testConfig(), zap.NewNop(), nil, nil)
	conn, _ := net.Pipe()
	defer conn.Close()
	s := mgr.Open(conn, nopDispatcher{})

	before := s.LastActivity()
	time.Sleep(10 * time.Millisecond)
	mgr.Touch(s, time.Now().UTC())
	if !s.LastActivity().After(before) {
		t.Error("expected last_activity to advance after Touch")
	}
}

func TestCloseRemovesFromIndices(t *testing.T) {
	events := &recordingEvents{}
	mgr := NewManager(testConfig(), zap.NewNop(), events, nil)
	conn, _ := net.Pipe()
	defer conn.Close()
	s := mgr.Open(conn, nopDispatcher{})

	mgr.Bind(context.Background(), s, "u1")
	mgr.Close(context.Background(), s, ReasonClientDisconnect)

	if _, ok := mgr.Lookup("u1"); ok {
		t.Error("expected u1 to be removed from client index after close")
	}
	if mgr.Count() != 0 {
		t.Errorf("Count() = %d, want 0", mgr.Count())
	}

	found := false
	for _, e := range events.published {
		if e == "session_evicted" {
			found = true
		}
	}
	if !found {
		t.Error("expected session_evicted event to be published")
	}
}
