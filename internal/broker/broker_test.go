package broker

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/screenbroker/broker/internal/frame"
	"github.com/screenbroker/broker/internal/message"
	"github.com/screenbroker/broker/internal/provider"
	"github.com/screenbroker/broker/internal/registration"
	"github.com/screenbroker/broker/internal/repository/memrepo"
	"github.com/screenbroker/broker/internal/roomsvc"
	"github.com/screenbroker/broker/internal/session"
	"github.com/screenbroker/broker/internal/signaling"
)

type noopEvents struct{}

func (noopEvents) Publish(string, []string, map[string]interface{}) {}

func newTestBroker() (*Broker, *session.Manager) {
	store := memrepo.NewStore()
	credentials := registration.NewStaticCredentials(map[string]string{"u1": "t1"}, "")
	reg := registration.NewHandler(store.Clients(), credentials, noopEvents{}, nil, zap.NewNop())
	rooms := roomsvc.New(roomsvc.Config{AppID: "app-1", StunURL: "stun:stun.example.com"},
		reg, store.Rooms(), store.Memberships(), store.Terminations(), store.CreationAudits(),
		provider.NewMock(), noopEvents{}, zap.NewNop())

	cfg := session.Config{
		RegistrationTimeout: time.Second, HeartbeatInterval: time.Second,
		HeartbeatTimeout: 5 * time.Second, SendQueueSize: 16, MaxMessageSize: 1 << 16,
	}
	mgr := session.NewManager(cfg, zap.NewNop(), noopEvents{}, nil)
	sig := signaling.NewHandler(NewRouter(mgr))
	b := New(mgr, reg, rooms, sig, zap.NewNop())
	return b, mgr
}

func writeFrame(t *testing.T, w *bufio.Writer, f *frame.Frame) {
	t.Helper()
	if err := frame.Encode(w, f); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestDispatchPingProducesPingAck(t *testing.T) {
	b, mgr := newTestBroker()
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	mgr.Open(serverConn, b)

	payload, _ := json.Marshal(message.Ping{Timestamp: 42})
	req := &frame.Frame{MessageType: frame.Ping, MessageID: frame.NewMessageID(), PayloadType: frame.PayloadJSON, Payload: payload}

	w := bufio.NewWriter(clientConn)
	go writeFrame(t, w, req)

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := frame.Decode(bufio.NewReader(clientConn), 1<<16)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.MessageType != frame.PingAck {
		t.Fatalf("expected PING_ACK, got %v", resp.MessageType)
	}

	var ack message.PingAck
	if err := json.Unmarshal(resp.Payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Timestamp != 42 {
		t.Errorf("expected echoed timestamp 42, got %d", ack.Timestamp)
	}
}

func TestDispatchRegisterBindsSession(t *testing.T) {
	b, mgr := newTestBroker()
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	mgr.Open(serverConn, b)

	payload, _ := json.Marshal(message.Register{Version: "1.0.0", ClientID: "u1", AuthToken: "t1"})
	req := &frame.Frame{MessageType: frame.Register, MessageID: frame.NewMessageID(), PayloadType: frame.PayloadJSON, Payload: payload}

	w := bufio.NewWriter(clientConn)
	go writeFrame(t, w, req)

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := frame.Decode(bufio.NewReader(clientConn), 1<<16)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if resp.MessageType != frame.RegisterAck {
		t.Fatalf("expected REGISTER_ACK, got %v", resp.MessageType)
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := mgr.Lookup("u1"); !ok {
		t.Error("expected u1 to be bound to a session after REGISTER_ACK")
	}
}

// A second socket registering the same client_id with the same
// credential must succeed (not 409) and evict the first socket with a
// courtesy DISCONNECT{reason:"superseded"}.
func TestDispatchRegisterSupersedesPriorSession(t *testing.T) {
	b, mgr := newTestBroker()

	clientA, serverA := net.Pipe()
	defer clientA.Close()
	mgr.Open(serverA, b)

	payload, _ := json.Marshal(message.Register{Version: "1.0.0", ClientID: "u1", AuthToken: "t1"})
	reqA := &frame.Frame{MessageType: frame.Register, MessageID: frame.NewMessageID(), PayloadType: frame.PayloadJSON, Payload: payload}
	go writeFrame(t, bufio.NewWriter(clientA), reqA)

	clientA.SetReadDeadline(time.Now().Add(2 * time.Second))
	readerA := bufio.NewReader(clientA)
	ackA, err := frame.Decode(readerA, 1<<16)
	if err != nil {
		t.Fatalf("Decode ack A: %v", err)
	}
	if ackA.MessageType != frame.RegisterAck {
		t.Fatalf("expected REGISTER_ACK for socket A, got %v", ackA.MessageType)
	}

	clientB, serverB := net.Pipe()
	defer clientB.Close()
	mgr.Open(serverB, b)

	reqB := &frame.Frame{MessageType: frame.Register, MessageID: frame.NewMessageID(), PayloadType: frame.PayloadJSON, Payload: payload}
	go writeFrame(t, bufio.NewWriter(clientB), reqB)

	clientB.SetReadDeadline(time.Now().Add(2 * time.Second))
	ackB, err := frame.Decode(bufio.NewReader(clientB), 1<<16)
	if err != nil {
		t.Fatalf("Decode ack B: %v", err)
	}
	if ackB.MessageType != frame.RegisterAck {
		t.Fatalf("expected REGISTER_ACK for socket B (reclaim), got %v", ackB.MessageType)
	}

	clientA.SetReadDeadline(time.Now().Add(2 * time.Second))
	evict, err := frame.Decode(readerA, 1<<16)
	if err != nil {
		t.Fatalf("Decode eviction notice on socket A: %v", err)
	}
	if evict.MessageType != frame.Disconnect {
		t.Fatalf("expected DISCONNECT on socket A, got %v", evict.MessageType)
	}
	var disc message.Disconnect
	if err := json.Unmarshal(evict.Payload, &disc); err != nil {
		t.Fatalf("unmarshal disconnect: %v", err)
	}
	if disc.Reason != "superseded" {
		t.Errorf("Reason = %q, want superseded", disc.Reason)
	}

	time.Sleep(20 * time.Millisecond)
	sess, ok := mgr.Lookup("u1")
	if !ok {
		t.Fatal("expected u1 to be bound after reclaim")
	}
	if sess.ID == uuid.Nil {
		t.Fatal("expected a valid session id")
	}
}
