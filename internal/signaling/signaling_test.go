package signaling

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/screenbroker/broker/internal/apperr"
	"github.com/screenbroker/broker/internal/frame"
	"github.com/screenbroker/broker/internal/message"
)

type fakeTarget struct {
	received []*frame.Frame
}

func (f *fakeTarget) Enqueue(_ context.Context, fr *frame.Frame) error {
	f.received = append(f.received, fr)
	return nil
}

type fakeRouter struct {
	targets map[string]Target
}

func (r *fakeRouter) Lookup(clientID string) (Target, bool) {
	t, ok := r.targets[clientID]
	return t, ok
}

func TestForwardPreservesMessageID(t *testing.T) {
	target := &fakeTarget{}
	router := &fakeRouter{targets: map[string]Target{"u2": target}}
	h := NewHandler(router)

	payload, _ := json.Marshal(message.Signal{TargetClientID: "u2"})
	id := frame.NewMessageID()
	f := &frame.Frame{MessageType: frame.SignalAnswer, MessageID: id, PayloadType: frame.PayloadJSON, Payload: payload}

	if err := h.Forward(context.Background(), f); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(target.received) != 1 {
		t.Fatalf("expected 1 forwarded frame, got %d", len(target.received))
	}
	if target.received[0].MessageID != id {
		t.Error("expected message_id to be preserved on forward")
	}
}

func TestForwardNotFound(t *testing.T) {
	router := &fakeRouter{targets: map[string]Target{}}
	h := NewHandler(router)

	payload, _ := json.Marshal(message.Signal{TargetClientID: "ghost"})
	f := &frame.Frame{MessageType: frame.SignalOffer, MessageID: frame.NewMessageID(), PayloadType: frame.PayloadJSON, Payload: payload}

	err := h.Forward(context.Background(), f)
	appErr, ok := apperr.As(err)
	if !ok || appErr.Status != apperr.StatusNotFound {
		t.Fatalf("expected 404 not found, got %v", err)
	}
}
