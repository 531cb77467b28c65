package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

func TestPublishDeliversEvent(t *testing.T) {
	logger := zap.NewNop()
	backing := NewInProcessPublisher(logger)

	msgs, err := backing.(*gochannel.GoChannel).Subscribe(context.Background(), topic)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	pub := NewPublisher(backing, logger, 16)
	defer pub.Close(context.Background())

	pub.Publish(string(ClientRegistered), []string{"u1"}, nil)

	// Publisher.drain is asynchronous; give it a moment to flush onto
	// the gochannel topic before failing the test.
	select {
	case msg := <-msgs:
		msg.Ack()
		var got Event
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if got.EventType != ClientRegistered {
			t.Errorf("event_type = %v, want %v", got.EventType, ClientRegistered)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the event to be delivered to a topic subscriber")
	}
}

func TestEventJSONShape(t *testing.T) {
	e := Event{
		EventType:  RoomCreated,
		EventID:    1,
		OccurredAt: time.Now().UTC(),
		SubjectIDs: []string{"room-1", "u1"},
	}
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["event_type"] != string(RoomCreated) {
		t.Errorf("event_type = %v, want %v", decoded["event_type"], RoomCreated)
	}
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	logger := zap.NewNop()
	backing := NewInProcessPublisher(logger)
	pub := NewPublisher(backing, logger, 0) // zero-capacity: a publish is dropped unless the drainer is already waiting
	defer pub.Close(context.Background())

	// Should not panic or block despite a full/zero-capacity queue.
	pub.Publish(string(SessionEvicted), []string{"u1"}, nil)
}
