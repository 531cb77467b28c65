// Package events implements the broker's lifecycle event publisher
// (§4.8): a bounded outbound queue with a dedicated drainer, decoupled
// from the protocol reply path (§9: "publishing is best-effort and must
// not stall the handler").
package events

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Type enumerates the lifecycle events named in §4.8.
type Type string

const (
	ClientRegistered   Type = "client_registered"
	ClientUnregistered Type = "client_unregistered"
	RoomCreated        Type = "room_created"
	RoomJoined         Type = "room_joined"
	RoomLeft           Type = "room_left"
	RoomTerminated     Type = "room_terminated"
	SessionEvicted     Type = "session_evicted"
)

// Event is the stable JSON schema every lifecycle event shares (§4.8).
type Event struct {
	EventType  Type                   `json:"event_type"`
	EventID    int64                  `json:"event_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	SubjectIDs []string               `json:"subject_ids"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

const topic = "broker.lifecycle"

// Publisher is a bounded outbound queue draining into a watermill
// message.Publisher on a dedicated background goroutine, so Publish
// never blocks the calling handler on I/O.
type Publisher struct {
	pub    message.Publisher
	logger *zap.Logger
	queue  chan Event
	nextID int64

	done chan struct{}
}

// NewPublisher wraps an already-constructed watermill publisher (a
// gochannel.GoChannel for in-process/test use, or an amqp publisher for
// a durable broker backing — both implement message.Publisher
// identically from this package's point of view). queueSize bounds the
// outbound queue; when full, Publish drops the event after logging
// rather than applying backpressure to the protocol handler.
func NewPublisher(pub message.Publisher, logger *zap.Logger, queueSize int) *Publisher {
	p := &Publisher{
		pub:    pub,
		logger: logger,
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
	go p.drain()
	return p
}

// Publish enqueues an event for best-effort delivery. It never blocks on
// network I/O and never fails the caller's protocol operation. The
// eventType string matches the session.EventSink / registration.EventSink
// / roomsvc.EventSink narrow interface shared across packages, so callers
// never need to import this package just to publish.
func (p *Publisher) Publish(eventType string, subjectIDs []string, metadata map[string]interface{}) {
	e := Event{
		EventType:  Type(eventType),
		EventID:    atomic.AddInt64(&p.nextID, 1),
		OccurredAt: time.Now().UTC(),
		SubjectIDs: subjectIDs,
		Metadata:   metadata,
	}
	select {
	case p.queue <- e:
	default:
		p.logger.Warn("event queue full, dropping event",
			zap.String("event_type", eventType),
			zap.Int64("event_id", e.EventID))
	}
}

func (p *Publisher) drain() {
	backoffDelay := 100 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		select {
		case <-p.done:
			return
		case evt := <-p.queue:
			body, err := json.Marshal(evt)
			if err != nil {
				p.logger.Error("failed to marshal lifecycle event", zap.Error(err))
				continue
			}
			msg := message.NewMessage(watermill.NewUUID(), body)
			if err := p.publishWithRetry(msg, &backoffDelay, maxBackoff); err != nil {
				p.logger.Error("dropping lifecycle event after retries",
					zap.String("event_type", string(evt.EventType)), zap.Error(err))
			} else {
				backoffDelay = 100 * time.Millisecond
			}
		}
	}
}

func (p *Publisher) publishWithRetry(msg *message.Message, delay *time.Duration, maxBackoff time.Duration) error {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		if err = p.pub.Publish(topic, msg); err == nil {
			return nil
		}
		p.logger.Warn("lifecycle event publish failed, retrying", zap.Error(err), zap.Int("attempt", i+1))
		time.Sleep(*delay)
		*delay *= 2
		if *delay > maxBackoff {
			*delay = maxBackoff
		}
	}
	return err
}

// Close stops the drainer. In-flight queue contents are discarded per
// §9's "events are dropped after logging" failure policy.
func (p *Publisher) Close(_ context.Context) error {
	close(p.done)
	return p.pub.Close()
}
