// Package signaling implements the SIGNAL_OFFER / SIGNAL_ANSWER /
// SIGNAL_ICE_CANDIDATE passthrough (§4.5): lookup by target_client_id,
// forward unchanged, no persistence.
package signaling

import (
	"context"
	"encoding/json"

	"github.com/screenbroker/broker/internal/apperr"
	"github.com/screenbroker/broker/internal/frame"
	"github.com/screenbroker/broker/internal/message"
	"github.com/screenbroker/broker/internal/metrics"
)

// Router resolves a bound client_id to something that can receive an
// enqueued frame; implemented by internal/broker's adapter over
// session.Manager (broker.NewRouter). Kept as an interface
// so this package doesn't import internal/session's concrete type.
type Router interface {
	Lookup(clientID string) (Target, bool)
}

// Target is the narrow slice of session.Session this package needs.
type Target interface {
	Enqueue(ctx context.Context, f *frame.Frame) error
}

// Handler forwards SIGNAL_* frames by target_client_id.
type Handler struct {
	router Router
}

func NewHandler(router Router) *Handler {
	return &Handler{router: router}
}

// Forward implements §4.5: the same message_type, the same message_id,
// re-addressed to the target's writer. Not-found surfaces ERROR 404 to
// the sender; the caller is responsible for replying.
func (h *Handler) Forward(ctx context.Context, f *frame.Frame) error {
	var sig message.Signal
	if err := json.Unmarshal(f.Payload, &sig); err != nil {
		return apperr.Protocol("payload_decode", "signal_data payload is not valid JSON")
	}

	target, ok := h.router.Lookup(sig.TargetClientID)
	if !ok {
		return apperr.State(apperr.StatusNotFound, "target_not_found", "target_client_id is not registered on a live session")
	}

	// Preserve message_type and message_id verbatim (§4.5); only the
	// recipient changes.
	forwarded := &frame.Frame{
		MessageType: f.MessageType,
		MessageID:   f.MessageID,
		PayloadType: f.PayloadType,
		Payload:     f.Payload,
	}
	if err := target.Enqueue(ctx, forwarded); err != nil {
		return err
	}
	metrics.RecordSignalForwarded()
	return nil
}
