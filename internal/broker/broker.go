// Package broker wires the session manager's dispatch to the protocol
// handlers (registration, room orchestration, signaling passthrough),
// translating between frames and the handlers' typed requests/results.
package broker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/screenbroker/broker/internal/apperr"
	"github.com/screenbroker/broker/internal/frame"
	"github.com/screenbroker/broker/internal/message"
	"github.com/screenbroker/broker/internal/metrics"
	"github.com/screenbroker/broker/internal/registration"
	"github.com/screenbroker/broker/internal/roomsvc"
	"github.com/screenbroker/broker/internal/session"
	"github.com/screenbroker/broker/internal/signaling"
)

// Broker implements session.Dispatcher, routing each frame by
// message_type to the handler that owns it.
type Broker struct {
	sessions     *session.Manager
	registration *registration.Handler
	rooms        *roomsvc.Orchestrator
	signal       *signaling.Handler
	logger       *zap.Logger
}

func New(sessions *session.Manager, reg *registration.Handler, rooms *roomsvc.Orchestrator, signal *signaling.Handler, logger *zap.Logger) *Broker {
	return &Broker{sessions: sessions, registration: reg, rooms: rooms, signal: signal, logger: logger}
}

// Dispatch implements session.Dispatcher (§2: "dispatch by message
// type").
func (b *Broker) Dispatch(ctx context.Context, s *session.Session, f *frame.Frame) {
	metrics.RecordFrameProcessed()
	switch f.MessageType {
	case frame.Connect:
		b.handleConnect(ctx, s, f)
	case frame.Ping:
		b.handlePing(ctx, s, f)
	case frame.Disconnect:
		b.sessions.Close(ctx, s, session.ReasonClientDisconnect)
	case frame.Register:
		b.handleRegister(ctx, s, f)
	case frame.Unregister:
		b.handleUnregister(ctx, s, f)
	case frame.RoomCreate:
		b.handleRoomCreate(ctx, s, f)
	case frame.RoomJoin:
		b.handleRoomJoin(ctx, s, f)
	case frame.RoomLeave:
		b.handleRoomLeave(ctx, s, f)
	case frame.SignalOffer, frame.SignalAnswer, frame.SignalICECandidate:
		b.handleSignal(ctx, s, f)
	default:
		b.replyError(ctx, s, f, apperr.StatusBadRequest, "unsupported_message_type", "no handler registered for this message_type")
	}
}

func (b *Broker) handleConnect(ctx context.Context, s *session.Session, f *frame.Frame) {
	// CONNECT is optional legacy admission (§9); acknowledging it costs
	// nothing and REGISTER remains the real admission step.
	var req message.Connect
	_ = json.Unmarshal(f.Payload, &req)
	ack := message.ConnectAck{Status: apperr.StatusOK, SessionID: s.ID.String(), HeartbeatInterval: 30}
	b.reply(ctx, s, f, frame.ConnectAck, ack)
}

func (b *Broker) handlePing(ctx context.Context, s *session.Session, f *frame.Frame) {
	var req message.Ping
	if err := json.Unmarshal(f.Payload, &req); err != nil {
		b.replyError(ctx, s, f, apperr.StatusBadRequest, "payload_decode", "ping payload is not valid JSON")
		return
	}
	ack := message.PingAck{Timestamp: req.Timestamp, ServerTime: time.Now().UTC().UnixMilli()}
	b.reply(ctx, s, f, frame.PingAck, ack)
}

func (b *Broker) handleRegister(ctx context.Context, s *session.Session, f *frame.Frame) {
	var req message.Register
	if err := json.Unmarshal(f.Payload, &req); err != nil {
		b.replyError(ctx, s, f, apperr.StatusBadRequest, "payload_decode", "register payload is not valid JSON")
		return
	}

	result, err := b.registration.Register(ctx, req)
	if err != nil {
		b.replyAppErr(ctx, s, f, err)
		return
	}

	b.sessions.Bind(ctx, s, result.ClientID)
	ack := message.RegisterAck{
		Version: req.Version, Status: apperr.StatusOK,
		ClientID: result.ClientID, SessionID: result.SessionID.String(),
	}
	b.reply(ctx, s, f, frame.RegisterAck, ack)
}

func (b *Broker) handleUnregister(ctx context.Context, s *session.Session, f *frame.Frame) {
	var req message.Unregister
	if err := json.Unmarshal(f.Payload, &req); err != nil {
		b.replyError(ctx, s, f, apperr.StatusBadRequest, "payload_decode", "unregister payload is not valid JSON")
		return
	}

	if err := b.registration.Unregister(ctx, req); err != nil {
		b.replyAppErr(ctx, s, f, err)
		return
	}

	ack := message.UnregisterAck{Version: req.Version, Status: apperr.StatusOK, ClientID: req.ClientID}
	b.reply(ctx, s, f, frame.UnregisterAck, ack)
}

func (b *Broker) handleRoomCreate(ctx context.Context, s *session.Session, f *frame.Frame) {
	var req message.RoomCreate
	if err := json.Unmarshal(f.Payload, &req); err != nil {
		b.replyError(ctx, s, f, apperr.StatusBadRequest, "payload_decode", "room_create payload is not valid JSON")
		return
	}

	result, err := b.rooms.Create(ctx, req)
	if err != nil {
		b.replyAppErr(ctx, s, f, err)
		return
	}

	ack := message.RoomCreateAck{
		Version: req.Version, Status: apperr.StatusOK,
		RoomID: result.RoomID, SessionIDExt: result.SessionIDExt,
		AppID: result.AppID, StunURL: result.StunURL, ConnectionInfo: result.ConnectionInfo,
	}
	b.reply(ctx, s, f, frame.RoomCreateAck, ack)
}

func (b *Broker) handleRoomJoin(ctx context.Context, s *session.Session, f *frame.Frame) {
	var req message.RoomJoin
	if err := json.Unmarshal(f.Payload, &req); err != nil {
		b.replyError(ctx, s, f, apperr.StatusBadRequest, "payload_decode", "room_join payload is not valid JSON")
		return
	}

	result, err := b.rooms.Join(ctx, req)
	if err != nil {
		b.replyAppErr(ctx, s, f, err)
		return
	}

	ack := message.RoomJoinAck{
		Version: req.Version, Status: apperr.StatusOK,
		RoomID: result.RoomID, SessionIDExt: result.SessionIDExt,
		AppID: result.AppID, StunURL: result.StunURL, ConnectionInfo: result.ConnectionInfo,
	}
	b.reply(ctx, s, f, frame.RoomJoinAck, ack)
}

func (b *Broker) handleRoomLeave(ctx context.Context, s *session.Session, f *frame.Frame) {
	var req message.RoomLeave
	if err := json.Unmarshal(f.Payload, &req); err != nil {
		b.replyError(ctx, s, f, apperr.StatusBadRequest, "payload_decode", "room_leave payload is not valid JSON")
		return
	}

	result, err := b.rooms.Leave(ctx, req)
	if err != nil {
		b.replyAppErr(ctx, s, f, err)
		return
	}

	msg := ""
	if result.AlreadyLeft {
		msg = "already left"
	}
	ack := message.RoomLeaveAck{Version: req.Version, Status: apperr.StatusOK, Message: msg, RoomID: req.RoomID, ClientID: req.ClientID}
	b.reply(ctx, s, f, frame.RoomLeaveAck, ack)
}

func (b *Broker) handleSignal(ctx context.Context, s *session.Session, f *frame.Frame) {
	if err := b.signal.Forward(ctx, f); err != nil {
		b.replyAppErr(ctx, s, f, err)
	}
}

func (b *Broker) reply(ctx context.Context, s *session.Session, req *frame.Frame, msgType frame.MessageType, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("failed to marshal ack payload", zap.Error(err))
		return
	}
	ack := &frame.Frame{MessageType: msgType, MessageID: req.MessageID, PayloadType: frame.PayloadJSON, Payload: body}
	_ = s.Enqueue(ctx, ack)
}

func (b *Broker) replyAppErr(ctx context.Context, s *session.Session, req *frame.Frame, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		b.replyError(ctx, s, req, apperr.StatusInternal, "internal_error", err.Error())
		return
	}
	b.replyError(ctx, s, req, appErr.Status, appErr.Code, appErr.Message)
}

func (b *Broker) replyError(ctx context.Context, s *session.Session, req *frame.Frame, status int, code, msg string) {
	payload := message.Error{ErrorCode: status, ErrorMessage: msg, Details: map[string]interface{}{"error_code_name": code}}
	b.reply(ctx, s, req, frame.ErrorType, payload)
}
