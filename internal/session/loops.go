package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/screenbroker/broker/internal/frame"
	"github.com/screenbroker/broker/internal/message"
)

// readerLoop decodes frames and dispatches them; only it touches the
// socket's input side (§4.2).
func (m *Manager) readerLoop(ctx context.Context, s *Session, dispatcher Dispatcher) {
	defer m.Close(ctx, s, ReasonClientDisconnect)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Headroom beyond HeartbeatTimeout so heartbeatLoop's ticker check
		// is the one that observes the expiry and closes with
		// ReasonHeartbeatExpired; this deadline is a backstop for a socket
		// that goes silent at the OS level.
		_ = s.conn.SetReadDeadline(time.Now().Add(m.cfg.HeartbeatTimeout + m.cfg.HeartbeatInterval))
		f, err := frame.Decode(s.reader, m.cfg.MaxMessageSize)
		if err != nil {
			var decErr *frame.DecodeError
			if errors.As(err, &decErr) {
				if decErr.Frame != nil {
					// Unknown type/payload: reply ERROR and keep going (§4.1).
					m.replyError(ctx, s, decErr.Frame, 400, decErr.Error())
					continue
				}
				// MalformedFrame or PayloadTooLarge: tear down, no resync (§4.1).
				s.logger.Warn("frame decode error, closing session", zap.Error(err))
				return
			}
			if err == io.EOF {
				return
			}
			s.logger.Debug("read error, closing session", zap.Error(err))
			return
		}

		now := time.Now().UTC()
		m.Touch(s, now)

		if s.State() == AwaitingRegister {
			switch f.MessageType {
			case frame.Register, frame.Disconnect, frame.Ping:
				// allowed per §4.2 AwaitingRegister
			default:
				m.replyError(ctx, s, f, 400, "registration required before this message type")
				continue
			}
		}

		dispatcher.Dispatch(ctx, s, f)
	}
}

// writerLoop drains the send queue to the socket; it is the only task
// that writes (§4.2).
func (m *Manager) writerLoop(ctx context.Context, s *Session) {
	for {
		select {
		case <-ctx.Done():
			// Drain whatever is already queued up to a bounded deadline
			// (§4.2 Closing: "send queue is flushed up to a bounded
			// deadline then discarded").
			deadline := time.After(2 * time.Second)
			for {
				select {
				case f := <-s.sendCh:
					m.writeFrame(s, f)
				case <-deadline:
					return
				default:
					return
				}
			}
		case f := <-s.sendCh:
			m.writeFrame(s, f)
		}
	}
}

func (m *Manager) writeFrame(s *Session, f *frame.Frame) {
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := frame.Encode(s.writer, f); err != nil {
		s.logger.Warn("frame encode error", zap.Error(err))
		return
	}
	if err := s.writer.Flush(); err != nil {
		s.logger.Debug("write flush error", zap.Error(err))
	}
}

// heartbeatLoop implements the Live-state timeout check (§4.2): a timer
// fires every heartbeat_interval; if now - last_activity exceeds
// heartbeat_timeout, the session transitions to Closing. It also
// enforces registration_timeout while AwaitingRegister.
func (m *Manager) heartbeatLoop(ctx context.Context, s *Session) {
	registerDeadline := time.NewTimer(m.cfg.RegistrationTimeout)
	defer registerDeadline.Stop()

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-registerDeadline.C:
			if s.State() == AwaitingRegister {
				m.Close(ctx, s, ReasonRegistrationDeadline)
				return
			}
		case <-ticker.C:
			if s.State() == Closing {
				return
			}
			if time.Since(s.LastActivity()) > m.cfg.HeartbeatTimeout {
				m.Close(ctx, s, ReasonHeartbeatExpired)
				return
			}
		}
	}
}

func evictionFrame(reason CloseReason) *frame.Frame {
	payload, _ := json.Marshal(message.Disconnect{Reason: string(reason)})
	return &frame.Frame{
		MessageType: frame.Disconnect,
		MessageID:   frame.NewMessageID(),
		PayloadType: frame.PayloadJSON,
		Payload:     payload,
	}
}

func (m *Manager) replyError(ctx context.Context, s *Session, req *frame.Frame, code int, msg string) {
	payload, _ := json.Marshal(message.Error{ErrorCode: code, ErrorMessage: msg})
	errFrame := &frame.Frame{
		MessageType: frame.ErrorType,
		MessageID:   req.MessageID,
		PayloadType: frame.PayloadJSON,
		Payload:     payload,
	}
	_ = s.Enqueue(ctx, errFrame)
}
