// Package roomsvc implements the Room Orchestrator (§4.4): Create, Join
// and Leave, coordinating the realtime-provider client and the
// repository layer with compensating actions on partial failure.
package roomsvc

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"time"

	"go.uber.org/zap"

	"github.com/screenbroker/broker/internal/apperr"
	"github.com/screenbroker/broker/internal/message"
	"github.com/screenbroker/broker/internal/metrics"
	"github.com/screenbroker/broker/internal/provider"
	"github.com/screenbroker/broker/internal/repository"
)

// Authenticator is the narrow slice of the registration handler this
// package depends on (§4.4 step 1: "All require a prior successful
// registration"), kept as an interface to avoid importing
// internal/registration directly.
type Authenticator interface {
	Authenticate(ctx context.Context, clientID, authToken string) (*repository.Client, error)
}

// EventSink mirrors session.EventSink.
type EventSink interface {
	Publish(eventType string, subjectIDs []string, metadata map[string]interface{})
}

// Config carries the deployment policy knobs §4.4 leaves open.
type Config struct {
	AppID               string
	StunURL             string
	AllowListenerFirst  bool // receivers MAY create a room with no offer_sdp
	SingleReceiverMode  bool
}

// Orchestrator implements Create, Join and Leave.
type Orchestrator struct {
	cfg     Config
	auth    Authenticator
	rooms   repository.RoomRepository
	members repository.MembershipRepository
	terms   repository.TerminationRepository
	audits  repository.CreationAuditRepository
	rt      provider.RealtimeProvider
	events  EventSink
	logger  *zap.Logger
}

func New(
	cfg Config,
	auth Authenticator,
	rooms repository.RoomRepository,
	members repository.MembershipRepository,
	terms repository.TerminationRepository,
	audits repository.CreationAuditRepository,
	rt provider.RealtimeProvider,
	events EventSink,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg: cfg, auth: auth, rooms: rooms, members: members,
		terms: terms, audits: audits, rt: rt, events: events, logger: logger,
	}
}

// Result carries what CREATE_ACK / JOIN_ACK need (§6, shared shape).
type Result struct {
	RoomID         string
	SessionIDExt   string
	AppID          string
	StunURL        string
	ConnectionInfo message.ConnectionInfo
}

func newRoomID() string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
}

// Create implements §4.4 Create.
func (o *Orchestrator) Create(ctx context.Context, req message.RoomCreate) (*Result, error) {
	if _, err := o.auth.Authenticate(ctx, req.ClientID, req.AuthToken); err != nil {
		return nil, err
	}

	if req.Role == message.RoleReceiver {
		if req.OfferSDP != "" || !o.cfg.AllowListenerFirst {
			return nil, apperr.Protocol("listener_first_disallowed", "receivers may not create rooms with an offer or when listener-first is disabled")
		}
	} else if req.Role == message.RoleSender && req.OfferSDP == "" {
		return nil, apperr.Protocol("missing_field", "offer_sdp is required for role=sender")
	}

	created, err := o.rt.CreateSession(ctx, o.cfg.AppID, provider.SessionDescription{Type: "offer", SDP: req.OfferSDP})
	if err != nil {
		return nil, apperr.Dependency("provider_unavailable", "failed to create provider session", err)
	}

	roomID := newRoomID()
	now := time.Now().UTC()
	room := &repository.Room{
		RoomID:       roomID,
		AppID:        o.cfg.AppID,
		SessionIDExt: created.SessionIDExt,
		Status:       repository.RoomActive,
		Metadata:     req.Metadata,
		CreatedAt:    now,
	}
	if req.Role == message.RoleSender {
		room.SenderClientID = req.ClientID
	} else {
		room.ReceiverClientID = req.ClientID
	}

	if err := o.rooms.Create(ctx, room); err != nil {
		o.compensate(ctx, roomID, req.ClientID, created.SessionIDExt, "room_create_failed", err)
		return nil, apperr.Compensated("persistence_failed", "room creation failed after provider session was created", err)
	}

	membership := &repository.Membership{
		ClientID:     req.ClientID,
		RoomID:       roomID,
		Role:         roleOf(req.Role),
		JoinedAt:     now,
		LastActivity: now,
		Status:       repository.MembershipActive,
	}
	if err := o.members.Create(ctx, membership); err != nil {
		_ = o.rooms.Delete(ctx, roomID)
		o.compensate(ctx, roomID, req.ClientID, created.SessionIDExt, "membership_create_failed", err)
		return nil, apperr.Compensated("persistence_failed", "membership creation failed after room was created", err)
	}

	_ = o.audits.Create(ctx, &repository.CreationAudit{
		RoomID: roomID, ClientID: req.ClientID, SessionIDExt: created.SessionIDExt,
		CreatedAt: now, Outcome: "committed",
	})

	o.events.Publish("room_created", []string{roomID, req.ClientID}, nil)
	metrics.RecordRoomCreated()

	return &Result{
		RoomID:       roomID,
		SessionIDExt: created.SessionIDExt,
		AppID:        o.cfg.AppID,
		StunURL:      o.cfg.StunURL,
		ConnectionInfo: message.ConnectionInfo{
			AnswerSDP: created.Answer.SDP,
		},
	}, nil
}

// compensate terminates the orphaned provider session and records the
// intended outcome in the audit log (§4.4 failure policy, §9).
func (o *Orchestrator) compensate(ctx context.Context, roomID, clientID, sessionIDExt, reason string, cause error) {
	outcome := "compensated"
	if err := o.rt.TerminateSession(ctx, o.cfg.AppID, sessionIDExt); err != nil {
		outcome = "compensation_failed"
		o.logger.Error("compensation terminate failed",
			zap.String("room_id", roomID), zap.String("reason", reason), zap.Error(err))
	} else {
		o.logger.Warn("compensated orphan provider session",
			zap.String("room_id", roomID), zap.String("reason", reason), zap.Error(cause))
	}
	_ = o.audits.Create(ctx, &repository.CreationAudit{
		RoomID: roomID, ClientID: clientID, SessionIDExt: sessionIDExt,
		CreatedAt: time.Now().UTC(), Outcome: outcome,
	})
}

func roleOf(r message.Role) repository.MembershipRole {
	if r == message.RoleReceiver {
		return repository.MembershipReceiver
	}
	return repository.MembershipSender
}
