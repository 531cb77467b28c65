package roomsvc

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/screenbroker/broker/internal/apperr"
	"github.com/screenbroker/broker/internal/message"
	"github.com/screenbroker/broker/internal/metrics"
	"github.com/screenbroker/broker/internal/provider"
	"github.com/screenbroker/broker/internal/repository"
)

// Join implements §4.4 Join.
func (o *Orchestrator) Join(ctx context.Context, req message.RoomJoin) (*Result, error) {
	if _, err := o.auth.Authenticate(ctx, req.ClientID, req.AuthToken); err != nil {
		return nil, err
	}

	room, err := o.rooms.Get(ctx, req.RoomID)
	if err != nil || room.Status != repository.RoomActive {
		return nil, apperr.State(apperr.StatusNotFound, "room_not_found", "room does not exist or is not active")
	}

	if req.Role == message.RoleSender {
		if room.SenderClientID != "" && room.SenderClientID != req.ClientID {
			return nil, apperr.Protocol("sender_slot_occupied", "room already has a different sender")
		}
	} else if o.cfg.SingleReceiverMode && room.ReceiverClientID != "" && room.ReceiverClientID != req.ClientID {
		return nil, apperr.Protocol("receiver_slot_occupied", "room already has a different receiver")
	}

	connInfo := message.ConnectionInfo{}
	if req.Role == message.RoleSender && room.SenderClientID != req.ClientID {
		if req.OfferSDP == "" {
			return nil, apperr.Protocol("missing_field", "offer_sdp is required to join as sender")
		}
		result, err := o.rt.AddTracks(ctx, o.cfg.AppID, room.SessionIDExt, []provider.Track{{Location: "local"}})
		if err != nil {
			return nil, apperr.Dependency("provider_unavailable", "failed to add sender tracks", err)
		}
		if result.Renegotiation != nil {
			connInfo.AnswerSDP = result.Renegotiation.SDP
		}
	} else if req.Role == message.RoleReceiver {
		result, err := o.rt.PullTracks(ctx, o.cfg.AppID, room.SessionIDExt, []provider.Track{
			{Location: "remote", SessionID: room.SessionIDExt},
		})
		if err != nil {
			return nil, apperr.Dependency("provider_unavailable", "failed to pull tracks for receiver", err)
		}
		if result.Renegotiation != nil {
			connInfo.OfferSDP = result.Renegotiation.SDP
		}
	}

	now := time.Now().UTC()
	membership := &repository.Membership{
		ClientID: req.ClientID, RoomID: req.RoomID, Role: roleOf(req.Role),
		JoinedAt: now, LastActivity: now, Status: repository.MembershipActive,
	}
	if err := o.members.Create(ctx, membership); err != nil && !repository.IsConflict(err) {
		return nil, apperr.Dependency("store_unavailable", "failed to persist membership", err)
	}

	if req.Role == message.RoleSender {
		room.SenderClientID = req.ClientID
	} else {
		room.ReceiverClientID = req.ClientID
	}
	if err := o.rooms.Update(ctx, room); err != nil {
		return nil, apperr.Dependency("store_unavailable", "failed to update room", err)
	}

	o.events.Publish("room_joined", []string{req.RoomID, req.ClientID}, nil)

	return &Result{
		RoomID: req.RoomID, SessionIDExt: room.SessionIDExt,
		AppID: o.cfg.AppID, StunURL: o.cfg.StunURL, ConnectionInfo: connInfo,
	}, nil
}

// LeaveResult distinguishes the normal 200 from the idempotent "already
// left" 200 (§4.4: "Leave is idempotent").
type LeaveResult struct {
	AlreadyLeft bool
}

// Leave implements §4.4 Leave.
func (o *Orchestrator) Leave(ctx context.Context, req message.RoomLeave) (*LeaveResult, error) {
	if _, err := o.auth.Authenticate(ctx, req.ClientID, req.AuthToken); err != nil {
		return nil, err
	}
	return o.leaveClient(ctx, req.ClientID, req.RoomID, req.Reason)
}

// leaveClient is the core of Leave that runs after authentication; it
// performs no auth check itself, so it is shared with the session-close
// cleanup path (§4.2 "best-effort UNREGISTER-equivalent cleanup"), which
// has no auth_token to re-check.
func (o *Orchestrator) leaveClient(ctx context.Context, clientID, roomID, reqReason string) (*LeaveResult, error) {
	membership, err := o.members.GetByClient(ctx, clientID)
	if err != nil || membership.RoomID != roomID || membership.Status != repository.MembershipActive {
		// Idempotent: a repeat Leave (or a Leave with no prior Join) is
		// a no-op success, not an error (§4.4 Idempotence).
		return &LeaveResult{AlreadyLeft: true}, nil
	}

	if err := o.members.Delete(ctx, clientID, roomID); err != nil {
		return nil, apperr.Dependency("store_unavailable", "failed to remove membership", err)
	}

	room, err := o.rooms.Get(ctx, roomID)
	if err != nil {
		// Membership existed but the room is already gone: treat as
		// already-left rather than erroring the client.
		return &LeaveResult{AlreadyLeft: true}, nil
	}

	if room.SenderClientID == clientID {
		room.SenderClientID = ""
	}
	if room.ReceiverClientID == clientID {
		room.ReceiverClientID = ""
	}

	reason := reqReason
	if reason == "" {
		reason = "last_participant_left"
	}

	if room.SenderClientID == "" && room.ReceiverClientID == "" {
		room.Status = repository.RoomTerminated
		if err := o.terminateRoom(ctx, room, clientID, reason); err != nil {
			o.logger.Error("room termination bookkeeping failed", zap.String("room_id", roomID), zap.Error(err))
		}
	} else if err := o.rooms.Update(ctx, room); err != nil {
		return nil, apperr.Dependency("store_unavailable", "failed to update room", err)
	}

	o.events.Publish("room_left", []string{roomID, clientID}, nil)
	return &LeaveResult{AlreadyLeft: false}, nil
}

func (o *Orchestrator) terminateRoom(ctx context.Context, room *repository.Room, terminatedBy, reason string) error {
	snapshot := *room
	if err := o.rt.TerminateSession(ctx, o.cfg.AppID, room.SessionIDExt); err != nil {
		o.logger.Warn("best-effort provider terminate failed", zap.String("room_id", room.RoomID), zap.Error(err))
	}
	if err := o.terms.Create(ctx, &repository.Termination{
		RoomID: room.RoomID, TerminatedAt: time.Now().UTC(),
		TerminationReason: reason, TerminatedBy: terminatedBy, LastRoomSnapshot: snapshot,
	}); err != nil {
		return err
	}
	if err := o.rooms.Delete(ctx, room.RoomID); err != nil {
		return err
	}
	o.events.Publish("room_terminated", []string{room.RoomID}, map[string]interface{}{"reason": reason})
	metrics.RecordRoomTerminated()
	return nil
}

// LeaveAllForClient implements the RoomLeaver interface consumed by
// internal/registration's UNREGISTER policy (§4.3: "If client is in an
// Active Room, execute the Room-Leave flow transparently").
func (o *Orchestrator) LeaveAllForClient(ctx context.Context, clientID, authToken string) error {
	if _, err := o.auth.Authenticate(ctx, clientID, authToken); err != nil {
		return err
	}
	return o.LeaveAllForClientSystem(ctx, clientID)
}

// LeaveAllForClientSystem runs the same Leave as LeaveAllForClient but
// without an auth_token re-check; used by the session manager's own
// close-time cleanup (§4.2), where the socket is already gone and there
// is no token to verify.
func (o *Orchestrator) LeaveAllForClientSystem(ctx context.Context, clientID string) error {
	membership, err := o.members.GetByClient(ctx, clientID)
	if err != nil {
		return nil // nothing to leave
	}
	_, err = o.leaveClient(ctx, clientID, membership.RoomID, "client_disconnect")
	return err
}
