// Package registration implements the REGISTER/UNREGISTER handler
// (§4.3): client admission, auth, and deregistration.
package registration

import (
	"context"
	"crypto/subtle"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/screenbroker/broker/internal/apperr"
	"github.com/screenbroker/broker/internal/message"
	"github.com/screenbroker/broker/internal/metrics"
	"github.com/screenbroker/broker/internal/repository"
)

const maxClientIDLength = 128

// ServerVersion is the highest protocol version this broker accepts
// (§4.3: "version must compare <= server's supported version").
const ServerVersion = "1.0.0"

// EventSink mirrors session.EventSink so this package doesn't import
// the session manager just for its event-publishing slice.
type EventSink interface {
	Publish(eventType string, subjectIDs []string, metadata map[string]interface{})
}

// RoomLeaver runs the Room-Leave flow transparently before deregistering
// a client that is currently a Member (§4.3's UNREGISTER policy,
// implemented by internal/roomsvc — kept as a narrow interface to avoid
// a dependency cycle).
type RoomLeaver interface {
	LeaveAllForClient(ctx context.Context, clientID, authToken string) error
}

// Handler implements REGISTER and UNREGISTER.
type Handler struct {
	clients     repository.ClientRepository
	credentials CredentialSource
	events      EventSink
	leaver      RoomLeaver
	logger      *zap.Logger
}

func NewHandler(clients repository.ClientRepository, credentials CredentialSource, events EventSink, leaver RoomLeaver, logger *zap.Logger) *Handler {
	return &Handler{clients: clients, credentials: credentials, events: events, leaver: leaver, logger: logger}
}

// SetLeaver wires the room leaver after construction, breaking the
// construction cycle between registration.Handler (which roomsvc.New
// needs as an Authenticator) and roomsvc.Orchestrator (which
// implements RoomLeaver).
func (h *Handler) SetLeaver(leaver RoomLeaver) {
	h.leaver = leaver
}

// RegisterResult carries what the caller (the broker wiring layer) needs
// to bind the session and build REGISTER_ACK.
type RegisterResult struct {
	ClientID  string
	SessionID uuid.UUID
}

// Register implements the REGISTER (0x20) policy in §4.3.
func (h *Handler) Register(ctx context.Context, req message.Register) (*RegisterResult, error) {
	if compareVersions(req.Version, ServerVersion) > 0 {
		return nil, apperr.VersionUnsupported("client version " + req.Version + " is newer than server version " + ServerVersion)
	}
	if err := validateClientID(req.ClientID); err != nil {
		return nil, err
	}
	if req.AuthToken == "" {
		return nil, apperr.Protocol("missing_field", "auth_token is required")
	}
	if !h.credentials.Verify(req.ClientID, req.AuthToken) {
		return nil, apperr.Auth("token_mismatch", "auth_token does not match the provisioned credential for client_id")
	}

	existing, err := h.clients.Get(ctx, req.ClientID)
	if err != nil && !repository.IsNotFound(err) {
		return nil, apperr.Dependency("store_unavailable", "failed to load existing registration", err)
	}

	now := time.Now().UTC()
	client := &repository.Client{
		ClientID:     req.ClientID,
		AuthToken:    req.AuthToken,
		Version:      req.Version,
		RoomID:       req.RoomID,
		Capabilities: req.Capabilities,
		Metadata:     req.Metadata,
		RegisteredAt: now,
		LastSeen:     now,
		Status:       repository.ClientActive,
	}

	if existing != nil {
		// A verified re-registration of an existing client_id is a
		// socket-level reclaim, not a record conflict (§4.3's note:
		// registration conflict refers to the persistent record, while
		// a second socket claiming an already-registered identity is
		// handled by session-level eviction). internal/session.Bind
		// evicts whatever socket previously held this client_id once
		// the broker binds the new one.
		if err := h.clients.Update(ctx, client); err != nil {
			return nil, apperr.Dependency("store_unavailable", "failed to persist registration", err)
		}
	} else {
		if err := h.clients.Create(ctx, client); err != nil {
			if repository.IsConflict(err) {
				// A genuine store-level conflict: another registration
				// raced this one to create the same never-before-seen
				// client_id between our Get and this Create.
				return nil, apperr.State(apperr.StatusConflict, "duplicate_registration", "client_id already has an active registration")
			}
			return nil, apperr.Dependency("store_unavailable", "failed to persist registration", err)
		}
	}

	sessionID := uuid.New()
	h.events.Publish("client_registered", []string{req.ClientID}, nil)
	metrics.RecordRegistration()

	return &RegisterResult{ClientID: req.ClientID, SessionID: sessionID}, nil
}

// Unregister implements the UNREGISTER (0x22) policy in §4.3.
func (h *Handler) Unregister(ctx context.Context, req message.Unregister) error {
	client, err := h.authenticate(ctx, req.ClientID, req.AuthToken)
	if err != nil {
		return err
	}

	if h.leaver != nil {
		if err := h.leaver.LeaveAllForClient(ctx, req.ClientID, req.AuthToken); err != nil {
			// §4.3: "failure of that step is logged but does not block
			// deregistration of the client."
			h.logger.Warn("room leave during unregister failed", zap.String("client_id", req.ClientID), zap.Error(err))
		}
	}

	if err := h.clients.Delete(ctx, client.ClientID); err != nil && !repository.IsNotFound(err) {
		return apperr.Dependency("store_unavailable", "failed to delete registration", err)
	}

	h.events.Publish("client_unregistered", []string{req.ClientID}, nil)
	return nil
}

// authenticate validates (client_id, auth_token) against the store with
// a constant-time compare on the token (§4.3).
func (h *Handler) authenticate(ctx context.Context, clientID, authToken string) (*repository.Client, error) {
	client, err := h.clients.Get(ctx, clientID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperr.Auth("unknown_client", "no registration found for client_id")
		}
		return nil, apperr.Dependency("store_unavailable", "failed to load registration", err)
	}
	if subtle.ConstantTimeCompare([]byte(client.AuthToken), []byte(authToken)) != 1 {
		return nil, apperr.Auth("token_mismatch", "auth_token does not match")
	}
	return client, nil
}

// Authenticate is exported for use by roomsvc and signaling, which need
// the same (client_id, auth_token) check without re-registering.
func (h *Handler) Authenticate(ctx context.Context, clientID, authToken string) (*repository.Client, error) {
	return h.authenticate(ctx, clientID, authToken)
}

func validateClientID(id string) error {
	if id == "" {
		return apperr.Protocol("missing_field", "client_id is required")
	}
	if len(id) > maxClientIDLength {
		return apperr.Protocol("invalid_field", "client_id exceeds maximum length")
	}
	for _, r := range id {
		if !unicode.IsPrint(r) {
			return apperr.Protocol("invalid_field", "client_id must be printable")
		}
	}
	return nil
}

// compareVersions lexicographically compares dotted-numeric version
// strings (§4.3). Returns <0, 0, >0 as a.compareTo(b).
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			return av - bv
		}
	}
	return 0
}
