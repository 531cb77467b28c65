package adminapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/screenbroker/broker/internal/authtoken"
)

// TokenRequest is the POST /api/v1/tokens body: mint a provisioning
// token scoping client_id to room_id for a bounded duration.
type TokenRequest struct {
	ClientID        string `json:"client_id"`
	RoomID          string `json:"room_id"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// TokenResponse is handed to the caller and, out-of-band, to the
// client that will present the token string as the protocol's
// auth_token field verbatim.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
	RoomID    string    `json:"room_id"`
}

func (s *Server) issueToken(c *fiber.Ctx) error {
	var req TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.ClientID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "client_id is required")
	}
	if req.RoomID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "room_id is required")
	}

	ttl := s.cfg.DefaultTokenTTL
	if req.DurationSeconds > 0 {
		ttl = time.Duration(req.DurationSeconds) * time.Second
	}
	if ttl > s.cfg.MaxTokenTTL {
		ttl = s.cfg.MaxTokenTTL
	}

	signed, expiresAt, err := authtoken.Mint([]byte(s.cfg.TokenSecret), req.ClientID, req.RoomID, ttl)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to sign token: "+err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(TokenResponse{
		Token: signed, ExpiresAt: expiresAt, ClientID: req.ClientID, RoomID: req.RoomID,
	})
}
