package adminapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/screenbroker/broker/internal/metrics"
	"github.com/screenbroker/broker/internal/repository"
)

// RoomView is the operator-facing shape of a Room; it deliberately
// omits nothing sensitive since rooms carry no credentials of their
// own (§3: auth_token lives on the Client record, not the Room).
type RoomView struct {
	RoomID           string    `json:"room_id"`
	AppID            string    `json:"app_id"`
	SessionIDExt     string    `json:"session_id"`
	SenderClientID   string    `json:"sender_client_id,omitempty"`
	ReceiverClientID string    `json:"receiver_client_id,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

func (s *Server) listRooms(c *fiber.Ctx) error {
	rooms, err := s.rooms.List(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list rooms: "+err.Error())
	}

	views := make([]RoomView, 0, len(rooms))
	for _, r := range rooms {
		views = append(views, roomView(r))
	}
	return c.JSON(views)
}

func roomView(r *repository.Room) RoomView {
	return RoomView{
		RoomID: r.RoomID, AppID: r.AppID, SessionIDExt: r.SessionIDExt,
		SenderClientID: r.SenderClientID, ReceiverClientID: r.ReceiverClientID,
		Status: string(r.Status), CreatedAt: r.CreatedAt,
	}
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) metrics(c *fiber.Ctx) error {
	return c.JSON(metrics.Get())
}
