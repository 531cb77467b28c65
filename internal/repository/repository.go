// Package repository defines the persistence contracts the broker
// depends on (§4.7) and the domain records they carry (§3), independent
// of any concrete store.
package repository

import (
	"context"
	"time"
)

// ClientStatus is the lifecycle status of a Client Registration (§3).
type ClientStatus string

const (
	ClientActive    ClientStatus = "Active"
	ClientInactive  ClientStatus = "Inactive"
	ClientSuspended ClientStatus = "Suspended"
	ClientPending   ClientStatus = "Pending"
)

// Client is a persisted Client Registration record (§3).
type Client struct {
	ClientID     string
	AuthToken    string // opaque, compared verbatim (§3)
	Version      string
	RoomID       string
	Capabilities []string
	Metadata     map[string]interface{}
	RegisteredAt time.Time
	LastSeen     time.Time
	Status       ClientStatus
}

// RoomStatus is the lifecycle status of a Room (§3).
type RoomStatus string

const (
	RoomPending    RoomStatus = "Pending"
	RoomActive     RoomStatus = "Active"
	RoomInactive   RoomStatus = "Inactive"
	RoomTerminated RoomStatus = "Terminated"
)

// Room is a persisted Room record (§3).
type Room struct {
	RoomID           string
	AppID            string
	SessionIDExt     string
	SenderClientID   string
	ReceiverClientID string
	Status           RoomStatus
	Metadata         map[string]interface{}
	CreatedAt        time.Time
}

// MembershipRole mirrors message.Role for the persisted record.
type MembershipRole string

const (
	MembershipSender   MembershipRole = "Sender"
	MembershipReceiver MembershipRole = "Receiver"
)

type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "Active"
	MembershipInactive MembershipStatus = "Inactive"
)

// Membership is a persisted client-in-room association (§3).
type Membership struct {
	ClientID     string
	RoomID       string
	Role         MembershipRole
	JoinedAt     time.Time
	LastActivity time.Time
	Status       MembershipStatus
}

// Termination is an immutable historical record (§3), created atomically
// with a Room's removal from the active set.
type Termination struct {
	RoomID            string
	TerminatedAt      time.Time
	TerminationReason string
	TerminatedBy      string
	// LastRoomSnapshot captures the Room's fields at the moment of
	// termination, for post-hoc audit.
	LastRoomSnapshot Room
}

// CreationAudit records the intended outcome of a Room-creation
// transaction (§9: "record the intended outcome ... so operators can
// detect drift" even when the underlying store cannot provide
// multi-document atomicity).
type CreationAudit struct {
	RoomID       string
	ClientID     string
	SessionIDExt string
	CreatedAt    time.Time
	Outcome      string // "committed", "compensated", "compensation_failed"
}

// ClientRepository persists Client Registration records.
type ClientRepository interface {
	Create(ctx context.Context, c *Client) error
	Get(ctx context.Context, clientID string) (*Client, error)
	Update(ctx context.Context, c *Client) error
	Delete(ctx context.Context, clientID string) error
}

// RoomRepository persists Room records.
type RoomRepository interface {
	Create(ctx context.Context, r *Room) error
	Get(ctx context.Context, roomID string) (*Room, error)
	Update(ctx context.Context, r *Room) error
	Delete(ctx context.Context, roomID string) error
	List(ctx context.Context) ([]*Room, error)
}

// MembershipRepository persists Membership records.
type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) error
	GetByClient(ctx context.Context, clientID string) (*Membership, error)
	ListByRoom(ctx context.Context, roomID string) ([]*Membership, error)
	Update(ctx context.Context, m *Membership) error
	Delete(ctx context.Context, clientID, roomID string) error
}

// TerminationRepository persists Termination records.
type TerminationRepository interface {
	Create(ctx context.Context, t *Termination) error
	Get(ctx context.Context, roomID string) (*Termination, error)
}

// CreationAuditRepository persists CreationAudit records.
type CreationAuditRepository interface {
	Create(ctx context.Context, a *CreationAudit) error
	ListByRoom(ctx context.Context, roomID string) ([]*CreationAudit, error)
}
