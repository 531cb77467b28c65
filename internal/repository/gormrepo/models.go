// Package gormrepo implements the broker's repository contracts against
// Postgres via gorm, following the column conventions of the teacher's
// database models (natural varchar primary keys, a uuid key on the audit
// rows, autoCreateTime/autoUpdateTime,
// jsonb columns serialized through datatypes.JSON).
package gormrepo

import (
	"time"

	"gorm.io/datatypes"
)

// clientRow is the durable row for a Client Registration (§3).
type clientRow struct {
	ClientID     string         `gorm:"primaryKey;type:varchar(128)"`
	AuthToken    string         `gorm:"type:varchar(255);not null"`
	Version      string         `gorm:"type:varchar(32)"`
	RoomID       string         `gorm:"type:varchar(64);index"`
	Capabilities datatypes.JSON `gorm:"type:jsonb;default:'[]';serializer:json"`
	Metadata     datatypes.JSON `gorm:"type:jsonb;default:'{}';serializer:json"`
	RegisteredAt time.Time      `gorm:"autoCreateTime"`
	LastSeen     time.Time      `gorm:"autoUpdateTime"`
	Status       string         `gorm:"type:varchar(32);index;not null"`
}

func (clientRow) TableName() string { return "clients" }

// roomRow is the durable row for a Room (§3).
type roomRow struct {
	RoomID           string         `gorm:"primaryKey;type:varchar(64)"`
	AppID            string         `gorm:"type:varchar(128);not null"`
	SessionIDExt     string         `gorm:"type:varchar(128);index"`
	SenderClientID   string         `gorm:"type:varchar(128);index"`
	ReceiverClientID string         `gorm:"type:varchar(128);index"`
	Status           string         `gorm:"type:varchar(32);index;not null"`
	Metadata         datatypes.JSON `gorm:"type:jsonb;default:'{}';serializer:json"`
	CreatedAt        time.Time      `gorm:"autoCreateTime"`
}

func (roomRow) TableName() string { return "rooms" }

// membershipRow is the durable row for a Membership (§3).
type membershipRow struct {
	ClientID     string    `gorm:"primaryKey;type:varchar(128)"`
	RoomID       string    `gorm:"type:varchar(64);index;not null"`
	Role         string    `gorm:"type:varchar(16);not null"`
	JoinedAt     time.Time `gorm:"autoCreateTime"`
	LastActivity time.Time `gorm:"autoUpdateTime"`
	Status       string    `gorm:"type:varchar(32);index;not null"`
}

func (membershipRow) TableName() string { return "memberships" }

// terminationRow is the durable row for a Termination record (§3):
// immutable, one per terminated room.
type terminationRow struct {
	RoomID            string         `gorm:"primaryKey;type:varchar(64)"`
	TerminatedAt      time.Time      `gorm:"autoCreateTime"`
	TerminationReason string         `gorm:"type:varchar(255)"`
	TerminatedBy      string         `gorm:"type:varchar(128)"`
	LastRoomSnapshot  datatypes.JSON `gorm:"type:jsonb;serializer:json"`
}

func (terminationRow) TableName() string { return "terminated_rooms" }

// auditRow is the durable row for a CreationAudit record (§9).
type auditRow struct {
	ID           string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	RoomID       string    `gorm:"type:varchar(64);index;not null"`
	ClientID     string    `gorm:"type:varchar(128)"`
	SessionIDExt string    `gorm:"type:varchar(128)"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	Outcome      string    `gorm:"type:varchar(32)"`
}

func (auditRow) TableName() string { return "creation_audit" }
