package gormrepo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/screenbroker/broker/internal/repository"
)

// Repo bundles gorm-backed implementations of all five repository
// contracts over a single *gorm.DB, mirroring the teacher's pattern of
// one DB handle shared across model-specific helper functions.
type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repo { return &Repo{db: db} }

// Migrate runs AutoMigrate for every row type, the gorm equivalent of
// the teacher's migration step in internal/database.
func (r *Repo) Migrate() error {
	return r.db.AutoMigrate(&clientRow{}, &roomRow{}, &membershipRow{}, &terminationRow{}, &auditRow{})
}

func (r *Repo) Clients() repository.ClientRepository         { return (*clientRepo)(r) }
func (r *Repo) Rooms() repository.RoomRepository             { return (*roomRepo)(r) }
func (r *Repo) Memberships() repository.MembershipRepository { return (*membershipRepo)(r) }
func (r *Repo) Terminations() repository.TerminationRepository {
	return (*terminationRepo)(r)
}
func (r *Repo) CreationAudits() repository.CreationAuditRepository { return (*auditRepo)(r) }

func toJSON(v interface{}) datatypes.JSON {
	if v == nil {
		return datatypes.JSON([]byte("null"))
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte("null"))
	}
	return datatypes.JSON(b)
}

func fromJSONMap(j datatypes.JSON) map[string]interface{} {
	if len(j) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(j, &m); err != nil {
		return nil
	}
	return m
}

func fromJSONStrings(j datatypes.JSON) []string {
	if len(j) == 0 {
		return nil
	}
	var s []string
	if err := json.Unmarshal(j, &s); err != nil {
		return nil
	}
	return s
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repository.NewError(repository.KindNotFound, op, err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repository.NewError(repository.KindConflict, op, err)
	}
	return repository.NewError(repository.KindInternal, op, err)
}

type clientRepo Repo

func (r *clientRepo) Create(ctx context.Context, c *repository.Client) error {
	row := clientRow{
		ClientID:     c.ClientID,
		AuthToken:    c.AuthToken,
		Version:      c.Version,
		RoomID:       c.RoomID,
		Capabilities: toJSON(c.Capabilities),
		Metadata:     toJSON(c.Metadata),
		RegisteredAt: c.RegisteredAt,
		LastSeen:     c.LastSeen,
		Status:       string(c.Status),
	}
	return classify("ClientRepository.Create", (*Repo)(r).db.WithContext(ctx).Create(&row).Error)
}

func (r *clientRepo) Get(ctx context.Context, clientID string) (*repository.Client, error) {
	var row clientRow
	if err := (*Repo)(r).db.WithContext(ctx).First(&row, "client_id = ?", clientID).Error; err != nil {
		return nil, classify("ClientRepository.Get", err)
	}
	return rowToClient(row), nil
}

func (r *clientRepo) Update(ctx context.Context, c *repository.Client) error {
	row := clientRow{
		ClientID:     c.ClientID,
		AuthToken:    c.AuthToken,
		Version:      c.Version,
		RoomID:       c.RoomID,
		Capabilities: toJSON(c.Capabilities),
		Metadata:     toJSON(c.Metadata),
		RegisteredAt: c.RegisteredAt,
		LastSeen:     c.LastSeen,
		Status:       string(c.Status),
	}
	res := (*Repo)(r).db.WithContext(ctx).Model(&clientRow{}).Where("client_id = ?", c.ClientID).Updates(&row)
	if res.Error != nil {
		return classify("ClientRepository.Update", res.Error)
	}
	if res.RowsAffected == 0 {
		return classify("ClientRepository.Update", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *clientRepo) Delete(ctx context.Context, clientID string) error {
	res := (*Repo)(r).db.WithContext(ctx).Delete(&clientRow{}, "client_id = ?", clientID)
	if res.Error != nil {
		return classify("ClientRepository.Delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return classify("ClientRepository.Delete", gorm.ErrRecordNotFound)
	}
	return nil
}

func rowToClient(row clientRow) *repository.Client {
	return &repository.Client{
		ClientID:     row.ClientID,
		AuthToken:    row.AuthToken,
		Version:      row.Version,
		RoomID:       row.RoomID,
		Capabilities: fromJSONStrings(row.Capabilities),
		Metadata:     fromJSONMap(row.Metadata),
		RegisteredAt: row.RegisteredAt,
		LastSeen:     row.LastSeen,
		Status:       repository.ClientStatus(row.Status),
	}
}

type roomRepo Repo

func (r *roomRepo) Create(ctx context.Context, room *repository.Room) error {
	row := roomToRow(room)
	return classify("RoomRepository.Create", (*Repo)(r).db.WithContext(ctx).Create(&row).Error)
}

func (r *roomRepo) Get(ctx context.Context, roomID string) (*repository.Room, error) {
	var row roomRow
	if err := (*Repo)(r).db.WithContext(ctx).First(&row, "room_id = ?", roomID).Error; err != nil {
		return nil, classify("RoomRepository.Get", err)
	}
	return rowToRoom(row), nil
}

func (r *roomRepo) Update(ctx context.Context, room *repository.Room) error {
	row := roomToRow(room)
	res := (*Repo)(r).db.WithContext(ctx).Model(&roomRow{}).Where("room_id = ?", room.RoomID).Select("*").Updates(&row)
	if res.Error != nil {
		return classify("RoomRepository.Update", res.Error)
	}
	if res.RowsAffected == 0 {
		return classify("RoomRepository.Update", gorm.ErrRecordNotFound)
	}
	return nil
}

// List returns every known room, for admin-plane introspection.
func (r *roomRepo) List(ctx context.Context) ([]*repository.Room, error) {
	var rows []roomRow
	if err := (*Repo)(r).db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, classify("RoomRepository.List", err)
	}
	out := make([]*repository.Room, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToRoom(row))
	}
	return out, nil
}

func (r *roomRepo) Delete(ctx context.Context, roomID string) error {
	res := (*Repo)(r).db.WithContext(ctx).Delete(&roomRow{}, "room_id = ?", roomID)
	if res.Error != nil {
		return classify("RoomRepository.Delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return classify("RoomRepository.Delete", gorm.ErrRecordNotFound)
	}
	return nil
}

func roomToRow(room *repository.Room) roomRow {
	return roomRow{
		RoomID:           room.RoomID,
		AppID:            room.AppID,
		SessionIDExt:     room.SessionIDExt,
		SenderClientID:   room.SenderClientID,
		ReceiverClientID: room.ReceiverClientID,
		Status:           string(room.Status),
		Metadata:         toJSON(room.Metadata),
		CreatedAt:        room.CreatedAt,
	}
}

func rowToRoom(row roomRow) *repository.Room {
	return &repository.Room{
		RoomID:           row.RoomID,
		AppID:            row.AppID,
		SessionIDExt:     row.SessionIDExt,
		SenderClientID:   row.SenderClientID,
		ReceiverClientID: row.ReceiverClientID,
		Status:           repository.RoomStatus(row.Status),
		Metadata:         fromJSONMap(row.Metadata),
		CreatedAt:        row.CreatedAt,
	}
}

type membershipRepo Repo

func (r *membershipRepo) Create(ctx context.Context, m *repository.Membership) error {
	row := membershipRow{
		ClientID:     m.ClientID,
		RoomID:       m.RoomID,
		Role:         string(m.Role),
		JoinedAt:     m.JoinedAt,
		LastActivity: m.LastActivity,
		Status:       string(m.Status),
	}
	return classify("MembershipRepository.Create", (*Repo)(r).db.WithContext(ctx).Create(&row).Error)
}

func (r *membershipRepo) GetByClient(ctx context.Context, clientID string) (*repository.Membership, error) {
	var row membershipRow
	if err := (*Repo)(r).db.WithContext(ctx).First(&row, "client_id = ?", clientID).Error; err != nil {
		return nil, classify("MembershipRepository.GetByClient", err)
	}
	return rowToMembership(row), nil
}

func (r *membershipRepo) ListByRoom(ctx context.Context, roomID string) ([]*repository.Membership, error) {
	var rows []membershipRow
	if err := (*Repo)(r).db.WithContext(ctx).Find(&rows, "room_id = ?", roomID).Error; err != nil {
		return nil, classify("MembershipRepository.ListByRoom", err)
	}
	out := make([]*repository.Membership, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToMembership(row))
	}
	return out, nil
}

func (r *membershipRepo) Update(ctx context.Context, m *repository.Membership) error {
	row := membershipRow{
		ClientID:     m.ClientID,
		RoomID:       m.RoomID,
		Role:         string(m.Role),
		JoinedAt:     m.JoinedAt,
		LastActivity: m.LastActivity,
		Status:       string(m.Status),
	}
	res := (*Repo)(r).db.WithContext(ctx).Model(&membershipRow{}).Where("client_id = ?", m.ClientID).Updates(&row)
	if res.Error != nil {
		return classify("MembershipRepository.Update", res.Error)
	}
	if res.RowsAffected == 0 {
		return classify("MembershipRepository.Update", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *membershipRepo) Delete(ctx context.Context, clientID, roomID string) error {
	res := (*Repo)(r).db.WithContext(ctx).Delete(&membershipRow{}, "client_id = ? AND room_id = ?", clientID, roomID)
	if res.Error != nil {
		return classify("MembershipRepository.Delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return classify("MembershipRepository.Delete", gorm.ErrRecordNotFound)
	}
	return nil
}

func rowToMembership(row membershipRow) *repository.Membership {
	return &repository.Membership{
		ClientID:     row.ClientID,
		RoomID:       row.RoomID,
		Role:         repository.MembershipRole(row.Role),
		JoinedAt:     row.JoinedAt,
		LastActivity: row.LastActivity,
		Status:       repository.MembershipStatus(row.Status),
	}
}

type terminationRepo Repo

func (r *terminationRepo) Create(ctx context.Context, t *repository.Termination) error {
	row := terminationRow{
		RoomID:            t.RoomID,
		TerminatedAt:      t.TerminatedAt,
		TerminationReason: t.TerminationReason,
		TerminatedBy:      t.TerminatedBy,
		LastRoomSnapshot:  toJSON(t.LastRoomSnapshot),
	}
	return classify("TerminationRepository.Create", (*Repo)(r).db.WithContext(ctx).Create(&row).Error)
}

func (r *terminationRepo) Get(ctx context.Context, roomID string) (*repository.Termination, error) {
	var row terminationRow
	if err := (*Repo)(r).db.WithContext(ctx).First(&row, "room_id = ?", roomID).Error; err != nil {
		return nil, classify("TerminationRepository.Get", err)
	}
	var snapshot repository.Room
	_ = json.Unmarshal(row.LastRoomSnapshot, &snapshot)
	return &repository.Termination{
		RoomID:            row.RoomID,
		TerminatedAt:      row.TerminatedAt,
		TerminationReason: row.TerminationReason,
		TerminatedBy:      row.TerminatedBy,
		LastRoomSnapshot:  snapshot,
	}, nil
}

type auditRepo Repo

func (r *auditRepo) Create(ctx context.Context, a *repository.CreationAudit) error {
	row := auditRow{
		RoomID:       a.RoomID,
		ClientID:     a.ClientID,
		SessionIDExt: a.SessionIDExt,
		CreatedAt:    a.CreatedAt,
		Outcome:      a.Outcome,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return classify("CreationAuditRepository.Create", (*Repo)(r).db.WithContext(ctx).Create(&row).Error)
}

func (r *auditRepo) ListByRoom(ctx context.Context, roomID string) ([]*repository.CreationAudit, error) {
	var rows []auditRow
	if err := (*Repo)(r).db.WithContext(ctx).Find(&rows, "room_id = ?", roomID).Error; err != nil {
		return nil, classify("CreationAuditRepository.ListByRoom", err)
	}
	out := make([]*repository.CreationAudit, 0, len(rows))
	for _, row := range rows {
		out = append(out, &repository.CreationAudit{
			RoomID:       row.RoomID,
			ClientID:     row.ClientID,
			SessionIDExt: row.SessionIDExt,
			CreatedAt:    row.CreatedAt,
			Outcome:      row.Outcome,
		})
	}
	return out, nil
}
