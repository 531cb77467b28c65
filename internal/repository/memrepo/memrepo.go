// Package memrepo implements the broker's repository contracts entirely
// in memory, guarded by sync.RWMutex per collection (§4.7: "one
// in-memory for tests").
package memrepo

import (
	"context"
	"sync"

	"github.com/screenbroker/broker/internal/repository"
)

// Store is a single in-memory backing for all five repository contracts,
// sharing one instance so handler tests can see cross-collection effects
// (e.g. a Room created in one test step and read back in the next).
type Store struct {
	clientsMu sync.RWMutex
	clients   map[string]*repository.Client

	roomsMu sync.RWMutex
	rooms   map[string]*repository.Room

	membershipsMu sync.RWMutex
	memberships   map[string]*repository.Membership // keyed by client_id

	terminationsMu sync.RWMutex
	terminations   map[string]*repository.Termination

	auditsMu sync.RWMutex
	audits   map[string][]*repository.CreationAudit
}

func NewStore() *Store {
	return &Store{
		clients:      make(map[string]*repository.Client),
		rooms:        make(map[string]*repository.Room),
		memberships:  make(map[string]*repository.Membership),
		terminations: make(map[string]*repository.Termination),
		audits:       make(map[string][]*repository.CreationAudit),
	}
}

func clone[T any](v T) *T {
	cp := v
	return &cp
}

// Clients returns a ClientRepository view over the store.
func (s *Store) Clients() repository.ClientRepository { return (*clientRepo)(s) }

// Rooms returns a RoomRepository view over the store.
func (s *Store) Rooms() repository.RoomRepository { return (*roomRepo)(s) }

// Memberships returns a MembershipRepository view over the store.
func (s *Store) Memberships() repository.MembershipRepository { return (*membershipRepo)(s) }

// Terminations returns a TerminationRepository view over the store.
func (s *Store) Terminations() repository.TerminationRepository { return (*terminationRepo)(s) }

// CreationAudits returns a CreationAuditRepository view over the store.
func (s *Store) CreationAudits() repository.CreationAuditRepository { return (*auditRepo)(s) }

type clientRepo Store

func (r *clientRepo) Create(_ context.Context, c *repository.Client) error {
	s := (*Store)(r)
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if _, exists := s.clients[c.ClientID]; exists {
		return repository.NewError(repository.KindConflict, "ClientRepository.Create", nil)
	}
	s.clients[c.ClientID] = clone(*c)
	return nil
}

func (r *clientRepo) Get(_ context.Context, clientID string) (*repository.Client, error) {
	s := (*Store)(r)
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	c, ok := s.clients[clientID]
	if !ok {
		return nil, repository.NewError(repository.KindNotFound, "ClientRepository.Get", nil)
	}
	return clone(*c), nil
}

func (r *clientRepo) Update(_ context.Context, c *repository.Client) error {
	s := (*Store)(r)
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if _, ok := s.clients[c.ClientID]; !ok {
		return repository.NewError(repository.KindNotFound, "ClientRepository.Update", nil)
	}
	s.clients[c.ClientID] = clone(*c)
	return nil
}

func (r *clientRepo) Delete(_ context.Context, clientID string) error {
	s := (*Store)(r)
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if _, ok := s.clients[clientID]; !ok {
		return repository.NewError(repository.KindNotFound, "ClientRepository.Delete", nil)
	}
	delete(s.clients, clientID)
	return nil
}

type roomRepo Store

func (r *roomRepo) Create(_ context.Context, room *repository.Room) error {
	s := (*Store)(r)
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	if _, exists := s.rooms[room.RoomID]; exists {
		return repository.NewError(repository.KindConflict, "RoomRepository.Create", nil)
	}
	s.rooms[room.RoomID] = clone(*room)
	return nil
}

func (r *roomRepo) Get(_ context.Context, roomID string) (*repository.Room, error) {
	s := (*Store)(r)
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, repository.NewError(repository.KindNotFound, "RoomRepository.Get", nil)
	}
	return clone(*room), nil
}

func (r *roomRepo) Update(_ context.Context, room *repository.Room) error {
	s := (*Store)(r)
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	if _, ok := s.rooms[room.RoomID]; !ok {
		return repository.NewError(repository.KindNotFound, "RoomRepository.Update", nil)
	}
	s.rooms[room.RoomID] = clone(*room)
	return nil
}

// List returns every known room, for admin-plane introspection.
func (r *roomRepo) List(_ context.Context) ([]*repository.Room, error) {
	s := (*Store)(r)
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	out := make([]*repository.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, clone(*room))
	}
	return out, nil
}

func (r *roomRepo) Delete(_ context.Context, roomID string) error {
	s := (*Store)(r)
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return repository.NewError(repository.KindNotFound, "RoomRepository.Delete", nil)
	}
	delete(s.rooms, roomID)
	return nil
}

type membershipRepo Store

func (r *membershipRepo) Create(_ context.Context, m *repository.Membership) error {
	s := (*Store)(r)
	s.membershipsMu.Lock()
	defer s.membershipsMu.Unlock()
	if existing, ok := s.memberships[m.ClientID]; ok && existing.Status == repository.MembershipActive {
		return repository.NewError(repository.KindConflict, "MembershipRepository.Create", nil)
	}
	s.memberships[m.ClientID] = clone(*m)
	return nil
}

func (r *membershipRepo) GetByClient(_ context.Context, clientID string) (*repository.Membership, error) {
	s := (*Store)(r)
	s.membershipsMu.RLock()
	defer s.membershipsMu.RUnlock()
	m, ok := s.memberships[clientID]
	if !ok {
		return nil, repository.NewError(repository.KindNotFound, "MembershipRepository.GetByClient", nil)
	}
	return clone(*m), nil
}

func (r *membershipRepo) ListByRoom(_ context.Context, roomID string) ([]*repository.Membership, error) {
	s := (*Store)(r)
	s.membershipsMu.RLock()
	defer s.membershipsMu.RUnlock()
	var out []*repository.Membership
	for _, m := range s.memberships {
		if m.RoomID == roomID {
			out = append(out, clone(*m))
		}
	}
	return out, nil
}

func (r *membershipRepo) Update(_ context.Context, m *repository.Membership) error {
	s := (*Store)(r)
	s.membershipsMu.Lock()
	defer s.membershipsMu.Unlock()
	if _, ok := s.memberships[m.ClientID]; !ok {
		return repository.NewError(repository.KindNotFound, "MembershipRepository.Update", nil)
	}
	s.memberships[m.ClientID] = clone(*m)
	return nil
}

func (r *membershipRepo) Delete(_ context.Context, clientID, roomID string) error {
	s := (*Store)(r)
	s.membershipsMu.Lock()
	defer s.membershipsMu.Unlock()
	m, ok := s.memberships[clientID]
	if !ok || m.RoomID != roomID {
		return repository.NewError(repository.KindNotFound, "MembershipRepository.Delete", nil)
	}
	delete(s.memberships, clientID)
	return nil
}

type terminationRepo Store

func (r *terminationRepo) Create(_ context.Context, t *repository.Termination) error {
	s := (*Store)(r)
	s.terminationsMu.Lock()
	defer s.terminationsMu.Unlock()
	s.terminations[t.RoomID] = clone(*t)
	return nil
}

func (r *terminationRepo) Get(_ context.Context, roomID string) (*repository.Termination, error) {
	s := (*Store)(r)
	s.terminationsMu.RLock()
	defer s.terminationsMu.RUnlock()
	t, ok := s.terminations[roomID]
	if !ok {
		return nil, repository.NewError(repository.KindNotFound, "TerminationRepository.Get", nil)
	}
	return clone(*t), nil
}

type auditRepo Store

func (r *auditRepo) Create(_ context.Context, a *repository.CreationAudit) error {
	s := (*Store)(r)
	s.auditsMu.Lock()
	defer s.auditsMu.Unlock()
	s.audits[a.RoomID] = append(s.audits[a.RoomID], clone(*a))
	return nil
}

func (r *auditRepo) ListByRoom(_ context.Context, roomID string) ([]*repository.CreationAudit, error) {
	s := (*Store)(r)
	s.auditsMu.RLock()
	defer s.auditsMu.RUnlock()
	return append([]*repository.CreationAudit(nil), s.audits[roomID]...), nil
}
