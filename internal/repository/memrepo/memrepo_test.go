package memrepo

import (
	"context"
	"testing"
	"time"

	"github.com/screenbroker/broker/internal/repository"
)

func TestClientCreateGetUpdateDelete(t *testing.T) {
	store := NewStore()
	clients := store.Clients()
	ctx := context.Background()

	c := &repository.Client{ClientID: "u1", AuthToken: "t1", Status: repository.ClientActive, RegisteredAt: time.Now()}
	if err := clients.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := clients.Create(ctx, c); !repository.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	got, err := clients.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AuthToken != "t1" {
		t.Errorf("AuthToken = %q, want t1", got.AuthToken)
	}

	got.Status = repository.ClientInactive
	if err := clients.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	reread, _ := clients.Get(ctx, "u1")
	if reread.Status != repository.ClientInactive {
		t.Errorf("Status after update = %v, want Inactive", reread.Status)
	}

	if err := clients.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := clients.Get(ctx, "u1"); !repository.IsNotFound(err) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestMembershipAtMostOneActive(t *testing.T) {
	store := NewStore()
	memberships := store.Memberships()
	ctx := context.Background()

	m := &repository.Membership{ClientID: "u1", RoomID: "r1", Role: repository.MembershipSender, Status: repository.MembershipActive}
	if err := memberships.Create(ctx, m); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := memberships.Create(ctx, m); !repository.IsConflict(err) {
		t.Fatalf("expected conflict on second active membership, got %v", err)
	}
}

func TestRoomCreateGet(t *testing.T) {
	store := NewStore()
	rooms := store.Rooms()
	ctx := context.Background()

	r := &repository.Room{RoomID: "r1", Status: repository.RoomPending, CreatedAt: time.Now()}
	if err := rooms.Create(ctx, r); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := rooms.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != repository.RoomPending {
		t.Errorf("Status = %v, want Pending", got.Status)
	}
}

func TestCreationAuditListByRoom(t *testing.T) {
	store := NewStore()
	audits := store.CreationAudits()
	ctx := context.Background()

	if err := audits.Create(ctx, &repository.CreationAudit{RoomID: "r1", Outcome: "committed"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := audits.Create(ctx, &repository.CreationAudit{RoomID: "r1", Outcome: "compensated"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := audits.ListByRoom(ctx, "r1")
	if err != nil {
		t.Fatalf("ListByRoom: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(list))
	}
}
