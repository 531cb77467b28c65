package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/screenbroker/broker/internal/repository"
	"github.com/screenbroker/broker/internal/repository/memrepo"
)

func newTestServer(t *testing.T) (*Server, *memrepo.Store) {
	t.Helper()
	store := memrepo.NewStore()
	cfg := Config{TokenSecret: "test-secret", DefaultTokenTTL: time.Hour, MaxTokenTTL: 24 * time.Hour}
	return New(cfg, store.Rooms(), zap.NewNop()), store
}

func TestIssueTokenRequiresClientAndRoom(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(TokenRequest{ClientID: "", RoomID: "r1"})
	req := httptest.NewRequest("POST", "/api/v1/tokens", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Errorf("expected 400 for missing client_id, got %d", resp.StatusCode)
	}
}

func TestIssueTokenSucceeds(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(TokenRequest{ClientID: "u1", RoomID: "r1", DurationSeconds: 120})
	req := httptest.NewRequest("POST", "/api/v1/tokens", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var out TokenResponse
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if out.Token == "" {
		t.Error("expected a non-empty signed token")
	}
	if out.ClientID != "u1" || out.RoomID != "r1" {
		t.Errorf("unexpected response: %+v", out)
	}
}

func TestListRoomsReturnsRepositoryContents(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()
	if err := store.Rooms().Create(ctx, &repository.Room{
		RoomID: "r1", AppID: "app-1", SessionIDExt: "sess-1", Status: repository.RoomActive, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed room: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/rooms", nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var views []RoomView
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &views); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(views) != 1 || views[0].RoomID != "r1" {
		t.Errorf("expected one room r1, got %+v", views)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/metrics"} {
		req := httptest.NewRequest("GET", path, nil)
		resp, err := s.app.Test(req)
		if err != nil {
			t.Fatalf("Test(%s): %v", path, err)
		}
		if resp.StatusCode != 200 {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}
