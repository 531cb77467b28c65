package provider

import (
	"context"
	"testing"
)

func TestMockCreateSessionFailureLeavesNoSession(t *testing.T) {
	m := NewMock()
	m.FailCreateSession = true

	_, err := m.CreateSession(context.Background(), "app-1", SessionDescription{SDP: "offer"})
	if err == nil {
		t.Fatal("expected error from simulated failure")
	}
	if m.CreateCalls != 1 {
		t.Errorf("CreateCalls = %d, want 1", m.CreateCalls)
	}
}

func TestMockTerminateIsIdempotent(t *testing.T) {
	m := NewMock()
	result, err := m.CreateSession(context.Background(), "app-1", SessionDescription{SDP: "offer"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if !m.Alive(result.SessionIDExt) {
		t.Fatal("expected session to be alive after create")
	}

	if err := m.TerminateSession(context.Background(), "app-1", result.SessionIDExt); err != nil {
		t.Fatalf("TerminateSession: %v", err)
	}
	if err := m.TerminateSession(context.Background(), "app-1", result.SessionIDExt); err != nil {
		t.Fatalf("second TerminateSession should also succeed: %v", err)
	}
	if m.Alive(result.SessionIDExt) {
		t.Error("expected session to be gone after terminate")
	}
}
