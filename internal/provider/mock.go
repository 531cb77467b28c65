package provider

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a test double for RealtimeProvider (§4.6: "a mock
// implementation is used in tests"). It records calls so tests can
// assert on orphan-session cleanup (S5) and idempotent terminate.
type Mock struct {
	mu sync.Mutex

	nextSessionID int
	sessions      map[string]bool // sessionIDExt -> alive

	FailCreateSession bool
	CreateCalls       int
	TerminateCalls    int
}

func NewMock() *Mock {
	return &Mock{sessions: make(map[string]bool)}
}

func (m *Mock) CreateSession(_ context.Context, _ string, offer SessionDescription) (*CreateSessionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.FailCreateSession {
		return nil, fmt.Errorf("mock provider: status 503: simulated failure")
	}
	m.nextSessionID++
	id := fmt.Sprintf("ext-session-%d", m.nextSessionID)
	m.sessions[id] = true
	return &CreateSessionResult{
		SessionIDExt: id,
		Answer:       SessionDescription{Type: "answer", SDP: "v=0\r\no=mock\r\n" + offer.SDP},
	}, nil
}

func (m *Mock) AddTracks(_ context.Context, _, sessionIDExt string, _ []Track) (*TracksResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sessions[sessionIDExt] {
		return nil, fmt.Errorf("mock provider: session %s not found", sessionIDExt)
	}
	return &TracksResult{}, nil
}

func (m *Mock) PullTracks(_ context.Context, _, sessionIDExt string, _ []Track) (*TracksResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sessions[sessionIDExt] {
		return nil, fmt.Errorf("mock provider: session %s not found", sessionIDExt)
	}
	sdp := SessionDescription{Type: "offer", SDP: "v=0\r\no=mock-pull\r\n"}
	return &TracksResult{Renegotiation: &sdp}, nil
}

func (m *Mock) TerminateSession(_ context.Context, _, sessionIDExt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TerminateCalls++
	delete(m.sessions, sessionIDExt) // idempotent: deleting an absent key is a no-op
	return nil
}

// Alive reports whether the mock still considers a session live, for
// tests asserting "no orphan session on provider" (S5).
func (m *Mock) Alive(sessionIDExt string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionIDExt]
}
