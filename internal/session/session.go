// Package session implements the broker's Session Manager (§4.2): a
// session_id -> Session map with a client_id secondary index, a reader
// and writer task per socket, and the per-session heartbeat state
// machine.
package session

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/screenbroker/broker/internal/frame"
	"github.com/screenbroker/broker/internal/metrics"
)

// State is the per-session heartbeat state machine (§4.2).
type State int32

const (
	AwaitingRegister State = iota
	Live
	Closing
)

func (s State) String() string {
	switch s {
	case AwaitingRegister:
		return "awaiting_register"
	case Live:
		return "live"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// CloseReason names why a session was torn down, carried on the
// courtesy DISCONNECT frame and the session_evicted lifecycle event.
type CloseReason string

const (
	ReasonRegistrationDeadline CloseReason = "registration_deadline"
	ReasonHeartbeatExpired     CloseReason = "heartbeat_expired"
	ReasonSuperseded           CloseReason = "superseded"
	ReasonServerShutdown       CloseReason = "server_shutdown"
	ReasonClientDisconnect     CloseReason = "client_disconnect"
	ReasonProtocolError        CloseReason = "protocol_error"
)

// Dispatcher handles one decoded frame for a session. Implemented by the
// broker wiring package; kept as an interface so this package never
// imports the handler packages (§9: "capability sets with named
// methods").
type Dispatcher interface {
	Dispatch(ctx context.Context, s *Session, f *frame.Frame)
}

// Cleanup is invoked by Manager.Close for a bound session, to run the
// best-effort UNREGISTER-equivalent cleanup described in §4.2. The hook
// cmd/broker installs (roomsvc's LeaveAllForClientSystem) removes the
// client's active Membership and terminates the Room only once neither
// slot is occupied; a departing sender does not by itself terminate a
// Room that still has a receiver.
type Cleanup func(ctx context.Context, clientID string, reason CloseReason)

// EventSink is the narrow slice of the event publisher this package
// depends on, so session doesn't import internal/events directly.
type EventSink interface {
	Publish(eventType string, subjectIDs []string, metadata map[string]interface{})
}

// Session is per-socket runtime state (§3).
type Session struct {
	ID     uuid.UUID
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	sendCh chan *frame.Frame

	mu            sync.RWMutex
	clientID      string
	state         State
	connectedAt   time.Time
	lastActivity  time.Time

	cancel context.CancelFunc
	done   chan struct{}
	logger *zap.Logger
}

// Done returns a channel closed once the session has been fully torn
// down by Manager.Close, for callers (e.g. internal/server's per-IP
// admission bookkeeping) that need to observe session end without
// depending on internal/session's locking.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ClientID returns the registered client_id, or "" before REGISTER.
func (s *Session) ClientID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientID
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Enqueue places a frame on the session's bounded send queue. When the
// queue is full it blocks the caller until space frees up or ctx is done,
// returning ctx.Err() in the latter case; it has no timeout of its own and
// a full queue does not by itself disconnect the peer. It never writes to
// the socket directly; only the writer task touches conn's output side
// (§4.2).
func (s *Session) Enqueue(ctx context.Context, f *frame.Frame) error {
	select {
	case s.sendCh <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config bundles the Manager's timing and sizing knobs (§5, §6).
type Config struct {
	RegistrationTimeout time.Duration
	HeartbeatInterval   time.Duration
	HeartbeatTimeout    time.Duration
	SendQueueSize       int
	MaxMessageSize      int
}

// Manager owns the session_id -> Session map and the client_id ->
// session_id secondary index (§4.2).
type Manager struct {
	cfg    Config
	logger *zap.Logger
	events EventSink
	clean  Cleanup

	mu        sync.RWMutex
	sessions  map[uuid.UUID]*Session
	byClient  map[string]uuid.UUID
}

func NewManager(cfg Config, logger *zap.Logger, events EventSink, clean Cleanup) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		events:   events,
		clean:    clean,
		sessions: make(map[uuid.UUID]*Session),
		byClient: make(map[string]uuid.UUID),
	}
}

// Open allocates a Session for a freshly accepted socket and spawns its
// reader and writer tasks (§4.2 "open").
func (m *Manager) Open(conn net.Conn, dispatcher Dispatcher) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC()

	s := &Session{
		ID:           uuid.New(),
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writer:       bufio.NewWriter(conn),
		sendCh:       make(chan *frame.Frame, m.cfg.SendQueueSize),
		state:        AwaitingRegister,
		connectedAt:  now,
		lastActivity: now,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	s.logger = m.logger.With(zap.String("session_id", s.ID.String()))

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	go m.writerLoop(ctx, s)
	go m.readerLoop(ctx, s, dispatcher)
	go m.heartbeatLoop(ctx, s)

	metrics.RecordSessionOpened()
	return s
}

// Bind attaches a registered client_id to a session (§4.2 "bind"). If
// another session already holds the client_id, it is evicted with a
// courtesy DISCONNECT and closed.
func (m *Manager) Bind(ctx context.Context, s *Session, clientID string) {
	m.mu.Lock()
	if existingID, ok := m.byClient[clientID]; ok && existingID != s.ID {
		if existing, ok := m.sessions[existingID]; ok {
			m.mu.Unlock()
			m.evict(ctx, existing, ReasonSuperseded)
			m.mu.Lock()
		}
	}
	m.byClient[clientID] = s.ID
	m.mu.Unlock()

	s.mu.Lock()
	s.clientID = clientID
	s.state = Live
	s.mu.Unlock()
}

// Touch bumps last_activity (§4.2 "touch"), called on every inbound
// frame.
func (m *Manager) Touch(s *Session, now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// Lookup resolves a bound client_id to its live Session, for the
// signaling passthrough (§4.5).
func (m *Manager) Lookup(clientID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byClient[clientID]
	if !ok {
		return nil, false
	}
	s, ok := m.sessions[id]
	return s, ok
}

// Broadcast enqueues msg on every session matching predicate (§4.2
// "broadcast"); never synchronous.
func (m *Manager) Broadcast(ctx context.Context, f *frame.Frame, predicate func(*Session) bool) {
	m.mu.RLock()
	targets := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if predicate(s) {
			targets = append(targets, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range targets {
		go func(s *Session) {
			_ = s.Enqueue(ctx, f)
		}(s)
	}
}

func (m *Manager) evict(ctx context.Context, s *Session, reason CloseReason) {
	disconnect := evictionFrame(reason)
	_ = s.Enqueue(ctx, disconnect)
	m.Close(ctx, s, reason)
}

// Close tears a session down (§4.2 "close"): cancels reader/writer,
// drops indices, emits session_evicted, and runs the best-effort
// cleanup hook if the session was bound.
func (m *Manager) Close(ctx context.Context, s *Session, reason CloseReason) {
	s.mu.Lock()
	if s.state == Closing {
		s.mu.Unlock()
		return
	}
	s.state = Closing
	clientID := s.clientID
	s.mu.Unlock()

	s.cancel()

	m.mu.Lock()
	delete(m.sessions, s.ID)
	if clientID != "" {
		if id, ok := m.byClient[clientID]; ok && id == s.ID {
			delete(m.byClient, clientID)
		}
	}
	m.mu.Unlock()

	if m.events != nil {
		m.events.Publish("session_evicted", []string{s.ID.String(), clientID}, map[string]interface{}{
			"reason": string(reason),
		})
	}

	if clientID != "" && m.clean != nil {
		// ctx is often this session's own context, cancelled just above.
		m.clean(context.WithoutCancel(ctx), clientID, reason)
	}

	_ = s.conn.Close()
	close(s.done)
	metrics.RecordSessionClosed()
}

// Count reports the number of live sessions, for admission checks (§5).
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown drains every live session: send DISCONNECT{reason:
// server_shutdown}, wait up to grace for the sessions to close (a session
// leaves the table only through Close, e.g. when its peer hangs up), then
// close whatever remains (§5).
func (m *Manager) Shutdown(ctx context.Context, grace time.Duration) {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	disconnect := evictionFrame(ReasonServerShutdown)
	for _, s := range all {
		_ = s.Enqueue(ctx, disconnect)
	}

	deadline := time.After(grace)
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.Count() == 0 {
			return
		}
		select {
		case <-deadline:
			m.mu.RLock()
			remaining := make([]*Session, 0, len(m.sessions))
			for _, s := range m.sessions {
				remaining = append(remaining, s)
			}
			m.mu.RUnlock()
			for _, s := range remaining {
				m.Close(ctx, s, ReasonServerShutdown)
			}
			return
		case <-ticker.C:
		}
	}
}
