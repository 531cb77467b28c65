package broker

import (
	"github.com/screenbroker/broker/internal/session"
	"github.com/screenbroker/broker/internal/signaling"
)

// sessionRouter adapts session.Manager.Lookup's concrete *Session
// return to signaling.Router's interface-typed Target return. Go does
// not satisfy an interface method through a differently-shaped
// signature, even when *Session already implements Target, so this
// thin wrapper is the whole job.
type sessionRouter struct {
	mgr *session.Manager
}

// NewRouter builds the signaling.Router the broker wires into
// internal/signaling; kept here rather than in internal/session so
// that package never needs to know about internal/signaling's types.
func NewRouter(mgr *session.Manager) signaling.Router {
	return &sessionRouter{mgr: mgr}
}

func (r *sessionRouter) Lookup(clientID string) (signaling.Target, bool) {
	s, ok := r.mgr.Lookup(clientID)
	if !ok {
		return nil, false
	}
	return s, true
}

var _ signaling.Target = (*session.Session)(nil)
