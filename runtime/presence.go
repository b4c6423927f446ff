// Package runtime owns the in-memory shared state of the hub: the
// presence registry and the room router. Both are plain lock-guarded
// indexes; collaborator I/O never happens under their locks.
package runtime

import (
	"sync"

	"live-hub/contract"
	"live-hub/domain"
)

type Set map[domain.ConnID]struct{}

type session struct {
	identity domain.Identity
	sink     contract.EventSink
}

// PresenceRegistry maps identities to their live connections. It is the
// single source of truth for "is online": an identity is online iff its
// connection set is non-empty. Constructed at server start and torn down
// with it; never a package-level singleton.
type PresenceRegistry struct {
	mu       sync.RWMutex
	sessions map[domain.ConnID]session
	byUser   map[domain.Identity]Set
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		sessions: make(map[domain.ConnID]session),
		byUser:   make(map[domain.Identity]Set),
	}
}

// Bind registers a session for conn. Idempotent per connection: a rebind
// to another identity first detaches the previous one. Reports whether
// identity had no live connection before this call.
func (r *PresenceRegistry) Bind(conn domain.ConnID, identity domain.Identity, sink contract.EventSink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sessions[conn]; ok {
		if prev.identity == identity {
			r.sessions[conn] = session{identity: identity, sink: sink}
			return false
		}
		r.detach(conn, prev.identity)
	}

	r.sessions[conn] = session{identity: identity, sink: sink}
	conns, ok := r.byUser[identity]
	if !ok {
		conns = make(Set)
		r.byUser[identity] = conns
	}
	first := len(conns) == 0
	conns[conn] = struct{}{}
	return first
}

// Unbind removes the session bound to conn, if any, and reports the
// identity it belonged to and whether that identity just went offline.
func (r *PresenceRegistry) Unbind(conn domain.ConnID) (domain.Identity, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[conn]
	if !ok {
		return "", false, false
	}
	last := r.detach(conn, s.identity)
	return s.identity, last, true
}

// detach must be called with the write lock held. Reports whether the
// identity has no connection left.
func (r *PresenceRegistry) detach(conn domain.ConnID, identity domain.Identity) bool {
	delete(r.sessions, conn)
	conns, ok := r.byUser[identity]
	if !ok {
		return true
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(r.byUser, identity)
		return true
	}
	return false
}

func (r *PresenceRegistry) Identity(conn domain.ConnID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[conn]
	return s.identity, ok
}

func (r *PresenceRegistry) IsOnline(identity domain.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[identity]) > 0
}

func (r *PresenceRegistry) SinksFor(identity domain.Identity) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[identity]
	if len(conns) == 0 {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(conns))
	for conn := range conns {
		if s, ok := r.sessions[conn]; ok {
			sinks = append(sinks, s.sink)
		}
	}
	return sinks
}

// ConnsFor returns the live connection ids of an identity, used by the
// message pipeline to auto-subscribe member devices to a room cache.
func (r *PresenceRegistry) ConnsFor(identity domain.Identity) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[identity]
	if len(conns) == 0 {
		return nil
	}
	out := make([]domain.ConnID, 0, len(conns))
	for conn := range conns {
		out = append(out, conn)
	}
	return out
}

func (r *PresenceRegistry) AllSinksExcept(conn domain.ConnID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]contract.EventSink, 0, len(r.sessions))
	for id, s := range r.sessions {
		if id == conn {
			continue
		}
		sinks = append(sinks, s.sink)
	}
	return sinks
}

func (r *PresenceRegistry) AllSinks() []contract.EventSink {
	return r.AllSinksExcept("")
}

// SinkFor returns the sink of one connection, used for sender acks and
// per-connection error events.
func (r *PresenceRegistry) SinkFor(conn domain.ConnID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[conn]
	return s.sink, ok
}
