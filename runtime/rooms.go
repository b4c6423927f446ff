package runtime

import (
	"sync"

	"live-hub/domain"
)

// RoomRouter caches room membership with both forward and reverse
// indexes. Forward: conversation -> connections, for fan-out. Reverse:
// connection -> conversations, so teardown of a closing connection is
// O(its rooms). The cache is advisory only; sends revalidate membership
// against the conversation store.
type RoomRouter struct {
	mu    sync.RWMutex
	rooms map[domain.ConversationID]Set
	conns map[domain.ConnID]map[domain.ConversationID]struct{}

	seqMu sync.Mutex
	seq   map[domain.ConversationID]*seqLock
}

// seqLock is one conversation's delivery order lock. refs counts the
// holders and waiters registered under seqMu, so the entry can be
// dropped from the map as soon as nobody is queued on it.
type seqLock struct {
	mu   sync.Mutex
	refs int
}

func NewRoomRouter() *RoomRouter {
	return &RoomRouter{
		rooms: make(map[domain.ConversationID]Set),
		conns: make(map[domain.ConnID]map[domain.ConversationID]struct{}),
		seq:   make(map[domain.ConversationID]*seqLock),
	}
}

// Join adds conn to the conversation's cached membership. Idempotent.
func (r *RoomRouter) Join(conn domain.ConnID, conversation domain.ConversationID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[conversation]; !ok {
		r.rooms[conversation] = make(Set)
	}
	r.rooms[conversation][conn] = struct{}{}

	if _, ok := r.conns[conn]; !ok {
		r.conns[conn] = make(map[domain.ConversationID]struct{})
	}
	r.conns[conn][conversation] = struct{}{}
}

// Leave removes conn from the conversation. Idempotent; empty sets are
// dropped so the maps don't leak over time.
func (r *RoomRouter) Leave(conn domain.ConnID, conversation domain.ConversationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leave(conn, conversation)
}

func (r *RoomRouter) leave(conn domain.ConnID, conversation domain.ConversationID) {
	if members, ok := r.rooms[conversation]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.rooms, conversation)
		}
	}
	if rooms, ok := r.conns[conn]; ok {
		delete(rooms, conversation)
		if len(rooms) == 0 {
			delete(r.conns, conn)
		}
	}
}

// LeaveAll removes a closing connection from every cached room.
func (r *RoomRouter) LeaveAll(conn domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for conversation := range r.conns[conn] {
		if members, ok := r.rooms[conversation]; ok {
			delete(members, conn)
			if len(members) == 0 {
				delete(r.rooms, conversation)
			}
		}
	}
	delete(r.conns, conn)
}

func (r *RoomRouter) Members(conversation domain.ConversationID) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[conversation]
	if len(members) == 0 {
		return nil
	}
	out := make([]domain.ConnID, 0, len(members))
	for conn := range members {
		out = append(out, conn)
	}
	return out
}

// Sequence runs fn under the conversation's delivery order lock.
// Whatever fn persists and enqueues is committed before the next
// sequenced delivery for the same conversation begins; different
// conversations never wait on each other. fn may do store I/O, but must
// never call back into Sequence. Lock entries exist only while calls
// are in flight: the last one out removes the entry, so the map stays
// bounded by concurrent deliveries, not by conversations ever seen.
func (r *RoomRouter) Sequence(conversation domain.ConversationID, fn func()) {
	r.seqMu.Lock()
	l, ok := r.seq[conversation]
	if !ok {
		l = &seqLock{}
		r.seq[conversation] = l
	}
	l.refs++
	r.seqMu.Unlock()

	l.mu.Lock()
	fn()
	l.mu.Unlock()

	// A waiter always registers its ref before blocking, so refs == 0
	// means nobody can still hold or want this entry.
	r.seqMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(r.seq, conversation)
	}
	r.seqMu.Unlock()
}
