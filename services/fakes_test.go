package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"live-hub/domain"
	"live-hub/domain/event"
)

// recordSink collects every delivered event, in order.
type recordSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
	fail   bool
}

func (s *recordSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("sink full")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *recordSink) Events() []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.DomainEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordSink) Names() []string {
	var names []string
	for _, e := range s.Events() {
		names = append(names, e.EventName())
	}
	return names
}

func (s *recordSink) Last() event.DomainEvent {
	events := s.Events()
	if len(events) == 0 {
		return nil
	}
	return events[len(events)-1]
}

// fakeStore is an in-memory conversation store with switchable failure
// modes.
type fakeStore struct {
	mu       sync.Mutex
	members  map[domain.ConversationID][]domain.Identity
	inserted []domain.Message
	read     map[string]*uuid.UUID

	failMembership bool
	failInsert     bool
	failListing    bool
	failMarkRead   bool

	// insertHook, when set, runs at the top of InsertMessage outside
	// the store mutex, so a test can stall one sender mid-pipeline.
	insertHook func(sender domain.Identity)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		members: make(map[domain.ConversationID][]domain.Identity),
		read:    make(map[string]*uuid.UUID),
	}
}

func (f *fakeStore) addMember(conversation domain.ConversationID, identity domain.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[conversation] = append(f.members[conversation], identity)
}

func (f *fakeStore) IsConversationMember(_ context.Context, conversation domain.ConversationID, identity domain.Identity) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMembership {
		return false, fmt.Errorf("store down")
	}
	for _, member := range f.members[conversation] {
		if member == identity {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListConversationMembers(_ context.Context, conversation domain.ConversationID) ([]domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failListing {
		return nil, fmt.Errorf("store down")
	}
	return append([]domain.Identity(nil), f.members[conversation]...), nil
}

func (f *fakeStore) InsertMessage(_ context.Context, conversation domain.ConversationID, sender domain.Identity, content string, replyTo *uuid.UUID) (domain.Message, error) {
	if f.insertHook != nil {
		f.insertHook(sender)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return domain.Message{}, fmt.Errorf("store down")
	}
	msg := domain.Message{
		ID:           uuid.New(),
		Conversation: conversation,
		Sender:       sender,
		Type:         domain.MessageTypeText,
		Content:      content,
		ReplyTo:      replyTo,
		CreatedAt:    time.Now().UTC(),
	}
	f.inserted = append(f.inserted, msg)
	return msg, nil
}

func (f *fakeStore) MarkRead(_ context.Context, conversation domain.ConversationID, identity domain.Identity, upTo *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMarkRead {
		return fmt.Errorf("store down")
	}
	f.read[string(conversation)+"/"+string(identity)] = upTo
	return nil
}

func (f *fakeStore) insertedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

func (f *fakeStore) insertedContents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, msg := range f.inserted {
		out = append(out, msg.Content)
	}
	return out
}

// fakeGraph answers mutual-connection checks from a fixed pair set.
type fakeGraph struct {
	mutual map[string]bool
	err    error
}

func (f *fakeGraph) AreMutualConnections(_ context.Context, a, b domain.Identity) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.mutual[string(a)+"/"+string(b)] || f.mutual[string(b)+"/"+string(a)], nil
}

// fakeStatus records SetOnlineStatus calls.
type fakeStatus struct {
	mu    sync.Mutex
	calls []statusCall
}

type statusCall struct {
	identity domain.Identity
	online   bool
}

func (f *fakeStatus) SetOnlineStatus(_ context.Context, identity domain.Identity, online bool, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, statusCall{identity: identity, online: online})
	return nil
}

func (f *fakeStatus) lastCall() (statusCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return statusCall{}, false
	}
	return f.calls[len(f.calls)-1], true
}

// fakeDirectory resolves tokens from a fixed map.
type fakeDirectory struct {
	identities map[string]domain.Identity
}

func (f *fakeDirectory) LookupIdentityByToken(_ context.Context, token string) (domain.Identity, error) {
	identity, ok := f.identities[token]
	if !ok {
		return "", fmt.Errorf("unknown token")
	}
	return identity, nil
}
