//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"

	"live-hub/domain"
	"live-hub/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming in the
// Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one delivery target, usually the outbound side of a
// websocket connection. Consume must not block the caller beyond ctx:
// a slow sink degrades only its own connection.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IPresenceRegistry is the single source of truth for "is online".
// A connection is bound to at most one identity at a time.
type IPresenceRegistry interface {
	// Bind registers a session. Idempotent per connection. Reports
	// whether this is the identity's first live connection.
	Bind(conn domain.ConnID, identity domain.Identity, sink EventSink) (first bool)
	// Unbind removes the session and reports the identity it was bound
	// to and whether it was the identity's last live connection.
	Unbind(conn domain.ConnID) (identity domain.Identity, last bool, ok bool)
	Identity(conn domain.ConnID) (domain.Identity, bool)
	IsOnline(identity domain.Identity) bool
	// SinksFor returns the sinks of every live connection of identity.
	SinksFor(identity domain.Identity) []EventSink
	ConnsFor(identity domain.Identity) []domain.ConnID
	SinkFor(conn domain.ConnID) (EventSink, bool)
	// AllSinksExcept returns every bound sink except the given
	// connection's, used for best-effort status broadcasts.
	AllSinksExcept(conn domain.ConnID) []EventSink
	AllSinks() []EventSink
}

// IRoomRouter caches which connections joined which conversation rooms.
// The cache is advisory: authorization always goes back to the store.
type IRoomRouter interface {
	Join(conn domain.ConnID, conversation domain.ConversationID)
	Leave(conn domain.ConnID, conversation domain.ConversationID)
	// LeaveAll drops every cached membership of a closing connection.
	LeaveAll(conn domain.ConnID)
	Members(conversation domain.ConversationID) []domain.ConnID
	// Sequence runs fn under the conversation's delivery order lock, so
	// fan-out of one message fully commits before the next begins.
	Sequence(conversation domain.ConversationID, fn func())
}

// Collaborator contracts. The hub consumes these; it does not own their
// implementation.

type IIdentityDirectory interface {
	LookupIdentityByToken(ctx context.Context, token string) (domain.Identity, error)
}

type IConversationStore interface {
	IsConversationMember(ctx context.Context, conversation domain.ConversationID, identity domain.Identity) (bool, error)
	ListConversationMembers(ctx context.Context, conversation domain.ConversationID) ([]domain.Identity, error)
	InsertMessage(ctx context.Context, conversation domain.ConversationID, sender domain.Identity, content string, replyTo *uuid.UUID) (domain.Message, error)
	MarkRead(ctx context.Context, conversation domain.ConversationID, identity domain.Identity, upTo *uuid.UUID) error
}

type ISocialGraph interface {
	AreMutualConnections(ctx context.Context, a, b domain.Identity) (bool, error)
}

type IStatusStore interface {
	SetOnlineStatus(ctx context.Context, identity domain.Identity, online bool, lastSeen time.Time) error
}
