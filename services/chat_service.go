package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"

	"live-hub/contract"
	"live-hub/domain"
	"live-hub/domain/event"
	"live-hub/errors"
	"live-hub/moderation"
	"live-hub/observability"
)

type IChatService interface {
	JoinRoom(conn domain.ConnID, conversation domain.ConversationID)
	LeaveRoom(conn domain.ConnID, conversation domain.ConversationID)
	Send(ctx context.Context, conn domain.ConnID, sender domain.Identity, conversation domain.ConversationID, content string, replyTo *uuid.UUID) error
	Typing(ctx context.Context, conn domain.ConnID, identity domain.Identity, conversation domain.ConversationID, isTyping bool)
	MarkRead(ctx context.Context, conn domain.ConnID, identity domain.Identity, conversation domain.ConversationID, upTo *uuid.UUID) error
}

// ChatService is the message delivery pipeline: authorize against the
// store, censor, persist, ack the sender, then fan out to every online
// member connection. Per-conversation delivery order follows
// persistence order; conversations never wait on each other.
type ChatService struct {
	log       *slog.Logger
	registry  contract.IPresenceRegistry
	router    contract.IRoomRouter
	store     contract.IConversationStore
	moderator *moderation.Moderator
	metrics   *observability.Metrics
}

func NewChatService(log *slog.Logger, registry contract.IPresenceRegistry,
	router contract.IRoomRouter, store contract.IConversationStore,
	moderator *moderation.Moderator, metrics *observability.Metrics) *ChatService {
	return &ChatService{
		log: log, registry: registry, router: router,
		store: store, moderator: moderator, metrics: metrics,
	}
}

func (s *ChatService) JoinRoom(conn domain.ConnID, conversation domain.ConversationID) {
	s.router.Join(conn, conversation)
}

func (s *ChatService) LeaveRoom(conn domain.ConnID, conversation domain.ConversationID) {
	s.router.Leave(conn, conversation)
}

// Send runs the full pipeline. Membership is always revalidated against
// the store; the room cache is never trusted for authorization. Nothing
// is persisted or delivered on a failed check, and nothing is delivered
// on a failed insert.
func (s *ChatService) Send(ctx context.Context, conn domain.ConnID, sender domain.Identity,
	conversation domain.ConversationID, content string, replyTo *uuid.UUID) error {

	member, err := s.store.IsConversationMember(ctx, conversation, sender)
	if err != nil {
		return fmt.Errorf("%w: membership check: %v", errors.ErrPersistence, err)
	}
	if !member {
		return fmt.Errorf("%w: %s in %s", errors.ErrNotMember, sender, conversation)
	}

	censored := s.moderate(sender, content)

	// Persist and deliver under the conversation's order lock, so the
	// delivery order of a conversation is exactly the order in which
	// its inserts completed, even for racing senders.
	var sendErr error
	s.router.Sequence(conversation, func() {
		msg, err := s.store.InsertMessage(ctx, conversation, sender, censored, replyTo)
		if err != nil {
			sendErr = fmt.Errorf("%w: insert: %v", errors.ErrPersistence, err)
			return
		}
		s.metrics.MessagesPersisted.Add(1)

		members, err := s.store.ListConversationMembers(ctx, conversation)
		if err != nil {
			// The message is durable at this point; degrade to the cached
			// room instead of dropping delivery entirely.
			s.log.Warn("Member listing failed, delivering to cached room only",
				"conversation", conversation, "error", err)
			members = nil
		}

		payload := event.FromMessage(msg)
		if sink, ok := s.registry.SinkFor(conn); ok {
			s.deliver(ctx, sink, event.MessageSent{MessagePayload: payload})
		}
		for _, sink := range s.fanoutSinks(conversation, members) {
			s.deliver(ctx, sink, event.NewMessage{MessagePayload: payload})
		}
	})
	return sendErr
}

// Typing relays the indicator to the other cached members of the room.
// Not persisted, not acked.
func (s *ChatService) Typing(ctx context.Context, conn domain.ConnID, identity domain.Identity,
	conversation domain.ConversationID, isTyping bool) {

	evt := event.Typing{Conversation: conversation, Identity: identity, IsTyping: isTyping}
	for _, member := range s.router.Members(conversation) {
		if member == conn {
			continue
		}
		if sink, ok := s.registry.SinkFor(member); ok {
			s.deliver(ctx, sink, evt)
		}
	}
}

// MarkRead persists the read watermark and broadcasts it to the room.
func (s *ChatService) MarkRead(ctx context.Context, conn domain.ConnID, identity domain.Identity,
	conversation domain.ConversationID, upTo *uuid.UUID) error {

	member, err := s.store.IsConversationMember(ctx, conversation, identity)
	if err != nil {
		return fmt.Errorf("%w: membership check: %v", errors.ErrPersistence, err)
	}
	if !member {
		return fmt.Errorf("%w: %s in %s", errors.ErrNotMember, identity, conversation)
	}

	// Same order lock as Send: the watermark broadcast never overtakes
	// a message delivery that persisted before it.
	var readErr error
	s.router.Sequence(conversation, func() {
		if err := s.store.MarkRead(ctx, conversation, identity, upTo); err != nil {
			readErr = fmt.Errorf("%w: mark read: %v", errors.ErrPersistence, err)
			return
		}

		members, err := s.store.ListConversationMembers(ctx, conversation)
		if err != nil {
			s.log.Warn("Member listing failed, broadcasting watermark to cached room only",
				"conversation", conversation, "error", err)
			members = nil
		}

		evt := event.MessagesRead{Conversation: conversation, Identity: identity, UpTo: upTo}
		for _, sink := range s.fanoutSinks(conversation, members) {
			s.deliver(ctx, sink, evt)
		}
	})
	return readErr
}

// fanoutSinks resolves the delivery targets of one event: the cached
// room membership, plus every live connection of every authoritative
// member (auto-joined to the cache on the way), deduplicated so each
// connection receives the event exactly once regardless of join
// ordering or device count.
func (s *ChatService) fanoutSinks(conversation domain.ConversationID, members []domain.Identity) []contract.EventSink {
	targets := make(map[domain.ConnID]struct{})
	for _, conn := range s.router.Members(conversation) {
		targets[conn] = struct{}{}
	}
	for _, identity := range members {
		for _, conn := range s.registry.ConnsFor(identity) {
			if _, seen := targets[conn]; !seen {
				s.router.Join(conn, conversation)
				targets[conn] = struct{}{}
			}
		}
	}

	sinks := make([]contract.EventSink, 0, len(targets))
	for conn := range targets {
		if sink, ok := s.registry.SinkFor(conn); ok {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

func (s *ChatService) deliver(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) {
	if err := sink.Consume(ctx, evt); err != nil {
		s.metrics.EventsDropped.Add(1)
		s.log.Debug("Event not delivered", "event", evt.EventName(), "error", err)
		return
	}
	s.metrics.EventsDelivered.Add(1)
}

// moderate censors forbidden words and logs what was caught together
// with the detected language of the content.
func (s *ChatService) moderate(sender domain.Identity, content string) string {
	censored, found := s.moderator.Censor(content)
	if len(found) > 0 {
		info := whatlanggo.Detect(content)
		s.log.Warn("Censored message content",
			"sender", sender,
			"lang", info.Lang.Iso6391(),
			"words", len(found))
	}
	return censored
}
