package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"live-hub/contract"
	"live-hub/domain"
	"live-hub/domain/call"
	"live-hub/domain/event"
	"live-hub/errors"
	"live-hub/observability"
)

type ICallService interface {
	Initiate(ctx context.Context, rawCallID string, caller, receiver domain.Identity, callType call.Type) (string, error)
	Accept(ctx context.Context, rawCallID string, acceptor domain.Identity)
	Reject(ctx context.Context, rawCallID string, rejector domain.Identity)
	Timeout(ctx context.Context, rawCallID string, reporter domain.Identity)
	Upgrade(ctx context.Context, rawCallID string, requester domain.Identity)
	UpgradeAccepted(ctx context.Context, rawCallID string, accepter domain.Identity)
	End(ctx context.Context, rawCallID string, ender domain.Identity)
}

// CallService drives two-party call signaling. Sessions live only in
// memory; any event referencing an unknown or terminal call id is a
// silent no-op, because simultaneous reject/timeout/end races are
// normal, not errors. The social-graph lookup of Initiate happens
// before the session lock is taken.
type CallService struct {
	log      *slog.Logger
	registry contract.IPresenceRegistry
	graph    contract.ISocialGraph
	metrics  *observability.Metrics

	mu       sync.Mutex
	sessions map[string]*call.Session
}

func NewCallService(log *slog.Logger, registry contract.IPresenceRegistry,
	graph contract.ISocialGraph, metrics *observability.Metrics) *CallService {
	return &CallService{
		log: log, registry: registry, graph: graph, metrics: metrics,
		sessions: make(map[string]*call.Session),
	}
}

// Initiate checks the mutual-connection precondition and the receiver's
// presence, creates the session in RINGING and rings every connection
// of the receiver. The returned id is the wire call id; the client's
// own id is kept when it parses to the same two parties.
func (s *CallService) Initiate(ctx context.Context, rawCallID string,
	caller, receiver domain.Identity, callType call.Type) (string, error) {

	mutual, err := s.graph.AreMutualConnections(ctx, caller, receiver)
	if err != nil {
		return "", fmt.Errorf("%w: follow check: %v", errors.ErrPersistence, err)
	}
	if !mutual {
		return "", fmt.Errorf("%w: %s -> %s", errors.ErrNotMutualConnection, caller, receiver)
	}
	if !s.registry.IsOnline(receiver) {
		return "", fmt.Errorf("%w: %s", errors.ErrReceiverOffline, receiver)
	}

	id := call.NewID(caller, receiver)
	if parsed, perr := call.ParseID(rawCallID); perr == nil &&
		parsed.Caller == caller && parsed.Receiver == receiver {
		id = parsed
	}

	session := call.NewSession(id, callType)
	key := id.String()

	s.mu.Lock()
	if existing, ok := s.sessions[key]; ok && !existing.State.Terminal() {
		// Duplicate initiate for a live call: ring again, create nothing.
		s.mu.Unlock()
		s.ring(ctx, existing)
		return key, nil
	}
	s.sessions[key] = session
	s.mu.Unlock()

	s.metrics.ActiveCalls.Add(1)
	s.log.Info("Call initiated", "call", key, "type", callType)
	s.ring(ctx, session)
	return key, nil
}

func (s *CallService) ring(ctx context.Context, session *call.Session) {
	s.notify(ctx, session.ID.Receiver, event.IncomingCall{
		CallID:   session.ID.String(),
		Caller:   session.ID.Caller,
		Receiver: session.ID.Receiver,
		CallType: session.Type,
	})
}

// Accept moves RINGING to ACTIVE and tells the caller's connections.
// Only a ringing call can be accepted; an accept while an upgrade is
// outstanding is ignored rather than re-announced.
func (s *CallService) Accept(ctx context.Context, rawCallID string, acceptor domain.Identity) {
	s.transition(rawCallID, call.StateActive, func(session *call.Session) {
		s.notify(ctx, session.ID.Caller, event.CallAccepted{
			CallID:     session.ID.String(),
			AcceptedBy: acceptor,
		})
	}, call.StateRinging)
}

// Reject moves RINGING to the terminal REJECTED and tells the caller.
func (s *CallService) Reject(ctx context.Context, rawCallID string, rejector domain.Identity) {
	s.transition(rawCallID, call.StateRejected, func(session *call.Session) {
		s.notify(ctx, session.ID.Caller, event.CallRejected{
			CallID:     session.ID.String(),
			RejectedBy: rejector,
		})
	}, call.StateRinging)
}

// Timeout is reported by the ringing side when no answer arrived within
// its window; the other party is informed.
func (s *CallService) Timeout(ctx context.Context, rawCallID string, reporter domain.Identity) {
	s.transition(rawCallID, call.StateTimedOut, func(session *call.Session) {
		s.notify(ctx, session.ID.Other(reporter), event.CallTimeout{
			CallID: session.ID.String(),
		})
	}, call.StateRinging)
}

// Upgrade requests audio -> video. The call stays active; the UPGRADING
// state only marks the outstanding request until the counterpart
// accepts.
func (s *CallService) Upgrade(ctx context.Context, rawCallID string, requester domain.Identity) {
	s.transition(rawCallID, call.StateUpgrading, func(session *call.Session) {
		s.notify(ctx, session.ID.Other(requester), event.UpgradeToVideo{
			CallID: session.ID.String(),
		})
	}, call.StateActive)
}

// UpgradeAccepted resolves an outstanding upgrade: the call is active
// again, now with video, and the requester is informed. Without an
// outstanding upgrade there is nothing to accept, so the event is
// ignored from every other state, RINGING included.
func (s *CallService) UpgradeAccepted(ctx context.Context, rawCallID string, accepter domain.Identity) {
	s.transition(rawCallID, call.StateActive, func(session *call.Session) {
		session.Video = true
		s.notify(ctx, session.ID.Other(accepter), event.VideoUpgradeAccepted{
			CallID: session.ID.String(),
		})
	}, call.StateUpgrading)
}

// End terminates from any non-terminal state and tells whichever party
// did not hang up.
func (s *CallService) End(ctx context.Context, rawCallID string, ender domain.Identity) {
	s.transition(rawCallID, call.StateEnded, func(session *call.Session) {
		s.notify(ctx, session.ID.Other(ender), event.CallEnded{
			CallID:  session.ID.String(),
			EndedBy: ender,
		})
	})
}

// transition applies one FSM edge under the session lock and runs the
// notification outside of it. The from list pins the states the
// triggering event is valid in; it disambiguates events sharing a
// target state (accept and upgrade-accept both land on ACTIVE). Empty
// means any state with a legal edge. Unknown ids, terminal sessions,
// wrong-state events and disallowed edges all fall through silently.
func (s *CallService) transition(rawCallID string, to call.State, notify func(*call.Session), from ...call.State) {
	id, err := call.ParseID(rawCallID)
	if err != nil {
		s.log.Debug("Ignoring event with malformed call id", "call", rawCallID)
		return
	}
	key := id.String()

	s.mu.Lock()
	session, ok := s.sessions[key]
	if !ok || !session.State.CanTransition(to) || !stateAllowed(session.State, from) {
		s.mu.Unlock()
		s.log.Debug("Ignoring call event", "call", key, "to", to)
		return
	}
	session.State = to
	if to.Terminal() {
		// Late duplicate events on this id become unknown-id no-ops.
		delete(s.sessions, key)
	}
	s.mu.Unlock()

	if to.Terminal() {
		s.metrics.ActiveCalls.Add(-1)
		s.log.Info("Call terminated", "call", key, "state", to)
	}
	notify(session)
}

func stateAllowed(state call.State, from []call.State) bool {
	if len(from) == 0 {
		return true
	}
	for _, allowed := range from {
		if state == allowed {
			return true
		}
	}
	return false
}

func (s *CallService) notify(ctx context.Context, target domain.Identity, evt event.DomainEvent) {
	for _, sink := range s.registry.SinksFor(target) {
		if err := sink.Consume(ctx, evt); err != nil {
			s.metrics.EventsDropped.Add(1)
			s.log.Debug("Call event not delivered", "event", evt.EventName(), "target", target, "error", err)
			continue
		}
		s.metrics.EventsDelivered.Add(1)
	}
}

// Active reports whether a live (non-terminal) session exists for the
// id, exposed for tests and the debug stats panel.
func (s *CallService) Active(rawCallID string) bool {
	id, err := call.ParseID(rawCallID)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id.String()]
	return ok && !session.State.Terminal()
}
