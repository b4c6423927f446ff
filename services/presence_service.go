package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"live-hub/contract"
	"live-hub/domain"
	"live-hub/domain/event"
	"live-hub/errors"
	"live-hub/observability"
)

type IPresenceService interface {
	Connect(ctx context.Context, conn domain.ConnID, token string, sink contract.EventSink) (domain.Identity, error)
	Disconnect(ctx context.Context, conn domain.ConnID)
	HeartbeatAck(ctx context.Context, conn domain.ConnID)
}

// PresenceService binds connections to identities and keeps the rest of
// the world informed: user_status broadcasts on first-online and
// last-offline, persisted status through the status collaborator.
type PresenceService struct {
	log         *slog.Logger
	registry    contract.IPresenceRegistry
	router      contract.IRoomRouter
	dir         contract.IIdentityDirectory
	status      contract.IStatusStore
	metrics     *observability.Metrics
	sinkTimeout time.Duration
}

// NewPresenceService wires the presence collaborators. sinkTimeout
// bounds each status broadcast, persistence included.
func NewPresenceService(log *slog.Logger, registry contract.IPresenceRegistry,
	router contract.IRoomRouter, dir contract.IIdentityDirectory,
	status contract.IStatusStore, metrics *observability.Metrics,
	sinkTimeout time.Duration) *PresenceService {
	return &PresenceService{
		log: log, registry: registry, router: router,
		dir: dir, status: status, metrics: metrics,
		sinkTimeout: sinkTimeout,
	}
}

// Connect resolves the handshake token and binds the connection. A
// failed resolution leaves the connection unauthenticated: the caller
// keeps it open but binds no session.
func (s *PresenceService) Connect(ctx context.Context, conn domain.ConnID, token string, sink contract.EventSink) (domain.Identity, error) {
	identity, err := s.dir.LookupIdentityByToken(ctx, token)
	if err != nil {
		s.metrics.AuthRejected.Add(1)
		return "", fmt.Errorf("%w: %v", errors.ErrAuthRejected, err)
	}

	first := s.registry.Bind(conn, identity, sink)
	s.metrics.BoundSessions.Add(1)
	s.log.Info("Session bound", "identity", identity, "conn", conn, "first", first)

	if first {
		s.announce(conn, identity, true)
	}
	return identity, nil
}

// Disconnect is the single teardown path, also run after abrupt
// transport failures: cached rooms are dropped, the session unbound,
// and the offline transition broadcast if it was the identity's last
// connection.
func (s *PresenceService) Disconnect(_ context.Context, conn domain.ConnID) {
	s.router.LeaveAll(conn)

	identity, last, ok := s.registry.Unbind(conn)
	if !ok {
		return
	}
	s.metrics.BoundSessions.Add(-1)
	s.log.Info("Session unbound", "identity", identity, "conn", conn, "last", last)

	if last {
		s.announce(conn, identity, false)
	}
}

// HeartbeatAck refreshes the persisted last-seen of the acknowledging
// session's identity. Unauthenticated connections are silently ignored.
func (s *PresenceService) HeartbeatAck(ctx context.Context, conn domain.ConnID) {
	identity, ok := s.registry.Identity(conn)
	if !ok {
		return
	}
	s.metrics.HeartbeatAcks.Add(1)
	if err := s.status.SetOnlineStatus(ctx, identity, true, time.Now().UTC()); err != nil {
		s.log.Warn("Failed to refresh last-seen", "identity", identity, "error", err)
	}
}

// announce persists the online flag and broadcasts user_status to every
// other connection. Best effort and fire-and-forget: it never blocks
// bind or unbind, and a failed delivery is only logged.
func (s *PresenceService) announce(conn domain.ConnID, identity domain.Identity, online bool) {
	sinks := s.registry.AllSinksExcept(conn)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.sinkTimeout)
		defer cancel()

		if err := s.status.SetOnlineStatus(ctx, identity, online, time.Now().UTC()); err != nil {
			s.log.Warn("Failed to persist online status", "identity", identity, "online", online, "error", err)
		}

		evt := event.UserStatus{Identity: identity, IsOnline: online}
		for _, sink := range sinks {
			if err := sink.Consume(ctx, evt); err != nil {
				s.log.Debug("user_status not delivered", "identity", identity, "error", err)
			}
		}
	}()
}
