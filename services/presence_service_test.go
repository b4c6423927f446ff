package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"live-hub/domain"
	"live-hub/domain/event"
	"live-hub/errors"
	"live-hub/observability"
	"live-hub/runtime"
)

type presenceFixture struct {
	registry *runtime.PresenceRegistry
	router   *runtime.RoomRouter
	status   *fakeStatus
	service  *PresenceService
}

func newPresenceFixture() *presenceFixture {
	registry := runtime.NewPresenceRegistry()
	router := runtime.NewRoomRouter()
	status := &fakeStatus{}
	directory := &fakeDirectory{identities: map[string]domain.Identity{
		"token-alice": "alice",
		"token-bob":   "bob",
	}}
	service := NewPresenceService(slog.Default(), registry, router, directory, status, observability.NewMetrics(), time.Second)
	return &presenceFixture{registry: registry, router: router, status: status, service: service}
}

// deadlineSink records the context deadline of every delivery.
type deadlineSink struct {
	mu        sync.Mutex
	deadlines []time.Time
}

func (s *deadlineSink) Consume(ctx context.Context, _ event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		s.deadlines = append(s.deadlines, deadline)
	}
	return nil
}

func (s *deadlineSink) captured() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.deadlines...)
}

func TestPresenceService_AnnounceIsBoundedBySinkTimeout(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture()
	ctx := context.Background()

	// Given bob watching with a deadline-recording sink
	sink := &deadlineSink{}
	_, err := f.service.Connect(ctx, "conn-b", "token-bob", sink)
	req.NoError(err)

	// When alice comes online
	before := time.Now()
	_, err = f.service.Connect(ctx, "conn-a", "token-alice", &recordSink{})
	req.NoError(err)

	// Then the broadcast context expires within the configured bound
	req.Eventually(func() bool { return len(sink.captured()) == 1 }, time.Second, 10*time.Millisecond)
	deadline := sink.captured()[0]
	req.True(deadline.After(before))
	req.WithinDuration(before.Add(time.Second), deadline, 500*time.Millisecond)
}

func TestPresenceService_Connect(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture()
	ctx := context.Background()

	// Given bob already online to observe the broadcast
	bobSink := &recordSink{}
	_, err := f.service.Connect(ctx, "conn-b", "token-bob", bobSink)
	req.NoError(err)

	// When alice connects with a valid token
	identity, err := f.service.Connect(ctx, "conn-a", "token-alice", &recordSink{})
	req.NoError(err)
	req.Equal(domain.Identity("alice"), identity)
	req.True(f.registry.IsOnline("alice"))

	// Then bob eventually hears she came online and status is persisted
	req.Eventually(func() bool {
		for _, e := range bobSink.Events() {
			if status, ok := e.(event.UserStatus); ok {
				return status.Identity == "alice" && status.IsOnline
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	req.Eventually(func() bool {
		last, ok := f.status.lastCall()
		return ok && last.identity == "alice" && last.online
	}, time.Second, 10*time.Millisecond)
}

func TestPresenceService_Connect_BadToken(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture()

	identity, err := f.service.Connect(context.Background(), "conn-x", "forged", &recordSink{})
	req.ErrorIs(err, errors.ErrAuthRejected)
	req.Empty(identity)
	req.False(f.registry.IsOnline("alice"))
}

func TestPresenceService_Connect_SecondDeviceIsSilent(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture()
	ctx := context.Background()

	bobSink := &recordSink{}
	_, err := f.service.Connect(ctx, "conn-b", "token-bob", bobSink)
	req.NoError(err)

	_, err = f.service.Connect(ctx, "conn-a1", "token-alice", &recordSink{})
	req.NoError(err)
	req.Eventually(func() bool { return len(bobSink.Events()) == 1 }, time.Second, 10*time.Millisecond)

	// A second device binds without a second online broadcast
	_, err = f.service.Connect(ctx, "conn-a2", "token-alice", &recordSink{})
	req.NoError(err)

	time.Sleep(50 * time.Millisecond)
	req.Len(bobSink.Events(), 1)
}

func TestPresenceService_Disconnect(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture()
	ctx := context.Background()

	bobSink := &recordSink{}
	_, err := f.service.Connect(ctx, "conn-b", "token-bob", bobSink)
	req.NoError(err)

	_, err = f.service.Connect(ctx, "conn-a1", "token-alice", &recordSink{})
	req.NoError(err)
	_, err = f.service.Connect(ctx, "conn-a2", "token-alice", &recordSink{})
	req.NoError(err)
	f.router.Join("conn-a1", "conv-1")

	// First device drops: alice stays online, rooms are cleaned
	f.service.Disconnect(ctx, "conn-a1")
	req.True(f.registry.IsOnline("alice"))
	req.Nil(f.router.Members("conv-1"))

	// Last device drops: offline broadcast goes out
	f.service.Disconnect(ctx, "conn-a2")
	req.False(f.registry.IsOnline("alice"))

	req.Eventually(func() bool {
		for _, e := range bobSink.Events() {
			if status, ok := e.(event.UserStatus); ok && !status.IsOnline {
				return status.Identity == "alice"
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestPresenceService_Disconnect_Unknown(t *testing.T) {
	f := newPresenceFixture()
	// Tearing down a never-bound connection must not panic or broadcast
	f.service.Disconnect(context.Background(), "conn-ghost")
}

func TestPresenceService_HeartbeatAck(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture()
	ctx := context.Background()

	_, err := f.service.Connect(ctx, "conn-a", "token-alice", &recordSink{})
	req.NoError(err)

	// Wait out the async online announce so we assert only the ack
	req.Eventually(func() bool {
		_, ok := f.status.lastCall()
		return ok
	}, time.Second, 10*time.Millisecond)

	f.service.HeartbeatAck(ctx, "conn-a")
	last, ok := f.status.lastCall()
	req.True(ok)
	req.Equal(domain.Identity("alice"), last.identity)
	req.True(last.online)

	// Unauthenticated connections are ignored
	before := len(f.status.calls)
	f.service.HeartbeatAck(ctx, "conn-ghost")
	req.Len(f.status.calls, before)
}
