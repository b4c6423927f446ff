package runtime

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"live-hub/domain"
)

func TestRoomRouter_JoinLeave(t *testing.T) {
	req := require.New(t)
	router := NewRoomRouter()
	conn := domain.ConnID(uuid.NewString())
	conversation := domain.ConversationID("conv-1")

	// Given an empty router
	req.Nil(router.Members(conversation))

	// When a connection joins twice
	router.Join(conn, conversation)
	router.Join(conn, conversation)

	// Then it is cached once
	req.Equal([]domain.ConnID{conn}, router.Members(conversation))

	// When it leaves
	router.Leave(conn, conversation)

	// Then the room is empty again
	req.Nil(router.Members(conversation))

	// And leaving again is a no-op
	router.Leave(conn, conversation)
}

func TestRoomRouter_LeaveAll(t *testing.T) {
	req := require.New(t)
	router := NewRoomRouter()
	conn1 := domain.ConnID(uuid.NewString())
	conn2 := domain.ConnID(uuid.NewString())

	// Given a connection in several rooms
	router.Join(conn1, "conv-1")
	router.Join(conn1, "conv-2")
	router.Join(conn2, "conv-1")

	// When it disconnects
	router.LeaveAll(conn1)

	// Then it is gone from every room, others untouched
	req.Equal([]domain.ConnID{conn2}, router.Members("conv-1"))
	req.Nil(router.Members("conv-2"))
}

func TestRoomRouter_Sequence_OrdersOneConversation(t *testing.T) {
	req := require.New(t)
	router := NewRoomRouter()

	// Sequenced sections of the same conversation never interleave:
	// hammer one conversation from many goroutines with critical
	// sections that are only safe under mutual exclusion.
	var order []int
	var wg sync.WaitGroup

	next := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			router.Sequence("conv-1", func() {
				order = append(order, next)
				next++
			})
		}()
	}
	wg.Wait()

	req.Len(order, 50)
	for i, v := range order {
		req.Equal(i, v)
	}
}

func TestRoomRouter_Sequence_ConversationsIndependent(t *testing.T) {
	router := NewRoomRouter()

	// A held sequence lock on one conversation must not block another.
	release := make(chan struct{})
	held := make(chan struct{})
	go router.Sequence("conv-1", func() {
		close(held)
		<-release
	})
	<-held

	done := make(chan struct{})
	go router.Sequence("conv-2", func() {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("conv-2 was blocked by conv-1's sequence lock")
	}
	close(release)
}

func TestRoomRouter_Sequence_ReleasesLockEntries(t *testing.T) {
	req := require.New(t)
	router := NewRoomRouter()

	seqEntries := func() int {
		router.seqMu.Lock()
		defer router.seqMu.Unlock()
		return len(router.seq)
	}

	// A burst of sequenced deliveries over many conversations leaves no
	// lock entries behind once every call has returned.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		conversation := domain.ConversationID(uuid.NewString())
		for j := 0; j < 5; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				router.Sequence(conversation, func() {})
			}()
		}
	}
	wg.Wait()
	req.Zero(seqEntries())

	// A held lock keeps exactly its own entry alive
	release := make(chan struct{})
	held := make(chan struct{})
	go router.Sequence("conv-1", func() {
		close(held)
		<-release
	})
	<-held
	req.Equal(1, seqEntries())
	close(release)

	req.Eventually(func() bool { return seqEntries() == 0 },
		time.Second, 10*time.Millisecond)
}
