package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(connID, name string, playerID, roomID int64) *SessionState {
	s := newSessionState(&fakeConn{}, connID)
	s.PlayerID = playerID
	s.Name = name
	s.RoomID = roomID
	s.MapID = 1
	return s
}

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()
	s := testSession("c1", "alice", 1, 10)
	r.Add(s)

	assert.Same(t, s, r.Get("c1"))
	assert.Same(t, s, r.ByPlayer(1))
	assert.Same(t, s, r.ByPlayerName("ALICE"))
	assert.Len(t, r.InRoom(10), 1)
	assert.Equal(t, 1, r.OccupantCount(10))

	r.Remove("c1")
	assert.Nil(t, r.Get("c1"))
	assert.Nil(t, r.ByPlayer(1))
	assert.Zero(t, r.OccupantCount(10))

	// Remove is idempotent.
	r.Remove("c1")
}

func TestRegistrySetRoomMovesIndex(t *testing.T) {
	r := NewRegistry()
	s := testSession("c1", "alice", 1, 10)
	r.Add(s)

	r.SetRoom(s, 20, 2)
	assert.Equal(t, int64(20), s.Room())
	assert.Empty(t, r.InRoom(10))
	assert.Len(t, r.InRoom(20), 1)
}

func TestRegistryRemoveKeepsNewerPlayerBinding(t *testing.T) {
	r := NewRegistry()
	old := testSession("c1", "alice", 1, 10)
	r.Add(old)
	replacement := testSession("c2", "alice", 1, 10)
	r.Add(replacement)

	// Removing the stale connection must not unbind the replacement.
	r.Remove("c1")
	assert.Same(t, replacement, r.ByPlayer(1))
	assert.Len(t, r.InRoom(10), 1)
}

func TestRegistryAll(t *testing.T) {
	r := NewRegistry()
	r.Add(testSession("c1", "alice", 1, 10))
	r.Add(testSession("c2", "bo", 2, 11))
	assert.Len(t, r.All(), 2)
}

func TestSchedulerFiresAndCancels(t *testing.T) {
	sc := newScheduler()
	fired := make(chan struct{}, 1)
	sc.Schedule(5*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	id := sc.Schedule(50*time.Millisecond, func() { t.Error("cancelled timer fired") })
	sc.Cancel(id)
	time.Sleep(80 * time.Millisecond)
}

func TestSchedulerCancelAll(t *testing.T) {
	sc := newScheduler()
	for i := 0; i < 3; i++ {
		sc.Schedule(50*time.Millisecond, func() { t.Error("cancelled timer fired") })
	}
	sc.CancelAll()
	time.Sleep(80 * time.Millisecond)
}

func TestSessionScheduleRoundTrip(t *testing.T) {
	s := testSession("c1", "alice", 1, 10)
	fired := make(chan struct{}, 1)
	s.Schedule(5*time.Millisecond, func() { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("session timer did not fire")
	}
	require.NotPanics(t, s.CancelAllTimers)
}
