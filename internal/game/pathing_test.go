package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// savePathEast saves a straight eastward path from room 1 through the given
// rooms and returns its id.
func savePathEast(t *testing.T, w *testWorld, s *SessionState, kind string, roomIDs ...int64) int64 {
	t.Helper()
	steps := []map[string]any{{"roomId": 1, "direction": ""}}
	for _, id := range roomIDs {
		steps = append(steps, map[string]any{"roomId": id, "direction": "E"})
	}
	w.deps.handleSavePath(context.Background(), s, env("savePath", map[string]any{
		"name": "eastward", "kind": kind, "steps": steps,
		"mapId": 1, "originRoomId": 1,
	}))
	paths, err := w.repo.AllByPlayer(context.Background(), s.PlayerID)
	require.NoError(t, err)
	require.NotEmpty(t, paths, "path was not saved")
	return paths[len(paths)-1].ID
}

func TestRecordAndSavePath(t *testing.T) {
	w := newTestWorld()
	ctx := context.Background()
	s, conn := w.connect(1, "c1")

	w.deps.handleStartPathingMode(ctx, s, env("startPathingMode", nil))
	assert.True(t, conn.sent("pathingModeStarted"))

	w.deps.handleAddPathStep(ctx, s, env("addPathStep", map[string]any{
		"roomId": 1, "previousRoomId": 0,
	}))
	w.deps.handleAddPathStep(ctx, s, env("addPathStep", map[string]any{
		"roomId": 2, "previousRoomId": 1,
	}))
	assert.True(t, conn.sent("pathStepAdded"))
	require.NotNil(t, s.Recording)
	assert.Len(t, s.Recording.Steps, 2)
	assert.Equal(t, East, s.Recording.Steps[1].Direction)

	pathID := savePathEast(t, w, s, "path", 2)
	assert.True(t, conn.sent("pathSaved"))
	assert.Nil(t, s.Recording)
	assert.Equal(t, "eastward", w.repo.paths[pathID].Name)
	assert.Len(t, w.repo.pathSteps[pathID], 2)
}

func TestAddPathStepRejectsNonAdjacent(t *testing.T) {
	w := newTestWorld()
	ctx := context.Background()
	s, conn := w.connect(1, "c1")
	w.deps.handleStartPathingMode(ctx, s, env("startPathingMode", nil))

	w.deps.handleAddPathStep(ctx, s, env("addPathStep", map[string]any{
		"roomId": 9, "previousRoomId": 1, // (0,0) to (2,2)
	}))
	assert.Contains(t, conn.lastText(), "not adjacent")
}

func TestAddPathStepRequiresRecording(t *testing.T) {
	w := newTestWorld()
	s, conn := w.connect(1, "c1")

	w.deps.handleAddPathStep(context.Background(), s, env("addPathStep", map[string]any{
		"roomId": 2, "previousRoomId": 1,
	}))
	assert.Contains(t, conn.lastText(), "not recording")
}

func TestSavePathRejectsBadKind(t *testing.T) {
	w := newTestWorld()
	s, conn := w.connect(1, "c1")

	w.deps.handleSavePath(context.Background(), s, env("savePath", map[string]any{
		"name": "x", "kind": "circle",
		"steps": []map[string]any{{"roomId": 1, "direction": ""}},
	}))
	assert.Contains(t, conn.lastText(), "path or loop")
	assert.Empty(t, w.repo.paths)
}

func TestCancelPathing(t *testing.T) {
	w := newTestWorld()
	ctx := context.Background()
	s, conn := w.connect(1, "c1")
	w.deps.handleStartPathingMode(ctx, s, env("startPathingMode", nil))
	require.NotNil(t, s.Recording)

	w.deps.handleCancelPathing(ctx, s, env("cancelPathing", nil))
	assert.Nil(t, s.Recording)
	assert.True(t, conn.sent("pathingCancelled"))
}

func TestGetPathDetailsEnforcesOwnership(t *testing.T) {
	w := newTestWorld()
	ctx := context.Background()
	s, _ := w.connect(1, "c1")
	other, otherConn := w.connect(2, "c2")
	pathID := savePathEast(t, w, s, "path", 2)

	w.deps.handleGetPathDetails(ctx, other, env("getPathDetails", map[string]any{
		"pathId": pathID,
	}))
	assert.False(t, otherConn.sent("pathDetails"))
	assert.Contains(t, otherConn.lastText(), "no such path")
}

func TestGetAllPlayerPaths(t *testing.T) {
	w := newTestWorld()
	s, conn := w.connect(1, "c1")
	savePathEast(t, w, s, "path", 2)
	savePathEast(t, w, s, "loop", 2)

	w.deps.handleGetAllPlayerPaths(context.Background(), s, env("getAllPlayerPaths", nil))
	assert.True(t, conn.sent("allPlayerPaths"))
}

func TestPathExecutionWalksToCompletion(t *testing.T) {
	w := newTestWorld()
	ctx := context.Background()
	s, conn := w.connect(1, "c1")
	pathID := savePathEast(t, w, s, "path", 2, 3)

	w.deps.handleStartPathExecution(ctx, s, env("startPathExecution", map[string]any{
		"pathId": pathID,
	}))
	assert.True(t, conn.sent("pathExecutionStarted"))

	require.Eventually(t, func() bool {
		return conn.sent("pathExecutionComplete")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(3), s.Room())

	s.Lock()
	defer s.Unlock()
	assert.Nil(t, s.PathExec)
}

func TestPathExecutionRetriesThroughMoveCooldown(t *testing.T) {
	w := newTestWorld()
	ctx := context.Background()
	s, conn := w.connect(1, "c1")
	// Four stones put the player in the 700ms cooldown tier, far above the
	// 10ms step cadence.
	w.repo.playerItems[1] = map[string]int{"stone": 4}
	pathID := savePathEast(t, w, s, "path", 2, 3)

	w.deps.handleStartPathExecution(ctx, s, env("startPathExecution", map[string]any{
		"pathId": pathID,
	}))

	// The first step lands; the second is winded and must keep retrying.
	require.Eventually(t, func() bool {
		return s.Room() == 2
	}, 2*time.Second, time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(2), s.Room())
	s.Lock()
	pe := s.PathExec
	s.Unlock()
	require.NotNil(t, pe)
	assert.False(t, pe.IsPaused)
	assert.False(t, conn.sent("pathExecutionFailed"))

	// Once the cooldown passes the execution picks itself back up.
	w.advance(time.Second)
	require.Eventually(t, func() bool {
		return conn.sent("pathExecutionComplete")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(3), s.Room())
}

func TestAutoNavigationRetriesThroughMoveCooldown(t *testing.T) {
	w := newTestWorld()
	ctx := context.Background()
	s, conn := w.connect(1, "c1")
	w.repo.playerItems[1] = map[string]int{"stone": 4}

	w.deps.handleStartAutoNavigation(ctx, s, env("startAutoNavigation", map[string]any{
		"toRoomId": 3,
	}))
	require.Eventually(t, func() bool {
		return s.Room() == 2
	}, 2*time.Second, time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(2), s.Room())
	s.Lock()
	stillNavigating := s.AutoNav != nil
	s.Unlock()
	require.True(t, stillNavigating)

	w.advance(time.Second)
	require.Eventually(t, func() bool {
		return conn.sent("autoNavigationComplete")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(3), s.Room())
}

func TestPathExecutionBlocksManualMoves(t *testing.T) {
	w := newTestWorld()
	ctx := context.Background()
	s, conn := w.connect(1, "c1")
	w.repo.players[1].AutoLoopTimeMS = 60_000 // park the timer far away
	pathID := savePathEast(t, w, s, "path", 2)

	w.deps.handleStartPathExecution(ctx, s, env("startPathExecution", map[string]any{
		"pathId": pathID,
	}))

	w.deps.handleMove(ctx, s, env("move", map[string]any{"direction": "S"}))
	assert.Equal(t, int64(1), s.Room())
	assert.Contains(t, conn.lastText(), "path is executing")
}

func TestStopAndContinuePathExecution(t *testing.T) {
	w := newTestWorld()
	ctx := context.Background()
	s, conn := w.connect(1, "c1")
	w.repo.players[1].AutoLoopTimeMS = 60_000
	pathID := savePathEast(t, w, s, "path", 2, 3)

	w.deps.handleStartPathExecution(ctx, s, env("startPathExecution", map[string]any{
		"pathId": pathID,
	}))

	w.deps.handleStopPathExecution(ctx, s, env("stopPathExecution", nil))
	assert.True(t, conn.sent("pathExecutionStopped"))
	require.NotNil(t, s.PathExec)
	assert.True(t, s.PathExec.IsPaused)

	// While paused manual movement works again.
	w.deps.handleMove(ctx, s, env("move", map[string]any{"direction": "S"}))
	assert.Equal(t, int64(4), s.Room())

	w.deps.handleContinuePathExecution(ctx, s, env("continuePathExecution", map[string]any{
		"pathId": pathID,
	}))
	assert.True(t, conn.sent("pathExecutionResumed"))
}

func TestContinueRequiresPausedPath(t *testing.T) {
	w := newTestWorld()
	s, conn := w.connect(1, "c1")

	w.deps.handleContinuePathExecution(context.Background(), s, env("continuePathExecution", map[string]any{
		"pathId": 1,
	}))
	assert.Contains(t, conn.lastText(), "not paused")
}

func TestPathExecutionRemoteOriginAutoNavigatesFirst(t *testing.T) {
	w := newTestWorld()
	ctx := context.Background()
	s, conn := w.connect(1, "c1")
	pathID := savePathEast(t, w, s, "path", 2, 3)
	w.deps.Registry.SetRoom(s, 9, 1) // far corner

	w.deps.handleStartPathExecution(ctx, s, env("startPathExecution", map[string]any{
		"pathId": pathID,
	}))
	assert.True(t, conn.sent("autoNavigationStarted"))

	require.Eventually(t, func() bool {
		return conn.sent("pathExecutionComplete")
	}, 3*time.Second, 5*time.Millisecond)
	assert.True(t, conn.sent("autoNavigationComplete"))
	assert.True(t, conn.sent("pathExecutionStarted"))
	assert.Equal(t, int64(3), s.Room())
}

func TestPathExecutionEmptyPath(t *testing.T) {
	w := newTestWorld()
	ctx := context.Background()
	s, conn := w.connect(1, "c1")
	// Only the directionless origin row: nothing to walk.
	w.deps.handleSavePath(ctx, s, env("savePath", map[string]any{
		"name": "stub", "kind": "path",
		"steps": []map[string]any{{"roomId": 1, "direction": ""}},
		"mapId": 1, "originRoomId": 1,
	}))
	paths, _ := w.repo.AllByPlayer(ctx, 1)
	require.Len(t, paths, 1)

	w.deps.handleStartPathExecution(ctx, s, env("startPathExecution", map[string]any{
		"pathId": paths[0].ID,
	}))
	assert.True(t, conn.sent("pathExecutionFailed"))
}

func TestLoopPathWrapsAround(t *testing.T) {
	w := newTestWorld()
	ctx := context.Background()
	s, conn := w.connect(1, "c1")

	// Out east and back west, looping.
	w.deps.handleSavePath(ctx, s, env("savePath", map[string]any{
		"name": "shuttle", "kind": "loop",
		"steps": []map[string]any{
			{"roomId": 1, "direction": ""},
			{"roomId": 2, "direction": "E"},
			{"roomId": 1, "direction": "W"},
		},
		"mapId": 1, "originRoomId": 1,
	}))
	paths, _ := w.repo.AllByPlayer(ctx, 1)
	require.Len(t, paths, 1)

	w.deps.handleStartPathExecution(ctx, s, env("startPathExecution", map[string]any{
		"pathId": paths[0].ID,
	}))

	// The loop keeps cycling: wait for several wrap-arounds, then pause.
	require.Eventually(t, func() bool {
		s.Lock()
		defer s.Unlock()
		return s.PathExec != nil && s.PathExec.CurrentStep == 1 && s.RoomID == 2
	}, 2*time.Second, time.Millisecond)

	w.deps.handleStopPathExecution(ctx, s, env("stopPathExecution", nil))
	assert.False(t, conn.sent("pathExecutionComplete"))
}

func TestStartAutoNavigation(t *testing.T) {
	w := newTestWorld()
	ctx := context.Background()
	s, conn := w.connect(1, "c1")

	w.deps.handleStartAutoNavigation(ctx, s, env("startAutoNavigation", map[string]any{
		"toRoomId": 9,
	}))
	assert.True(t, conn.sent("autoNavigationStarted"))

	require.Eventually(t, func() bool {
		return conn.sent("autoNavigationComplete")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(9), s.Room())
	s.Lock()
	defer s.Unlock()
	assert.Nil(t, s.AutoNav)
}

func TestAutoNavigationAlreadyThere(t *testing.T) {
	w := newTestWorld()
	s, conn := w.connect(1, "c1")

	w.deps.handleStartAutoNavigation(context.Background(), s, env("startAutoNavigation", map[string]any{
		"toRoomId": 1,
	}))
	assert.True(t, conn.sent("autoNavigationComplete"))
	assert.Equal(t, int64(1), s.Room())
}

func TestCalculateAutoPath(t *testing.T) {
	w := newTestWorld()
	s, conn := w.connect(1, "c1")

	w.deps.handleCalculateAutoPath(context.Background(), s, env("calculateAutoPath", map[string]any{
		"toRoomId": 9,
	}))
	assert.True(t, conn.sent("autoPathCalculated"))
}

func TestGetAutoPathMapsAndRooms(t *testing.T) {
	w := newTestWorld()
	s, conn := w.connect(1, "c1")

	w.deps.handleGetAutoPathMaps(context.Background(), s, env("getAutoPathMaps", nil))
	assert.True(t, conn.sent("autoPathMaps"))

	w.deps.handleGetAutoPathRooms(context.Background(), s, env("getAutoPathRooms", map[string]any{
		"mapId": 1,
	}))
	assert.True(t, conn.sent("autoPathRooms"))
}
