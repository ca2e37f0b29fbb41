package game

import (
	"context"
	"time"

	"github.com/resonara/server/internal/message"
	"github.com/resonara/server/internal/persist"
	"go.uber.org/zap"
)

func (d *Deps) handleStartPathingMode(ctx context.Context, s *SessionState, env message.Envelope) {
	room, err := d.Rooms.GetByID(ctx, s.Room())
	if err != nil || room == nil {
		s.Conn.Send(message.Error("could not load the room"))
		return
	}
	s.Lock()
	s.Recording = &PathRecording{MapID: room.MapID, OriginRoomID: room.ID}
	s.Unlock()
	s.Conn.Send(&message.PathingModeStartedFrame{
		Type:         "pathingModeStarted",
		OriginRoomID: room.ID,
		MapID:        room.MapID,
	})
}

// handleAddPathStep records one step. Steps must connect grid-adjacent
// rooms; the first recorded step carries no direction.
func (d *Deps) handleAddPathStep(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.AddPathStep
	if err := env.Decode(&req); err != nil || req.RoomID == 0 {
		s.Conn.Send(message.Error("malformed path step"))
		return
	}
	s.Lock()
	rec := s.Recording
	s.Unlock()
	if rec == nil {
		s.Conn.Send(message.Error("you are not recording a path"))
		return
	}

	room, err := d.Rooms.GetByID(ctx, req.RoomID)
	if err != nil || room == nil {
		s.Conn.Send(message.Error("no such room"))
		return
	}

	var dir Direction
	if req.PreviousRoomID != 0 {
		prev, err := d.Rooms.GetByID(ctx, req.PreviousRoomID)
		if err != nil || prev == nil {
			s.Conn.Send(message.Error("no such room"))
			return
		}
		var ok bool
		dir, ok = DirectionBetween(prev.X, prev.Y, room.X, room.Y)
		if !ok || prev.MapID != room.MapID {
			s.Conn.Send(message.Error("those rooms are not adjacent"))
			return
		}
	}

	s.Lock()
	rec.Steps = append(rec.Steps, RecordingStep{RoomID: room.ID, Direction: dir})
	count := len(rec.Steps)
	s.Unlock()

	s.Conn.Send(&message.PathStepAddedFrame{
		Type:      "pathStepAdded",
		RoomID:    room.ID,
		Direction: string(dir),
		StepCount: count,
	})
}

func (d *Deps) handleSavePath(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.SavePath
	if err := env.Decode(&req); err != nil || req.Name == "" || len(req.Steps) == 0 {
		s.Conn.Send(message.Error("malformed path"))
		return
	}
	if req.Kind != "path" && req.Kind != "loop" {
		s.Conn.Send(message.Error("path kind must be path or loop"))
		return
	}

	row := &persist.PathRow{
		PlayerID:     s.PlayerID,
		MapID:        req.MapID,
		OriginRoomID: req.OriginRoomID,
		Name:         req.Name,
		Kind:         req.Kind,
	}
	steps := make([]persist.PathStepRow, 0, len(req.Steps))
	for i, st := range req.Steps {
		steps = append(steps, persist.PathStepRow{Seq: i, RoomID: st.RoomID, Direction: st.Direction})
	}
	pathID, err := d.Paths.Create(ctx, row, steps)
	if err != nil {
		d.Log.Error("save path", zap.Error(err))
		s.Conn.Send(message.Error("could not save the path"))
		return
	}

	s.Lock()
	s.Recording = nil
	s.Unlock()
	s.Conn.Send(&message.PathSavedFrame{Type: "pathSaved", PathID: pathID, Name: req.Name})
}

func (d *Deps) handleCancelPathing(ctx context.Context, s *SessionState, env message.Envelope) {
	s.Lock()
	s.Recording = nil
	s.Unlock()
	s.Conn.Send(message.Simple("pathingCancelled"))
}

func (d *Deps) handleGetPathingRoom(ctx context.Context, s *SessionState, env message.Envelope) {
	room, err := d.Rooms.GetByID(ctx, s.Room())
	if err != nil || room == nil {
		s.Conn.Send(message.Error("could not load the room"))
		return
	}
	s.Conn.Send(&message.PathingRoomFrame{
		Type:   "pathingRoom",
		RoomID: room.ID,
		Name:   room.Name,
		X:      room.X,
		Y:      room.Y,
		MapID:  room.MapID,
	})
}

func (d *Deps) handleGetAllPlayerPaths(ctx context.Context, s *SessionState, env message.Envelope) {
	paths, err := d.Paths.AllByPlayer(ctx, s.PlayerID)
	if err != nil {
		s.Conn.Send(message.Error("could not load your paths"))
		return
	}
	counts, err := d.Paths.StepCounts(ctx, s.PlayerID)
	if err != nil {
		s.Conn.Send(message.Error("could not load your paths"))
		return
	}
	frame := &message.AllPlayerPathsFrame{Type: "allPlayerPaths"}
	for _, p := range paths {
		frame.Paths = append(frame.Paths, message.PathSummary{
			PathID:    p.ID,
			Name:      p.Name,
			Kind:      p.Kind,
			MapID:     p.MapID,
			StepCount: counts[p.ID],
		})
	}
	s.Conn.Send(frame)
}

func (d *Deps) handleGetPathDetails(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.GetPathDetails
	if err := env.Decode(&req); err != nil || req.PathID == 0 {
		s.Conn.Send(message.Error("which path?"))
		return
	}
	p, err := d.Paths.GetByID(ctx, req.PathID)
	if err != nil || p == nil || p.PlayerID != s.PlayerID {
		s.Conn.Send(message.Error("no such path"))
		return
	}
	steps, err := d.Paths.Steps(ctx, p.ID)
	if err != nil {
		s.Conn.Send(message.Error("could not load the path"))
		return
	}
	frame := &message.PathDetailsFrame{
		Type:         "pathDetails",
		PathID:       p.ID,
		Name:         p.Name,
		Kind:         p.Kind,
		MapID:        p.MapID,
		OriginRoomID: p.OriginRoomID,
	}
	for _, st := range steps {
		frame.Steps = append(frame.Steps, message.PathStepDetail{
			Seq:       st.Seq,
			RoomID:    st.RoomID,
			Direction: st.Direction,
		})
	}
	s.Conn.Send(frame)
}

// handleStartPathExecution loads a path and either starts walking it (when
// standing at the origin) or auto-navigates to the origin first.
func (d *Deps) handleStartPathExecution(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.StartPathExecution
	if err := env.Decode(&req); err != nil || req.PathID == 0 {
		s.Conn.Send(message.Error("which path?"))
		return
	}
	p, err := d.Paths.GetByID(ctx, req.PathID)
	if err != nil || p == nil || p.PlayerID != s.PlayerID {
		s.Conn.Send(message.Error("no such path"))
		return
	}
	rows, err := d.Paths.Steps(ctx, p.ID)
	if err != nil {
		s.Conn.Send(message.Error("could not load the path"))
		return
	}
	// Directionless rows (the recorded origin) are not walkable steps.
	var steps []PathStep
	for _, row := range rows {
		if row.Direction == "" {
			continue
		}
		dir, ok := ParseDirection(row.Direction)
		if !ok {
			continue
		}
		steps = append(steps, PathStep{Direction: dir, RoomID: row.RoomID})
	}
	if len(steps) == 0 {
		s.Conn.Send(message.PathExecutionFailed(p.ID, "the path has no steps"))
		return
	}

	pe := &PathExecState{
		PathID:    p.ID,
		Steps:     steps,
		IsLooping: p.Kind == "loop",
	}

	if s.Room() == p.OriginRoomID {
		s.Lock()
		s.PathExec = pe
		s.AutoNav = nil
		s.Unlock()
		s.Conn.Send(message.PathExecutionStarted(p.ID, pe.IsLooping))
		d.schedulePathStep(ctx, s)
		return
	}

	// Not at the origin: walk there first, then promote the pending path.
	navSteps, err := d.findRoute(ctx, s.Room(), p.OriginRoomID)
	if err != nil {
		s.Conn.Send(message.Error("could not plan a route"))
		return
	}
	if navSteps == nil {
		s.Conn.Send(message.PathExecutionFailed(p.ID, d.Templates.Render("autonav_no_route",
			"No route can be found to that room.", nil)))
		return
	}
	s.Lock()
	s.AutoNav = &AutoNavState{Steps: navSteps, TargetRoom: p.OriginRoomID, PendingPath: pe}
	s.PathExec = nil
	s.Unlock()
	s.Conn.Send(message.AutoNavigationStarted(p.OriginRoomID))
	d.scheduleNavStep(ctx, s)
}

func (d *Deps) handleStopPathExecution(ctx context.Context, s *SessionState, env message.Envelope) {
	s.Lock()
	pe := s.PathExec
	var timerID int64
	if pe != nil && !pe.IsPaused {
		pe.IsPaused = true
		timerID = pe.TimerID
	}
	s.Unlock()
	if pe == nil {
		s.Conn.Send(message.Error("no path is executing"))
		return
	}
	s.CancelTimer(timerID)
	s.Conn.Send(message.PathExecutionStopped(pe.PathID, pe.CurrentStep))
}

func (d *Deps) handleContinuePathExecution(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.ContinuePathExecution
	if err := env.Decode(&req); err != nil || req.PathID == 0 {
		s.Conn.Send(message.Error("which path?"))
		return
	}
	s.Lock()
	pe := s.PathExec
	resumable := pe != nil && pe.IsPaused && pe.PathID == req.PathID
	if resumable {
		pe.IsPaused = false
	}
	s.Unlock()
	if !resumable {
		s.Conn.Send(message.Error("that path is not paused"))
		return
	}
	s.Conn.Send(message.PathExecutionResumed(pe.PathID, pe.CurrentStep))
	d.schedulePathStep(ctx, s)
}

// schedulePathStep arms the timer for the next path step at the player's
// configured loop cadence.
func (d *Deps) schedulePathStep(ctx context.Context, s *SessionState) {
	delay := d.loopDelay(ctx, s.PlayerID)
	timerID := s.Schedule(delay, func() {
		d.firePathStep(context.Background(), s)
	})
	s.Lock()
	if s.PathExec != nil {
		s.PathExec.TimerID = timerID
	}
	s.Unlock()
}

// firePathStep issues the expected step's move. The timer callback
// revalidates the execution before moving.
func (d *Deps) firePathStep(ctx context.Context, s *SessionState) {
	if d.Registry.Get(s.ID) == nil || s.Conn.IsClosed() {
		return
	}
	s.Lock()
	pe := s.PathExec
	if pe == nil || pe.IsPaused {
		s.Unlock()
		return
	}
	dir := pe.Steps[pe.CurrentStep%len(pe.Steps)].Direction
	s.Unlock()

	if d.performMove(ctx, s, dir) {
		return
	}
	// A wall collision tears the execution down inside performMove. Any
	// other rejection (a movement cooldown outlasting the cadence) leaves
	// the execution installed, so retry the same step.
	s.Lock()
	stalled := s.PathExec != nil && !s.PathExec.IsPaused
	s.Unlock()
	if stalled {
		d.schedulePathStep(ctx, s)
	}
}

// advancePathExecution is called by the movement engine after a successful
// step: bump the index, finish a one-shot path, wrap a loop.
func (d *Deps) advancePathExecution(ctx context.Context, s *SessionState) {
	s.Lock()
	pe := s.PathExec
	if pe == nil || pe.IsPaused {
		s.Unlock()
		return
	}
	pe.CurrentStep++
	done := !pe.IsLooping && pe.CurrentStep >= len(pe.Steps)
	if done {
		s.PathExec = nil
	} else {
		pe.CurrentStep %= len(pe.Steps)
	}
	s.Unlock()

	if done {
		s.Conn.Send(message.PathExecutionComplete(pe.PathID))
		return
	}
	d.schedulePathStep(ctx, s)
}

// loopDelay is the per-player path step cadence.
func (d *Deps) loopDelay(ctx context.Context, playerID int64) time.Duration {
	if p, err := d.Players.GetByID(ctx, playerID); err == nil && p != nil && p.AutoLoopTimeMS > 0 {
		return time.Duration(p.AutoLoopTimeMS) * time.Millisecond
	}
	return d.Config.Game.AutoLoopTime
}

// navDelay is the per-player auto-navigation cadence.
func (d *Deps) navDelay(ctx context.Context, playerID int64) time.Duration {
	if p, err := d.Players.GetByID(ctx, playerID); err == nil && p != nil && p.AutoNavTimeMS > 0 {
		return time.Duration(p.AutoNavTimeMS) * time.Millisecond
	}
	return d.Config.Game.AutoNavigationTime
}
