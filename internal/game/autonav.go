package game

import (
	"context"

	"github.com/resonara/server/internal/message"
	"github.com/resonara/server/internal/persist"
)

func (d *Deps) handleGetAutoPathMaps(ctx context.Context, s *SessionState, env message.Envelope) {
	maps, err := d.Rooms.AllMaps(ctx)
	if err != nil {
		s.Conn.Send(message.Error("could not load the maps"))
		return
	}
	frame := &message.AutoPathMapsFrame{Type: "autoPathMaps"}
	for _, m := range maps {
		frame.Maps = append(frame.Maps, message.AutoPathMapEntry{MapID: m.ID, Name: m.Name})
	}
	s.Conn.Send(frame)
}

func (d *Deps) handleGetAutoPathRooms(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.GetAutoPathRooms
	if err := env.Decode(&req); err != nil || req.MapID == 0 {
		s.Conn.Send(message.Error("which map?"))
		return
	}
	rooms, err := d.Rooms.ByMap(ctx, req.MapID)
	if err != nil {
		s.Conn.Send(message.Error("could not load the map"))
		return
	}
	frame := &message.AutoPathRoomsFrame{Type: "autoPathRooms", MapID: req.MapID}
	for _, r := range rooms {
		frame.Rooms = append(frame.Rooms, message.MapRoom{
			RoomID: r.ID, X: r.X, Y: r.Y, Name: r.Name, RoomType: r.Kind,
		})
	}
	s.Conn.Send(frame)
}

func (d *Deps) handleCalculateAutoPath(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.CalculateAutoPath
	if err := env.Decode(&req); err != nil || req.ToRoomID == 0 {
		s.Conn.Send(message.Error("which rooms?"))
		return
	}
	from := req.FromRoomID
	if from == 0 {
		from = s.Room()
	}
	steps, err := d.findRoute(ctx, from, req.ToRoomID)
	if err != nil {
		s.Conn.Send(message.Error("could not plan a route"))
		return
	}
	if steps == nil {
		s.Conn.Send(message.AutoNavigationFailed(d.Templates.Render("autonav_no_route",
			"No route can be found to that room.", nil)))
		return
	}
	frame := &message.AutoPathCalculatedFrame{
		Type:       "autoPathCalculated",
		FromRoomID: from,
		ToRoomID:   req.ToRoomID,
	}
	for _, st := range steps {
		frame.Steps = append(frame.Steps, message.AutoPathStep{
			Direction: string(st.Direction),
			RoomID:    st.RoomID,
		})
	}
	s.Conn.Send(frame)
}

func (d *Deps) handleStartAutoNavigation(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.StartAutoNavigation
	if err := env.Decode(&req); err != nil || req.ToRoomID == 0 {
		s.Conn.Send(message.Error("navigate where?"))
		return
	}
	if s.Room() == req.ToRoomID {
		s.Conn.Send(message.AutoNavigationComplete(req.ToRoomID))
		return
	}
	steps, err := d.findRoute(ctx, s.Room(), req.ToRoomID)
	if err != nil {
		s.Conn.Send(message.Error("could not plan a route"))
		return
	}
	if steps == nil {
		s.Conn.Send(message.AutoNavigationFailed(d.Templates.Render("autonav_no_route",
			"No route can be found to that room.", nil)))
		return
	}
	s.Lock()
	s.AutoNav = &AutoNavState{Steps: steps, TargetRoom: req.ToRoomID}
	s.PathExec = nil
	s.Unlock()
	s.Conn.Send(message.AutoNavigationStarted(req.ToRoomID))
	d.scheduleNavStep(ctx, s)
}

// scheduleNavStep arms the next auto-navigation move.
func (d *Deps) scheduleNavStep(ctx context.Context, s *SessionState) {
	delay := d.navDelay(ctx, s.PlayerID)
	timerID := s.Schedule(delay, func() {
		d.fireNavStep(context.Background(), s)
	})
	s.Lock()
	if s.AutoNav != nil {
		s.AutoNav.TimerID = timerID
	}
	s.Unlock()
}

func (d *Deps) fireNavStep(ctx context.Context, s *SessionState) {
	if d.Registry.Get(s.ID) == nil || s.Conn.IsClosed() {
		return
	}
	s.Lock()
	nav := s.AutoNav
	if nav == nil || nav.Current >= len(nav.Steps) {
		s.Unlock()
		return
	}
	dir := nav.Steps[nav.Current].Direction
	s.Unlock()

	if d.performMove(ctx, s, dir) {
		return
	}
	// A wall collision clears the navigation inside performMove; a
	// movement cooldown leaves it installed, so retry the same step.
	s.Lock()
	stalled := s.AutoNav != nil
	s.Unlock()
	if stalled {
		d.scheduleNavStep(ctx, s)
	}
}

// advanceAutoNav is called by the movement engine after each successful
// navigation step. On arrival a pending path execution is promoted and its
// first step scheduled straight away.
func (d *Deps) advanceAutoNav(ctx context.Context, s *SessionState, roomID int64) {
	s.Lock()
	nav := s.AutoNav
	if nav == nil {
		s.Unlock()
		return
	}
	nav.Current++
	arrived := nav.Current >= len(nav.Steps) || roomID == nav.TargetRoom
	var pending *PathExecState
	if arrived {
		s.AutoNav = nil
		pending = nav.PendingPath
		if pending != nil {
			s.PathExec = pending
		}
	}
	s.Unlock()

	if !arrived {
		d.scheduleNavStep(ctx, s)
		return
	}

	s.Conn.Send(message.AutoNavigationComplete(nav.TargetRoom))
	if pending != nil {
		s.Conn.Send(message.PathExecutionStarted(pending.PathID, pending.IsLooping))
		timerID := s.Schedule(0, func() {
			d.firePathStep(context.Background(), s)
		})
		s.Lock()
		if s.PathExec != nil {
			s.PathExec.TimerID = timerID
		}
		s.Unlock()
	}
}

// findRoute plans a same-map route between two rooms. A nil result with a
// nil error means no route exists.
func (d *Deps) findRoute(ctx context.Context, fromID, toID int64) ([]NavStep, error) {
	from, err := d.Rooms.GetByID(ctx, fromID)
	if err != nil || from == nil {
		return nil, err
	}
	to, err := d.Rooms.GetByID(ctx, toID)
	if err != nil || to == nil {
		return nil, err
	}
	if from.MapID != to.MapID {
		return nil, nil
	}
	rooms, err := d.Rooms.ByMap(ctx, from.MapID)
	if err != nil {
		return nil, err
	}
	return FindRoute(rooms, fromID, toID), nil
}

// FindRoute is the pathfinder proper: breadth-first search over the 8-way
// grid neighborhood of one map's rooms. Neighbors expand in fixed compass
// order, which makes the chosen route deterministic. Returns nil when the
// destination is unreachable.
func FindRoute(rooms []*persist.Room, fromID, toID int64) []NavStep {
	if fromID == toID {
		return []NavStep{}
	}
	byCoord := make(map[[2]int]*persist.Room, len(rooms))
	byID := make(map[int64]*persist.Room, len(rooms))
	for _, r := range rooms {
		byCoord[[2]int{r.X, r.Y}] = r
		byID[r.ID] = r
	}
	from, ok := byID[fromID]
	if !ok {
		return nil
	}
	if _, ok := byID[toID]; !ok {
		return nil
	}

	cameFrom := map[int64]navHop{}
	visited := map[int64]bool{from.ID: true}
	queue := []*persist.Room{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dir := range Directions {
			dx, dy := dir.Delta()
			next, ok := byCoord[[2]int{cur.X + dx, cur.Y + dy}]
			if !ok || visited[next.ID] {
				continue
			}
			visited[next.ID] = true
			cameFrom[next.ID] = navHop{roomID: cur.ID, dir: dir}
			if next.ID == toID {
				return unwind(cameFrom, fromID, toID)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

type navHop struct {
	roomID int64
	dir    Direction
}

func unwind(cameFrom map[int64]navHop, fromID, toID int64) []NavStep {
	var steps []NavStep
	for cur := toID; cur != fromID; {
		h := cameFrom[cur]
		steps = append(steps, NavStep{Direction: h.dir, RoomID: cur})
		cur = h.roomID
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}
