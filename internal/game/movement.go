package game

import (
	"context"
	"fmt"
	"time"

	"github.com/resonara/server/internal/message"
	"github.com/resonara/server/internal/persist"
	"go.uber.org/zap"
)

// Post-move cooldowns by encumbrance tier.
const (
	heavyCooldown  = 1200 * time.Millisecond // ≥ 66.6%
	ladenCooldown  = 700 * time.Millisecond  // ≥ 33.3%
	heavyThreshold = 66.6
	ladenThreshold = 33.3
)

func (d *Deps) handleMove(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.Move
	if err := env.Decode(&req); err != nil {
		s.Conn.Send(message.Error("malformed move request"))
		return
	}
	if IsVertical(req.Direction) {
		s.Conn.Send(message.Error("up and down are not implemented"))
		return
	}
	dir, ok := ParseDirection(req.Direction)
	if !ok {
		s.Conn.Send(message.Error("unknown direction: " + req.Direction))
		return
	}
	d.performMove(ctx, s, dir)
}

// performMove runs the full movement pipeline for one compass step. Both
// manual moves and timer-driven path/navigation steps come through here.
func (d *Deps) performMove(ctx context.Context, s *SessionState, dir Direction) bool {
	p, err := d.Players.GetByID(ctx, s.PlayerID)
	if err != nil || p == nil {
		s.Conn.Send(message.Error("could not load your character"))
		return false
	}

	// Execution guard: while a path or navigation runs unpaused, only the
	// expected step direction may move.
	s.Lock()
	if pe := s.PathExec; pe != nil && !pe.IsPaused {
		expected := pe.Steps[pe.CurrentStep%len(pe.Steps)].Direction
		if dir != expected {
			s.Unlock()
			s.Conn.Send(message.Error("you cannot move freely while a path is executing"))
			return false
		}
	} else if nav := s.AutoNav; nav != nil {
		expected := nav.Steps[nav.Current].Direction
		if dir != expected {
			s.Unlock()
			s.Conn.Send(message.Error("you cannot move freely while auto-navigating"))
			return false
		}
	}
	next := s.NextMoveTime
	s.Unlock()

	now := d.now()
	if !p.GodMode && now.Before(next) {
		remaining := next.Sub(now).Seconds()
		s.Conn.Send(message.Error(d.Templates.Render("move_cooldown",
			"You are winded. You can move again in {seconds} seconds.",
			map[string]any{"seconds": fmt.Sprintf("%.1f", remaining)})))
		return false
	}

	var cooldown time.Duration
	if !p.GodMode {
		enc, err := d.Players.CurrentEncumbrance(ctx, s.PlayerID)
		if err != nil {
			d.Log.Error("encumbrance", zap.Error(err))
			s.Conn.Send(message.Error("could not compute encumbrance"))
			return false
		}
		pct := 0.0
		if p.EncumbranceCap > 0 {
			pct = enc / p.EncumbranceCap * 100
		}
		switch {
		case pct >= 100:
			s.Conn.Send(message.Error(d.Templates.Render("too_heavy",
				"You are carrying too much to move.", nil)))
			return false
		case pct >= heavyThreshold:
			cooldown = heavyCooldown
		case pct >= ladenThreshold:
			cooldown = ladenCooldown
		}
	}

	room, err := d.Rooms.GetByID(ctx, s.Room())
	if err != nil || room == nil {
		s.Conn.Send(message.Error("could not load the room"))
		return false
	}

	target, mapTransition, err := d.resolveMoveTarget(ctx, room, dir)
	if err != nil {
		d.Log.Error("move target", zap.Error(err))
		s.Conn.Send(message.Error("could not load the room"))
		return false
	}
	if target == nil {
		s.Conn.Send(message.Error(d.Templates.Render("wall_collision",
			"You walk into a wall. There is no exit to the {direction}.",
			map[string]any{"direction": dir.Readable()})))
		d.abortTravelOnWall(ctx, s)
		return false
	}

	if placementID := s.HarvestPlacement(); placementID != 0 {
		d.interruptHarvest(ctx, s, placementID, true)
	}

	if err := d.Players.UpdateRoom(ctx, s.PlayerID, target.ID); err != nil {
		d.Log.Error("persist move", zap.Error(err))
		s.Conn.Send(message.Error("could not move"))
		return false
	}
	d.Registry.SetRoom(s, target.ID, target.MapID)

	s.Lock()
	s.NextMoveTime = d.now().Add(cooldown)
	if s.Glow != nil && s.Glow.RoomID == room.ID {
		s.Glow = nil
	}
	s.Unlock()

	// Departure side effects on the old room.
	if room.Kind == "factory" {
		d.spillFactorySlots(ctx, s, room.ID)
		if d.Registry.OccupantCount(room.ID) == 0 {
			if err := d.Items.RemovePoofables(ctx, room.ID); err != nil {
				d.Log.Error("prune poofables", zap.Int64("room", room.ID), zap.Error(err))
			}
		}
	} else {
		if err := d.Items.RemovePoofables(ctx, room.ID); err != nil {
			d.Log.Error("prune poofables", zap.Int64("room", room.ID), zap.Error(err))
		}
	}

	d.Broadcast.ToRoom(room.ID, message.Text(d.Templates.Render("player_left_room",
		"{player} leaves to the {direction}.",
		map[string]any{"player": s.Name, "direction": dir.Readable()})))
	d.refreshRoom(ctx, room.ID)

	d.sendRoom(ctx, s, target, p.AlwaysFirstTime)
	d.sendRoomProse(ctx, s, target)
	if mapTransition {
		if frame, err := d.mapData(ctx, target.MapID); err == nil && frame != nil {
			s.Conn.Send(frame)
		}
	} else {
		s.Conn.Send(message.MapUpdate(target.X, target.Y, target.MapID))
	}

	entered := message.Text(d.Templates.Render("player_entered_room",
		"{player} enters from the {direction}.",
		map[string]any{"player": s.Name, "direction": dir.Opposite().Readable()}))
	d.Broadcast.ToRoomExcept(target.ID, s.ID, entered)
	for _, occ := range d.Registry.InRoom(target.ID) {
		if occ.ID == s.ID {
			continue
		}
		d.sendRoom(ctx, occ, target, false)
	}

	d.armEngagements(ctx, s, target.ID)

	d.advanceTravel(ctx, s, target.ID)
	return true
}

// resolveMoveTarget picks the destination: the room's portal when its
// direction matches (a map transition), else the adjacent grid tile.
func (d *Deps) resolveMoveTarget(ctx context.Context, room *persist.Room, dir Direction) (*persist.Room, bool, error) {
	if room.Portal != nil && room.Portal.Direction == string(dir) {
		target, err := d.Rooms.GetByCoords(ctx, room.Portal.ToMapID, room.Portal.ToX, room.Portal.ToY)
		if err != nil {
			return nil, false, err
		}
		return target, target != nil && target.MapID != room.MapID, nil
	}
	dx, dy := dir.Delta()
	target, err := d.Rooms.GetByCoords(ctx, room.MapID, room.X+dx, room.Y+dy)
	return target, false, err
}

// abortTravelOnWall cancels an in-flight auto-navigation or path execution
// after a wall collision.
func (d *Deps) abortTravelOnWall(ctx context.Context, s *SessionState) {
	s.Lock()
	nav := s.AutoNav
	pe := s.PathExec
	s.AutoNav = nil
	if pe != nil && !pe.IsPaused {
		s.PathExec = nil
	} else {
		pe = nil
	}
	s.Unlock()

	if nav != nil {
		s.CancelTimer(nav.TimerID)
		s.Conn.Send(message.AutoNavigationFailed(d.Templates.Render("path_wall_abort",
			"Your path ran into a wall. Path execution stopped.", nil)))
	}
	if pe != nil {
		s.CancelTimer(pe.TimerID)
		s.Conn.Send(message.PathExecutionFailed(pe.PathID, d.Templates.Render("path_wall_abort",
			"Your path ran into a wall. Path execution stopped.", nil)))
	}
}

// advanceTravel steps an active auto-navigation or path execution after a
// successful move into roomID.
func (d *Deps) advanceTravel(ctx context.Context, s *SessionState, roomID int64) {
	s.Lock()
	nav := s.AutoNav
	pe := s.PathExec
	s.Unlock()

	switch {
	case nav != nil:
		d.advanceAutoNav(ctx, s, roomID)
	case pe != nil && !pe.IsPaused:
		d.advancePathExecution(ctx, s)
	}
}

// spillFactorySlots dumps the session's factory widget onto the room floor
// and clears the widget.
func (d *Deps) spillFactorySlots(ctx context.Context, s *SessionState, roomID int64) {
	s.Lock()
	slots := s.FactorySlots
	s.FactorySlots = [2]*persist.ItemStack{}
	s.Unlock()

	for _, slot := range slots {
		if slot == nil || slot.Quantity <= 0 {
			continue
		}
		if err := d.Items.AddRoomItem(ctx, roomID, slot.Name, slot.Quantity); err != nil {
			d.Log.Error("spill factory slot",
				zap.Int64("room", roomID),
				zap.String("item", slot.Name),
				zap.Error(err))
		}
	}
}
