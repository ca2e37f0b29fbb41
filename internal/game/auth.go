package game

import (
	"context"
	"time"

	"github.com/resonara/server/internal/message"
	"go.uber.org/zap"
)

// forceCloseDrain gives the old channel's writer time to flush the
// forceClose frame before the socket drops.
const forceCloseDrain = 250 * time.Millisecond

// handleAuthenticate validates the external session token, resolves the
// player, settles any existing session for that player (reconnect, takeover,
// or stale discard), and registers the new connection.
func (d *Deps) handleAuthenticate(ctx context.Context, conn Conn, connID string, env message.Envelope) {
	var req message.AuthenticateSession
	if err := env.Decode(&req); err != nil {
		conn.Send(message.Error("malformed authenticate request"))
		return
	}
	if req.SessionToken == "" || req.PlayerName == "" {
		conn.Send(message.Error("session token and player name are required"))
		return
	}

	ws, err := d.WebSess.GetByToken(ctx, req.SessionToken)
	if err != nil {
		d.Log.Error("session lookup", zap.Error(err))
		conn.Send(message.Error("authentication failed"))
		return
	}
	if ws == nil {
		conn.Send(message.Error("invalid or expired session"))
		return
	}

	p, err := d.Players.GetByName(ctx, req.PlayerName)
	if err != nil {
		d.Log.Error("player lookup", zap.Error(err))
		conn.Send(message.Error("authentication failed"))
		return
	}
	if p == nil || p.Account != ws.Account {
		conn.Send(message.Error("unknown player"))
		return
	}

	// Players flagged always-first-time restart from the canonical origin.
	if p.AlwaysFirstTime {
		start, err := d.Rooms.StartingRoom(ctx)
		if err != nil || start == nil {
			d.Log.Error("starting room lookup", zap.Error(err))
			conn.Send(message.Error("authentication failed"))
			return
		}
		if start.ID != p.RoomID {
			if err := d.Players.UpdateRoom(ctx, p.ID, start.ID); err != nil {
				d.Log.Error("reset player room", zap.Error(err))
				conn.Send(message.Error("authentication failed"))
				return
			}
			p.RoomID = start.ID
		}
	}

	if old := d.Registry.ByPlayer(p.ID); old != nil {
		switch {
		case old.WindowID == req.WindowID && old.Conn.IsClosed():
			// Reconnect of the same window: drop the stale entry silently.
			old.CancelAllTimers()
			d.Registry.Remove(old.ID)
		case !old.Conn.IsClosed():
			d.takeoverSession(ctx, old)
		default:
			old.CancelAllTimers()
			d.Registry.Remove(old.ID)
		}
	}

	room, err := d.Rooms.GetByID(ctx, p.RoomID)
	if err != nil || room == nil {
		d.Log.Error("player room lookup", zap.Int64("room", p.RoomID), zap.Error(err))
		conn.Send(message.Error("authentication failed"))
		return
	}

	s := newSessionState(conn, connID)
	s.PlayerID = p.ID
	s.Name = p.Name
	s.Account = p.Account
	s.WindowID = req.WindowID
	s.RoomID = room.ID
	s.MapID = room.MapID
	d.Registry.Add(s)

	d.Log.Info("player authenticated",
		zap.String("player", p.Name),
		zap.String("conn", connID),
		zap.Int64("room", room.ID))

	d.sendRoom(ctx, s, room, p.AlwaysFirstTime)
	d.sendRoomProse(ctx, s, room)
	d.sendPlayerStats(ctx, s)

	joined := d.Templates.Render("player_joined_world",
		"{player} has entered the game.", map[string]any{"player": p.Name})
	for _, other := range d.Registry.All() {
		if other.ID == s.ID {
			continue
		}
		other.Conn.Send(message.System(joined))
	}

	// The newcomer's room occupants get the arrival frame and a fresh
	// occupant list.
	d.Broadcast.ToRoomExcept(room.ID, s.ID, message.PlayerJoined(p.Name))
	for _, occ := range d.Registry.InRoom(room.ID) {
		if occ.ID == s.ID {
			continue
		}
		d.sendRoom(ctx, occ, room, false)
	}

	if frame, err := d.mapData(ctx, room.MapID); err == nil && frame != nil {
		s.Conn.Send(frame)
	}
	s.Conn.Send(&message.GameMessagesFrame{Type: "gameMessages", Messages: d.Templates.All()})
	if cfg, err := d.Players.GetWidgetConfig(ctx, p.ID); err == nil && len(cfg) > 0 {
		s.Conn.Send(message.WidgetConfig(cfg))
	}
	d.sendTerminalHistory(ctx, s)

	d.armEngagements(ctx, s, room.ID)
}

// takeoverSession displaces an existing live session per the takeover
// sequence: end its harvest, spill factory slots, announce the departure,
// deregister, and force-close the old channel.
func (d *Deps) takeoverSession(ctx context.Context, old *SessionState) {
	if placementID := old.HarvestPlacement(); placementID != 0 {
		d.interruptHarvest(ctx, old, placementID, false)
	}

	roomID := old.Room()
	room, err := d.Rooms.GetByID(ctx, roomID)
	if err != nil {
		d.Log.Error("takeover room lookup", zap.Int64("room", roomID), zap.Error(err))
	}
	if room != nil && room.Kind == "factory" {
		d.spillFactorySlots(ctx, old, room.ID)
		if d.Registry.OccupantCount(room.ID) <= 1 {
			if err := d.Items.RemovePoofables(ctx, room.ID); err != nil {
				d.Log.Error("prune poofables", zap.Int64("room", room.ID), zap.Error(err))
			}
		}
	}

	left := d.Templates.Render("player_left_world",
		"{player} has left the game.", map[string]any{"player": old.Name})
	d.Broadcast.ToRoomExcept(roomID, old.ID, message.PlayerLeft(old.Name))

	old.CancelAllTimers()
	d.Registry.Remove(old.ID)
	d.refreshRoom(ctx, roomID)

	old.Conn.Send(message.ForceClose())
	old.Conn.CloseAfter(forceCloseDrain)

	d.Broadcast.ToAll(message.System(left))
}

// sendTerminalHistory replays the player's recent terminal lines.
func (d *Deps) sendTerminalHistory(ctx context.Context, s *SessionState) {
	lines, err := d.Messages.TerminalHistory(ctx, s.PlayerID, 100)
	if err != nil {
		d.Log.Warn("terminal history", zap.Error(err))
		return
	}
	frame := &message.TerminalHistoryFrame{Type: "terminalHistory"}
	for _, l := range lines {
		frame.Lines = append(frame.Lines, message.TerminalLine{
			Text:      l.Message,
			Kind:      l.Kind,
			Timestamp: l.SavedAt.UnixMilli(),
		})
	}
	s.Conn.Send(frame)
}
