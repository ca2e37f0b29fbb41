package game

import (
	"context"

	"github.com/resonara/server/internal/message"
	"go.uber.org/zap"
)

// cleanupSession runs the channel-close sequence: timers, glow state, any
// held harvest, factory spillage, deregistration, and room notices.
func (d *Deps) cleanupSession(ctx context.Context, connID string) {
	s := d.Registry.Get(connID)
	if s == nil {
		return
	}

	s.CancelAllTimers()
	s.Lock()
	s.Glow = nil
	s.AutoNav = nil
	s.PathExec = nil
	s.Recording = nil
	s.Unlock()

	if placementID := s.HarvestPlacement(); placementID != 0 {
		d.interruptHarvest(ctx, s, placementID, false)
	}

	roomID := s.Room()
	room, err := d.Rooms.GetByID(ctx, roomID)
	if err != nil {
		d.Log.Error("cleanup room lookup", zap.Int64("room", roomID), zap.Error(err))
	}
	if room != nil && room.Kind == "factory" {
		d.spillFactorySlots(ctx, s, room.ID)
		if d.Registry.OccupantCount(room.ID) <= 1 {
			if err := d.Items.RemovePoofables(ctx, room.ID); err != nil {
				d.Log.Error("prune poofables", zap.Int64("room", room.ID), zap.Error(err))
			}
		}
	}

	d.Registry.Remove(connID)
	d.Log.Info("session closed", zap.String("player", s.Name), zap.String("conn", connID))

	d.Broadcast.ToRoom(roomID, message.PlayerLeft(s.Name))
	d.refreshRoom(ctx, roomID)
	d.Broadcast.ToAll(message.System(d.Templates.Render("player_left_world",
		"{player} has left the game.", map[string]any{"player": s.Name})))
}
