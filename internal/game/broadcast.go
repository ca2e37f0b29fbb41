package game

import (
	"context"
	"sort"

	"github.com/resonara/server/internal/message"
	"github.com/resonara/server/internal/persist"
	"go.uber.org/zap"
)

// Broadcaster fans frames out over the registry. Sends never block: a
// session with a full out-queue drops the connection, not the caller.
type Broadcaster struct {
	reg *Registry
	log *zap.Logger
}

func NewBroadcaster(reg *Registry, log *zap.Logger) *Broadcaster {
	return &Broadcaster{reg: reg, log: log}
}

// ToAll sends to every registered session.
func (b *Broadcaster) ToAll(v any) {
	for _, s := range b.reg.All() {
		s.Conn.Send(v)
	}
}

// ToRoom sends to every session in the room.
func (b *Broadcaster) ToRoom(roomID int64, v any) {
	for _, s := range b.reg.InRoom(roomID) {
		s.Conn.Send(v)
	}
}

// ToRoomExcept sends to every session in the room but the named connection.
func (b *Broadcaster) ToRoomExcept(roomID int64, exceptConnID string, v any) {
	for _, s := range b.reg.InRoom(roomID) {
		if s.ID == exceptConnID {
			continue
		}
		s.Conn.Send(v)
	}
}

// ToPlayer sends to a player's live session, if any.
func (b *Broadcaster) ToPlayer(playerID int64, v any) bool {
	s := b.reg.ByPlayer(playerID)
	if s == nil {
		return false
	}
	s.Conn.Send(v)
	return true
}

// roomFrame assembles the canonical room view for one session: occupants,
// NPC status labels, floor items, exits, and any room widgets.
func (d *Deps) roomFrame(ctx context.Context, s *SessionState, room *persist.Room, firstTime bool) (*message.RoomFrame, error) {
	mp, err := d.Rooms.MapByID(ctx, room.MapID)
	if err != nil {
		return nil, err
	}
	frame := &message.RoomFrame{
		Type:        "moved",
		RoomID:      room.ID,
		Name:        room.Name,
		Description: room.Description,
		MapName:     mp.Name,
		RoomType:    room.Kind,
		X:           room.X,
		Y:           room.Y,
		MapID:       room.MapID,
		FirstTime:   firstTime,
	}

	for _, occ := range d.Registry.InRoom(room.ID) {
		frame.Players = append(frame.Players, occ.Name)
	}
	sort.Strings(frame.Players)

	placements, err := d.NPCs.PlacementsInRoom(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	nowMS := d.nowMS()
	for _, p := range placements {
		st := DecodeNPCState(p.State)
		frame.NPCs = append(frame.NPCs, message.NPCSummary{
			Name:   p.Def.Name,
			Kind:   p.Def.Kind,
			Status: st.StatusLabel(nowMS),
			Slot:   p.Slot,
		})
	}

	items, err := d.Items.RoomItems(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		frame.Items = append(frame.Items, message.ItemQty{Name: it.Name, Quantity: it.Quantity})
	}

	frame.Exits, err = d.exits(ctx, room)
	if err != nil {
		return nil, err
	}

	if room.Kind == "factory" {
		frame.Factory = d.factoryWidget(s)
	}
	if room.Kind == "warehouse" {
		w, err := d.warehouseWidget(ctx, s, room)
		if err != nil {
			return nil, err
		}
		frame.Warehouse = w
	}
	return frame, nil
}

// exits lists the traversable compass codes: adjacent rooms on the same map
// plus the room's portal direction.
func (d *Deps) exits(ctx context.Context, room *persist.Room) ([]string, error) {
	var out []string
	for _, dir := range Directions {
		if room.Portal != nil && room.Portal.Direction == string(dir) {
			out = append(out, string(dir))
			continue
		}
		dx, dy := dir.Delta()
		adj, err := d.Rooms.GetByCoords(ctx, room.MapID, room.X+dx, room.Y+dy)
		if err != nil {
			return nil, err
		}
		if adj != nil {
			out = append(out, string(dir))
		}
	}
	return out, nil
}

// factoryWidget snapshots the session's two factory slots.
func (d *Deps) factoryWidget(s *SessionState) *message.FactoryWidgetState {
	s.Lock()
	defer s.Unlock()
	slots := make([]message.FactorySlot, 0, len(s.FactorySlots))
	for _, slot := range s.FactorySlots {
		if slot == nil {
			slots = append(slots, message.FactorySlot{})
			continue
		}
		slots = append(slots, message.FactorySlot{ItemName: slot.Name, Quantity: slot.Quantity})
	}
	w := message.FactoryWidget(slots)
	return &w
}

// warehouseWidget builds the warehouse panel. Non-deed-holders get a
// view-only panel with the capacity limits and no contents.
func (d *Deps) warehouseWidget(ctx context.Context, s *SessionState, room *persist.Room) (*message.WarehouseWidgetState, error) {
	wh, err := d.Warehouses.ByRoom(ctx, room.ID)
	if err != nil || wh == nil {
		return nil, err
	}
	hasDeed, err := d.Warehouses.HasDeed(ctx, s.PlayerID, wh.ID)
	if err != nil {
		return nil, err
	}
	state := &message.WarehouseWidgetState{
		Type:        "warehouseWidgetState",
		WarehouseID: wh.ID,
		MaxTypes:    wh.MaxTypes,
		MaxPerType:  wh.MaxPerType,
		ViewOnly:    !hasDeed,
	}
	if hasDeed {
		items, err := d.Warehouses.Items(ctx, wh.ID, s.PlayerID)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			state.Items = append(state.Items, message.ItemQty{Name: it.Name, Quantity: it.Quantity})
		}
	}
	s.Lock()
	s.WarehouseID = wh.ID
	s.WarehouseViewOnly = !hasDeed
	s.Unlock()
	return state, nil
}

// sendRoom pushes the room view to one session.
func (d *Deps) sendRoom(ctx context.Context, s *SessionState, room *persist.Room, firstTime bool) {
	frame, err := d.roomFrame(ctx, s, room, firstTime)
	if err != nil {
		d.Log.Error("room frame", zap.Int64("room", room.ID), zap.Error(err))
		s.Conn.Send(message.Error("could not load the room"))
		return
	}
	s.Conn.Send(frame)
}

// refreshRoom re-sends the room view to every occupant, e.g. after an NPC
// status or floor-item change.
func (d *Deps) refreshRoom(ctx context.Context, roomID int64) {
	room, err := d.Rooms.GetByID(ctx, roomID)
	if err != nil || room == nil {
		return
	}
	for _, occ := range d.Registry.InRoom(roomID) {
		d.sendRoom(ctx, occ, room, false)
	}
}

// sendRoomProse sends the "Also here / Exits / On ground" terminal lines
// that accompany a room frame on arrival.
func (d *Deps) sendRoomProse(ctx context.Context, s *SessionState, room *persist.Room) {
	var others []string
	for _, occ := range d.Registry.InRoom(room.ID) {
		if occ.ID == s.ID {
			continue
		}
		others = append(others, occ.Name)
	}
	sort.Strings(others)
	if len(others) > 0 {
		s.Conn.Send(message.Text(d.Templates.Render("also_here",
			"Also here: [players].", map[string]any{"players": others})))
	}

	exits, err := d.exits(ctx, room)
	if err == nil && len(exits) > 0 {
		readable := make([]string, 0, len(exits))
		for _, e := range exits {
			readable = append(readable, Direction(e).Readable())
		}
		s.Conn.Send(message.Text(d.Templates.Render("exits",
			"Exits: [exits].", map[string]any{"exits": readable})))
	}

	items, err := d.Items.RoomItems(ctx, room.ID)
	if err == nil && len(items) > 0 {
		names := make([]string, 0, len(items))
		for _, it := range items {
			names = append(names, it.Name)
		}
		s.Conn.Send(message.Text(d.Templates.Render("on_ground",
			"On ground: [items].", map[string]any{"items": names})))
	}
}

// sendPlayerStats pushes the stat sheet with live encumbrance.
func (d *Deps) sendPlayerStats(ctx context.Context, s *SessionState) {
	p, err := d.Players.GetByID(ctx, s.PlayerID)
	if err != nil || p == nil {
		return
	}
	enc, err := d.Players.CurrentEncumbrance(ctx, s.PlayerID)
	if err != nil {
		return
	}
	s.Conn.Send(&message.PlayerStatsFrame{
		Type:           "playerStats",
		Name:           p.Name,
		Stats:          p.Stats(),
		Encumbrance:    enc,
		EncumbranceCap: p.EncumbranceCap,
		UnspentPoints:  p.UnspentPoints,
	})
}

// sendInventory pushes the inventory listing with total encumbrance.
func (d *Deps) sendInventory(ctx context.Context, s *SessionState) {
	items, err := d.Items.PlayerItems(ctx, s.PlayerID)
	if err != nil {
		return
	}
	enc, err := d.Players.CurrentEncumbrance(ctx, s.PlayerID)
	if err != nil {
		return
	}
	frame := &message.InventoryListFrame{Type: "inventoryList", Encumbrance: enc}
	for _, it := range items {
		frame.Items = append(frame.Items, message.ItemQty{Name: it.Name, Quantity: it.Quantity})
	}
	s.Conn.Send(frame)
}

// mapData assembles the full map payload with room type colors.
func (d *Deps) mapData(ctx context.Context, mapID int64) (*message.MapDataFrame, error) {
	mp, err := d.Rooms.MapByID(ctx, mapID)
	if err != nil {
		return nil, err
	}
	if mp == nil {
		return nil, nil
	}
	rooms, err := d.Rooms.ByMap(ctx, mapID)
	if err != nil {
		return nil, err
	}
	colors, err := d.Rooms.RoomTypeColors(ctx)
	if err != nil {
		return nil, err
	}
	frame := &message.MapDataFrame{
		Type:           "mapData",
		MapID:          mp.ID,
		MapName:        mp.Name,
		RoomTypeColors: colors,
	}
	for _, r := range rooms {
		frame.Rooms = append(frame.Rooms, message.MapRoom{
			RoomID: r.ID, X: r.X, Y: r.Y, Name: r.Name, RoomType: r.Kind,
		})
	}
	return frame, nil
}
