package game

import (
	"context"
	"math"
	"strings"

	"github.com/resonara/server/internal/message"
	"github.com/resonara/server/internal/persist"
	"go.uber.org/zap"
)

// handleWarehouseView serves the `warehouse` command: a view-only panel of
// the first warehouse the player holds a deed for, usable from anywhere.
func (d *Deps) handleWarehouseView(ctx context.Context, s *SessionState, env message.Envelope) {
	deeds, err := d.Warehouses.Deeds(ctx, s.PlayerID)
	if err != nil {
		s.Conn.Send(message.Error("could not check your deeds"))
		return
	}
	if len(deeds) == 0 {
		s.Conn.Send(message.Text(d.Templates.Render("warehouse_no_deed",
			"You have no deed for this warehouse.", nil)))
		return
	}
	warehouseID := deeds[0]
	limits, err := d.Warehouses.Capacity(ctx, warehouseID)
	if err != nil || limits == nil {
		s.Conn.Send(message.Error("could not load the warehouse"))
		return
	}
	items, err := d.Warehouses.Items(ctx, warehouseID, s.PlayerID)
	if err != nil {
		s.Conn.Send(message.Error("could not load the warehouse"))
		return
	}
	state := &message.WarehouseWidgetState{
		Type:        "warehouseWidgetState",
		WarehouseID: warehouseID,
		MaxTypes:    limits.MaxTypes,
		MaxPerType:  limits.MaxPerType,
		ViewOnly:    true,
	}
	for _, it := range items {
		state.Items = append(state.Items, message.ItemQty{Name: it.Name, Quantity: it.Quantity})
	}
	s.Conn.Send(state)
}

// handleStore moves inventory into the warehouse of the current room,
// clipping to the capacity limits.
func (d *Deps) handleStore(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.Store
	if err := env.Decode(&req); err != nil || strings.TrimSpace(req.ItemName) == "" {
		s.Conn.Send(message.Error("store what?"))
		return
	}

	wh, ok := d.requireWarehouseAccess(ctx, s)
	if !ok {
		return
	}

	stacks, err := d.Items.PlayerItems(ctx, s.PlayerID)
	if err != nil {
		s.Conn.Send(message.Error("could not check your inventory"))
		return
	}
	stack, found := d.matchStack(s, stacks, req.ItemName)
	if !found {
		s.Conn.Send(message.Text(d.Templates.Render("drop_missing",
			"You don't have {quantity} {item}.",
			map[string]any{"quantity": orOne(req.Quantity), "item": req.ItemName})))
		return
	}
	qty, err := parseQuantity(req.Quantity, stack.Quantity)
	if err != nil {
		s.Conn.Send(message.Error("bad quantity"))
		return
	}
	if qty > stack.Quantity {
		qty = stack.Quantity
	}

	held, err := d.Warehouses.Quantity(ctx, wh.ID, s.PlayerID, stack.Name)
	if err != nil {
		s.Conn.Send(message.Error("could not load the warehouse"))
		return
	}
	if held == 0 {
		types, err := d.Warehouses.TypeCount(ctx, wh.ID, s.PlayerID)
		if err != nil {
			s.Conn.Send(message.Error("could not load the warehouse"))
			return
		}
		if types >= wh.MaxTypes {
			s.Conn.Send(message.Text(d.Templates.Render("warehouse_full_types",
				"The warehouse cannot hold any more kinds of items.", nil)))
			return
		}
	}

	clipped := false
	if held+qty > wh.MaxPerType {
		qty = wh.MaxPerType - held
		clipped = true
	}
	if qty <= 0 {
		s.Conn.Send(message.Text(d.Templates.Render("warehouse_clipped",
			"The warehouse only had room for {quantity} {item}.",
			map[string]any{"quantity": 0, "item": stack.Name})))
		return
	}

	err = d.Tx.WithTx(ctx, func(ctx context.Context) error {
		removed, err := d.Items.RemovePlayerItem(ctx, s.PlayerID, stack.Name, qty)
		if err != nil {
			return err
		}
		if !removed {
			return errGone
		}
		return d.Warehouses.AddItem(ctx, wh.ID, s.PlayerID, stack.Name, qty)
	})
	if err != nil {
		if err != errGone {
			d.Log.Error("store item", zap.Error(err))
		}
		s.Conn.Send(message.Error("could not store that"))
		return
	}

	if clipped {
		s.Conn.Send(message.Text(d.Templates.Render("warehouse_clipped",
			"The warehouse only had room for {quantity} {item}.",
			map[string]any{"quantity": qty, "item": stack.Name})))
	} else {
		s.Conn.Send(message.Text(d.Templates.Render("drop_success",
			"You drop {quantity} {item}.",
			map[string]any{"quantity": qty, "item": stack.Name})))
	}
	d.sendPlayerStats(ctx, s)
	d.sendInventory(ctx, s)
	d.sendWarehouseWidget(ctx, s, wh)
}

// warehouseWithdraw moves warehouse stock back to the inventory, clipping to
// the player's remaining encumbrance.
func (d *Deps) warehouseWithdraw(ctx context.Context, s *SessionState, itemName, quantity string) {
	wh, ok := d.requireWarehouseAccess(ctx, s)
	if !ok {
		return
	}

	stacks, err := d.Warehouses.Items(ctx, wh.ID, s.PlayerID)
	if err != nil {
		s.Conn.Send(message.Error("could not load the warehouse"))
		return
	}
	stack, found := d.matchStack(s, stacks, itemName)
	if !found {
		s.Conn.Send(message.Text(d.Templates.Render("warehouse_missing",
			"The warehouse holds no {item}.", map[string]any{"item": itemName})))
		return
	}
	qty, err := parseQuantity(quantity, stack.Quantity)
	if err != nil {
		s.Conn.Send(message.Error("bad quantity"))
		return
	}
	if qty > stack.Quantity {
		qty = stack.Quantity
	}

	p, err := d.Players.GetByID(ctx, s.PlayerID)
	if err != nil || p == nil {
		s.Conn.Send(message.Error("could not load your character"))
		return
	}
	if !p.GodMode {
		enc, err := d.Players.CurrentEncumbrance(ctx, s.PlayerID)
		if err != nil {
			s.Conn.Send(message.Error("could not compute encumbrance"))
			return
		}
		unit, err := d.Items.Encumbrance(ctx, stack.Name)
		if err != nil {
			s.Conn.Send(message.Error("could not look that item up"))
			return
		}
		if unit > 0 {
			room := p.EncumbranceCap - enc
			fit := int(math.Floor(room / unit))
			if fit < qty {
				qty = fit
			}
		}
	}
	if qty <= 0 {
		s.Conn.Send(message.Text(d.Templates.Render("too_heavy",
			"You are carrying too much to move.", nil)))
		return
	}

	err = d.Tx.WithTx(ctx, func(ctx context.Context) error {
		removed, err := d.Warehouses.RemoveItem(ctx, wh.ID, s.PlayerID, stack.Name, qty)
		if err != nil {
			return err
		}
		if !removed {
			return errGone
		}
		return d.Items.AddPlayerItem(ctx, s.PlayerID, stack.Name, qty)
	})
	if err != nil {
		if err != errGone {
			d.Log.Error("withdraw item", zap.Error(err))
		}
		s.Conn.Send(message.Error("could not withdraw that"))
		return
	}

	s.Conn.Send(message.Text(d.Templates.Render("take_success",
		"You pick up {quantity} {item}.",
		map[string]any{"quantity": qty, "item": stack.Name})))
	d.sendPlayerStats(ctx, s)
	d.sendInventory(ctx, s)
	d.sendWarehouseWidget(ctx, s, wh)
}

// requireWarehouseAccess resolves the current room's warehouse and checks
// the deed. Full access requires standing in the warehouse room.
func (d *Deps) requireWarehouseAccess(ctx context.Context, s *SessionState) (*persist.WarehouseDef, bool) {
	room, err := d.Rooms.GetByID(ctx, s.Room())
	if err != nil || room == nil {
		s.Conn.Send(message.Error("could not load the room"))
		return nil, false
	}
	if room.Kind != "warehouse" {
		s.Conn.Send(message.Text(d.Templates.Render("not_implemented",
			"That is not something you can do here.", nil)))
		return nil, false
	}
	wh, err := d.Warehouses.ByRoom(ctx, room.ID)
	if err != nil || wh == nil {
		s.Conn.Send(message.Error("could not load the warehouse"))
		return nil, false
	}
	hasDeed, err := d.Warehouses.HasDeed(ctx, s.PlayerID, wh.ID)
	if err != nil {
		s.Conn.Send(message.Error("could not check your deeds"))
		return nil, false
	}
	if !hasDeed {
		s.Conn.Send(message.Text(d.Templates.Render("warehouse_no_deed",
			"You have no deed for this warehouse.", nil)))
		return nil, false
	}
	return wh, true
}

// sendWarehouseWidget refreshes the session's warehouse panel after a
// mutation.
func (d *Deps) sendWarehouseWidget(ctx context.Context, s *SessionState, wh *persist.WarehouseDef) {
	items, err := d.Warehouses.Items(ctx, wh.ID, s.PlayerID)
	if err != nil {
		return
	}
	state := &message.WarehouseWidgetState{
		Type:        "warehouseWidgetState",
		WarehouseID: wh.ID,
		MaxTypes:    wh.MaxTypes,
		MaxPerType:  wh.MaxPerType,
	}
	for _, it := range items {
		state.Items = append(state.Items, message.ItemQty{Name: it.Name, Quantity: it.Quantity})
	}
	s.Conn.Send(state)
}
