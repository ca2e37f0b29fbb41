package game

import (
	"context"
	"strconv"
	"strings"

	"github.com/resonara/server/internal/message"
	"github.com/resonara/server/internal/persist"
	"go.uber.org/zap"
)

func (d *Deps) handleLook(ctx context.Context, s *SessionState, env message.Envelope) {
	room, err := d.Rooms.GetByID(ctx, s.Room())
	if err != nil || room == nil {
		s.Conn.Send(message.Error("could not load the room"))
		return
	}
	d.sendRoom(ctx, s, room, false)
	if room.Description != "" {
		// Room descriptions are authored with inline markup.
		s.Conn.Send(message.HTMLText(room.Description))
	}
	d.sendRoomProse(ctx, s, room)
}

func (d *Deps) handleInventory(ctx context.Context, s *SessionState, env message.Envelope) {
	d.sendInventory(ctx, s)
}

func (d *Deps) handleTake(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.Take
	if err := env.Decode(&req); err != nil || strings.TrimSpace(req.ItemName) == "" {
		s.Conn.Send(message.Error("take what?"))
		return
	}
	roomID := s.Room()
	stacks, err := d.Items.RoomItems(ctx, roomID)
	if err != nil {
		s.Conn.Send(message.Error("could not look around"))
		return
	}
	stack, ok := d.matchStack(s, stacks, req.ItemName)
	if !ok {
		s.Conn.Send(message.Text(d.Templates.Render("take_missing",
			"There is no {item} here.", map[string]any{"item": req.ItemName})))
		return
	}
	qty, err := parseQuantity(req.Quantity, stack.Quantity)
	if err != nil {
		s.Conn.Send(message.Error("bad quantity"))
		return
	}
	if qty > stack.Quantity {
		s.Conn.Send(message.Text(d.Templates.Render("take_missing",
			"There is no {item} here.", map[string]any{"item": req.ItemName})))
		return
	}

	err = d.Tx.WithTx(ctx, func(ctx context.Context) error {
		removed, err := d.Items.RemoveRoomItem(ctx, roomID, stack.Name, qty)
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
			d.Log.Error("take item", zap.Error(err))
		}
		s.Conn.Send(message.Text(d.Templates.Render("take_missing",
			"There is no {item} here.", map[string]any{"item": req.ItemName})))
		return
	}

	s.Conn.Send(message.Text(d.Templates.Render("take_success",
		"You pick up {quantity} {item}.",
		map[string]any{"quantity": qty, "item": stack.Name})))
	d.sendPlayerStats(ctx, s)
	d.sendInventory(ctx, s)
	d.refreshRoom(ctx, roomID)
}

func (d *Deps) handleDrop(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.Drop
	if err := env.Decode(&req); err != nil || strings.TrimSpace(req.ItemName) == "" {
		s.Conn.Send(message.Error("drop what?"))
		return
	}
	stacks, err := d.Items.PlayerItems(ctx, s.PlayerID)
	if err != nil {
		s.Conn.Send(message.Error("could not check your inventory"))
		return
	}
	stack, ok := d.matchStack(s, stacks, req.ItemName)
	if !ok {
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
		s.Conn.Send(message.Text(d.Templates.Render("drop_missing",
			"You don't have {quantity} {item}.",
			map[string]any{"quantity": qty, "item": stack.Name})))
		return
	}

	roomID := s.Room()
	err = d.Tx.WithTx(ctx, func(ctx context.Context) error {
		removed, err := d.Items.RemovePlayerItem(ctx, s.PlayerID, stack.Name, qty)
		if err != nil {
			return err
		}
		if !removed {
			return errGone
		}
		return d.Items.AddRoomItem(ctx, roomID, stack.Name, qty)
	})
	if err != nil {
		if err != errGone {
			d.Log.Error("drop item", zap.Error(err))
		}
		s.Conn.Send(message.Error("could not drop that"))
		return
	}

	s.Conn.Send(message.Text(d.Templates.Render("drop_success",
		"You drop {quantity} {item}.",
		map[string]any{"quantity": qty, "item": stack.Name})))
	d.sendPlayerStats(ctx, s)
	d.sendInventory(ctx, s)
	d.refreshRoom(ctx, roomID)
}

func (d *Deps) handleFactoryWidgetAddItem(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.FactoryWidgetAddItem
	if err := env.Decode(&req); err != nil || strings.TrimSpace(req.ItemName) == "" {
		s.Conn.Send(message.Error("add what?"))
		return
	}
	if req.Slot < 0 || req.Slot >= len(s.FactorySlots) {
		s.Conn.Send(message.Error("no such slot"))
		return
	}
	room, err := d.Rooms.GetByID(ctx, s.Room())
	if err != nil || room == nil || room.Kind != "factory" {
		s.Conn.Send(message.Text(d.Templates.Render("not_implemented",
			"That is not something you can do here.", nil)))
		return
	}

	stacks, err := d.Items.PlayerItems(ctx, s.PlayerID)
	if err != nil {
		s.Conn.Send(message.Error("could not check your inventory"))
		return
	}
	stack, ok := d.matchStack(s, stacks, req.ItemName)
	if !ok {
		s.Conn.Send(message.Text(d.Templates.Render("drop_missing",
			"You don't have {quantity} {item}.",
			map[string]any{"quantity": 1, "item": req.ItemName})))
		return
	}

	s.Lock()
	slot := s.FactorySlots[req.Slot]
	if slot != nil && !strings.EqualFold(slot.Name, stack.Name) {
		s.Unlock()
		s.Conn.Send(message.Error("that slot holds something else"))
		return
	}
	s.Unlock()

	removed, err := d.Items.RemovePlayerItem(ctx, s.PlayerID, stack.Name, 1)
	if err != nil || !removed {
		s.Conn.Send(message.Error("could not move the item"))
		return
	}

	s.Lock()
	if s.FactorySlots[req.Slot] == nil {
		s.FactorySlots[req.Slot] = &persist.ItemStack{Name: stack.Name, Quantity: 1}
	} else {
		s.FactorySlots[req.Slot].Quantity++
	}
	s.Unlock()

	s.Conn.Send(*d.factoryWidget(s))
	d.sendPlayerStats(ctx, s)
	d.sendInventory(ctx, s)
}

// matchStack partial-matches an item name in a stack list. Ambiguity is
// reported to the session and false returned.
func (d *Deps) matchStack(s *SessionState, stacks []persist.ItemStack, needle string) (persist.ItemStack, bool) {
	lower := strings.ToLower(strings.TrimSpace(needle))
	var matches []persist.ItemStack
	for _, st := range stacks {
		if strings.EqualFold(st.Name, lower) {
			return st, true
		}
		if strings.Contains(strings.ToLower(st.Name), lower) {
			matches = append(matches, st)
		}
	}
	switch len(matches) {
	case 0:
		return persist.ItemStack{}, false
	case 1:
		return matches[0], true
	default:
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.Name)
		}
		s.Conn.Send(message.Text(d.Templates.Render("item_ambiguous",
			"Which do you mean: [candidates]?", map[string]any{"candidates": names})))
		return persist.ItemStack{}, false
	}
}

// parseQuantity resolves a wire quantity: empty means 1, "all" means the
// whole available stack.
func parseQuantity(raw string, available int) (int, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "":
		return 1, nil
	case "all":
		return available, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errBadQuantity
	}
	return n, nil
}

func orOne(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "1"
	}
	return raw
}
