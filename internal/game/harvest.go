package game

import (
	"context"
	"strings"

	"github.com/resonara/server/internal/message"
	"github.com/resonara/server/internal/persist"
	"go.uber.org/zap"
)

func (d *Deps) handleHarvest(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.Harvest
	if err := env.Decode(&req); err != nil || strings.TrimSpace(req.Target) == "" {
		s.Conn.Send(message.Error("harvest what?"))
		return
	}

	placement, ok := d.matchPlacement(ctx, s, req.Target)
	if !ok {
		return
	}
	def := placement.Def

	if def.Kind != "rhythm" {
		s.Conn.Send(message.Text(d.Templates.Render("harvest_not_harvestable",
			"The {npc} cannot be harvested.", map[string]any{"npc": def.Name})))
		return
	}

	p, err := d.Players.GetByID(ctx, s.PlayerID)
	if err != nil || p == nil {
		s.Conn.Send(message.Error("could not load your character"))
		return
	}

	if def.PrerequisiteItem != "" {
		qty, err := d.playerItemQty(ctx, s.PlayerID, def.PrerequisiteItem)
		if err != nil {
			s.Conn.Send(message.Error("could not check your inventory"))
			return
		}
		if qty < 1 {
			msg := def.PrerequisiteMsg
			if msg == "" {
				msg = d.Templates.Render("harvest_missing_prereq",
					"You need a {item} to harvest the {npc}.",
					map[string]any{"item": def.PrerequisiteItem, "npc": def.Name})
			}
			s.Conn.Send(message.Text(msg))
			return
		}
	}

	for _, in := range def.InputItems {
		qty, err := d.playerItemQty(ctx, s.PlayerID, in.Name)
		if err != nil {
			s.Conn.Send(message.Error("could not check your inventory"))
			return
		}
		if qty < in.Quantity {
			s.Conn.Send(message.Text(d.Templates.Render("harvest_missing_input",
				"You need {quantity} {item} to harvest the {npc}.",
				map[string]any{"quantity": in.Quantity, "item": in.Name, "npc": def.Name})))
			return
		}
	}

	// The precondition check and the state write share one critical section
	// so only one caller can flip harvest_active.
	lock := d.placements.get(placement.ID)
	lock.Lock()
	fresh, err := d.NPCs.GetPlacement(ctx, placement.ID)
	if err != nil || fresh == nil {
		lock.Unlock()
		s.Conn.Send(message.Error("could not read the harvest state"))
		return
	}
	st := DecodeNPCState(fresh.State)
	nowMS := d.nowMS()
	switch {
	case st.CooldownUntil > nowMS:
		lock.Unlock()
		s.Conn.Send(message.Text(d.Templates.Render("harvest_not_capable",
			"The {npc} is not currently capable of being harvested.",
			map[string]any{"npc": def.Name})))
		return
	case st.HarvestActive && st.HarvestingPlayerID == s.PlayerID:
		lock.Unlock()
		s.Conn.Send(message.Text(d.Templates.Render("harvest_already_self",
			"You already are harvesting the {npc}.", map[string]any{"npc": def.Name})))
		return
	case st.HarvestActive:
		lock.Unlock()
		s.Conn.Send(message.Text(d.Templates.Render("harvest_already_other",
			"Someone else is already harvesting the {npc}.", map[string]any{"npc": def.Name})))
		return
	}

	st.HarvestActive = true
	st.HarvestingPlayerID = s.PlayerID
	st.HarvestStartTime = nowMS
	st.CooldownUntil = 0
	st.HarvestingPlayerResonance = p.Resonance
	st.HarvestingPlayerFortitude = p.Fortitude
	st.EffectiveHarvestableTime = d.Formulas.EffectiveWindow(def.HarvestableMS, p.Fortitude, def.FortitudeBonus)
	err = d.NPCs.UpdateState(ctx, placement.ID, st.Encode())
	lock.Unlock()
	if err != nil {
		d.Log.Error("write harvest state", zap.Int64("placement", placement.ID), zap.Error(err))
		s.Conn.Send(message.Error("could not start harvesting"))
		return
	}

	s.Lock()
	s.HarvestPlacementID = placement.ID
	s.Unlock()

	s.Conn.Send(message.Text(d.Templates.Render("begin_harvest",
		"You begin harvesting the {npc}.", map[string]any{"npc": def.Name})))
	d.refreshRoom(ctx, placement.RoomID)
}

// interruptHarvest ends an active harvest held by the session: flips the
// placement to cooldown and clears the session's harvest binding.
// Interrupting an already-idle placement is a no-op.
func (d *Deps) interruptHarvest(ctx context.Context, s *SessionState, placementID int64, notify bool) {
	s.Lock()
	if s.HarvestPlacementID == placementID {
		s.HarvestPlacementID = 0
	}
	s.Unlock()

	lock := d.placements.get(placementID)
	lock.Lock()
	placement, err := d.NPCs.GetPlacement(ctx, placementID)
	if err != nil || placement == nil {
		lock.Unlock()
		return
	}
	st := DecodeNPCState(placement.State)
	if !st.HarvestActive || st.HarvestingPlayerID != s.PlayerID {
		lock.Unlock()
		return
	}
	st.HarvestActive = false
	st.HarvestingPlayerID = 0
	st.HarvestStartTime = 0
	st.EffectiveHarvestableTime = 0
	st.HarvestingPlayerResonance = 0
	st.HarvestingPlayerFortitude = 0
	st.CooldownUntil = d.nowMS() + placement.Def.CooldownMS
	err = d.NPCs.UpdateState(ctx, placementID, st.Encode())
	lock.Unlock()
	if err != nil {
		d.Log.Error("interrupt harvest", zap.Int64("placement", placementID), zap.Error(err))
		return
	}

	if notify {
		s.Conn.Send(message.Text(d.Templates.Render("harvest_interrupted",
			"Your harvesting has been interrupted.", nil)))
	}
	d.refreshRoom(ctx, placement.RoomID)
}

// readPlacementState fetches and decodes a placement's current state.
func (d *Deps) readPlacementState(ctx context.Context, placementID int64) (NPCState, bool) {
	placement, err := d.NPCs.GetPlacement(ctx, placementID)
	if err != nil || placement == nil {
		return NPCState{}, false
	}
	return DecodeNPCState(placement.State), true
}

// matchPlacement partial-matches an NPC name against the session's room.
// Zero or multiple matches report to the caller and return false.
func (d *Deps) matchPlacement(ctx context.Context, s *SessionState, target string) (*persist.Placement, bool) {
	placements, err := d.NPCs.PlacementsInRoom(ctx, s.Room())
	if err != nil {
		s.Conn.Send(message.Error("could not look around"))
		return nil, false
	}
	needle := strings.ToLower(strings.TrimSpace(target))
	var matches []*persist.Placement
	for _, p := range placements {
		if strings.Contains(strings.ToLower(p.Def.Name), needle) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		s.Conn.Send(message.Text(d.Templates.Render("npc_not_found",
			"There is no {target} here.", map[string]any{"target": target})))
		return nil, false
	case 1:
		return matches[0], true
	default:
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.Def.Name)
		}
		s.Conn.Send(message.Text(d.Templates.Render("npc_ambiguous",
			"Which do you mean: [candidates]?", map[string]any{"candidates": names})))
		return nil, false
	}
}

// playerItemQty returns how many of the named item the player carries.
func (d *Deps) playerItemQty(ctx context.Context, playerID int64, name string) (int, error) {
	items, err := d.Items.PlayerItems(ctx, playerID)
	if err != nil {
		return 0, err
	}
	for _, it := range items {
		if strings.EqualFold(it.Name, name) {
			return it.Quantity, nil
		}
	}
	return 0, nil
}
