package game

import (
	"context"
	"fmt"
	"time"

	"github.com/resonara/server/internal/message"
	"github.com/resonara/server/internal/persist"
	"github.com/resonara/server/internal/scripting"
	"go.uber.org/zap"
)

// CycleEngine is the background tick that finishes elapsed harvest windows:
// it grants yields, applies vitalis drain, and flips placements to cooldown.
type CycleEngine struct {
	d    *Deps
	tick time.Duration
}

func NewCycleEngine(d *Deps, tick time.Duration) *CycleEngine {
	if tick <= 0 {
		tick = time.Second
	}
	return &CycleEngine{d: d, tick: tick}
}

// Run ticks until the context is cancelled.
func (e *CycleEngine) Run(ctx context.Context) {
	t := time.NewTicker(e.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.Tick(ctx)
		}
	}
}

// Tick sweeps every active harvest and completes the elapsed ones.
func (e *CycleEngine) Tick(ctx context.Context) {
	active, err := e.d.NPCs.ActiveHarvests(ctx)
	if err != nil {
		e.d.Log.Error("scan active harvests", zap.Error(err))
		return
	}
	nowMS := e.d.nowMS()
	for _, placement := range active {
		st := DecodeNPCState(placement.State)
		if !st.HarvestActive || st.HarvestStartTime+st.EffectiveHarvestableTime > nowMS {
			continue
		}
		e.completeHarvest(ctx, placement)
	}
}

// completeHarvest finishes one elapsed harvest window under the placement
// lock, re-reading state so a racing interrupt wins cleanly.
func (e *CycleEngine) completeHarvest(ctx context.Context, placement *persist.Placement) {
	d := e.d
	def := placement.Def

	lock := d.placements.get(placement.ID)
	lock.Lock()
	fresh, err := d.NPCs.GetPlacement(ctx, placement.ID)
	if err != nil || fresh == nil {
		lock.Unlock()
		return
	}
	st := DecodeNPCState(fresh.State)
	nowMS := d.nowMS()
	if !st.HarvestActive || st.HarvestStartTime+st.EffectiveHarvestableTime > nowMS {
		lock.Unlock()
		return
	}

	harvesterID := st.HarvestingPlayerID
	result := d.Formulas.CalcHarvest(scripting.HarvestContext{
		Difficulty:     def.Difficulty,
		HitRate:        def.HitRate,
		CycleReduction: def.CycleReduction,
		Cycles:         st.Cycles,
		Resonance:      st.HarvestingPlayerResonance,
		Fortitude:      st.HarvestingPlayerFortitude,
		HitVitalis:     def.HitVitalis,
		MissVitalis:    def.MissVitalis,
	})

	st.Cycles++
	st.HarvestActive = false
	st.HarvestingPlayerID = 0
	st.HarvestStartTime = 0
	st.EffectiveHarvestableTime = 0
	st.HarvestingPlayerResonance = 0
	st.HarvestingPlayerFortitude = 0
	st.CooldownUntil = nowMS + def.CooldownMS
	err = d.NPCs.UpdateState(ctx, placement.ID, st.Encode())
	lock.Unlock()
	if err != nil {
		d.Log.Error("finish harvest", zap.Int64("placement", placement.ID), zap.Error(err))
		return
	}

	// Yield, drain, and inputs are one compound mutation.
	var yield []persist.ItemStack
	err = d.Tx.WithTx(ctx, func(ctx context.Context) error {
		for _, in := range def.InputItems {
			if _, err := d.Items.RemovePlayerItem(ctx, harvesterID, in.Name, in.Quantity); err != nil {
				return err
			}
		}
		for _, out := range def.OutputItems {
			qty := out.Quantity * result.Hits
			if qty <= 0 {
				continue
			}
			if err := d.Items.AddPlayerItem(ctx, harvesterID, out.Name, qty); err != nil {
				return err
			}
			yield = append(yield, persist.ItemStack{Name: out.Name, Quantity: qty})
		}
		if result.VitalisDrain > 0 {
			if err := d.Players.AdjustVitalis(ctx, harvesterID, -result.VitalisDrain); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		d.Log.Error("apply harvest yield",
			zap.Int64("placement", placement.ID),
			zap.Int64("player", harvesterID),
			zap.Error(err))
		return
	}

	if s := d.Registry.ByPlayer(harvesterID); s != nil {
		s.Lock()
		if s.HarvestPlacementID == placement.ID {
			s.HarvestPlacementID = 0
		}
		s.Unlock()
		s.Conn.Send(message.Text(d.Templates.Render("harvest_complete",
			"The {npc} finishes its cycle. You receive {yield}.",
			map[string]any{"npc": def.Name, "yield": describeYield(yield)})))
		d.sendPlayerStats(ctx, s)
		d.sendInventory(ctx, s)
	}
	d.refreshRoom(ctx, placement.RoomID)
}

func describeYield(yield []persist.ItemStack) string {
	if len(yield) == 0 {
		return "nothing"
	}
	out := ""
	for i, y := range yield {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d %s", y.Quantity, y.Name)
	}
	return out
}
