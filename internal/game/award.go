package game

import (
	"context"
	"fmt"
	"time"

	"github.com/resonara/server/internal/message"
	"github.com/resonara/server/internal/persist"
	"go.uber.org/zap"
)

// awardItem grants a keeper's reward item subject to the eligibility ladder:
// unconditional when neither once-only nor delay applies, always on the first
// award, never again when once-only, and after the configured delay otherwise.
func (d *Deps) awardItem(ctx context.Context, s *SessionState, k *persist.LoreKeeper) {
	grant := func() {
		err := d.Tx.WithTx(ctx, func(ctx context.Context) error {
			if err := d.NPCs.RecordAward(ctx, s.PlayerID, k.NPCID, k.RewardItem); err != nil {
				return err
			}
			return d.Items.AddPlayerItem(ctx, s.PlayerID, k.RewardItem, 1)
		})
		if err != nil {
			d.Log.Error("grant award",
				zap.Int64("player", s.PlayerID),
				zap.Int64("npc", k.NPCID),
				zap.Error(err))
			return
		}
		s.Conn.Send(message.Text(d.Templates.Render("award_granted",
			"{npc} gives you a {item}.", map[string]any{"npc": k.Name, "item": k.RewardItem})))
		d.sendPlayerStats(ctx, s)
		d.sendInventory(ctx, s)
	}

	if !k.AwardOnce && !k.AwardAfterDelay {
		grant()
		return
	}

	last, err := d.NPCs.LastAwardTime(ctx, s.PlayerID, k.NPCID, k.RewardItem)
	if err != nil {
		d.Log.Error("last award time", zap.Error(err))
		return
	}
	switch {
	case last.IsZero():
		grant()
	case k.AwardOnce:
		// Already rewarded; stay silent.
	case k.AwardAfterDelay:
		elapsed := d.now().Sub(last)
		wait := time.Duration(k.DelaySeconds) * time.Second
		if elapsed >= wait {
			grant()
			return
		}
		remaining := int((wait - elapsed).Round(time.Second).Seconds())
		s.Conn.Send(message.Text(d.Templates.Render("award_wait",
			"You must wait {seconds} more seconds.",
			map[string]any{"seconds": fmt.Sprint(remaining)})))
	}
}
