package persist

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type NPCRepo struct {
	db *DB
}

func NewNPCRepo(db *DB) *NPCRepo {
	return &NPCRepo{db: db}
}

const npcDefCols = `n.id, n.name, n.kind, n.base_cycle_ms, n.difficulty, n.input_items,
	n.output_items, n.harvestable_ms, n.cooldown_ms, n.prerequisite_item, n.prerequisite_msg,
	n.hit_rate, n.cycle_reduction, n.hit_vitalis, n.miss_vitalis, n.fortitude_bonus`

func scanNPCDef(row pgx.Row) (*NPCDef, error) {
	var d NPCDef
	var input, output []byte
	err := row.Scan(&d.ID, &d.Name, &d.Kind, &d.BaseCycleMS, &d.Difficulty, &input, &output,
		&d.HarvestableMS, &d.CooldownMS, &d.PrerequisiteItem, &d.PrerequisiteMsg,
		&d.HitRate, &d.CycleReduction, &d.HitVitalis, &d.MissVitalis, &d.FortitudeBonus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.InputItems = decodeStacks(input)
	d.OutputItems = decodeStacks(output)
	return &d, nil
}

func (r *NPCRepo) GetDefinition(ctx context.Context, id int64) (*NPCDef, error) {
	return scanNPCDef(r.db.q(ctx).QueryRow(ctx,
		`SELECT `+npcDefCols+` FROM scriptable_npcs n WHERE n.id = $1`, id))
}

func (r *NPCRepo) scanPlacements(rows pgx.Rows) ([]*Placement, error) {
	defer rows.Close()
	var out []*Placement
	for rows.Next() {
		var p Placement
		var d NPCDef
		var input, output []byte
		err := rows.Scan(&p.ID, &p.NPCID, &p.RoomID, &p.Slot, &p.State,
			&d.ID, &d.Name, &d.Kind, &d.BaseCycleMS, &d.Difficulty, &input, &output,
			&d.HarvestableMS, &d.CooldownMS, &d.PrerequisiteItem, &d.PrerequisiteMsg,
			&d.HitRate, &d.CycleReduction, &d.HitVitalis, &d.MissVitalis, &d.FortitudeBonus)
		if err != nil {
			return nil, err
		}
		d.InputItems = decodeStacks(input)
		d.OutputItems = decodeStacks(output)
		p.Def = &d
		out = append(out, &p)
	}
	return out, rows.Err()
}

const placementSelect = `SELECT rn.id, rn.npc_id, rn.room_id, rn.slot, rn.state, ` + npcDefCols + `
	 FROM room_npcs rn JOIN scriptable_npcs n ON n.id = rn.npc_id`

// PlacementsInRoom returns all NPC placements in a room joined with their
// definitions, ordered by slot.
func (r *NPCRepo) PlacementsInRoom(ctx context.Context, roomID int64) ([]*Placement, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		placementSelect+` WHERE rn.room_id = $1 ORDER BY rn.slot`, roomID)
	if err != nil {
		return nil, err
	}
	return r.scanPlacements(rows)
}

func (r *NPCRepo) GetPlacement(ctx context.Context, placementID int64) (*Placement, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		placementSelect+` WHERE rn.id = $1`, placementID)
	if err != nil {
		return nil, err
	}
	out, err := r.scanPlacements(rows)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

// ActiveHarvests returns placements whose state currently marks an active
// harvest. Raw jsonb predicate on room_npcs; the cycle engine owns this scan.
func (r *NPCRepo) ActiveHarvests(ctx context.Context) ([]*Placement, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		placementSelect+` WHERE (rn.state->>'harvest_active')::boolean IS TRUE`)
	if err != nil {
		return nil, err
	}
	return r.scanPlacements(rows)
}

func (r *NPCRepo) UpdateState(ctx context.Context, placementID int64, state []byte) error {
	return r.db.exec(ctx, `UPDATE room_npcs SET state = $1 WHERE id = $2`, state, placementID)
}

const loreKeeperCols = `lk.npc_id, rn.id, rn.room_id, n.name, lk.lore_kind, lk.engage_enabled,
	lk.engage_delay_ms, lk.initial_message, lk.initial_color, lk.npc_color, lk.keywords,
	lk.keyword_color, lk.incorrect_response, lk.puzzle_mode, lk.clues, lk.solution,
	lk.success_message, lk.failure_message, lk.hint_responses, lk.followup_responses,
	lk.incorrect_attempts, lk.extraction_pattern, lk.reward_item, lk.award_once,
	lk.award_after_delay, lk.delay_seconds`

// LoreKeepersInRoom returns the flattened lorekeeper decorations for every
// lorekeeper NPC placed in the room.
func (r *NPCRepo) LoreKeepersInRoom(ctx context.Context, roomID int64) ([]*LoreKeeper, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT `+loreKeeperCols+`
		 FROM room_npcs rn
		 JOIN scriptable_npcs n ON n.id = rn.npc_id AND n.kind = 'lorekeeper'
		 JOIN lore_keepers lk ON lk.npc_id = n.id
		 WHERE rn.room_id = $1 ORDER BY rn.slot`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*LoreKeeper
	for rows.Next() {
		var k LoreKeeper
		var keywords, clues, hints, followups, attempts, pattern []byte
		err := rows.Scan(&k.NPCID, &k.PlacementID, &k.RoomID, &k.Name, &k.LoreKind,
			&k.EngageEnabled, &k.EngageDelayMS, &k.InitialMessage, &k.InitialColor,
			&k.NPCColor, &keywords, &k.KeywordColor, &k.IncorrectResponse, &k.PuzzleMode,
			&clues, &k.Solution, &k.SuccessMessage, &k.FailureMessage, &hints, &followups,
			&attempts, &pattern, &k.RewardItem, &k.AwardOnce, &k.AwardAfterDelay, &k.DelaySeconds)
		if err != nil {
			return nil, err
		}
		k.Keywords = decodeStringMap(keywords)
		k.Clues = decodeStrings(clues)
		k.HintResponses = decodeStrings(hints)
		k.FollowupResponses = decodeStrings(followups)
		k.IncorrectAttempts = decodeStrings(attempts)
		k.ExtractionPattern = decodeInts(pattern)
		out = append(out, &k)
	}
	return out, rows.Err()
}

// HasGreeted reports whether the sticky greeting record exists.
func (r *NPCRepo) HasGreeted(ctx context.Context, playerID, npcID int64) (bool, error) {
	var one int
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT 1 FROM lore_keeper_greetings WHERE player_id = $1 AND npc_id = $2`,
		playerID, npcID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *NPCRepo) MarkGreeted(ctx context.Context, playerID, npcID int64) error {
	return r.db.exec(ctx,
		`INSERT INTO lore_keeper_greetings (player_id, npc_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, playerID, npcID)
}

// LastAwardTime returns the most recent award timestamp for the triple, or
// the zero time when no award exists.
func (r *NPCRepo) LastAwardTime(ctx context.Context, playerID, npcID int64, itemName string) (time.Time, error) {
	var t time.Time
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT awarded_at FROM lore_keeper_item_awards
		 WHERE player_id = $1 AND npc_id = $2 AND item_name = $3
		 ORDER BY awarded_at DESC LIMIT 1`, playerID, npcID, itemName,
	).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	return t, err
}

func (r *NPCRepo) RecordAward(ctx context.Context, playerID, npcID int64, itemName string) error {
	return r.db.exec(ctx,
		`INSERT INTO lore_keeper_item_awards (player_id, npc_id, item_name) VALUES ($1, $2, $3)`,
		playerID, npcID, itemName)
}
