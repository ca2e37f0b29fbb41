package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type PlayerRepo struct {
	db *DB
}

func NewPlayerRepo(db *DB) *PlayerRepo {
	return &PlayerRepo{db: db}
}

const playerCols = `id, account, name, COALESCE(room_id, 0), resonance, fortitude, vitalis,
	clarity, verve, grit, unspent_points, encumbrance_cap, god_mode, always_first_time,
	auto_loop_time_ms, auto_nav_time_ms`

func scanPlayer(row pgx.Row) (*Player, error) {
	var p Player
	err := row.Scan(&p.ID, &p.Account, &p.Name, &p.RoomID, &p.Resonance, &p.Fortitude,
		&p.Vitalis, &p.Clarity, &p.Verve, &p.Grit, &p.UnspentPoints, &p.EncumbranceCap,
		&p.GodMode, &p.AlwaysFirstTime, &p.AutoLoopTimeMS, &p.AutoNavTimeMS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PlayerRepo) GetByName(ctx context.Context, name string) (*Player, error) {
	return scanPlayer(r.db.q(ctx).QueryRow(ctx,
		`SELECT `+playerCols+` FROM players WHERE lower(name) = lower($1)`, name))
}

func (r *PlayerRepo) GetByID(ctx context.Context, id int64) (*Player, error) {
	return scanPlayer(r.db.q(ctx).QueryRow(ctx,
		`SELECT `+playerCols+` FROM players WHERE id = $1`, id))
}

func (r *PlayerRepo) List(ctx context.Context) ([]*Player, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT `+playerCols+` FROM players ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PlayerRepo) UpdateRoom(ctx context.Context, playerID, roomID int64) error {
	return r.db.exec(ctx, `UPDATE players SET room_id = $1 WHERE id = $2`, roomID, playerID)
}

// CurrentEncumbrance sums item encumbrance across the player's inventory.
func (r *PlayerRepo) CurrentEncumbrance(ctx context.Context, playerID int64) (float64, error) {
	var total float64
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(pi.quantity * i.encumbrance), 0)
		 FROM player_items pi JOIN items i ON i.name = pi.item_name
		 WHERE pi.player_id = $1`, playerID,
	).Scan(&total)
	return total, err
}

func (r *PlayerRepo) SetWidgetConfig(ctx context.Context, playerID int64, cfg json.RawMessage) error {
	return r.db.exec(ctx, `UPDATE players SET widget_config = $1 WHERE id = $2`, cfg, playerID)
}

func (r *PlayerRepo) GetWidgetConfig(ctx context.Context, playerID int64) (json.RawMessage, error) {
	var cfg []byte
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT COALESCE(widget_config, '{}'::jsonb) FROM players WHERE id = $1`, playerID,
	).Scan(&cfg)
	if errors.Is(err, pgx.ErrNoRows) {
		return json.RawMessage(`{}`), nil
	}
	return cfg, err
}

var statColumns = map[string]string{
	"resonance": "resonance",
	"fortitude": "fortitude",
	"vitalis":   "vitalis",
	"clarity":   "clarity",
	"verve":     "verve",
	"grit":      "grit",
}

// AssignStatPoint moves one unspent point onto the named attribute.
// Returns false when no points remain.
func (r *PlayerRepo) AssignStatPoint(ctx context.Context, playerID int64, attribute string) (bool, error) {
	col, ok := statColumns[attribute]
	if !ok {
		return false, fmt.Errorf("unknown attribute %q", attribute)
	}
	var remaining int
	err := r.db.q(ctx).QueryRow(ctx,
		`UPDATE players SET `+col+` = `+col+` + 1, unspent_points = unspent_points - 1
		 WHERE id = $1 AND unspent_points > 0 RETURNING unspent_points`, playerID,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// AdjustVitalis applies a (possibly negative) delta, clamped at zero.
func (r *PlayerRepo) AdjustVitalis(ctx context.Context, playerID int64, delta int) error {
	return r.db.exec(ctx,
		`UPDATE players SET vitalis = GREATEST(vitalis + $1, 0) WHERE id = $2`, delta, playerID)
}
