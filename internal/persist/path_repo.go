package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type PathRepo struct {
	db *DB
}

func NewPathRepo(db *DB) *PathRepo {
	return &PathRepo{db: db}
}

// Create persists a path and its ordered steps in one transaction.
func (r *PathRepo) Create(ctx context.Context, row *PathRow, steps []PathStepRow) (int64, error) {
	var pathID int64
	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		err := r.db.q(ctx).QueryRow(ctx,
			`INSERT INTO paths (player_id, map_id, origin_room_id, name, kind)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			row.PlayerID, row.MapID, row.OriginRoomID, row.Name, row.Kind,
		).Scan(&pathID)
		if err != nil {
			return fmt.Errorf("insert path: %w", err)
		}
		for _, s := range steps {
			if err := r.db.exec(ctx,
				`INSERT INTO path_steps (path_id, seq, room_id, direction) VALUES ($1, $2, $3, $4)`,
				pathID, s.Seq, s.RoomID, s.Direction,
			); err != nil {
				return fmt.Errorf("insert step %d: %w", s.Seq, err)
			}
		}
		return nil
	})
	return pathID, err
}

func (r *PathRepo) AllByPlayer(ctx context.Context, playerID int64) ([]*PathRow, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT id, player_id, map_id, origin_room_id, name, kind
		 FROM paths WHERE player_id = $1 ORDER BY name`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*PathRow
	for rows.Next() {
		var p PathRow
		if err := rows.Scan(&p.ID, &p.PlayerID, &p.MapID, &p.OriginRoomID, &p.Name, &p.Kind); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *PathRepo) GetByID(ctx context.Context, pathID int64) (*PathRow, error) {
	var p PathRow
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT id, player_id, map_id, origin_room_id, name, kind FROM paths WHERE id = $1`,
		pathID,
	).Scan(&p.ID, &p.PlayerID, &p.MapID, &p.OriginRoomID, &p.Name, &p.Kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PathRepo) Steps(ctx context.Context, pathID int64) ([]PathStepRow, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT seq, room_id, direction FROM path_steps WHERE path_id = $1 ORDER BY seq`,
		pathID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PathStepRow
	for rows.Next() {
		var s PathStepRow
		if err := rows.Scan(&s.Seq, &s.RoomID, &s.Direction); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StepCounts returns step totals for a set of paths in one query.
func (r *PathRepo) StepCounts(ctx context.Context, playerID int64) (map[int64]int, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT ps.path_id, COUNT(*) FROM path_steps ps
		 JOIN paths p ON p.id = ps.path_id
		 WHERE p.player_id = $1 GROUP BY ps.path_id`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]int{}
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}
