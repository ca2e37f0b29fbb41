package persist

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type RoomRepo struct {
	db *DB
}

func NewRoomRepo(db *DB) *RoomRepo {
	return &RoomRepo{db: db}
}

const roomCols = `id, map_id, x, y, name, description, room_type,
	portal_map_id, portal_x, portal_y, portal_dir`

func scanRoom(row pgx.Row) (*Room, error) {
	var rm Room
	var pMap *int64
	var pX, pY *int
	var pDir *string
	err := row.Scan(&rm.ID, &rm.MapID, &rm.X, &rm.Y, &rm.Name, &rm.Description, &rm.Kind,
		&pMap, &pX, &pY, &pDir)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if pMap != nil && pX != nil && pY != nil && pDir != nil {
		rm.Portal = &Portal{ToMapID: *pMap, ToX: *pX, ToY: *pY, Direction: *pDir}
	}
	return &rm, nil
}

func (r *RoomRepo) GetByID(ctx context.Context, id int64) (*Room, error) {
	return scanRoom(r.db.q(ctx).QueryRow(ctx,
		`SELECT `+roomCols+` FROM rooms WHERE id = $1`, id))
}

func (r *RoomRepo) GetByCoords(ctx context.Context, mapID int64, x, y int) (*Room, error) {
	return scanRoom(r.db.q(ctx).QueryRow(ctx,
		`SELECT `+roomCols+` FROM rooms WHERE map_id = $1 AND x = $2 AND y = $3`, mapID, x, y))
}

func (r *RoomRepo) ByMap(ctx context.Context, mapID int64) ([]*Room, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT `+roomCols+` FROM rooms WHERE map_id = $1 ORDER BY y, x`, mapID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

func (r *RoomRepo) MapByID(ctx context.Context, id int64) (*MapRow, error) {
	var m MapRow
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT id, name, width, height FROM maps WHERE id = $1`, id,
	).Scan(&m.ID, &m.Name, &m.Width, &m.Height)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *RoomRepo) AllMaps(ctx context.Context) ([]*MapRow, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT id, name, width, height FROM maps ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*MapRow
	for rows.Next() {
		var m MapRow
		if err := rows.Scan(&m.ID, &m.Name, &m.Width, &m.Height); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *RoomRepo) RoomTypeColors(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT room_type, color FROM room_type_colors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// StartingRoom returns the canonical reset destination: the town square of
// map 1, falling back to (0,0) of map 1.
func (r *RoomRepo) StartingRoom(ctx context.Context) (*Room, error) {
	rm, err := scanRoom(r.db.q(ctx).QueryRow(ctx,
		`SELECT `+roomCols+` FROM rooms WHERE map_id = 1 AND lower(name) LIKE '%town square%' LIMIT 1`))
	if err != nil {
		return nil, err
	}
	if rm != nil {
		return rm, nil
	}
	return r.GetByCoords(ctx, 1, 0, 0)
}
