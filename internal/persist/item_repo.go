package persist

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type ItemRepo struct {
	db *DB
}

func NewItemRepo(db *DB) *ItemRepo {
	return &ItemRepo{db: db}
}

const itemCols = `id, name, kind, encumbrance, poofable, warehouse_id, currency_value`

func scanItem(row pgx.Row) (*ItemDef, error) {
	var it ItemDef
	err := row.Scan(&it.ID, &it.Name, &it.Kind, &it.Encumbrance, &it.Poofable,
		&it.WarehouseID, &it.CurrencyValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *ItemRepo) All(ctx context.Context) ([]*ItemDef, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT `+itemCols+` FROM items ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ItemDef
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *ItemRepo) GetByName(ctx context.Context, name string) (*ItemDef, error) {
	return scanItem(r.db.q(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM items WHERE lower(name) = lower($1)`, name))
}

func (r *ItemRepo) Encumbrance(ctx context.Context, name string) (float64, error) {
	var e float64
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT encumbrance FROM items WHERE lower(name) = lower($1)`, name).Scan(&e)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return e, err
}

func scanStacks(rows pgx.Rows) ([]ItemStack, error) {
	defer rows.Close()
	var out []ItemStack
	for rows.Next() {
		var s ItemStack
		if err := rows.Scan(&s.Name, &s.Quantity); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ItemRepo) PlayerItems(ctx context.Context, playerID int64) ([]ItemStack, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT item_name, quantity FROM player_items
		 WHERE player_id = $1 AND quantity > 0 ORDER BY item_name`, playerID)
	if err != nil {
		return nil, err
	}
	return scanStacks(rows)
}

// AddPlayerItem upserts onto the inventory stack (idempotent add).
func (r *ItemRepo) AddPlayerItem(ctx context.Context, playerID int64, itemName string, qty int) error {
	return r.db.exec(ctx,
		`INSERT INTO player_items (player_id, item_name, quantity) VALUES ($1, $2, $3)
		 ON CONFLICT (player_id, item_name) DO UPDATE
		 SET quantity = player_items.quantity + EXCLUDED.quantity`,
		playerID, itemName, qty)
}

// RemovePlayerItem decrements a stack, deleting it at zero. Returns false
// when the player does not hold the requested quantity.
func (r *ItemRepo) RemovePlayerItem(ctx context.Context, playerID int64, itemName string, qty int) (bool, error) {
	var remaining int
	err := r.db.q(ctx).QueryRow(ctx,
		`UPDATE player_items SET quantity = quantity - $1
		 WHERE player_id = $2 AND item_name = $3 AND quantity >= $1
		 RETURNING quantity`, qty, playerID, itemName,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if remaining <= 0 {
		err = r.db.exec(ctx,
			`DELETE FROM player_items WHERE player_id = $1 AND item_name = $2`,
			playerID, itemName)
	}
	return true, err
}

func (r *ItemRepo) RoomItems(ctx context.Context, roomID int64) ([]ItemStack, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT item_name, quantity FROM room_items
		 WHERE room_id = $1 AND quantity > 0 ORDER BY item_name`, roomID)
	if err != nil {
		return nil, err
	}
	return scanStacks(rows)
}

func (r *ItemRepo) AddRoomItem(ctx context.Context, roomID int64, itemName string, qty int) error {
	return r.db.exec(ctx,
		`INSERT INTO room_items (room_id, item_name, quantity) VALUES ($1, $2, $3)
		 ON CONFLICT (room_id, item_name) DO UPDATE
		 SET quantity = room_items.quantity + EXCLUDED.quantity`,
		roomID, itemName, qty)
}

func (r *ItemRepo) RemoveRoomItem(ctx context.Context, roomID int64, itemName string, qty int) (bool, error) {
	var remaining int
	err := r.db.q(ctx).QueryRow(ctx,
		`UPDATE room_items SET quantity = quantity - $1
		 WHERE room_id = $2 AND item_name = $3 AND quantity >= $1
		 RETURNING quantity`, qty, roomID, itemName,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if remaining <= 0 {
		err = r.db.exec(ctx,
			`DELETE FROM room_items WHERE room_id = $1 AND item_name = $2`,
			roomID, itemName)
	}
	return true, err
}

// RemovePoofables deletes every poofable item stack from the room.
func (r *ItemRepo) RemovePoofables(ctx context.Context, roomID int64) error {
	return r.db.exec(ctx,
		`DELETE FROM room_items ri USING items i
		 WHERE ri.room_id = $1 AND i.name = ri.item_name AND i.poofable`, roomID)
}
