package persist

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type WarehouseRepo struct {
	db *DB
}

func NewWarehouseRepo(db *DB) *WarehouseRepo {
	return &WarehouseRepo{db: db}
}

// ByRoom returns the warehouse anchored to a room, if any.
func (r *WarehouseRepo) ByRoom(ctx context.Context, roomID int64) (*WarehouseDef, error) {
	var w WarehouseDef
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT id, COALESCE(room_id, 0), max_item_types, max_quantity_per_type
		 FROM warehouses WHERE room_id = $1`, roomID,
	).Scan(&w.ID, &w.RoomID, &w.MaxTypes, &w.MaxPerType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WarehouseRepo) Capacity(ctx context.Context, warehouseID int64) (*WarehouseDef, error) {
	var w WarehouseDef
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT id, COALESCE(room_id, 0), max_item_types, max_quantity_per_type
		 FROM warehouses WHERE id = $1`, warehouseID,
	).Scan(&w.ID, &w.RoomID, &w.MaxTypes, &w.MaxPerType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// HasDeed reports whether the player holds a deed item keyed to the warehouse.
func (r *WarehouseRepo) HasDeed(ctx context.Context, playerID, warehouseID int64) (bool, error) {
	var one int
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT 1 FROM player_items pi
		 JOIN items i ON i.name = pi.item_name AND i.kind = 'deed'
		 WHERE pi.player_id = $1 AND i.warehouse_id = $2 AND pi.quantity > 0`,
		playerID, warehouseID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Deeds returns the warehouse ids of every deed the player holds, in
// catalogue order.
func (r *WarehouseRepo) Deeds(ctx context.Context, playerID int64) ([]int64, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT i.warehouse_id FROM player_items pi
		 JOIN items i ON i.name = pi.item_name AND i.kind = 'deed'
		 WHERE pi.player_id = $1 AND pi.quantity > 0 AND i.warehouse_id IS NOT NULL
		 ORDER BY i.warehouse_id`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *WarehouseRepo) Items(ctx context.Context, warehouseID, playerID int64) ([]ItemStack, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT item_name, quantity FROM warehouse_items
		 WHERE warehouse_id = $1 AND player_id = $2 AND quantity > 0
		 ORDER BY item_name`, warehouseID, playerID)
	if err != nil {
		return nil, err
	}
	return scanStacks(rows)
}

func (r *WarehouseRepo) AddItem(ctx context.Context, warehouseID, playerID int64, itemName string, qty int) error {
	return r.db.exec(ctx,
		`INSERT INTO warehouse_items (warehouse_id, player_id, item_name, quantity)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (warehouse_id, player_id, item_name) DO UPDATE
		 SET quantity = warehouse_items.quantity + EXCLUDED.quantity`,
		warehouseID, playerID, itemName, qty)
}

func (r *WarehouseRepo) RemoveItem(ctx context.Context, warehouseID, playerID int64, itemName string, qty int) (bool, error) {
	var remaining int
	err := r.db.q(ctx).QueryRow(ctx,
		`UPDATE warehouse_items SET quantity = quantity - $1
		 WHERE warehouse_id = $2 AND player_id = $3 AND item_name = $4 AND quantity >= $1
		 RETURNING quantity`, qty, warehouseID, playerID, itemName,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if remaining <= 0 {
		err = r.db.exec(ctx,
			`DELETE FROM warehouse_items
			 WHERE warehouse_id = $1 AND player_id = $2 AND item_name = $3`,
			warehouseID, playerID, itemName)
	}
	return true, err
}

func (r *WarehouseRepo) TypeCount(ctx context.Context, warehouseID, playerID int64) (int, error) {
	var n int
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM warehouse_items
		 WHERE warehouse_id = $1 AND player_id = $2 AND quantity > 0`,
		warehouseID, playerID,
	).Scan(&n)
	return n, err
}

func (r *WarehouseRepo) Quantity(ctx context.Context, warehouseID, playerID int64, itemName string) (int, error) {
	var n int
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT quantity FROM warehouse_items
		 WHERE warehouse_id = $1 AND player_id = $2 AND item_name = $3`,
		warehouseID, playerID, itemName,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}
