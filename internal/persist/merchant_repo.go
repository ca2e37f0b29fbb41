package persist

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type MerchantRepo struct {
	db *DB
}

func NewMerchantRepo(db *DB) *MerchantRepo {
	return &MerchantRepo{db: db}
}

func scanMerchantItems(rows pgx.Rows) ([]MerchantItem, error) {
	defer rows.Close()
	var out []MerchantItem
	for rows.Next() {
		var m MerchantItem
		if err := rows.Scan(&m.ItemName, &m.Price, &m.SellPrice, &m.Stock, &m.Unlimited); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ItemsForList returns the stock-annotated catalogue of a merchant room.
func (r *MerchantRepo) ItemsForList(ctx context.Context, roomID int64) ([]MerchantItem, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT item_name, price, sell_price, stock, unlimited
		 FROM merchant_items WHERE room_id = $1 ORDER BY item_name`, roomID)
	if err != nil {
		return nil, err
	}
	return scanMerchantItems(rows)
}

// ItemsForRoom is the same catalogue keyed for buy/sell resolution.
func (r *MerchantRepo) ItemsForRoom(ctx context.Context, roomID int64) ([]MerchantItem, error) {
	return r.ItemsForList(ctx, roomID)
}

// AdjustStock applies a delta to a limited-stock row (raw update, clamped at
// zero). Unlimited rows are left alone by the caller.
func (r *MerchantRepo) AdjustStock(ctx context.Context, roomID int64, itemName string, delta int) error {
	return r.db.exec(ctx,
		`UPDATE merchant_items SET stock = GREATEST(stock + $1, 0)
		 WHERE room_id = $2 AND item_name = $3 AND NOT unlimited`,
		delta, roomID, itemName)
}
