package persist

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// CurrencyStack is a currency holding annotated with its per-unit value in
// the smallest denomination.
type CurrencyStack struct {
	Name     string
	Quantity int
	Value    int
}

type CurrencyRepo struct {
	db *DB
}

func NewCurrencyRepo(db *DB) *CurrencyRepo {
	return &CurrencyRepo{db: db}
}

func scanCurrency(rows pgx.Rows) ([]CurrencyStack, error) {
	defer rows.Close()
	var out []CurrencyStack
	for rows.Next() {
		var c CurrencyStack
		if err := rows.Scan(&c.Name, &c.Quantity, &c.Value); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PlayerCurrency returns the caller's wallet: currency-kind inventory stacks
// ordered by descending value.
func (r *CurrencyRepo) PlayerCurrency(ctx context.Context, playerID int64) ([]CurrencyStack, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT pi.item_name, pi.quantity, i.currency_value
		 FROM player_items pi JOIN items i ON i.name = pi.item_name AND i.kind = 'currency'
		 WHERE pi.player_id = $1 AND pi.quantity > 0
		 ORDER BY i.currency_value DESC`, playerID)
	if err != nil {
		return nil, err
	}
	return scanCurrency(rows)
}

func (r *CurrencyRepo) AddPlayerCurrency(ctx context.Context, playerID int64, itemName string, qty int) error {
	return r.db.exec(ctx,
		`INSERT INTO player_items (player_id, item_name, quantity) VALUES ($1, $2, $3)
		 ON CONFLICT (player_id, item_name) DO UPDATE
		 SET quantity = player_items.quantity + EXCLUDED.quantity`,
		playerID, itemName, qty)
}

func (r *CurrencyRepo) RemovePlayerCurrency(ctx context.Context, playerID int64, itemName string, qty int) (bool, error) {
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

// BankBalance returns the player's bank holdings ordered by descending value.
func (r *CurrencyRepo) BankBalance(ctx context.Context, playerID int64) ([]CurrencyStack, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT ba.item_name, ba.quantity, i.currency_value
		 FROM bank_accounts ba JOIN items i ON i.name = ba.item_name
		 WHERE ba.player_id = $1 AND ba.quantity > 0
		 ORDER BY i.currency_value DESC`, playerID)
	if err != nil {
		return nil, err
	}
	return scanCurrency(rows)
}

func (r *CurrencyRepo) Deposit(ctx context.Context, playerID int64, itemName string, qty int) error {
	return r.db.exec(ctx,
		`INSERT INTO bank_accounts (player_id, item_name, quantity) VALUES ($1, $2, $3)
		 ON CONFLICT (player_id, item_name) DO UPDATE
		 SET quantity = bank_accounts.quantity + EXCLUDED.quantity`,
		playerID, itemName, qty)
}

func (r *CurrencyRepo) Withdraw(ctx context.Context, playerID int64, itemName string, qty int) (bool, error) {
	var remaining int
	err := r.db.q(ctx).QueryRow(ctx,
		`UPDATE bank_accounts SET quantity = quantity - $1
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
			`DELETE FROM bank_accounts WHERE player_id = $1 AND item_name = $2`,
			playerID, itemName)
	}
	return true, err
}

// CurrencyCatalogue returns every currency-kind item definition ordered by
// descending value. The declarative synonym table is built from this.
func (r *CurrencyRepo) CurrencyCatalogue(ctx context.Context) ([]*ItemDef, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM items WHERE kind = 'currency' ORDER BY currency_value DESC`)
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
