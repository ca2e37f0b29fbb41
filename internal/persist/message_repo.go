package persist

import (
	"context"
)

type MessageRepo struct {
	db *DB
}

func NewMessageRepo(db *DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// AllGameMessages returns the template overrides keyed by template name.
func (r *MessageRepo) AllGameMessages(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT key, template FROM game_messages`)
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

// TerminalHistory returns the most recent persisted terminal lines for a
// player, oldest first.
func (r *MessageRepo) TerminalHistory(ctx context.Context, playerID int64, limit int) ([]TerminalLine, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT message, kind, saved_at FROM (
		   SELECT id, message, kind, saved_at FROM terminal_history
		   WHERE player_id = $1 ORDER BY id DESC LIMIT $2
		 ) recent ORDER BY id`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TerminalLine
	for rows.Next() {
		var l TerminalLine
		if err := rows.Scan(&l.Message, &l.Kind, &l.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *MessageRepo) SaveTerminalMessage(ctx context.Context, playerID int64, msg, kind string) error {
	return r.db.exec(ctx,
		`INSERT INTO terminal_history (player_id, message, kind) VALUES ($1, $2, $3)`,
		playerID, msg, kind)
}
