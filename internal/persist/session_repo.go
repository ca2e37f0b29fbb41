package persist

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/sha3"
)

// SessionRepo validates externally issued session tokens. Tokens are stored
// as SHA3-256 digests; the plaintext never touches the database.
type SessionRepo struct {
	db *DB
}

func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// TokenDigest returns the hex digest under which a token is stored.
func TokenDigest(token string) string {
	sum := sha3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GetByToken resolves a live stored session for the token, or nil when the
// token is unknown or expired.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*WebSession, error) {
	var s WebSession
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT token_digest, account, expires_at FROM web_sessions
		 WHERE token_digest = $1 AND expires_at > now()`, TokenDigest(token),
	).Scan(&s.TokenDigest, &s.Account, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Touch extends a stored session's expiry.
func (r *SessionRepo) Touch(ctx context.Context, tokenDigest string, ttl time.Duration) error {
	return r.db.exec(ctx,
		`UPDATE web_sessions SET expires_at = now() + $1 WHERE token_digest = $2`,
		ttl, tokenDigest)
}
