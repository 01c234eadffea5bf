// Package clientdata provides a URL-keyed, TTL-expiring disk cache for the
// HTTP/JSON fetch layer: every response from the market-data provider is
// stored once under its request URL and served back until it expires.
package clientdata

import (
	"database/sql"
	"fmt"
	"time"
)

// Repository caches raw response bodies keyed by the request URL that
// produced them. EOD/technical series are stored msgpack-encoded by the
// caller; fundamentals trees stay JSON so F()'s dotted-path traversal can
// walk them directly — the repository itself is encoding-agnostic, it just
// stores bytes.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a client data repository over an already-migrated
// clientdata database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Store upserts body under url, tagged with the fetch level it came from
// (for diagnostics only) and expiring ttl from now.
func (r *Repository) Store(url string, level int, body []byte, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).Unix()
	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO responses (url, level, body, fetched_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		url, level, body, time.Now().Unix(), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("clientdata: store %s: %w", url, err)
	}
	return nil
}

// GetIfFresh returns the cached body for url only if it has not expired.
// A nil, nil return means no fresh entry exists.
func (r *Repository) GetIfFresh(url string) ([]byte, error) {
	var body []byte
	now := time.Now().Unix()
	err := r.db.QueryRow(
		`SELECT body FROM responses WHERE url = ? AND expires_at > ?`, url, now,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("clientdata: get fresh %s: %w", url, err)
	}
	return body, nil
}

// Get returns the cached body for url regardless of expiration, for use as
// a stale-data fallback when the provider is unreachable.
func (r *Repository) Get(url string) ([]byte, error) {
	var body []byte
	err := r.db.QueryRow(`SELECT body FROM responses WHERE url = ?`, url).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("clientdata: get %s: %w", url, err)
	}
	return body, nil
}

// Delete removes a single cache entry. Idempotent.
func (r *Repository) Delete(url string) error {
	if _, err := r.db.Exec(`DELETE FROM responses WHERE url = ?`, url); err != nil {
		return fmt.Errorf("clientdata: delete %s: %w", url, err)
	}
	return nil
}

// DeleteExpired removes every row whose expires_at has passed, returning
// the number of rows removed.
func (r *Repository) DeleteExpired() (int64, error) {
	now := time.Now().Unix()
	result, err := r.db.Exec(`DELETE FROM responses WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("clientdata: delete expired: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clientdata: rows affected: %w", err)
	}
	return deleted, nil
}
