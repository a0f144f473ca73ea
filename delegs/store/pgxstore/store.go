// Package pgxstore implements delegs.ProgressStore on PostgreSQL. Rows in
// delegation_snapshots are insert-only, mirroring the append-only contract
// of the file backend while keeping the audit trail queryable.
package pgxstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/angerman/encoins-relay/delegs"
)

// Sentinel errors for store operations
var (
	ErrInsertFailed = errors.New("snapshot insert failed")
	ErrQueryFailed  = errors.New("snapshot query failed")
)

// Store implements delegs.ProgressStore using pgx
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL store with an existing connection pool
// Returns the store and a closer function
func New(pool *pgxpool.Pool) (*Store, func()) {
	store := &Store{pool: pool}
	closer := func() {
		pool.Close()
	}
	return store, closer
}

// Save inserts a snapshot row. Rows are never updated or deleted.
func (s *Store) Save(ctx context.Context, prefix string, at time.Time, record any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInsertFailed, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO delegation_snapshots (prefix, saved_at, payload)
		VALUES ($1, $2, $3)
	`, prefix, at.UTC(), payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInsertFailed, err)
	}
	return nil
}

// LoadMostRecent parses the newest snapshot row under the prefix into out.
// No matching row means no prior state, not an error; an unparsable newest
// row is delegs.ErrSnapshotCorrupt.
func (s *Store) LoadMostRecent(ctx context.Context, prefix string, out any) (time.Time, bool, error) {
	var (
		at      time.Time
		payload []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT saved_at, payload FROM delegation_snapshots
		WHERE prefix = $1
		ORDER BY saved_at DESC, id DESC
		LIMIT 1
	`, prefix).Scan(&at, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %v", delegs.ErrSnapshotCorrupt, err)
	}
	return at, true, nil
}
