package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// AdvisoryLocker takes session-level PostgreSQL advisory locks keyed by name.
type AdvisoryLocker struct {
	db *sqlx.DB
}

// NewAdvisoryLocker returns a locker over db.
func NewAdvisoryLocker(db *sqlx.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

// TryLock acquires the named lock without waiting. When acquired is false the
// lock is held elsewhere and release is nil. release must be called exactly once.
func (l *AdvisoryLocker) TryLock(ctx context.Context, name string) (release func(), acquired bool, err error) {
	conn, err := l.db.Connx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("advisory lock conn: %w", err)
	}

	if err := conn.QueryRowxContext(ctx, `SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, name).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("advisory lock %s: %w", name, err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}

	release = func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, name)
		_ = conn.Close()
	}
	return release, true, nil
}
