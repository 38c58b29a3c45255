package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/noah-isme/applets-core/pkg/errors"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqExclusionViolation  = "23P01"
)

// base carries the pool and the executor queries run on: the pool itself or a transaction.
type base struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
}

func newBase(db *sqlx.DB) base {
	return base{db: db, ext: db}
}

func (b base) withTx(tx *sqlx.Tx) base {
	return base{db: b.db, ext: tx}
}

// inTx runs fn on the current transaction, or on a fresh one when the executor is the pool.
func (b base) inTx(ctx context.Context, fn func(ext sqlx.ExtContext) error) (err error) {
	if _, ok := b.ext.(*sqlx.Tx); ok {
		return fn(b.ext)
	}
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Translate maps driver errors to the error taxonomy. Use it where a statement runs outside
// a repository, such as a deferred constraint failing at commit.
func Translate(err error, what string) error {
	return translate(err, what)
}

func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation, pqExclusionViolation:
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, what+" already exists")
		case pqForeignKeyViolation:
			return appErrors.Wrap(err, appErrors.ErrReferentialViolation.Code, appErrors.ErrReferentialViolation.Status, what+" is still referenced")
		}
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("%s: %w", what, err)
}

// setBuilder assembles a positional SET clause for patch-style updates.
type setBuilder struct {
	parts []string
	args  []interface{}
}

func (s *setBuilder) add(column string, value interface{}) {
	s.args = append(s.args, value)
	s.parts = append(s.parts, fmt.Sprintf("%s = $%d", column, len(s.args)))
}

func (s *setBuilder) empty() bool {
	return len(s.parts) == 0
}

// build returns the statement updating table row id; updated_at is always stamped.
func (s *setBuilder) build(table, id string, now time.Time) (string, []interface{}) {
	s.add("updated_at", now)
	args := append(s.args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d AND is_deleted = FALSE", table, strings.Join(s.parts, ", "), len(args))
	return query, args
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	return nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
