package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Tx is a transaction that runs registered hooks only after a successful commit.
type Tx struct {
	*sqlx.Tx
	hooks []func()
}

// OnCommit defers fn until the transaction commits. It never runs on rollback.
func (t *Tx) OnCommit(fn func()) {
	t.hooks = append(t.hooks, fn)
}

// RunInTx executes fn inside a transaction, committing when it returns nil.
func RunInTx(ctx context.Context, db *sqlx.DB, fn func(*Tx) error) (err error) {
	sqlTx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	tx := &Tx{Tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	for _, hook := range tx.hooks {
		hook()
	}
	return nil
}
