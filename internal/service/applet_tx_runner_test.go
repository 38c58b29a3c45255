package service

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/applets-core/internal/repository"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
)

func TestSQLAppletTxRunnerMapsDeferredNameClashToConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	sqlxdb := sqlx.NewDb(db, "sqlmock")

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: "23P01", Message: "conflicting key value violates exclusion constraint"})

	runner := NewSQLAppletTxRunner(sqlxdb,
		repository.NewTreeRepository(sqlxdb),
		repository.NewHistoryRepository(sqlxdb),
		repository.NewAccessRepository(sqlxdb))
	err = runner.InTx(context.Background(), func(tx AppletTx) error { return nil })

	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}
