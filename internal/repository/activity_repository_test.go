package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/applets-core/internal/models"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
)

func TestActivityRepositoryCreateAppendsWithoutOrder(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewActivityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO activities`)).
		WillReturnRows(sqlmock.NewRows([]string{"order"}).AddRow(3))

	activity := &models.Activity{AppletID: "ap1", Name: "Evening"}
	require.NoError(t, repo.Create(context.Background(), activity, nil))
	assert.Equal(t, 3, activity.Order)
	assert.NotEmpty(t, activity.ID)
	assert.NotEmpty(t, activity.Key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryCreateDuplicateName(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewActivityRepository(db)

	mock.ExpectQuery(`INSERT INTO activities`).WillReturnError(uniqueViolation())

	err := repo.Create(context.Background(), &models.Activity{AppletID: "ap1", Name: "Morning"}, nil)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestActivityRepositoryDeleteReferencedByFlow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewActivityRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM flow_items WHERE activity_id = $1")).
		WithArgs("act1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.DeleteByID(context.Background(), "act1")
	assert.True(t, errors.Is(err, appErrors.ErrReferentialViolation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryDeleteCascadesToItems(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewActivityRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM flow_items")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE activities SET is_deleted = TRUE")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE activity_items SET is_deleted = TRUE")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteByID(context.Background(), "act1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryReorder(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewActivityRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE activities SET "order" = $1`)).
		WithArgs(1, sqlmock.AnyArg(), "b", "ap1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE activities SET "order" = $1`)).
		WithArgs(2, sqlmock.AnyArg(), "a", "ap1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Reorder(context.Background(), "ap1", []string{"b", "a"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
