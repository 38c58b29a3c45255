package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/applets-core/pkg/errors"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestTranslateMapsDriverErrors(t *testing.T) {
	assert.Nil(t, translate(nil, "applet"))

	notFound := translate(sql.ErrNoRows, "applet")
	assert.True(t, errors.Is(notFound, appErrors.ErrNotFound))

	conflict := translate(&pq.Error{Code: pqUniqueViolation}, "activity")
	assert.True(t, errors.Is(conflict, appErrors.ErrConflict))

	overlapping := translate(&pq.Error{Code: pqExclusionViolation}, "activity")
	assert.True(t, errors.Is(overlapping, appErrors.ErrConflict))

	atCommit := Translate(fmt.Errorf("commit tx: %w", &pq.Error{Code: pqExclusionViolation}), "applet")
	assert.True(t, errors.Is(atCommit, appErrors.ErrConflict))

	referenced := translate(&pq.Error{Code: pqForeignKeyViolation}, "activity")
	assert.True(t, errors.Is(referenced, appErrors.ErrReferentialViolation))

	passthrough := translate(appErrors.ErrSubmitIDConflict, "answer")
	assert.Same(t, appErrors.ErrSubmitIDConflict, passthrough)

	other := translate(errors.New("boom"), "flow")
	assert.EqualError(t, other, "flow: boom")
}

func TestSetBuilderStampsUpdatedAt(t *testing.T) {
	set := setBuilder{}
	set.add("name", "Morning")
	query, args := set.build("activities", "a1", utcNow())
	assert.Equal(t, "UPDATE activities SET name = $1, updated_at = $2 WHERE id = $3 AND is_deleted = FALSE", query)
	require.Len(t, args, 3)
	assert.Equal(t, "a1", args[2])
}

func TestPrefixColumns(t *testing.T) {
	assert.Equal(t, `f.id, f."order"`, prefixColumns("f", `id, "order"`))
}

func uniqueViolation() error {
	return &pq.Error{Code: pqUniqueViolation, Message: "duplicate key value violates unique constraint"}
}
