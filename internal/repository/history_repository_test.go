package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/applets-core/internal/models"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
)

func TestHistoryRepositoryPutAppletDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewHistoryRepository(db)

	mock.ExpectExec("INSERT INTO applet_histories").WillReturnError(uniqueViolation())

	err := repo.PutApplet(context.Background(), &models.AppletHistory{IDVersion: "ap1_1.0.0"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrVersionAlreadyExists))
}

func TestHistoryRepositoryPutTreeWritesParentsFirst(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewHistoryRepository(db)

	tree := &models.AppletHistoryTree{
		AppletHistory: models.AppletHistory{IDVersion: "ap1_1.0.0"},
		Activities: []models.ActivityHistoryNode{{
			ActivityHistory: models.ActivityHistory{IDVersion: "act1_1.0.0"},
			Items:           []models.ActivityItemHistory{{IDVersion: "it1_1.0.0"}},
		}},
		Flows: []models.FlowHistoryNode{{
			FlowHistory: models.FlowHistory{IDVersion: "fl1_1.0.0"},
			Items:       []models.FlowItemHistory{{IDVersion: "fi1_1.0.0"}},
		}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO applet_histories").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO activity_histories").WithArgs(append([]driver.Value{"act1_1.0.0"}, anyArgs(19)...)...).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO activity_item_histories").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO flow_histories").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO flow_item_histories").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.PutTree(context.Background(), tree))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepositoryPutTreeRollsBackOnDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewHistoryRepository(db)

	tree := &models.AppletHistoryTree{
		AppletHistory: models.AppletHistory{IDVersion: "ap1_1.0.0"},
		Activities:    []models.ActivityHistoryNode{{ActivityHistory: models.ActivityHistory{IDVersion: "act1_1.0.0"}}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO applet_histories").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO activity_histories").WillReturnError(uniqueViolation())
	mock.ExpectRollback()

	err := repo.PutTree(context.Background(), tree)
	assert.True(t, errors.Is(err, appErrors.ErrVersionAlreadyExists))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepositoryGetTree(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewHistoryRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM applet_histories WHERE id_version = $1")).
		WithArgs("ap1_1.0.0").
		WillReturnRows(sqlmock.NewRows([]string{"id_version", "id", "user_id", "display_name", "version", "created_at", "updated_at"}).
			AddRow("ap1_1.0.0", "ap1", "u1", "Sleep Diary", "1.0.0", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM activity_histories")).
		WithArgs("ap1_1.0.0").
		WillReturnRows(sqlmock.NewRows([]string{"id_version", "id", "applet_id", "name", "order"}).
			AddRow("act1_1.0.0", "act1", "ap1_1.0.0", "Morning", 1).
			AddRow("act2_1.0.0", "act2", "ap1_1.0.0", "Evening", 2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM activity_item_histories ih")).
		WithArgs("ap1_1.0.0").
		WillReturnRows(sqlmock.NewRows([]string{"id_version", "id", "activity_id", "name", "response_type", "order"}).
			AddRow("it1_1.0.0", "it1", "act1_1.0.0", "mood", "singleSelect", 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM flow_histories")).
		WithArgs("ap1_1.0.0").
		WillReturnRows(sqlmock.NewRows([]string{"id_version", "id", "applet_id", "name", "order"}).
			AddRow("fl1_1.0.0", "fl1", "ap1_1.0.0", "Daily", 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM flow_item_histories fih")).
		WithArgs("ap1_1.0.0").
		WillReturnRows(sqlmock.NewRows([]string{"id_version", "id", "activity_flow_id", "activity_id", "order"}).
			AddRow("fi1_1.0.0", "fi1", "fl1_1.0.0", "act2_1.0.0", 1))

	tree, err := repo.GetTree(context.Background(), "ap1_1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "Sleep Diary", tree.DisplayName)
	require.Len(t, tree.Activities, 2)
	require.Len(t, tree.Activities[0].Items, 1)
	assert.Equal(t, "mood", tree.Activities[0].Items[0].Name)
	assert.Empty(t, tree.Activities[1].Items)
	require.Len(t, tree.Flows, 1)
	assert.Equal(t, "act2_1.0.0", tree.Flows[0].Items[0].ActivityID)
	assert.NotNil(t, tree.Activity("act2_1.0.0"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepositoryGetTreeUnknownVersion(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewHistoryRepository(db)

	mock.ExpectQuery("FROM applet_histories").WillReturnRows(sqlmock.NewRows([]string{"id_version"}))

	_, err := repo.GetTree(context.Background(), "ap1_9.9.9")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestHistoryRepositoryListVersionsOrdersByTriple(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewHistoryRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, created_at, user_id FROM applet_histories WHERE id = $1")).
		WithArgs("ap1").
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_at", "user_id"}).
			AddRow("1.10.0", now, "u1").
			AddRow("1.2.0", now, "u1").
			AddRow("1.0.0", now, "u1"))

	versions, err := repo.ListVersions(context.Background(), "ap1")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, []string{"1.0.0", "1.2.0", "1.10.0"}, []string{versions[0].Version, versions[1].Version, versions[2].Version})
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}
