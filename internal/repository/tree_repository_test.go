package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/applets-core/internal/models"
)

func TestAssembleTreeGroupsChildren(t *testing.T) {
	tree := AssembleTree(
		models.Applet{ID: "ap1"},
		[]models.Activity{{ID: "a1", Order: 1}, {ID: "a2", Order: 2}},
		[]models.ActivityItem{{ID: "i1", ActivityID: "a1"}, {ID: "i2", ActivityID: "a1"}},
		[]models.Flow{{ID: "f1"}},
		[]models.FlowItem{{ID: "s1", ActivityFlowID: "f1", ActivityID: "a2"}},
	)
	require.Len(t, tree.Activities, 2)
	assert.Len(t, tree.Activities[0].Items, 2)
	assert.NotNil(t, tree.Activities[1].Items)
	assert.Equal(t, "a2", tree.FlowByID("f1").Items[0].ActivityID)
}

func TestTreeRepositorySaveCreatesWholeTree(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTreeRepository(db)

	next := &models.AppletTree{
		Applet: models.Applet{ID: "ap1", DisplayName: "Sleep Diary", Version: "1.0.0"},
		Activities: []models.ActivityNode{{
			Activity: models.Activity{ID: "a1", Key: "k1", Name: "Morning", Order: 1},
			Items:    []models.ActivityItem{{ID: "i1", Name: "mood", ResponseType: models.ResponseSingleSelect, Order: 1}},
		}},
		Flows: []models.FlowNode{{
			Flow:  models.Flow{ID: "f1", Name: "Daily", Order: 1},
			Items: []models.FlowItem{{ID: "s1", ActivityID: "a1", Order: 1}},
		}},
	}

	mock.ExpectExec("INSERT INTO applets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO activities").WillReturnRows(sqlmock.NewRows([]string{"order"}).AddRow(1))
	mock.ExpectQuery("INSERT INTO activity_items").WillReturnRows(sqlmock.NewRows([]string{"order"}).AddRow(1))
	mock.ExpectQuery("INSERT INTO flows").WillReturnRows(sqlmock.NewRows([]string{"order"}).AddRow(1))
	mock.ExpectQuery("INSERT INTO flow_items").WillReturnRows(sqlmock.NewRows([]string{"order"}).AddRow(1))

	require.NoError(t, repo.Save(context.Background(), next, nil))
	assert.Equal(t, "ap1", next.Activities[0].AppletID)
	assert.Equal(t, "a1", next.Activities[0].Items[0].ActivityID)
	assert.Equal(t, "f1", next.Flows[0].Items[0].ActivityFlowID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTreeRepositorySaveRemovesFlowStepsBeforeActivities(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTreeRepository(db)

	prev := &models.AppletTree{
		Applet: models.Applet{ID: "ap1", Version: "1.0.0"},
		Activities: []models.ActivityNode{
			{Activity: models.Activity{ID: "a1", Order: 1}, Items: []models.ActivityItem{}},
			{Activity: models.Activity{ID: "a2", Order: 2}, Items: []models.ActivityItem{}},
		},
		Flows: []models.FlowNode{{
			Flow:  models.Flow{ID: "f1", Order: 1},
			Items: []models.FlowItem{{ID: "s1", ActivityID: "a1", Order: 1}, {ID: "s2", ActivityID: "a2", Order: 2}},
		}},
	}
	next := &models.AppletTree{
		Applet:     models.Applet{ID: "ap1", Version: "2.0.0"},
		Activities: []models.ActivityNode{{Activity: models.Activity{ID: "a1", Order: 1}, Items: []models.ActivityItem{}}},
		Flows: []models.FlowNode{{
			Flow:  models.Flow{ID: "f1", Order: 1},
			Items: []models.FlowItem{{ID: "s1", ActivityID: "a1", Order: 1}},
		}},
	}

	mock.ExpectExec("UPDATE applets SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE activities SET name").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE flow_items SET is_deleted = TRUE")).WithArgs("s2", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE flows SET name").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE flow_items SET "order"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM flow_items")).WithArgs("a2").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE activities SET is_deleted = TRUE")).WithArgs("a2", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE activity_items SET is_deleted = TRUE")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, repo.Save(context.Background(), next, prev))
	assert.NoError(t, mock.ExpectationsWereMet())
}
