package repository

import (
	"context"
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

func sampleSubmission() *models.Submission {
	start := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	return &models.Submission{
		Answer: models.Answer{
			ID:                "submit-1",
			AppletID:          "ap1",
			Version:           "1.0.0",
			AppletHistoryID:   "ap1_1.0.0",
			ActivityHistoryID: "act1_1.0.0",
			RespondentID:      "u1",
		},
		Items: []models.AnswerItem{{
			RespondentID:      "u1",
			AppletHistoryID:   "ap1_1.0.0",
			ActivityHistoryID: "act1_1.0.0",
			Answer:            "00:ff",
			UserPublicKey:     "pk",
			ItemIDs:           []string{"it1"},
			StartTime:         start,
			EndTime:           start.Add(time.Minute),
		}},
	}
}

func TestAnswerRepositorySubmitInsertsAnswerAndItems(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnswerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO answers")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO answer_items")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sub := sampleSubmission()
	stored, created, err := repo.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "submit-1", stored.ID)
	assert.Equal(t, "submit-1", sub.Items[0].AnswerID)
	assert.NotEmpty(t, sub.Items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnswerRepositorySubmitDuplicateReturnsStoredRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnswerRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO NOTHING")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM answers WHERE id = $1")).
		WithArgs("submit-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "applet_id", "version", "applet_history_id", "activity_history_id", "respondent_id", "created_at", "updated_at"}).
			AddRow("submit-1", "ap1", "1.0.0", "ap1_1.0.0", "act1_1.0.0", "u1", now, now))
	mock.ExpectCommit()

	stored, created, err := repo.Submit(context.Background(), sampleSubmission())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "ap1_1.0.0", stored.AppletHistoryID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnswerRepositorySubmitRollsBackOnItemFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnswerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO answers").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO answer_items").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, _, err := repo.Submit(context.Background(), sampleSubmission())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnswerRepositoryListCompletions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnswerRepository(db)

	now := time.Now()
	from := now.Add(-24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("FROM answer_items ai")).
		WithArgs("ap1", "u1", from, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"answer_id", "submit_id", "applet_history_id", "activity_history_id", "respondent_id", "start_time", "end_time", "created_at"}).
			AddRow("ai1", "submit-1", "ap1_1.0.0", "act1_1.0.0", "u1", now, now, now))

	completions, err := repo.ListCompletions(context.Background(), models.CompletionFilter{AppletID: "ap1", RespondentID: "u1", FromDate: from})
	require.NoError(t, err)
	require.Len(t, completions, 1)
	assert.Equal(t, "submit-1", completions[0].SubmitID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnswerRepositoryCipherBatchAndUpdate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnswerRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ai.id ASC LIMIT $3")).
		WithArgs("u1", "ap1", 25).
		WillReturnRows(sqlmock.NewRows([]string{"id", "answer", "user_public_key", "applet_history_id", "created_at"}).
			AddRow("ai1", "aa:bb", "pk", "ap1_1.0.0", now))

	rows, err := repo.NextCipherBatch(context.Background(), "u1", "ap1", CipherCursor{}, 25)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows[0].Answer = "cc:dd"
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE answer_items SET answer = $2")).
		WithArgs("ai1", "cc:dd", sqlmock.AnyArg(), "pk", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.UpdateCiphers(context.Background(), rows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnswerRepositoryCipherBatchContinuesAfterCursor(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnswerRepository(db)

	at := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	cursor := CipherCursor{CreatedAt: at, ID: "9b2f7c1e-4c1a-4f7e-8d3a-2f5f0f6a1b2c"}
	mock.ExpectQuery(regexp.QuoteMeta("AND (ai.created_at, ai.id) > ($3, $4::uuid)")).
		WithArgs("u1", "ap1", at, cursor.ID, 25).
		WillReturnRows(sqlmock.NewRows([]string{"id", "answer", "user_public_key", "applet_history_id", "created_at"}))

	rows, err := repo.NextCipherBatch(context.Background(), "u1", "ap1", cursor, 25)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnswerRepositoryDeleteUnknownAnswer(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnswerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM answer_items")).WithArgs("submit-1", "ap1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM answers")).WithArgs("submit-1", "ap1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "ap1", "submit-1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
