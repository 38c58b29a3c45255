package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/applets-core/internal/models"
)

const answerColumns = `id, applet_id, version, applet_history_id, activity_history_id, flow_history_id, respondent_id,
	source_subject_id, target_subject_id, input_subject_id, client, is_deleted, created_at, updated_at,
	migrated_date, migrated_updated`

// CipherCursor marks the last answer item processed by a reencryption walk.
type CipherCursor struct {
	CreatedAt time.Time
	ID        string
}

// AnswerRepository stores answers in whichever database the router resolved for an applet.
type AnswerRepository struct {
	base
}

// NewAnswerRepository constructs the repository over a default or tenant pool.
func NewAnswerRepository(db *sqlx.DB) *AnswerRepository {
	return &AnswerRepository{base: newBase(db)}
}

// Submit writes the answer row and its items atomically. When the submit id already exists nothing
// is written and the stored row is returned with created=false.
func (r *AnswerRepository) Submit(ctx context.Context, sub *models.Submission) (*models.Answer, bool, error) {
	var (
		stored  *models.Answer
		created bool
	)
	err := r.inTx(ctx, func(ext sqlx.ExtContext) error {
		now := utcNow()
		answer := &sub.Answer
		answer.Touch(now)
		const insertAnswer = `INSERT INTO answers
		(id, applet_id, version, applet_history_id, activity_history_id, flow_history_id, respondent_id,
		 source_subject_id, target_subject_id, input_subject_id, client, is_deleted, created_at, updated_at)
		VALUES (:id, :applet_id, :version, :applet_history_id, :activity_history_id, :flow_history_id, :respondent_id,
		 :source_subject_id, :target_subject_id, :input_subject_id, :client, FALSE, :created_at, :updated_at)
		ON CONFLICT (id) DO NOTHING`
		res, err := sqlx.NamedExecContext(ctx, ext, insertAnswer, answer)
		if err != nil {
			return translate(err, "answer")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var existing models.Answer
			query := `SELECT ` + answerColumns + ` FROM answers WHERE id = $1`
			if err := sqlx.GetContext(ctx, ext, &existing, query, answer.ID); err != nil {
				return translate(err, "answer")
			}
			stored = &existing
			return nil
		}

		const insertItem = `INSERT INTO answer_items
		(id, answer_id, respondent_id, applet_history_id, activity_history_id, answer, user_public_key, item_ids,
		 identifier, scheduled_time, start_time, end_time, events, is_assessment, reviewed_answer_id,
		 is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, FALSE, $16, $16)`
		for i := range sub.Items {
			item := &sub.Items[i]
			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			item.AnswerID = answer.ID
			item.Touch(now)
			if _, err := ext.ExecContext(ctx, insertItem,
				item.ID, item.AnswerID, item.RespondentID, item.AppletHistoryID, item.ActivityHistoryID, item.Answer,
				item.UserPublicKey, item.ItemIDs, item.Identifier, item.ScheduledTime, item.StartTime, item.EndTime,
				item.Events, item.IsAssessment, item.ReviewedAnswerID, now); err != nil {
				return translate(err, "answer item")
			}
		}
		stored = answer
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// ListCompletions returns the respondent's completed activities since FromDate, optionally at one version.
func (r *AnswerRepository) ListCompletions(ctx context.Context, filter models.CompletionFilter) ([]models.Completion, error) {
	var completions []models.Completion
	const query = `SELECT ai.id AS answer_id, a.id AS submit_id, ai.applet_history_id, ai.activity_history_id,
	a.flow_history_id, ai.respondent_id, ai.scheduled_time, ai.start_time, ai.end_time, ai.created_at
	FROM answer_items ai
	JOIN answers a ON a.id = ai.answer_id
	WHERE a.applet_id = $1 AND ai.respondent_id = $2 AND ai.created_at >= $3
	AND ai.is_assessment = FALSE AND ai.is_deleted = FALSE AND a.is_deleted = FALSE
	AND ($4::text IS NULL OR a.version = $4)
	ORDER BY ai.created_at ASC, ai.id ASC`
	if err := sqlx.SelectContext(ctx, r.ext, &completions, query,
		filter.AppletID, filter.RespondentID, filter.FromDate, filter.Version); err != nil {
		return nil, translate(err, "completions")
	}
	return completions, nil
}

// NextCipherBatch returns up to limit answer items sealed by the respondent for an applet, after cursor in insertion order.
// A zero cursor reads the first page.
func (r *AnswerRepository) NextCipherBatch(ctx context.Context, respondentID, appletID string, after CipherCursor, limit int) ([]models.CipherRow, error) {
	const selectRows = `SELECT ai.id, ai.answer, ai.identifier, ai.user_public_key, ai.applet_history_id, ai.created_at
	FROM answer_items ai
	JOIN answers a ON a.id = ai.answer_id
	WHERE ai.respondent_id = $1 AND a.applet_id = $2 AND ai.is_deleted = FALSE`
	var (
		rows []models.CipherRow
		err  error
	)
	if after.ID == "" {
		err = sqlx.SelectContext(ctx, r.ext, &rows, selectRows+`
	ORDER BY ai.created_at ASC, ai.id ASC
	LIMIT $3`, respondentID, appletID, limit)
	} else {
		err = sqlx.SelectContext(ctx, r.ext, &rows, selectRows+`
	AND (ai.created_at, ai.id) > ($3, $4::uuid)
	ORDER BY ai.created_at ASC, ai.id ASC
	LIMIT $5`, respondentID, appletID, after.CreatedAt, after.ID, limit)
	}
	if err != nil {
		return nil, translate(err, "answer ciphertexts")
	}
	return rows, nil
}

// UpdateCiphers rewrites a batch of ciphertexts in one transaction.
func (r *AnswerRepository) UpdateCiphers(ctx context.Context, rows []models.CipherRow) error {
	if len(rows) == 0 {
		return nil
	}
	return r.inTx(ctx, func(ext sqlx.ExtContext) error {
		now := utcNow()
		const query = `UPDATE answer_items SET answer = $2, identifier = $3, user_public_key = $4, updated_at = $5 WHERE id = $1`
		for _, row := range rows {
			res, err := ext.ExecContext(ctx, query, row.ID, row.Answer, row.Identifier, row.UserPublicKey, now)
			if err != nil {
				return translate(err, "answer item")
			}
			if err := requireAffected(res, "answer item"); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes an answer of the applet together with its items.
func (r *AnswerRepository) Delete(ctx context.Context, appletID, answerID string) error {
	return r.inTx(ctx, func(ext sqlx.ExtContext) error {
		if _, err := ext.ExecContext(ctx, `DELETE FROM answer_items WHERE answer_id IN (SELECT id FROM answers WHERE id = $1 AND applet_id = $2)`, answerID, appletID); err != nil {
			return translate(err, "answer items")
		}
		res, err := ext.ExecContext(ctx, `DELETE FROM answers WHERE id = $1 AND applet_id = $2`, answerID, appletID)
		if err != nil {
			return translate(err, "answer")
		}
		return requireAffected(res, "answer")
	})
}
