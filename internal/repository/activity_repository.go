package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/applets-core/internal/models"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
)

const activityColumns = `id, applet_id, key, name, description, splash_screen, image, show_all_at_once, is_skippable,
	is_reviewable, response_is_editable, is_hidden, scores_and_reports, subscale_setting, "order",
	is_deleted, created_at, updated_at, migrated_date, migrated_updated`

// ActivityRepository stores live activity rows.
type ActivityRepository struct {
	base
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{base: newBase(db)}
}

// WithTx returns a copy bound to tx.
func (r *ActivityRepository) WithTx(tx *sqlx.Tx) *ActivityRepository {
	return &ActivityRepository{base: r.withTx(tx)}
}

// Create inserts an activity under its applet. A nil order appends after the last live sibling.
func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity, order *int) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.Key == "" {
		activity.Key = uuid.NewString()
	}
	activity.Touch(utcNow())
	const query = `INSERT INTO activities
	(id, applet_id, key, name, description, splash_screen, image, show_all_at_once, is_skippable, is_reviewable,
	 response_is_editable, is_hidden, scores_and_reports, subscale_setting, is_deleted, created_at, updated_at, "order")
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, FALSE, $15, $16,
	 COALESCE($17, (SELECT COALESCE(MAX("order"), 0) + 1 FROM activities WHERE applet_id = $2 AND is_deleted = FALSE)))
	RETURNING "order"`
	row := r.ext.QueryRowxContext(ctx, query,
		activity.ID, activity.AppletID, activity.Key, activity.Name, activity.Description, activity.SplashScreen,
		activity.Image, activity.ShowAllAtOnce, activity.IsSkippable, activity.IsReviewable, activity.ResponseIsEditable,
		activity.IsHidden, activity.ScoresAndReports, activity.SubscaleSetting, activity.CreatedAt, activity.UpdatedAt, order)
	if err := row.Scan(&activity.Order); err != nil {
		return translate(err, "activity")
	}
	return nil
}

// GetByID fetches a live activity.
func (r *ActivityRepository) GetByID(ctx context.Context, id string) (*models.Activity, error) {
	var activity models.Activity
	query := `SELECT ` + activityColumns + ` FROM activities WHERE id = $1 AND is_deleted = FALSE`
	if err := sqlx.GetContext(ctx, r.ext, &activity, query, id); err != nil {
		return nil, translate(err, "activity")
	}
	return &activity, nil
}

// ListByApplet returns the live activities of an applet in order.
func (r *ActivityRepository) ListByApplet(ctx context.Context, appletID string) ([]models.Activity, error) {
	var activities []models.Activity
	query := `SELECT ` + activityColumns + ` FROM activities WHERE applet_id = $1 AND is_deleted = FALSE ORDER BY "order" ASC`
	if err := sqlx.SelectContext(ctx, r.ext, &activities, query, appletID); err != nil {
		return nil, translate(err, "activities")
	}
	return activities, nil
}

// Update overwrites the supplied columns; id, key and applet never change.
func (r *ActivityRepository) Update(ctx context.Context, id string, patch models.ActivityPatch) error {
	set := setBuilder{}
	if patch.Name != nil {
		set.add("name", *patch.Name)
	}
	if patch.Description != nil {
		set.add("description", patch.Description)
	}
	if patch.SplashScreen != nil {
		set.add("splash_screen", *patch.SplashScreen)
	}
	if patch.Image != nil {
		set.add("image", *patch.Image)
	}
	if patch.ShowAllAtOnce != nil {
		set.add("show_all_at_once", *patch.ShowAllAtOnce)
	}
	if patch.IsSkippable != nil {
		set.add("is_skippable", *patch.IsSkippable)
	}
	if patch.IsReviewable != nil {
		set.add("is_reviewable", *patch.IsReviewable)
	}
	if patch.ResponseIsEditable != nil {
		set.add("response_is_editable", *patch.ResponseIsEditable)
	}
	if patch.IsHidden != nil {
		set.add("is_hidden", *patch.IsHidden)
	}
	switch {
	case patch.ClearScores:
		set.add("scores_and_reports", nil)
	case patch.ScoresAndReports != nil:
		set.add("scores_and_reports", patch.ScoresAndReports)
	}
	switch {
	case patch.ClearSubscales:
		set.add("subscale_setting", nil)
	case patch.SubscaleSetting != nil:
		set.add("subscale_setting", patch.SubscaleSetting)
	}
	if patch.Order != nil {
		set.add(`"order"`, *patch.Order)
	}
	if set.empty() {
		return nil
	}
	query, args := set.build("activities", id, utcNow())
	res, err := r.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err, "activity")
	}
	return requireAffected(res, "activity")
}

// DeleteByID soft-deletes an activity and its items. Live flow steps pointing at it block the delete.
func (r *ActivityRepository) DeleteByID(ctx context.Context, id string) error {
	return r.inTx(ctx, func(ext sqlx.ExtContext) error {
		var refs int
		if err := sqlx.GetContext(ctx, ext, &refs, `SELECT COUNT(*) FROM flow_items WHERE activity_id = $1 AND is_deleted = FALSE`, id); err != nil {
			return translate(err, "activity")
		}
		if refs > 0 {
			return appErrors.Clone(appErrors.ErrReferentialViolation, "activity is referenced by a flow")
		}
		now := utcNow()
		res, err := ext.ExecContext(ctx, `UPDATE activities SET is_deleted = TRUE, updated_at = $2 WHERE id = $1 AND is_deleted = FALSE`, id, now)
		if err != nil {
			return translate(err, "activity")
		}
		if err := requireAffected(res, "activity"); err != nil {
			return err
		}
		if _, err := ext.ExecContext(ctx, `UPDATE activity_items SET is_deleted = TRUE, updated_at = $2 WHERE activity_id = $1 AND is_deleted = FALSE`, id, now); err != nil {
			return translate(err, "activity items")
		}
		return nil
	})
}

// Reorder rewrites sibling order to match ids.
func (r *ActivityRepository) Reorder(ctx context.Context, appletID string, ids []string) error {
	return reorder(ctx, r.base, "activities", "applet_id", appletID, ids)
}

// reorder assigns positions 1..n to ids within one parent inside a single transaction.
func reorder(ctx context.Context, b base, table, parentColumn, parentID string, ids []string) error {
	return b.inTx(ctx, func(ext sqlx.ExtContext) error {
		now := utcNow()
		query := `UPDATE ` + table + ` SET "order" = $1, updated_at = $2 WHERE id = $3 AND ` + parentColumn + ` = $4 AND is_deleted = FALSE`
		for i, id := range ids {
			res, err := ext.ExecContext(ctx, query, i+1, now, id, parentID)
			if err != nil {
				return translate(err, table)
			}
			if err := requireAffected(res, table); err != nil {
				return err
			}
		}
		return nil
	})
}
