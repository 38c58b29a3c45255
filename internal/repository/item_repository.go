package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/applets-core/internal/models"
)

const itemColumns = `id, activity_id, name, question, response_type, response_values, config, conditional_logic,
	is_hidden, allow_edit, "order", is_deleted, created_at, updated_at, migrated_date, migrated_updated`

// ItemRepository stores live activity items.
type ItemRepository struct {
	base
}

// NewItemRepository constructs the repository.
func NewItemRepository(db *sqlx.DB) *ItemRepository {
	return &ItemRepository{base: newBase(db)}
}

// WithTx returns a copy bound to tx.
func (r *ItemRepository) WithTx(tx *sqlx.Tx) *ItemRepository {
	return &ItemRepository{base: r.withTx(tx)}
}

// Create inserts an item under its activity. A nil order appends after the last live sibling.
func (r *ItemRepository) Create(ctx context.Context, item *models.ActivityItem, order *int) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.Touch(utcNow())
	const query = `INSERT INTO activity_items
	(id, activity_id, name, question, response_type, response_values, config, conditional_logic, is_hidden, allow_edit,
	 is_deleted, created_at, updated_at, "order")
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11, $12,
	 COALESCE($13, (SELECT COALESCE(MAX("order"), 0) + 1 FROM activity_items WHERE activity_id = $2 AND is_deleted = FALSE)))
	RETURNING "order"`
	row := r.ext.QueryRowxContext(ctx, query,
		item.ID, item.ActivityID, item.Name, item.Question, item.ResponseType, item.ResponseValues, item.Config,
		item.ConditionalLogic, item.IsHidden, item.AllowEdit, item.CreatedAt, item.UpdatedAt, order)
	if err := row.Scan(&item.Order); err != nil {
		return translate(err, "item")
	}
	return nil
}

// GetByID fetches a live item.
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*models.ActivityItem, error) {
	var item models.ActivityItem
	query := `SELECT ` + itemColumns + ` FROM activity_items WHERE id = $1 AND is_deleted = FALSE`
	if err := sqlx.GetContext(ctx, r.ext, &item, query, id); err != nil {
		return nil, translate(err, "item")
	}
	return &item, nil
}

// ListByActivity returns the live items of an activity in order.
func (r *ItemRepository) ListByActivity(ctx context.Context, activityID string) ([]models.ActivityItem, error) {
	var items []models.ActivityItem
	query := `SELECT ` + itemColumns + ` FROM activity_items WHERE activity_id = $1 AND is_deleted = FALSE ORDER BY "order" ASC`
	if err := sqlx.SelectContext(ctx, r.ext, &items, query, activityID); err != nil {
		return nil, translate(err, "items")
	}
	return items, nil
}

// ListByApplet returns every live item of an applet ordered by activity then position.
func (r *ItemRepository) ListByApplet(ctx context.Context, appletID string) ([]models.ActivityItem, error) {
	var items []models.ActivityItem
	query := `SELECT ` + prefixColumns("i", itemColumns) + ` FROM activity_items i
	JOIN activities a ON a.id = i.activity_id
	WHERE a.applet_id = $1 AND a.is_deleted = FALSE AND i.is_deleted = FALSE
	ORDER BY a."order" ASC, i."order" ASC`
	if err := sqlx.SelectContext(ctx, r.ext, &items, query, appletID); err != nil {
		return nil, translate(err, "items")
	}
	return items, nil
}

// Update overwrites the supplied columns; id and parent never change.
func (r *ItemRepository) Update(ctx context.Context, id string, patch models.ActivityItemPatch) error {
	set := setBuilder{}
	if patch.Name != nil {
		set.add("name", *patch.Name)
	}
	if patch.Question != nil {
		set.add("question", patch.Question)
	}
	if patch.ResponseType != nil {
		set.add("response_type", *patch.ResponseType)
	}
	if patch.ResponseValues != nil {
		set.add("response_values", patch.ResponseValues)
	}
	if patch.Config != nil {
		set.add("config", patch.Config)
	}
	switch {
	case patch.ClearConditional:
		set.add("conditional_logic", nil)
	case patch.ConditionalLogic != nil:
		set.add("conditional_logic", patch.ConditionalLogic)
	}
	if patch.IsHidden != nil {
		set.add("is_hidden", *patch.IsHidden)
	}
	if patch.AllowEdit != nil {
		set.add("allow_edit", *patch.AllowEdit)
	}
	if patch.Order != nil {
		set.add(`"order"`, *patch.Order)
	}
	if set.empty() {
		return nil
	}
	query, args := set.build("activity_items", id, utcNow())
	res, err := r.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err, "item")
	}
	return requireAffected(res, "item")
}

// DeleteByID soft-deletes an item.
func (r *ItemRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.ext.ExecContext(ctx, `UPDATE activity_items SET is_deleted = TRUE, updated_at = $2 WHERE id = $1 AND is_deleted = FALSE`, id, utcNow())
	if err != nil {
		return translate(err, "item")
	}
	return requireAffected(res, "item")
}

// Reorder rewrites sibling order to match ids.
func (r *ItemRepository) Reorder(ctx context.Context, activityID string, ids []string) error {
	return reorder(ctx, r.base, "activity_items", "activity_id", activityID, ids)
}
