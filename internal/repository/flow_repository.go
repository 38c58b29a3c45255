package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/applets-core/internal/models"
)

const (
	flowColumns = `id, applet_id, name, description, is_single_report, hide_badge, is_hidden, "order",
	is_deleted, created_at, updated_at, migrated_date, migrated_updated`
	flowItemColumns = `id, activity_flow_id, activity_id, "order", is_deleted, created_at, updated_at, migrated_date, migrated_updated`
)

// FlowRepository stores live flows and their steps.
type FlowRepository struct {
	base
}

// NewFlowRepository constructs the repository.
func NewFlowRepository(db *sqlx.DB) *FlowRepository {
	return &FlowRepository{base: newBase(db)}
}

// WithTx returns a copy bound to tx.
func (r *FlowRepository) WithTx(tx *sqlx.Tx) *FlowRepository {
	return &FlowRepository{base: r.withTx(tx)}
}

// Create inserts a flow under its applet. A nil order appends after the last live sibling.
func (r *FlowRepository) Create(ctx context.Context, flow *models.Flow, order *int) error {
	if flow.ID == "" {
		flow.ID = uuid.NewString()
	}
	flow.Touch(utcNow())
	const query = `INSERT INTO flows
	(id, applet_id, name, description, is_single_report, hide_badge, is_hidden, is_deleted, created_at, updated_at, "order")
	VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $9,
	 COALESCE($10, (SELECT COALESCE(MAX("order"), 0) + 1 FROM flows WHERE applet_id = $2 AND is_deleted = FALSE)))
	RETURNING "order"`
	row := r.ext.QueryRowxContext(ctx, query,
		flow.ID, flow.AppletID, flow.Name, flow.Description, flow.IsSingleReport, flow.HideBadge, flow.IsHidden,
		flow.CreatedAt, flow.UpdatedAt, order)
	if err := row.Scan(&flow.Order); err != nil {
		return translate(err, "flow")
	}
	return nil
}

// GetByID fetches a live flow.
func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	var flow models.Flow
	query := `SELECT ` + flowColumns + ` FROM flows WHERE id = $1 AND is_deleted = FALSE`
	if err := sqlx.GetContext(ctx, r.ext, &flow, query, id); err != nil {
		return nil, translate(err, "flow")
	}
	return &flow, nil
}

// ListByApplet returns the live flows of an applet in order.
func (r *FlowRepository) ListByApplet(ctx context.Context, appletID string) ([]models.Flow, error) {
	var flows []models.Flow
	query := `SELECT ` + flowColumns + ` FROM flows WHERE applet_id = $1 AND is_deleted = FALSE ORDER BY "order" ASC`
	if err := sqlx.SelectContext(ctx, r.ext, &flows, query, appletID); err != nil {
		return nil, translate(err, "flows")
	}
	return flows, nil
}

// Update overwrites the supplied columns.
func (r *FlowRepository) Update(ctx context.Context, id string, patch models.FlowPatch) error {
	set := setBuilder{}
	if patch.Name != nil {
		set.add("name", *patch.Name)
	}
	if patch.Description != nil {
		set.add("description", patch.Description)
	}
	if patch.IsSingleReport != nil {
		set.add("is_single_report", *patch.IsSingleReport)
	}
	if patch.HideBadge != nil {
		set.add("hide_badge", *patch.HideBadge)
	}
	if patch.IsHidden != nil {
		set.add("is_hidden", *patch.IsHidden)
	}
	if patch.Order != nil {
		set.add(`"order"`, *patch.Order)
	}
	if set.empty() {
		return nil
	}
	query, args := set.build("flows", id, utcNow())
	res, err := r.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err, "flow")
	}
	return requireAffected(res, "flow")
}

// DeleteByID soft-deletes a flow together with its steps.
func (r *FlowRepository) DeleteByID(ctx context.Context, id string) error {
	return r.inTx(ctx, func(ext sqlx.ExtContext) error {
		now := utcNow()
		if _, err := ext.ExecContext(ctx, `UPDATE flow_items SET is_deleted = TRUE, updated_at = $2 WHERE activity_flow_id = $1 AND is_deleted = FALSE`, id, now); err != nil {
			return translate(err, "flow items")
		}
		res, err := ext.ExecContext(ctx, `UPDATE flows SET is_deleted = TRUE, updated_at = $2 WHERE id = $1 AND is_deleted = FALSE`, id, now)
		if err != nil {
			return translate(err, "flow")
		}
		return requireAffected(res, "flow")
	})
}

// Reorder rewrites sibling order to match ids.
func (r *FlowRepository) Reorder(ctx context.Context, appletID string, ids []string) error {
	return reorder(ctx, r.base, "flows", "applet_id", appletID, ids)
}

// CreateItem inserts a flow step. A nil order appends after the last live step.
func (r *FlowRepository) CreateItem(ctx context.Context, item *models.FlowItem, order *int) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.Touch(utcNow())
	const query = `INSERT INTO flow_items (id, activity_flow_id, activity_id, is_deleted, created_at, updated_at, "order")
	VALUES ($1, $2, $3, FALSE, $4, $5,
	 COALESCE($6, (SELECT COALESCE(MAX("order"), 0) + 1 FROM flow_items WHERE activity_flow_id = $2 AND is_deleted = FALSE)))
	RETURNING "order"`
	row := r.ext.QueryRowxContext(ctx, query, item.ID, item.ActivityFlowID, item.ActivityID, item.CreatedAt, item.UpdatedAt, order)
	if err := row.Scan(&item.Order); err != nil {
		return translate(err, "flow item")
	}
	return nil
}

// ListItemsByApplet returns every live flow step of an applet ordered by flow then position.
func (r *FlowRepository) ListItemsByApplet(ctx context.Context, appletID string) ([]models.FlowItem, error) {
	var items []models.FlowItem
	query := `SELECT ` + prefixColumns("fi", flowItemColumns) + ` FROM flow_items fi
	JOIN flows f ON f.id = fi.activity_flow_id
	WHERE f.applet_id = $1 AND f.is_deleted = FALSE AND fi.is_deleted = FALSE
	ORDER BY f."order" ASC, fi."order" ASC`
	if err := sqlx.SelectContext(ctx, r.ext, &items, query, appletID); err != nil {
		return nil, translate(err, "flow items")
	}
	return items, nil
}

// UpdateItemOrder moves a flow step; the step's flow and activity never change.
func (r *FlowRepository) UpdateItemOrder(ctx context.Context, id string, order int) error {
	set := setBuilder{}
	set.add(`"order"`, order)
	query, args := set.build("flow_items", id, utcNow())
	res, err := r.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err, "flow item")
	}
	return requireAffected(res, "flow item")
}

// DeleteItemByID soft-deletes one flow step.
func (r *FlowRepository) DeleteItemByID(ctx context.Context, id string) error {
	res, err := r.ext.ExecContext(ctx, `UPDATE flow_items SET is_deleted = TRUE, updated_at = $2 WHERE id = $1 AND is_deleted = FALSE`, id, utcNow())
	if err != nil {
		return translate(err, "flow item")
	}
	return requireAffected(res, "flow item")
}
