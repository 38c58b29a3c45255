package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/applets-core/internal/models"
)

const appletColumns = `id, display_name, description, about, image, watermark, encryption, retention_period,
	retention_type, version, pinned_at, creator_id, is_deleted, created_at, updated_at, migrated_date, migrated_updated`

// AppletRepository stores live applet rows.
type AppletRepository struct {
	base
}

// NewAppletRepository constructs the repository.
func NewAppletRepository(db *sqlx.DB) *AppletRepository {
	return &AppletRepository{base: newBase(db)}
}

// WithTx returns a copy bound to tx.
func (r *AppletRepository) WithTx(tx *sqlx.Tx) *AppletRepository {
	return &AppletRepository{base: r.withTx(tx)}
}

// Create inserts a new applet.
func (r *AppletRepository) Create(ctx context.Context, applet *models.Applet) error {
	if applet.ID == "" {
		applet.ID = uuid.NewString()
	}
	applet.Touch(utcNow())
	const query = `INSERT INTO applets
	(id, display_name, description, about, image, watermark, encryption, retention_period, retention_type,
	 version, pinned_at, creator_id, is_deleted, created_at, updated_at)
	VALUES (:id, :display_name, :description, :about, :image, :watermark, :encryption, :retention_period, :retention_type,
	 :version, :pinned_at, :creator_id, FALSE, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, applet); err != nil {
		return translate(err, "applet")
	}
	return nil
}

// GetByID fetches a live applet.
func (r *AppletRepository) GetByID(ctx context.Context, id string) (*models.Applet, error) {
	return r.get(ctx, `SELECT `+appletColumns+` FROM applets WHERE id = $1 AND is_deleted = FALSE`, id)
}

// GetForAudit fetches an applet even when soft-deleted.
func (r *AppletRepository) GetForAudit(ctx context.Context, id string) (*models.Applet, error) {
	return r.get(ctx, `SELECT `+appletColumns+` FROM applets WHERE id = $1`, id)
}

// Lock fetches a live applet holding a row lock until the transaction ends.
func (r *AppletRepository) Lock(ctx context.Context, id string) (*models.Applet, error) {
	return r.get(ctx, `SELECT `+appletColumns+` FROM applets WHERE id = $1 AND is_deleted = FALSE FOR UPDATE`, id)
}

func (r *AppletRepository) get(ctx context.Context, query, id string) (*models.Applet, error) {
	var applet models.Applet
	if err := sqlx.GetContext(ctx, r.ext, &applet, query, id); err != nil {
		return nil, translate(err, "applet")
	}
	return &applet, nil
}

// Update overwrites the supplied columns.
func (r *AppletRepository) Update(ctx context.Context, id string, patch models.AppletPatch) error {
	set := setBuilder{}
	if patch.DisplayName != nil {
		set.add("display_name", *patch.DisplayName)
	}
	if patch.Description != nil {
		set.add("description", patch.Description)
	}
	if patch.About != nil {
		set.add("about", patch.About)
	}
	if patch.Image != nil {
		set.add("image", *patch.Image)
	}
	if patch.Watermark != nil {
		set.add("watermark", *patch.Watermark)
	}
	if patch.Encryption != nil {
		set.add("encryption", patch.Encryption)
	}
	if patch.RetentionPeriod != nil {
		set.add("retention_period", *patch.RetentionPeriod)
	}
	if patch.RetentionType != nil {
		set.add("retention_type", *patch.RetentionType)
	}
	if patch.Version != nil {
		set.add("version", *patch.Version)
	}
	if patch.PinnedAt != nil {
		set.add("pinned_at", *patch.PinnedAt)
	}
	if set.empty() {
		return nil
	}
	query, args := set.build("applets", id, utcNow())
	res, err := r.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err, "applet")
	}
	return requireAffected(res, "applet")
}

// DeleteByID soft-deletes the applet and every live descendant.
func (r *AppletRepository) DeleteByID(ctx context.Context, id string) error {
	return r.inTx(ctx, func(ext sqlx.ExtContext) error {
		now := utcNow()
		res, err := ext.ExecContext(ctx, `UPDATE applets SET is_deleted = TRUE, updated_at = $2 WHERE id = $1 AND is_deleted = FALSE`, id, now)
		if err != nil {
			return translate(err, "applet")
		}
		if err := requireAffected(res, "applet"); err != nil {
			return err
		}
		statements := []string{
			`UPDATE flow_items SET is_deleted = TRUE, updated_at = $2
			 WHERE is_deleted = FALSE AND activity_flow_id IN (SELECT id FROM flows WHERE applet_id = $1)`,
			`UPDATE flows SET is_deleted = TRUE, updated_at = $2 WHERE applet_id = $1 AND is_deleted = FALSE`,
			`UPDATE activity_items SET is_deleted = TRUE, updated_at = $2
			 WHERE is_deleted = FALSE AND activity_id IN (SELECT id FROM activities WHERE applet_id = $1)`,
			`UPDATE activities SET is_deleted = TRUE, updated_at = $2 WHERE applet_id = $1 AND is_deleted = FALSE`,
		}
		for _, stmt := range statements {
			if _, err := ext.ExecContext(ctx, stmt, id, now); err != nil {
				return translate(err, "applet")
			}
		}
		return nil
	})
}

// HardDeleteByAppletID physically removes the applet, its live tree and its history.
func (r *AppletRepository) HardDeleteByAppletID(ctx context.Context, id string) error {
	return r.inTx(ctx, func(ext sqlx.ExtContext) error {
		statements := []string{
			`DELETE FROM flow_item_histories WHERE activity_flow_id IN (SELECT id_version FROM flow_histories WHERE applet_id IN (SELECT id_version FROM applet_histories WHERE id = $1))`,
			`DELETE FROM flow_histories WHERE applet_id IN (SELECT id_version FROM applet_histories WHERE id = $1)`,
			`DELETE FROM activity_item_histories WHERE activity_id IN (SELECT id_version FROM activity_histories WHERE applet_id IN (SELECT id_version FROM applet_histories WHERE id = $1))`,
			`DELETE FROM activity_histories WHERE applet_id IN (SELECT id_version FROM applet_histories WHERE id = $1)`,
			`DELETE FROM applet_histories WHERE id = $1`,
			`DELETE FROM flow_items WHERE activity_flow_id IN (SELECT id FROM flows WHERE applet_id = $1)`,
			`DELETE FROM flows WHERE applet_id = $1`,
			`DELETE FROM activity_items WHERE activity_id IN (SELECT id FROM activities WHERE applet_id = $1)`,
			`DELETE FROM activities WHERE applet_id = $1`,
			`DELETE FROM user_applet_accesses WHERE applet_id = $1`,
			`DELETE FROM applets WHERE id = $1`,
		}
		for _, stmt := range statements {
			if _, err := ext.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("purge applet: %w", err)
			}
		}
		return nil
	})
}
