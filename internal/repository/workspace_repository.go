package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/applets-core/internal/models"
)

const workspaceColumns = `id, user_id, workspace_name, use_arbitrary, database_uri, storage_type, storage_access_key,
	storage_secret_key, storage_region, storage_url, storage_bucket, is_deleted, created_at, updated_at,
	migrated_date, migrated_updated`

// WorkspaceRepository stores owner workspaces.
type WorkspaceRepository struct {
	base
}

// NewWorkspaceRepository constructs the repository.
func NewWorkspaceRepository(db *sqlx.DB) *WorkspaceRepository {
	return &WorkspaceRepository{base: newBase(db)}
}

// GetByUserID fetches the workspace owned by userID.
func (r *WorkspaceRepository) GetByUserID(ctx context.Context, userID string) (*models.Workspace, error) {
	var workspace models.Workspace
	query := `SELECT ` + workspaceColumns + ` FROM user_workspaces WHERE user_id = $1 AND is_deleted = FALSE`
	if err := sqlx.GetContext(ctx, r.ext, &workspace, query, userID); err != nil {
		return nil, translate(err, "workspace")
	}
	return &workspace, nil
}

// UpdateArbitrary overwrites the encrypted arbitrary-server block and toggle.
func (r *WorkspaceRepository) UpdateArbitrary(ctx context.Context, w *models.Workspace) error {
	w.UpdatedAt = utcNow()
	const query = `UPDATE user_workspaces SET use_arbitrary = $2, database_uri = $3, storage_type = $4,
	storage_access_key = $5, storage_secret_key = $6, storage_region = $7, storage_url = $8, storage_bucket = $9,
	updated_at = $10
	WHERE user_id = $1 AND is_deleted = FALSE`
	res, err := r.ext.ExecContext(ctx, query, w.UserID, w.UseArbitrary, w.DatabaseURI, w.StorageType,
		w.StorageAccessKey, w.StorageSecretKey, w.StorageRegion, w.StorageURL, w.StorageBucket, w.UpdatedAt)
	if err != nil {
		return translate(err, "workspace")
	}
	return requireAffected(res, "workspace")
}
