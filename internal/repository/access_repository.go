package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/applets-core/internal/models"
)

const accessColumns = `id, user_id, applet_id, owner_id, invitor_id, role, created_at`

// AccessRepository reads and grants applet roles.
type AccessRepository struct {
	base
}

// NewAccessRepository constructs the repository.
func NewAccessRepository(db *sqlx.DB) *AccessRepository {
	return &AccessRepository{base: newBase(db)}
}

// WithTx returns a copy bound to tx.
func (r *AccessRepository) WithTx(tx *sqlx.Tx) *AccessRepository {
	return &AccessRepository{base: r.withTx(tx)}
}

// Grant inserts a role; granting an existing role is a no-op.
func (r *AccessRepository) Grant(ctx context.Context, access *models.UserAppletAccess) error {
	if access.ID == "" {
		access.ID = uuid.NewString()
	}
	if access.CreatedAt.IsZero() {
		access.CreatedAt = utcNow()
	}
	const query = `INSERT INTO user_applet_accesses
	(id, user_id, applet_id, owner_id, invitor_id, role, is_deleted, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $7)
	ON CONFLICT (user_id, applet_id, role) DO NOTHING`
	_, err := r.ext.ExecContext(ctx, query,
		access.ID, access.UserID, access.AppletID, access.OwnerID, access.InvitorID, access.Role, access.CreatedAt)
	return translate(err, "applet access")
}

// RolesFor returns the live roles a user holds on an applet.
func (r *AccessRepository) RolesFor(ctx context.Context, userID, appletID string) ([]models.AppletRole, error) {
	var roles []models.AppletRole
	const query = `SELECT role FROM user_applet_accesses
	WHERE user_id = $1 AND applet_id = $2 AND is_deleted = FALSE`
	if err := sqlx.SelectContext(ctx, r.ext, &roles, query, userID, appletID); err != nil {
		return nil, translate(err, "applet roles")
	}
	return roles, nil
}

// OwnersOf returns the owner accesses of an applet, earliest first.
func (r *AccessRepository) OwnersOf(ctx context.Context, appletID string) ([]models.UserAppletAccess, error) {
	var owners []models.UserAppletAccess
	query := `SELECT ` + accessColumns + ` FROM user_applet_accesses
	WHERE applet_id = $1 AND role = $2 AND is_deleted = FALSE
	ORDER BY created_at ASC, id ASC`
	if err := sqlx.SelectContext(ctx, r.ext, &owners, query, appletID, models.RoleOwner); err != nil {
		return nil, translate(err, "applet owners")
	}
	return owners, nil
}

// AppletIDsForRespondent lists every applet the user holds or once held a role on, together with
// every applet holding the user's answers in this database. Deleted applets and revoked roles are included.
func (r *AccessRepository) AppletIDsForRespondent(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	const query = `SELECT applet_id FROM user_applet_accesses WHERE user_id = $1
	UNION
	SELECT applet_id FROM answers WHERE respondent_id = $1
	ORDER BY applet_id`
	if err := sqlx.SelectContext(ctx, r.ext, &ids, query, userID); err != nil {
		return nil, translate(err, "respondent applets")
	}
	return ids, nil
}
