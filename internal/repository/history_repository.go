package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/applets-core/internal/models"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
	"github.com/noah-isme/applets-core/pkg/versionkey"
)

const (
	appletHistoryColumns   = `id_version, user_id, ` + appletColumns
	activityHistoryColumns = `id_version, ` + activityColumns
	itemHistoryColumns     = `id_version, ` + itemColumns
	flowHistoryColumns     = `id_version, ` + flowColumns
	flowItemHistoryColumns = `id_version, ` + flowItemColumns
)

// HistoryRepository is the append-only store of applet snapshots.
type HistoryRepository struct {
	base
}

// NewHistoryRepository constructs the repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{base: newBase(db)}
}

// WithTx returns a copy bound to tx.
func (r *HistoryRepository) WithTx(tx *sqlx.Tx) *HistoryRepository {
	return &HistoryRepository{base: r.withTx(tx)}
}

// PutApplet inserts one applet snapshot.
func (r *HistoryRepository) PutApplet(ctx context.Context, h *models.AppletHistory) error {
	const query = `INSERT INTO applet_histories
	(id_version, id, user_id, display_name, description, about, image, watermark, encryption, retention_period,
	 retention_type, version, pinned_at, creator_id, is_deleted, created_at, updated_at, migrated_date, migrated_updated)
	VALUES (:id_version, :id, :user_id, :display_name, :description, :about, :image, :watermark, :encryption,
	 :retention_period, :retention_type, :version, :pinned_at, :creator_id, FALSE, :created_at, :updated_at,
	 :migrated_date, :migrated_updated)`
	_, err := sqlx.NamedExecContext(ctx, r.ext, query, h)
	return translateHistory(err, "applet history")
}

// PutActivity inserts one activity snapshot.
func (r *HistoryRepository) PutActivity(ctx context.Context, h *models.ActivityHistory) error {
	const query = `INSERT INTO activity_histories
	(id_version, id, applet_id, key, name, description, splash_screen, image, show_all_at_once, is_skippable,
	 is_reviewable, response_is_editable, is_hidden, scores_and_reports, subscale_setting, "order",
	 is_deleted, created_at, updated_at, migrated_date, migrated_updated)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, FALSE, $17, $18, $19, $20)`
	_, err := r.ext.ExecContext(ctx, query,
		h.IDVersion, h.ID, h.AppletID, h.Key, h.Name, h.Description, h.SplashScreen, h.Image, h.ShowAllAtOnce,
		h.IsSkippable, h.IsReviewable, h.ResponseIsEditable, h.IsHidden, h.ScoresAndReports, h.SubscaleSetting,
		h.Order, h.CreatedAt, h.UpdatedAt, h.MigratedDate, h.MigratedUpdated)
	return translateHistory(err, "activity history")
}

// PutItem inserts one item snapshot.
func (r *HistoryRepository) PutItem(ctx context.Context, h *models.ActivityItemHistory) error {
	const query = `INSERT INTO activity_item_histories
	(id_version, id, activity_id, name, question, response_type, response_values, config, conditional_logic,
	 is_hidden, allow_edit, "order", is_deleted, created_at, updated_at, migrated_date, migrated_updated)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, FALSE, $13, $14, $15, $16)`
	_, err := r.ext.ExecContext(ctx, query,
		h.IDVersion, h.ID, h.ActivityID, h.Name, h.Question, h.ResponseType, h.ResponseValues, h.Config,
		h.ConditionalLogic, h.IsHidden, h.AllowEdit, h.Order, h.CreatedAt, h.UpdatedAt, h.MigratedDate, h.MigratedUpdated)
	return translateHistory(err, "item history")
}

// PutFlow inserts one flow snapshot.
func (r *HistoryRepository) PutFlow(ctx context.Context, h *models.FlowHistory) error {
	const query = `INSERT INTO flow_histories
	(id_version, id, applet_id, name, description, is_single_report, hide_badge, is_hidden, "order",
	 is_deleted, created_at, updated_at, migrated_date, migrated_updated)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, $10, $11, $12, $13)`
	_, err := r.ext.ExecContext(ctx, query,
		h.IDVersion, h.ID, h.AppletID, h.Name, h.Description, h.IsSingleReport, h.HideBadge, h.IsHidden, h.Order,
		h.CreatedAt, h.UpdatedAt, h.MigratedDate, h.MigratedUpdated)
	return translateHistory(err, "flow history")
}

// PutFlowItem inserts one flow step snapshot.
func (r *HistoryRepository) PutFlowItem(ctx context.Context, h *models.FlowItemHistory) error {
	const query = `INSERT INTO flow_item_histories
	(id_version, id, activity_flow_id, activity_id, "order", is_deleted, created_at, updated_at, migrated_date, migrated_updated)
	VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7, $8, $9)`
	_, err := r.ext.ExecContext(ctx, query,
		h.IDVersion, h.ID, h.ActivityFlowID, h.ActivityID, h.Order, h.CreatedAt, h.UpdatedAt, h.MigratedDate, h.MigratedUpdated)
	return translateHistory(err, "flow item history")
}

// PutTree writes a whole snapshot parents first.
func (r *HistoryRepository) PutTree(ctx context.Context, tree *models.AppletHistoryTree) error {
	return r.inTx(ctx, func(ext sqlx.ExtContext) error {
		tx := &HistoryRepository{base: base{db: r.db, ext: ext}}
		if err := tx.PutApplet(ctx, &tree.AppletHistory); err != nil {
			return err
		}
		for i := range tree.Activities {
			node := &tree.Activities[i]
			if err := tx.PutActivity(ctx, &node.ActivityHistory); err != nil {
				return err
			}
			for j := range node.Items {
				if err := tx.PutItem(ctx, &node.Items[j]); err != nil {
					return err
				}
			}
		}
		for i := range tree.Flows {
			node := &tree.Flows[i]
			if err := tx.PutFlow(ctx, &node.FlowHistory); err != nil {
				return err
			}
			for j := range node.Items {
				if err := tx.PutFlowItem(ctx, &node.Items[j]); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// GetApplet fetches one applet snapshot.
func (r *HistoryRepository) GetApplet(ctx context.Context, idVersion string) (*models.AppletHistory, error) {
	var h models.AppletHistory
	query := `SELECT ` + appletHistoryColumns + ` FROM applet_histories WHERE id_version = $1 AND is_deleted = FALSE`
	if err := sqlx.GetContext(ctx, r.ext, &h, query, idVersion); err != nil {
		return nil, translate(err, "applet version")
	}
	return &h, nil
}

// GetTree assembles the full applet at one version.
func (r *HistoryRepository) GetTree(ctx context.Context, idVersion string) (*models.AppletHistoryTree, error) {
	applet, err := r.GetApplet(ctx, idVersion)
	if err != nil {
		return nil, err
	}

	var activities []models.ActivityHistory
	query := `SELECT ` + activityHistoryColumns + ` FROM activity_histories
	WHERE applet_id = $1 AND is_deleted = FALSE ORDER BY "order" ASC`
	if err := sqlx.SelectContext(ctx, r.ext, &activities, query, idVersion); err != nil {
		return nil, translate(err, "activity histories")
	}

	var items []models.ActivityItemHistory
	query = `SELECT ` + prefixColumns("ih", itemHistoryColumns) + ` FROM activity_item_histories ih
	JOIN activity_histories ah ON ah.id_version = ih.activity_id
	WHERE ah.applet_id = $1 AND ih.is_deleted = FALSE
	ORDER BY ah."order" ASC, ih."order" ASC`
	if err := sqlx.SelectContext(ctx, r.ext, &items, query, idVersion); err != nil {
		return nil, translate(err, "item histories")
	}

	var flows []models.FlowHistory
	query = `SELECT ` + flowHistoryColumns + ` FROM flow_histories
	WHERE applet_id = $1 AND is_deleted = FALSE ORDER BY "order" ASC`
	if err := sqlx.SelectContext(ctx, r.ext, &flows, query, idVersion); err != nil {
		return nil, translate(err, "flow histories")
	}

	var steps []models.FlowItemHistory
	query = `SELECT ` + prefixColumns("fih", flowItemHistoryColumns) + ` FROM flow_item_histories fih
	JOIN flow_histories fh ON fh.id_version = fih.activity_flow_id
	WHERE fh.applet_id = $1 AND fih.is_deleted = FALSE
	ORDER BY fh."order" ASC, fih."order" ASC`
	if err := sqlx.SelectContext(ctx, r.ext, &steps, query, idVersion); err != nil {
		return nil, translate(err, "flow item histories")
	}

	return AssembleHistoryTree(*applet, activities, items, flows, steps), nil
}

// AssembleHistoryTree groups flat ordered snapshot rows under their parents.
func AssembleHistoryTree(applet models.AppletHistory, activities []models.ActivityHistory, items []models.ActivityItemHistory, flows []models.FlowHistory, steps []models.FlowItemHistory) *models.AppletHistoryTree {
	tree := &models.AppletHistoryTree{
		AppletHistory: applet,
		Activities:    make([]models.ActivityHistoryNode, 0, len(activities)),
		Flows:         make([]models.FlowHistoryNode, 0, len(flows)),
	}
	itemsByActivity := make(map[string][]models.ActivityItemHistory)
	for _, item := range items {
		itemsByActivity[item.ActivityID] = append(itemsByActivity[item.ActivityID], item)
	}
	for _, activity := range activities {
		children := itemsByActivity[activity.IDVersion]
		if children == nil {
			children = []models.ActivityItemHistory{}
		}
		tree.Activities = append(tree.Activities, models.ActivityHistoryNode{ActivityHistory: activity, Items: children})
	}
	stepsByFlow := make(map[string][]models.FlowItemHistory)
	for _, step := range steps {
		stepsByFlow[step.ActivityFlowID] = append(stepsByFlow[step.ActivityFlowID], step)
	}
	for _, flow := range flows {
		children := stepsByFlow[flow.IDVersion]
		if children == nil {
			children = []models.FlowItemHistory{}
		}
		tree.Flows = append(tree.Flows, models.FlowHistoryNode{FlowHistory: flow, Items: children})
	}
	return tree
}

// ListVersions returns every version of an applet, oldest first.
func (r *HistoryRepository) ListVersions(ctx context.Context, appletID string) ([]models.AppletVersion, error) {
	var versions []models.AppletVersion
	const query = `SELECT version, created_at, user_id FROM applet_histories WHERE id = $1 AND is_deleted = FALSE`
	if err := sqlx.SelectContext(ctx, r.ext, &versions, query, appletID); err != nil {
		return nil, translate(err, "applet versions")
	}
	sort.SliceStable(versions, func(i, j int) bool {
		a, errA := versionkey.ParseVersion(versions[i].Version)
		b, errB := versionkey.ParseVersion(versions[j].Version)
		if errA != nil || errB != nil {
			return versions[i].CreatedAt.Before(versions[j].CreatedAt)
		}
		return a.Compare(b) < 0
	})
	return versions, nil
}

// translateHistory reports duplicate snapshot keys as VersionAlreadyExists.
func translateHistory(err error, what string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return appErrors.Wrap(err, appErrors.ErrVersionAlreadyExists.Code, appErrors.ErrVersionAlreadyExists.Status, what+" already exists")
	}
	return translate(err, what)
}
