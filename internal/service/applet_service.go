package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/applets-core/internal/dto"
	"github.com/noah-isme/applets-core/internal/models"
	"github.com/noah-isme/applets-core/internal/repository"
	"github.com/noah-isme/applets-core/pkg/database"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
	"github.com/noah-isme/applets-core/pkg/versionkey"
)

type appletTreeStore interface {
	Lock(ctx context.Context, appletID string) (*models.Applet, error)
	Load(ctx context.Context, appletID string) (*models.AppletTree, error)
	Save(ctx context.Context, next, prev *models.AppletTree) error
	Delete(ctx context.Context, appletID string) error
	Purge(ctx context.Context, appletID string) error
}

type appletHistoryStore interface {
	PutTree(ctx context.Context, tree *models.AppletHistoryTree) error
	GetTree(ctx context.Context, idVersion string) (*models.AppletHistoryTree, error)
	ListVersions(ctx context.Context, appletID string) ([]models.AppletVersion, error)
}

type appletAccessStore interface {
	Grant(ctx context.Context, access *models.UserAppletAccess) error
	RolesFor(ctx context.Context, userID, appletID string) ([]models.AppletRole, error)
}

// AppletTx exposes the stores bound to one default-database transaction.
type AppletTx interface {
	Tree() appletTreeStore
	History() appletHistoryStore
	Access() appletAccessStore
	OnCommit(fn func())
}

// AppletTxRunner runs fn in a transaction that commits when fn returns nil.
type AppletTxRunner interface {
	InTx(ctx context.Context, fn func(tx AppletTx) error) error
}

type eventPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{})
}

type snapshotInvalidator interface {
	Invalidate(ctx context.Context, appletID string) error
}

type appletMetrics interface {
	RecordAppletVersion(bump string)
}

// SQLAppletTxRunner binds the content, history and access repositories to one sqlx transaction.
type SQLAppletTxRunner struct {
	db      *sqlx.DB
	tree    *repository.TreeRepository
	history *repository.HistoryRepository
	access  *repository.AccessRepository
}

// NewSQLAppletTxRunner constructs the runner.
func NewSQLAppletTxRunner(db *sqlx.DB, tree *repository.TreeRepository, history *repository.HistoryRepository, access *repository.AccessRepository) *SQLAppletTxRunner {
	return &SQLAppletTxRunner{db: db, tree: tree, history: history, access: access}
}

// InTx implements AppletTxRunner.
func (r *SQLAppletTxRunner) InTx(ctx context.Context, fn func(tx AppletTx) error) error {
	err := database.RunInTx(ctx, r.db, func(tx *database.Tx) error {
		return fn(&sqlAppletTx{
			tx:      tx,
			tree:    r.tree.WithTx(tx.Tx),
			history: r.history.WithTx(tx.Tx),
			access:  r.access.WithTx(tx.Tx),
		})
	})
	return repository.Translate(err, "applet")
}

type sqlAppletTx struct {
	tx      *database.Tx
	tree    *repository.TreeRepository
	history *repository.HistoryRepository
	access  *repository.AccessRepository
}

func (t *sqlAppletTx) Tree() appletTreeStore       { return t.tree }
func (t *sqlAppletTx) History() appletHistoryStore { return t.history }
func (t *sqlAppletTx) Access() appletAccessStore   { return t.access }
func (t *sqlAppletTx) OnCommit(fn func())          { t.tx.OnCommit(fn) }

var (
	editRoles   = []models.AppletRole{models.RoleOwner, models.RoleManager, models.RoleEditor}
	ownerRoles  = []models.AppletRole{models.RoleOwner}
	readerRoles = []models.AppletRole{
		models.RoleOwner, models.RoleManager, models.RoleCoordinator,
		models.RoleEditor, models.RoleReviewer, models.RoleRespondent,
	}
)

// AppletService validates, versions and persists applet edits.
type AppletService struct {
	tree      appletTreeStore
	history   appletHistoryStore
	access    appletAccessStore
	txRunner  AppletTxRunner
	validator *AppletValidator
	planner   *VersionPlanner
	bus       eventPublisher
	metrics   appletMetrics
	snapshots snapshotInvalidator
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// AppletServiceOption customises the service.
type AppletServiceOption func(*AppletService)

// WithAppletPublisher sets the bus receiving applet-changed events.
func WithAppletPublisher(bus eventPublisher) AppletServiceOption {
	return func(s *AppletService) {
		s.bus = bus
	}
}

// WithAppletMetrics records version bumps.
func WithAppletMetrics(metrics appletMetrics) AppletServiceOption {
	return func(s *AppletService) {
		s.metrics = metrics
	}
}

// WithSnapshotInvalidator drops cached history snapshots when an applet is purged.
func WithSnapshotInvalidator(snapshots snapshotInvalidator) AppletServiceOption {
	return func(s *AppletService) {
		s.snapshots = snapshots
	}
}

// WithAppletClock overrides the timestamp source.
func WithAppletClock(now func() time.Time) AppletServiceOption {
	return func(s *AppletService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAppletIDGenerator overrides id generation for new entities.
func WithAppletIDGenerator(gen func() string) AppletServiceOption {
	return func(s *AppletService) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewAppletService constructs the applet service.
func NewAppletService(tree appletTreeStore, history appletHistoryStore, access appletAccessStore, txRunner AppletTxRunner, validate *validator.Validate, logger *zap.Logger, opts ...AppletServiceOption) *AppletService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AppletService{
		tree:      tree,
		history:   history,
		access:    access,
		txRunner:  txRunner,
		validator: NewAppletValidator(validate),
		planner:   NewVersionPlanner(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Create validates the payload, stores the applet at version 1.0.0 and grants the caller ownership.
func (s *AppletService) Create(ctx context.Context, principal models.Principal, payload dto.AppletPayload) (*dto.AppletResult, error) {
	if err := s.validator.Validate(&payload); err != nil {
		return nil, err
	}
	next, err := s.buildTree(&payload, nil, principal)
	if err != nil {
		return nil, err
	}
	plan, err := s.planner.Plan(nil, next)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to plan applet version")
	}
	next.Version = plan.Version

	err = s.txRunner.InTx(ctx, func(tx AppletTx) error {
		if err := tx.Tree().Save(ctx, next, nil); err != nil {
			return err
		}
		if err := tx.Access().Grant(ctx, &models.UserAppletAccess{
			ID:        s.newID(),
			UserID:    principal.UserID,
			AppletID:  next.ID,
			OwnerID:   principal.UserID,
			InvitorID: principal.UserID,
			Role:      models.RoleOwner,
			CreatedAt: s.now(),
		}); err != nil {
			return err
		}
		if err := tx.History().PutTree(ctx, snapshotOf(next, principal.UserID)); err != nil {
			return err
		}
		tx.OnCommit(func() { s.announce(ctx, principal, plan, next.ID) })
		return nil
	})
	if err != nil {
		return nil, persistError(err, "failed to create applet")
	}
	s.logger.Info("applet created", zap.String("applet_id", next.ID), zap.String("version", next.Version))
	return &dto.AppletResult{AppletTree: next, ChangeLog: plan.ChangeLog}, nil
}

// Update applies a full applet payload on top of the stored tree and writes the next version.
func (s *AppletService) Update(ctx context.Context, principal models.Principal, appletID string, payload dto.AppletPayload) (*dto.AppletResult, error) {
	if err := s.authorize(ctx, principal, appletID, editRoles); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(&payload); err != nil {
		return nil, err
	}

	var (
		result *dto.AppletResult
		plan   VersionPlan
	)
	err := s.txRunner.InTx(ctx, func(tx AppletTx) error {
		if _, err := tx.Tree().Lock(ctx, appletID); err != nil {
			return err
		}
		prev, err := tx.Tree().Load(ctx, appletID)
		if err != nil {
			return err
		}
		next, err := s.buildTree(&payload, prev, principal)
		if err != nil {
			return err
		}
		plan, err = s.planner.Plan(prev, next)
		if err != nil {
			return appErrors.Internal(err, "failed to plan applet version")
		}
		next.Version = plan.Version

		if err := tx.Tree().Save(ctx, next, prev); err != nil {
			return err
		}
		if err := tx.History().PutTree(ctx, snapshotOf(next, principal.UserID)); err != nil {
			return err
		}
		tx.OnCommit(func() { s.announce(ctx, principal, plan, appletID) })
		result = &dto.AppletResult{AppletTree: next, ChangeLog: plan.ChangeLog}
		return nil
	})
	if err != nil {
		return nil, persistError(err, "failed to update applet")
	}
	s.logger.Info("applet updated",
		zap.String("applet_id", appletID),
		zap.String("version", plan.Version),
		zap.String("bump", plan.Bump.String()),
	)
	return result, nil
}

// Get returns the live applet tree.
func (s *AppletService) Get(ctx context.Context, principal models.Principal, appletID string) (*models.AppletTree, error) {
	if err := s.authorize(ctx, principal, appletID, readerRoles); err != nil {
		return nil, err
	}
	tree, err := s.tree.Load(ctx, appletID)
	if err != nil {
		return nil, persistError(err, "failed to load applet")
	}
	return tree, nil
}

// GetVersion returns the applet snapshot at version.
func (s *AppletService) GetVersion(ctx context.Context, principal models.Principal, appletID, version string) (*models.AppletHistoryTree, error) {
	if _, err := versionkey.ParseVersion(version); err != nil {
		return nil, appErrors.WithPath(appErrors.ErrValidation, "version must be a dotted integer triple", "version")
	}
	if err := s.authorize(ctx, principal, appletID, readerRoles); err != nil {
		return nil, err
	}
	tree, err := s.history.GetTree(ctx, versionkey.Make(appletID, version))
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "applet version not found")
		}
		return nil, persistError(err, "failed to load applet version")
	}
	return tree, nil
}

// ListVersions returns every stored version of the applet in ascending order.
func (s *AppletService) ListVersions(ctx context.Context, principal models.Principal, appletID string) ([]models.AppletVersion, error) {
	if err := s.authorize(ctx, principal, appletID, readerRoles); err != nil {
		return nil, err
	}
	versions, err := s.history.ListVersions(ctx, appletID)
	if err != nil {
		return nil, persistError(err, "failed to list applet versions")
	}
	return versions, nil
}

// Delete soft-deletes the applet and its live descendants; history is kept.
func (s *AppletService) Delete(ctx context.Context, principal models.Principal, appletID string) error {
	if err := s.authorize(ctx, principal, appletID, ownerRoles); err != nil {
		return err
	}
	if err := s.tree.Delete(ctx, appletID); err != nil {
		return persistError(err, "failed to delete applet")
	}
	s.logger.Info("applet deleted", zap.String("applet_id", appletID), zap.String("user_id", principal.UserID))
	return nil
}

// Purge physically removes an applet with its history. Administrative use only.
func (s *AppletService) Purge(ctx context.Context, appletID string) error {
	if err := s.tree.Purge(ctx, appletID); err != nil {
		return persistError(err, "failed to purge applet")
	}
	if s.snapshots != nil {
		_ = s.snapshots.Invalidate(ctx, appletID)
	}
	s.logger.Warn("applet purged", zap.String("applet_id", appletID))
	return nil
}

func (s *AppletService) authorize(ctx context.Context, principal models.Principal, appletID string, allowed []models.AppletRole) error {
	roles, err := s.access.RolesFor(ctx, principal.UserID, appletID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve applet roles")
	}
	if hasAnyRole(roles, allowed) {
		return nil
	}
	if len(roles) == 0 {
		if _, err := s.tree.Load(ctx, appletID); errors.Is(err, appErrors.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "applet not found")
		}
	}
	return appErrors.Clone(appErrors.ErrAccessDenied, "insufficient role on applet")
}

func (s *AppletService) announce(ctx context.Context, principal models.Principal, plan VersionPlan, appletID string) {
	if s.metrics != nil {
		s.metrics.RecordAppletVersion(plan.Bump.String())
	}
	if s.bus == nil {
		return
	}
	changeLog := plan.ChangeLog
	if changeLog == nil {
		changeLog = []string{}
	}
	s.bus.Publish(context.WithoutCancel(ctx), models.TopicAppletChanged, models.AppletChangedEvent{
		AppletID:        appletID,
		Version:         plan.Version,
		PreviousVersion: plan.Previous,
		Bump:            plan.Bump.String(),
		UserID:          principal.UserID,
		ChangeLog:       changeLog,
	})
}

// persistError passes typed errors through and wraps anything else as Internal.
func persistError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// buildTree turns a validated payload into the next tree. Entities carrying an id must exist in prev;
// entities without one are matched by activity key, item name and flow name before new ids are assigned.
func (s *AppletService) buildTree(payload *dto.AppletPayload, prev *models.AppletTree, principal models.Principal) (*models.AppletTree, error) {
	now := s.now()
	if prev == nil {
		prev = &models.AppletTree{}
	}
	details := &detailCollector{}

	next := &models.AppletTree{Applet: prev.Applet}
	if next.ID == "" {
		next.ID = s.newID()
		next.CreatorID = principal.UserID
	}
	next.DisplayName = payload.DisplayName
	next.Description = payload.Description
	next.About = payload.About
	next.Image = payload.Image
	next.Watermark = payload.Watermark
	next.RetentionPeriod = payload.RetentionPeriod
	next.RetentionType = payload.RetentionType
	switch {
	case payload.Encryption == nil:
	case prev.Encryption == nil:
		next.Encryption = payload.Encryption
	case !prev.Encryption.Equal(payload.Encryption):
		return nil, appErrors.WithPath(appErrors.ErrConflict, "applet encryption cannot be changed once set", "encryption")
	}
	next.Touch(now)

	usedActivities := map[string]bool{}
	idByKey := map[string]string{}
	for i, ap := range payload.Activities {
		path := []string{"activities", strconv.Itoa(i)}
		var old *models.ActivityNode
		switch {
		case ap.ID != nil:
			old = prev.ActivityByID(*ap.ID)
			if old == nil {
				details.add("unknown activity id", append(path, "id")...)
				continue
			}
			if old.Key != ap.Key {
				details.add("activity key cannot be changed", append(path, "key")...)
				continue
			}
		default:
			old = activityByKey(prev, ap.Key)
		}
		node := models.ActivityNode{}
		if old != nil {
			if usedActivities[old.ID] {
				details.add("activity referenced twice", append(path, "id")...)
				continue
			}
			usedActivities[old.ID] = true
			node.Activity = old.Activity
		} else {
			node.ID = s.newID()
			node.Key = ap.Key
		}
		node.AppletID = next.ID
		node.Name = ap.Name
		node.Description = ap.Description
		node.SplashScreen = ap.SplashScreen
		node.Image = ap.Image
		node.ShowAllAtOnce = ap.ShowAllAtOnce
		node.IsSkippable = ap.IsSkippable
		node.IsReviewable = ap.IsReviewable
		node.ResponseIsEditable = ap.ResponseIsEditable
		node.IsHidden = ap.IsHidden
		node.ScoresAndReports = ap.ScoresAndReports
		node.SubscaleSetting = ap.SubscaleSetting
		node.Order = i + 1
		node.Touch(now)
		idByKey[ap.Key] = node.ID

		node.Items = make([]models.ActivityItem, 0, len(ap.Items))
		usedItems := map[string]bool{}
		for j, ip := range ap.Items {
			itemPath := append(clonePath(path), "items", strconv.Itoa(j))
			var prior *models.ActivityItem
			if old != nil {
				if ip.ID != nil {
					prior = findItem(old.Items, *ip.ID)
				} else {
					prior = itemByName(old.Items, ip.Name)
				}
			}
			if ip.ID != nil && prior == nil {
				if itemElsewhere(prev, *ip.ID) {
					details.add("item cannot move between activities", append(itemPath, "id")...)
				} else {
					details.add("unknown item id", append(itemPath, "id")...)
				}
				continue
			}
			item := models.ActivityItem{}
			if prior != nil {
				if usedItems[prior.ID] {
					details.add("item referenced twice", append(itemPath, "id")...)
					continue
				}
				usedItems[prior.ID] = true
				item = *prior
			} else {
				item.ID = s.newID()
			}
			item.ActivityID = node.ID
			item.Name = ip.Name
			item.Question = ip.Question
			item.ResponseType = ip.ResponseType
			item.ResponseValues = models.JSONB(ip.ResponseValues)
			item.Config = models.JSONB(ip.Config)
			item.ConditionalLogic = ip.ConditionalLogic
			item.IsHidden = ip.IsHidden
			item.AllowEdit = ip.AllowEdit
			item.Order = j + 1
			item.Touch(now)
			node.Items = append(node.Items, item)
		}
		next.Activities = append(next.Activities, node)
	}

	usedFlows := map[string]bool{}
	for i, fp := range payload.Flows {
		path := []string{"activityFlows", strconv.Itoa(i)}
		var old *models.FlowNode
		if fp.ID != nil {
			old = prev.FlowByID(*fp.ID)
			if old == nil {
				details.add("unknown activity flow id", append(path, "id")...)
				continue
			}
		} else {
			old = flowByName(prev, fp.Name)
		}
		node := models.FlowNode{}
		if old != nil {
			if usedFlows[old.ID] {
				details.add("activity flow referenced twice", append(path, "id")...)
				continue
			}
			usedFlows[old.ID] = true
			node.Flow = old.Flow
		} else {
			node.ID = s.newID()
		}
		node.AppletID = next.ID
		node.Name = fp.Name
		node.Description = fp.Description
		node.IsSingleReport = fp.IsSingleReport
		node.HideBadge = fp.HideBadge
		node.IsHidden = fp.IsHidden
		node.Order = i + 1
		node.Touch(now)

		node.Items = make([]models.FlowItem, 0, len(fp.Items))
		usedSteps := map[string]bool{}
		for j, sp := range fp.Items {
			stepPath := append(clonePath(path), "items", strconv.Itoa(j))
			activityID, ok := idByKey[sp.ActivityKey]
			if !ok {
				details.add(fmt.Sprintf("activity key %s does not resolve", sp.ActivityKey), append(stepPath, "activityKey")...)
				continue
			}
			var prior *models.FlowItem
			if old != nil {
				if sp.ID != nil {
					prior = findFlowStep(old.Items, *sp.ID)
					if prior == nil {
						details.add("unknown activity flow item id", append(stepPath, "id")...)
						continue
					}
				} else {
					prior = stepForActivity(old.Items, activityID, usedSteps)
				}
			} else if sp.ID != nil {
				details.add("unknown activity flow item id", append(stepPath, "id")...)
				continue
			}
			step := models.FlowItem{}
			if prior != nil {
				if usedSteps[prior.ID] {
					details.add("activity flow item referenced twice", append(stepPath, "id")...)
					continue
				}
				usedSteps[prior.ID] = true
				step = *prior
			} else {
				step.ID = s.newID()
			}
			step.ActivityFlowID = node.ID
			step.ActivityID = activityID
			step.Order = j + 1
			step.Touch(now)
			node.Items = append(node.Items, step)
		}
		next.Flows = append(next.Flows, node)
	}

	if err := details.err(); err != nil {
		return nil, err
	}
	if next.Activities == nil {
		next.Activities = []models.ActivityNode{}
	}
	if next.Flows == nil {
		next.Flows = []models.FlowNode{}
	}
	return next, nil
}

// snapshotOf copies tree into history rows keyed by id_version at tree.Version.
func snapshotOf(tree *models.AppletTree, userID string) *models.AppletHistoryTree {
	version := tree.Version
	appletKey := versionkey.Make(tree.ID, version)
	snapshot := &models.AppletHistoryTree{
		AppletHistory: models.AppletHistory{IDVersion: appletKey, UserID: userID, Applet: tree.Applet},
		Activities:    make([]models.ActivityHistoryNode, 0, len(tree.Activities)),
		Flows:         make([]models.FlowHistoryNode, 0, len(tree.Flows)),
	}
	for _, activity := range tree.Activities {
		node := models.ActivityHistoryNode{
			ActivityHistory: models.ActivityHistory{IDVersion: versionkey.Make(activity.ID, version), Activity: activity.Activity},
			Items:           make([]models.ActivityItemHistory, 0, len(activity.Items)),
		}
		node.AppletID = appletKey
		for _, item := range activity.Items {
			row := models.ActivityItemHistory{IDVersion: versionkey.Make(item.ID, version), ActivityItem: item}
			row.ActivityID = node.IDVersion
			node.Items = append(node.Items, row)
		}
		snapshot.Activities = append(snapshot.Activities, node)
	}
	for _, flow := range tree.Flows {
		node := models.FlowHistoryNode{
			FlowHistory: models.FlowHistory{IDVersion: versionkey.Make(flow.ID, version), Flow: flow.Flow},
			Items:       make([]models.FlowItemHistory, 0, len(flow.Items)),
		}
		node.AppletID = appletKey
		for _, step := range flow.Items {
			row := models.FlowItemHistory{IDVersion: versionkey.Make(step.ID, version), FlowItem: step}
			row.ActivityFlowID = node.IDVersion
			row.ActivityID = versionkey.Make(step.ActivityID, version)
			node.Items = append(node.Items, row)
		}
		snapshot.Flows = append(snapshot.Flows, node)
	}
	return snapshot
}

func hasAnyRole(roles, allowed []models.AppletRole) bool {
	for _, role := range roles {
		for _, candidate := range allowed {
			if role == candidate {
				return true
			}
		}
	}
	return false
}

func activityByKey(tree *models.AppletTree, key string) *models.ActivityNode {
	for i := range tree.Activities {
		if tree.Activities[i].Key == key {
			return &tree.Activities[i]
		}
	}
	return nil
}

func flowByName(tree *models.AppletTree, name string) *models.FlowNode {
	for i := range tree.Flows {
		if tree.Flows[i].Name == name {
			return &tree.Flows[i]
		}
	}
	return nil
}

func itemByName(items []models.ActivityItem, name string) *models.ActivityItem {
	for i := range items {
		if items[i].Name == name {
			return &items[i]
		}
	}
	return nil
}

func itemElsewhere(tree *models.AppletTree, itemID string) bool {
	for _, activity := range tree.Activities {
		if findItem(activity.Items, itemID) != nil {
			return true
		}
	}
	return false
}

func stepForActivity(steps []models.FlowItem, activityID string, used map[string]bool) *models.FlowItem {
	for i := range steps {
		if steps[i].ActivityID == activityID && !used[steps[i].ID] {
			return &steps[i]
		}
	}
	return nil
}
