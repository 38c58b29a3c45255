package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/applets-core/internal/dto"
	"github.com/noah-isme/applets-core/internal/models"
	"github.com/noah-isme/applets-core/internal/repository"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
	"github.com/noah-isme/applets-core/pkg/versionkey"
)

type answerStore interface {
	Submit(ctx context.Context, sub *models.Submission) (*models.Answer, bool, error)
	ListCompletions(ctx context.Context, filter models.CompletionFilter) ([]models.Completion, error)
	Delete(ctx context.Context, appletID, answerID string) error
}

type routeResolver interface {
	Resolve(ctx context.Context, appletID string) (*Route, error)
}

type liveAppletReader interface {
	GetByID(ctx context.Context, id string) (*models.Applet, error)
}

type historyTreeReader interface {
	GetTree(ctx context.Context, idVersion string) (*models.AppletHistoryTree, error)
}

type roleReader interface {
	RolesFor(ctx context.Context, userID, appletID string) ([]models.AppletRole, error)
}

type answerMetrics interface {
	RecordAnswerSubmission(created bool)
}

var (
	assessmentRoles = []models.AppletRole{models.RoleOwner, models.RoleManager, models.RoleReviewer}
	answerAdmins    = []models.AppletRole{models.RoleOwner, models.RoleManager}
)

// AnswerService ingests submission groups into the tenant database of the applet.
type AnswerService struct {
	applets   liveAppletReader
	history   historyTreeReader
	roles     roleReader
	router    routeResolver
	stores    func(db *sqlx.DB) answerStore
	validator *validator.Validate
	bus       eventPublisher
	metrics   answerMetrics
	logger    *zap.Logger
}

// AnswerServiceOption customises the service.
type AnswerServiceOption func(*AnswerService)

// WithAnswerPublisher sets the bus receiving answer-submitted events.
func WithAnswerPublisher(bus eventPublisher) AnswerServiceOption {
	return func(s *AnswerService) {
		s.bus = bus
	}
}

// WithAnswerMetrics records submissions.
func WithAnswerMetrics(metrics answerMetrics) AnswerServiceOption {
	return func(s *AnswerService) {
		s.metrics = metrics
	}
}

// WithAnswerStoreFactory overrides how the answer store of a routed database is built.
func WithAnswerStoreFactory(factory func(db *sqlx.DB) answerStore) AnswerServiceOption {
	return func(s *AnswerService) {
		if factory != nil {
			s.stores = factory
		}
	}
}

// NewAnswerService constructs the answer ingestor.
func NewAnswerService(applets liveAppletReader, history historyTreeReader, roles roleReader, router routeResolver, validate *validator.Validate, logger *zap.Logger, opts ...AnswerServiceOption) *AnswerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	svc := &AnswerService{
		applets:   applets,
		history:   history,
		roles:     roles,
		router:    router,
		stores:    func(db *sqlx.DB) answerStore { return repository.NewAnswerRepository(db) },
		validator: validate,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Submit stores one submission group. A repeated submit id with the same applet version and
// respondent returns the stored row with Created=false.
func (s *AnswerService) Submit(ctx context.Context, principal models.Principal, req dto.SubmitAnswersRequest) (*dto.SubmitAnswersResult, error) {
	if err := s.validator.Struct(req); err != nil {
		c := &detailCollector{}
		c.addValidator(err, nil)
		return nil, c.err()
	}
	if _, err := versionkey.ParseVersion(req.Version); err != nil {
		return nil, appErrors.WithPath(appErrors.ErrValidation, "version must be a dotted integer triple", "version")
	}
	if err := checkGroup(principal, req); err != nil {
		return nil, err
	}

	roles, err := s.roles.RolesFor(ctx, principal.UserID, req.AppletID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve applet roles")
	}
	if len(roles) == 0 {
		return nil, appErrors.Clone(appErrors.ErrAccessDenied, "no access to applet")
	}

	if _, err := s.applets.GetByID(ctx, req.AppletID); err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, appErrors.WithPath(appErrors.ErrNotFound, "applet not found", "appletId")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load applet")
	}

	appletHistoryID := versionkey.Make(req.AppletID, req.Version)
	tree, err := s.history.GetTree(ctx, appletHistoryID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, appErrors.WithPath(appErrors.ErrUnknownAppletVersion, "", "version")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load applet version")
	}

	var flowHistoryID *string
	if req.FlowID != nil {
		key := versionkey.Make(*req.FlowID, req.Version)
		if tree.Flow(key) == nil {
			return nil, appErrors.WithPath(appErrors.ErrActivityNotInAppletVersion, "activity flow does not belong to applet version", "flowId")
		}
		flowHistoryID = &key
	}

	items := make([]models.AnswerItem, 0, len(req.Answers))
	activityIDs := make([]string, 0, len(req.Answers))
	for i, entry := range req.Answers {
		key := versionkey.Make(entry.ActivityID, req.Version)
		activity := tree.Activity(key)
		if activity == nil {
			return nil, appErrors.WithPath(appErrors.ErrActivityNotInAppletVersion, "", "answers", strconv.Itoa(i), "activityId")
		}
		if entry.IsAssessment {
			if !activity.IsReviewable {
				return nil, appErrors.WithPath(appErrors.ErrValidation, "assessments can only target the reviewable activity", "answers", strconv.Itoa(i), "isAssessment")
			}
			if !hasAnyRole(roles, assessmentRoles) {
				return nil, appErrors.Clone(appErrors.ErrAccessDenied, "reviewer role required for assessments")
			}
		}
		items = append(items, models.AnswerItem{
			ID:                uuid.NewString(),
			RespondentID:      principal.UserID,
			AppletHistoryID:   appletHistoryID,
			ActivityHistoryID: key,
			Answer:            entry.Answer,
			UserPublicKey:     entry.UserPublicKey,
			ItemIDs:           pq.StringArray(entry.ItemIDs),
			Identifier:        entry.Identifier,
			ScheduledTime:     entry.ScheduledTime,
			StartTime:         entry.StartTime.UTC(),
			EndTime:           entry.EndTime.UTC(),
			Events:            models.JSONB(entry.Events),
			IsAssessment:      entry.IsAssessment,
			ReviewedAnswerID:  entry.ReviewedAnswerID,
		})
		activityIDs = append(activityIDs, key)
	}

	route, err := s.router.Resolve(ctx, req.AppletID)
	if err != nil {
		return nil, err
	}

	submission := &models.Submission{
		Answer: models.Answer{
			ID:                req.SubmitID,
			AppletID:          req.AppletID,
			Version:           req.Version,
			AppletHistoryID:   appletHistoryID,
			ActivityHistoryID: activityIDs[0],
			FlowHistoryID:     flowHistoryID,
			RespondentID:      principal.UserID,
			SourceSubjectID:   req.SourceSubjectID,
			TargetSubjectID:   req.TargetSubjectID,
			InputSubjectID:    req.InputSubjectID,
			ClientMeta:        req.Client,
		},
		Items: items,
	}
	stored, created, err := s.stores(route.DB).Submit(ctx, submission)
	if err != nil {
		return nil, tenantError(err, "failed to store answers")
	}
	if !created && (stored.AppletHistoryID != appletHistoryID || stored.RespondentID != principal.UserID) {
		return nil, appErrors.WithPath(appErrors.ErrSubmitIDConflict, "", "submitId")
	}

	if s.metrics != nil {
		s.metrics.RecordAnswerSubmission(created)
	}
	if created {
		s.logger.Info("answers submitted",
			zap.String("submit_id", req.SubmitID),
			zap.String("applet_history_id", appletHistoryID),
			zap.Int("activities", len(items)),
			zap.Bool("arbitrary", route.Arbitrary),
		)
		if s.bus != nil {
			s.bus.Publish(context.WithoutCancel(ctx), models.TopicAnswerSubmitted, models.AnswerSubmittedEvent{
				SubmitID:        req.SubmitID,
				AppletID:        req.AppletID,
				AppletHistoryID: appletHistoryID,
				RespondentID:    principal.UserID,
				ActivityIDs:     activityIDs,
				Arbitrary:       route.Arbitrary,
			})
		}
	}
	return &dto.SubmitAnswersResult{Answer: stored, Created: created}, nil
}

// Completions lists the caller's completed activities of the applet since query.FromDate.
func (s *AnswerService) Completions(ctx context.Context, principal models.Principal, appletID string, query dto.CompletionsQuery) ([]models.Completion, error) {
	if query.Version != nil {
		if _, err := versionkey.ParseVersion(*query.Version); err != nil {
			return nil, appErrors.WithPath(appErrors.ErrValidation, "version must be a dotted integer triple", "version")
		}
	}
	roles, err := s.roles.RolesFor(ctx, principal.UserID, appletID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve applet roles")
	}
	if len(roles) == 0 {
		return nil, appErrors.Clone(appErrors.ErrAccessDenied, "no access to applet")
	}
	route, err := s.router.Resolve(ctx, appletID)
	if err != nil {
		return nil, err
	}
	completions, err := s.stores(route.DB).ListCompletions(ctx, models.CompletionFilter{
		AppletID:     appletID,
		RespondentID: principal.UserID,
		FromDate:     query.FromDate,
		Version:      query.Version,
	})
	if err != nil {
		return nil, tenantError(err, "failed to list completions")
	}
	if completions == nil {
		completions = []models.Completion{}
	}
	return completions, nil
}

// Delete removes one submission group and its items from the tenant database.
func (s *AnswerService) Delete(ctx context.Context, principal models.Principal, appletID, answerID string) error {
	roles, err := s.roles.RolesFor(ctx, principal.UserID, appletID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve applet roles")
	}
	if !hasAnyRole(roles, answerAdmins) {
		return appErrors.Clone(appErrors.ErrAccessDenied, "owner or manager role required")
	}
	route, err := s.router.Resolve(ctx, appletID)
	if err != nil {
		return err
	}
	if err := s.stores(route.DB).Delete(ctx, appletID, answerID); err != nil {
		return tenantError(err, "failed to delete answer")
	}
	s.logger.Info("answer deleted", zap.String("applet_id", appletID), zap.String("answer_id", answerID), zap.String("user_id", principal.UserID))
	return nil
}

// checkGroup enforces that every entry repeats the group's identity and that activities are distinct.
func checkGroup(principal models.Principal, req dto.SubmitAnswersRequest) error {
	seen := make(map[string]int, len(req.Answers))
	for i, entry := range req.Answers {
		path := []string{"answers", strconv.Itoa(i)}
		mismatch := func(field, got, want string) error {
			if got == want {
				return nil
			}
			return appErrors.WithPath(appErrors.ErrInconsistentSubmissionGroup, field+" differs within the submission group", append(path, field)...)
		}
		checks := []struct {
			field string
			value *string
			want  string
		}{
			{"submitId", entry.SubmitID, req.SubmitID},
			{"appletId", entry.AppletID, req.AppletID},
			{"version", entry.Version, req.Version},
			{"respondentId", entry.RespondentID, principal.UserID},
		}
		for _, check := range checks {
			if check.value == nil {
				continue
			}
			if err := mismatch(check.field, *check.value, check.want); err != nil {
				return err
			}
		}
		if entry.IsAssessment {
			continue
		}
		if prior, dup := seen[entry.ActivityID]; dup {
			return appErrors.WithPath(appErrors.ErrInconsistentSubmissionGroup,
				"activity already answered by answers["+strconv.Itoa(prior)+"]", append(path, "activityId")...)
		}
		seen[entry.ActivityID] = i
	}
	return nil
}

// tenantError maps tenant database failures into the error taxonomy.
func tenantError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) {
		return appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, "tenant database is unavailable")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
