package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/applets-core/internal/models"
	"github.com/noah-isme/applets-core/internal/repository"
	"github.com/noah-isme/applets-core/pkg/config"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
	"github.com/noah-isme/applets-core/pkg/jobs"
	"github.com/noah-isme/applets-core/pkg/secure"
)

const (
	reencryptionJobType        = "answers.reencrypt"
	defaultReencryptBatchSize  = 25
	defaultReencryptRetries    = 5
	defaultReencryptWorkers    = 2
	defaultReencryptRetryDelay = 200 * time.Millisecond
)

type advisoryLocker interface {
	TryLock(ctx context.Context, name string) (release func(), acquired bool, err error)
}

type respondentAppletLister interface {
	AppletIDsForRespondent(ctx context.Context, userID string) ([]string, error)
}

type appletAuditReader interface {
	GetForAudit(ctx context.Context, id string) (*models.Applet, error)
}

type cipherStore interface {
	NextCipherBatch(ctx context.Context, respondentID, appletID string, after repository.CipherCursor, limit int) ([]models.CipherRow, error)
	UpdateCiphers(ctx context.Context, rows []models.CipherRow) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type reencryptionMetrics interface {
	RecordReencryption(outcome string, rows int)
}

// ReencryptionJob carries the private scalars of one password change. Passwords are not retained.
type ReencryptionJob struct {
	UserID  string
	oldPriv *big.Int
	newPriv *big.Int
}

// NewReencryptionJob derives the user's private scalars under both passwords.
func NewReencryptionJob(userID, email, oldPassword, newPassword string) ReencryptionJob {
	return ReencryptionJob{
		UserID:  userID,
		oldPriv: secure.PrivateKey(userID, email, oldPassword),
		newPriv: secure.PrivateKey(userID, email, newPassword),
	}
}

// ReencryptionLease is the per-user advisory lock held for the duration of one job.
type ReencryptionLease struct {
	userID  string
	once    sync.Once
	release func()
}

// Release frees the lock. Calling it more than once is a no-op.
func (l *ReencryptionLease) Release() {
	if l == nil {
		return
	}
	l.once.Do(l.release)
}

type reencryptionTask struct {
	lease *ReencryptionLease
	job   ReencryptionJob
}

// ReencryptionService reseals a user's stored answers after a password change.
type ReencryptionService struct {
	locker     advisoryLocker
	access     respondentAppletLister
	applets    appletAuditReader
	router     routeResolver
	stores     func(db *sqlx.DB) cipherStore
	cfg        config.ReencryptionConfig
	retryDelay time.Duration
	queue      jobEnqueuer
	bus        eventPublisher
	metrics    reencryptionMetrics
	logger     *zap.Logger
}

// ReencryptionServiceOption customises the worker.
type ReencryptionServiceOption func(*ReencryptionService)

// WithReencryptionQueue runs scheduled jobs on a background queue instead of inline.
func WithReencryptionQueue(queue jobEnqueuer) ReencryptionServiceOption {
	return func(s *ReencryptionService) {
		s.queue = queue
	}
}

// WithReencryptionPublisher sets the bus receiving failure and completion events.
func WithReencryptionPublisher(bus eventPublisher) ReencryptionServiceOption {
	return func(s *ReencryptionService) {
		s.bus = bus
	}
}

// WithReencryptionMetrics records finished applets.
func WithReencryptionMetrics(metrics reencryptionMetrics) ReencryptionServiceOption {
	return func(s *ReencryptionService) {
		s.metrics = metrics
	}
}

// WithReencryptionRetryDelay sets the pause between batch attempts.
func WithReencryptionRetryDelay(delay time.Duration) ReencryptionServiceOption {
	return func(s *ReencryptionService) {
		if delay >= 0 {
			s.retryDelay = delay
		}
	}
}

// WithCipherStoreFactory overrides how the cipher store of a routed database is built.
func WithCipherStoreFactory(factory func(db *sqlx.DB) cipherStore) ReencryptionServiceOption {
	return func(s *ReencryptionService) {
		if factory != nil {
			s.stores = factory
		}
	}
}

// NewReencryptionService constructs the worker.
func NewReencryptionService(locker advisoryLocker, access respondentAppletLister, applets appletAuditReader, router routeResolver, cfg config.ReencryptionConfig, logger *zap.Logger, opts ...ReencryptionServiceOption) *ReencryptionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultReencryptBatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultReencryptRetries
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultReencryptWorkers
	}
	svc := &ReencryptionService{
		locker:     locker,
		access:     access,
		applets:    applets,
		router:     router,
		stores:     func(db *sqlx.DB) cipherStore { return repository.NewAnswerRepository(db) },
		cfg:        cfg,
		retryDelay: defaultReencryptRetryDelay,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Acquire takes the per-user lock. It fails with ErrReencryptionInProgress while another job runs.
func (s *ReencryptionService) Acquire(ctx context.Context, userID string) (*ReencryptionLease, error) {
	release, acquired, err := s.locker.TryLock(ctx, "reencrypt:"+userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock answer reencryption")
	}
	if !acquired {
		return nil, appErrors.Clone(appErrors.ErrReencryptionInProgress, "")
	}
	return &ReencryptionLease{userID: userID, release: release}, nil
}

// Schedule hands the job to the queue, or runs it inline when no queue is attached.
// The lease is released once the job finishes.
func (s *ReencryptionService) Schedule(ctx context.Context, lease *ReencryptionLease, job ReencryptionJob) error {
	task := &reencryptionTask{lease: lease, job: job}
	if s.queue == nil {
		return s.Handle(ctx, jobs.Job{ID: uuid.NewString(), Type: reencryptionJobType, Payload: task})
	}
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: reencryptionJobType, Payload: task}); err != nil {
		lease.Release()
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule answer reencryption")
	}
	return nil
}

// Handle is the queue handler for scheduled jobs. Per-applet failures are reported on the bus,
// so the queue never retries a whole job.
func (s *ReencryptionService) Handle(ctx context.Context, job jobs.Job) error {
	task, ok := job.Payload.(*reencryptionTask)
	if !ok {
		return fmt.Errorf("unexpected reencryption payload %T", job.Payload)
	}
	defer task.lease.Release()

	report, err := s.Run(ctx, task.job)
	if err != nil {
		s.logger.Error("answer reencryption aborted", zap.String("user_id", task.job.UserID), zap.Error(err))
		return nil
	}
	s.logger.Info("answer reencryption finished",
		zap.String("user_id", report.UserID),
		zap.Int("reencrypted", report.Reencrypted),
		zap.Strings("failed_applets", report.FailedApplets),
	)
	return nil
}

// Run reseals every answer item the user sealed, applet by applet, across each applet's routed database.
// Deleted applets and applets the user no longer has access to are included.
func (s *ReencryptionService) Run(ctx context.Context, job ReencryptionJob) (*models.ReencryptionCompletedEvent, error) {
	appletIDs, err := s.access.AppletIDsForRespondent(ctx, job.UserID)
	if err != nil {
		return nil, err
	}

	report := &models.ReencryptionCompletedEvent{UserID: job.UserID, FailedApplets: []string{}}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, appletID := range appletIDs {
		appletID := appletID
		g.Go(func() error {
			rows, err := s.reencryptApplet(ctx, job, appletID)
			mu.Lock()
			defer mu.Unlock()
			report.Reencrypted += rows
			if err == nil {
				s.recordMetric("completed", rows)
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			report.FailedApplets = append(report.FailedApplets, appletID)
			s.recordMetric("failed", rows)
			s.logger.Warn("answer reencryption failed for applet",
				zap.String("user_id", job.UserID),
				zap.String("applet_id", appletID),
				zap.Error(err),
			)
			s.publish(ctx, models.TopicReencryptionAppletFailed, models.ReencryptionFailedEvent{
				UserID:   job.UserID,
				AppletID: appletID,
				Reason:   failureReason(err),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	s.publish(ctx, models.TopicReencryptionCompleted, *report)
	return report, nil
}

func (s *ReencryptionService) reencryptApplet(ctx context.Context, job ReencryptionJob, appletID string) (int, error) {
	applet, err := s.applets.GetForAudit(ctx, appletID)
	if errors.Is(err, appErrors.ErrNotFound) {
		// Purged applets take their keys with them.
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if applet.Encryption == nil {
		return 0, nil
	}
	params := secure.DHParams{Prime: applet.Encryption.Prime, Base: applet.Encryption.Base, PublicKey: applet.Encryption.PublicKey}
	oldKey, err := secure.SharedKey(job.oldPriv, params)
	if err != nil {
		return 0, err
	}
	newKey, err := secure.SharedKey(job.newPriv, params)
	if err != nil {
		return 0, err
	}
	newPublic := secure.PublicKeyBase64(job.newPriv, params)

	route, err := s.router.Resolve(ctx, appletID)
	if err != nil {
		return 0, err
	}
	store := s.stores(route.DB)

	var (
		cursor repository.CipherCursor
		total  int
	)
	for {
		var batch []models.CipherRow
		err := s.withRetry(ctx, appletID, func() error {
			rows, err := store.NextCipherBatch(ctx, job.UserID, appletID, cursor, s.cfg.BatchSize)
			if err != nil {
				return err
			}
			resealed, err := resealRows(rows, oldKey, newKey, newPublic)
			if err != nil {
				return err
			}
			if err := store.UpdateCiphers(ctx, resealed); err != nil {
				return err
			}
			batch = rows
			total += len(resealed)
			return nil
		})
		if err != nil {
			return total, err
		}
		if len(batch) < s.cfg.BatchSize {
			return total, nil
		}
		last := batch[len(batch)-1]
		cursor = repository.CipherCursor{CreatedAt: last.CreatedAt, ID: last.ID}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func (s *ReencryptionService) withRetry(ctx context.Context, appletID string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Debug("retrying reencryption batch", zap.String("applet_id", appletID), zap.Int("attempt", attempt), zap.Error(err))
			timer := time.NewTimer(s.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

// resealRows rewrites each row under the new key. Rows already carrying the new public key
// were finished by an earlier run and are left out.
func resealRows(rows []models.CipherRow, oldKey, newKey []byte, newPublic string) ([]models.CipherRow, error) {
	out := make([]models.CipherRow, 0, len(rows))
	for _, row := range rows {
		if row.UserPublicKey == newPublic {
			continue
		}
		answer, err := secure.Reseal(oldKey, newKey, row.Answer)
		if err != nil {
			return nil, fmt.Errorf("answer item %s: %w", row.ID, err)
		}
		row.Answer = answer
		if row.Identifier != nil && *row.Identifier != "" {
			identifier, err := secure.Reseal(oldKey, newKey, *row.Identifier)
			if err != nil {
				return nil, fmt.Errorf("answer item %s identifier: %w", row.ID, err)
			}
			row.Identifier = &identifier
		}
		row.UserPublicKey = newPublic
		out = append(out, row)
	}
	return out, nil
}

func failureReason(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if errors.Is(err, secure.ErrMalformedCiphertext) {
		return "stored answer could not be decrypted"
	}
	return "reencryption failed"
}

func (s *ReencryptionService) publish(ctx context.Context, topic string, payload interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(context.WithoutCancel(ctx), topic, payload)
}

func (s *ReencryptionService) recordMetric(outcome string, rows int) {
	if s.metrics != nil {
		s.metrics.RecordReencryption(outcome, rows)
	}
}
