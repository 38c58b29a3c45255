package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/applets-core/internal/dto"
	"github.com/noah-isme/applets-core/internal/models"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, hashed string) error
}

type passwordReencryptor interface {
	Acquire(ctx context.Context, userID string) (*ReencryptionLease, error)
	Schedule(ctx context.Context, lease *ReencryptionLease, job ReencryptionJob) error
}

// UserService handles the caller's own account.
type UserService struct {
	repo      userRepository
	reencrypt passwordReencryptor
	validator *validator.Validate
	logger    *zap.Logger
	cost      int
}

// UserServiceOption customises the service.
type UserServiceOption func(*UserService)

// WithPasswordCost overrides the bcrypt cost of new hashes.
func WithPasswordCost(cost int) UserServiceOption {
	return func(s *UserService) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, reencrypt passwordReencryptor, validate *validator.Validate, logger *zap.Logger, opts ...UserServiceOption) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	svc := &UserService{repo: repo, reencrypt: reencrypt, validator: validate, logger: logger, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Get returns the caller's account.
func (s *UserService) Get(ctx context.Context, principal models.Principal) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, principal.UserID)
	if err != nil {
		return nil, persistError(err, "failed to load user")
	}
	return user, nil
}

// ChangePassword verifies the old password, stores the new hash and schedules the reencryption
// of every answer the user sealed under the old one.
func (s *UserService) ChangePassword(ctx context.Context, principal models.Principal, req dto.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		c := &detailCollector{}
		c.addValidator(err, nil)
		return c.err()
	}

	user, err := s.repo.FindByID(ctx, principal.UserID)
	if err != nil {
		return persistError(err, "failed to load user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.OldPassword)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return appErrors.WithPath(appErrors.ErrValidation, "old password is incorrect", "oldPassword")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify password")
	}

	lease, err := s.reencrypt.Acquire(ctx, user.ID)
	if err != nil {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cost)
	if err != nil {
		lease.Release()
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, string(hashed)); err != nil {
		lease.Release()
		return persistError(err, "failed to update password")
	}

	job := NewReencryptionJob(user.ID, user.Email, req.OldPassword, req.NewPassword)
	if err := s.reencrypt.Schedule(context.WithoutCancel(ctx), lease, job); err != nil {
		s.logger.Error("password changed but answer reencryption was not scheduled", zap.String("user_id", user.ID), zap.Error(err))
		return err
	}
	s.logger.Info("password changed", zap.String("user_id", user.ID))
	return nil
}
