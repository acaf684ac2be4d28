package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/repository"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

// usersPerPage is the fixed page size for listing accounts.
const usersPerPage = 30

// LoginLimiter throttles repeated failed login attempts.
type LoginLimiter interface {
	Exceeded(ctx context.Context, email string) (bool, error)
	RecordFailure(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

// UserService coordinates registration, login and account management flows.
type UserService struct {
	users      repository.UserRepository
	hasher     auth.PasswordHasher
	dispatcher events.Dispatcher
	limiter    LoginLimiter
	adminEmail string
}

// UserDependencies encapsulates collaborator requirements for the service.
type UserDependencies struct {
	UserRepo   repository.UserRepository
	Hasher     auth.PasswordHasher
	Dispatcher events.Dispatcher
	Limiter    LoginLimiter
}

// NewUserService builds the service.
func NewUserService(cfg config.Config, deps UserDependencies) *UserService {
	hasher := deps.Hasher
	if hasher == nil {
		hasher = auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = noopLimiter{}
	}
	return &UserService{
		users:      deps.UserRepo,
		hasher:     hasher,
		dispatcher: deps.Dispatcher,
		limiter:    limiter,
		adminEmail: cfg.Auth.AdminEmail,
	}
}

// noopLimiter stands in when no Redis-backed limiter is configured.
type noopLimiter struct{}

func (noopLimiter) Exceeded(context.Context, string) (bool, error) { return false, nil }
func (noopLimiter) RecordFailure(context.Context, string) error    { return nil }
func (noopLimiter) Reset(context.Context, string) error            { return nil }

// Register creates a new account. The role is assigned here and never taken
// from the caller: only the configured bootstrap admin email yields ADMIN.
// The repository's uniqueness constraint remains the real duplicate guard;
// the GetByEmail probe is an early exit.
func (s *UserService) Register(ctx context.Context, fullname, email, password string) (*domain.User, error) {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	user := &domain.User{
		Fullname:     fullname,
		Email:        email,
		PasswordHash: hash,
		Role:         s.roleForEmail(email),
		Status:       domain.StatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.NewConflict("email already registered", nil)
		}
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventUserRegistered,
		UserID:  user.ID,
		Payload: events.UserRegisteredPayload{Email: user.Email, Role: user.Role},
	})
	return sanitize(user), nil
}

// Login verifies credentials. The blocked check runs before password
// comparison so a blocked account never learns whether its password matched.
func (s *UserService) Login(ctx context.Context, email, password string) (*domain.User, error) {
	if exceeded, err := s.limiter.Exceeded(ctx, email); err == nil && exceeded {
		return nil, apperrors.NewRateLimited("too many login attempts")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, apperrors.MapError(err)
	}

	if user.IsBlocked() {
		return nil, apperrors.NewForbidden("account blocked")
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		_ = s.limiter.RecordFailure(ctx, email)
		return nil, apperrors.NewBadRequest("invalid credentials")
	}

	_ = s.limiter.Reset(ctx, email)
	return sanitize(user), nil
}

// GetUserByID returns an account visible to the caller.
func (s *UserService) GetUserByID(ctx context.Context, principal *domain.User, targetID int64) (*domain.User, error) {
	if err := auth.RequireSelfOrAdmin(principal, targetID); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, apperrors.MapError(err)
	}
	return sanitize(user), nil
}

// ListUsers returns one page of accounts, admin only. Pages are zero-based;
// a negative page collapses to the first one.
func (s *UserService) ListUsers(ctx context.Context, principal *domain.User, page int) ([]domain.User, error) {
	if err := auth.RequireAdmin(principal); err != nil {
		return nil, err
	}

	if page < 0 {
		page = 0
	}
	users, err := s.users.List(ctx, page*usersPerPage, usersPerPage)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// BlockUser soft-disables the target account.
func (s *UserService) BlockUser(ctx context.Context, principal *domain.User, targetID int64) error {
	if err := auth.RequireSelfOrAdmin(principal, targetID); err != nil {
		return err
	}

	blocked := domain.StatusBlocked
	if _, err := s.users.Update(ctx, targetID, repository.UserPatch{Status: &blocked}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("user", nil)
		}
		return apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventUserBlocked,
		UserID:  targetID,
		Actor:   actorFor(principal),
		Payload: events.UserBlockedPayload{SelfBlocked: principal != nil && principal.ID == targetID},
	})
	return nil
}

// ChangeRole assigns a new role to the target account, admin only. Role
// validation happens before any repository access so a bad value fails the
// same way whether or not the target exists.
func (s *UserService) ChangeRole(ctx context.Context, principal *domain.User, targetID int64, role domain.Role) (*domain.User, error) {
	if err := auth.RequireAdmin(principal); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperrors.NewBadRequest("unknown role")
	}

	user, err := s.users.Update(ctx, targetID, repository.UserPatch{Role: &role})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventUserRoleChanged,
		UserID:  targetID,
		Actor:   actorFor(principal),
		Payload: events.UserRoleChangedPayload{NewRole: role},
	})
	return sanitize(user), nil
}

func (s *UserService) roleForEmail(email string) domain.Role {
	if s.adminEmail != "" && strings.EqualFold(email, s.adminEmail) {
		return domain.RoleAdmin
	}
	return domain.RoleUser
}

func (s *UserService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

// sanitize strips the password hash so it cannot cross the service boundary.
func sanitize(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	clean := *user
	clean.PasswordHash = ""
	return &clean
}

func actorFor(principal *domain.User) events.Actor {
	if principal == nil {
		return events.Actor{}
	}
	return events.Actor{ActorID: principal.ID, Role: principal.Role}
}
