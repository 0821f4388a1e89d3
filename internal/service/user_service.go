package service

import (
	"context"
	"fmt"
	"time"

	"github.com/deskly/deskbot/internal/domain"
	"github.com/deskly/deskbot/internal/repository"
	"github.com/deskly/deskbot/pkg/config"
	"github.com/deskly/deskbot/pkg/events"
	"github.com/deskly/deskbot/pkg/logger"
)

type UserService interface {
	// Register creates the sender as a registered user if new. Returns the
	// user and whether it was newly created.
	Register(ctx context.Context, identity, displayName string) (*domain.User, bool, error)

	AddUser(ctx context.Context, actor, identity, displayName string) (*domain.User, error)
	RemoveUser(ctx context.Context, actor, identity string) error
	Promote(ctx context.Context, actor, identity string) error
	Revoke(ctx context.Context, actor, identity string) error
	Blacklist(ctx context.Context, actor, identity string) error
	Unblacklist(ctx context.Context, actor, identity string) error
	ListUsers(ctx context.Context) ([]domain.User, error)
}

type userService struct {
	userRepo repository.UserRepository
	eventBus events.Publisher
	cfg      *config.Config
}

func NewUserService(userRepo repository.UserRepository, eventBus events.Publisher, cfg *config.Config) UserService {
	return &userService{
		userRepo: userRepo,
		eventBus: eventBus,
		cfg:      cfg,
	}
}

func (s *userService) Register(ctx context.Context, identity, displayName string) (*domain.User, bool, error) {
	existing, err := s.userRepo.Get(ctx, identity)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	if displayName == "" {
		displayName = identity
	}
	user := &domain.User{
		Identity:    identity,
		DisplayName: displayName,
		Role:        domain.RoleRegistered,
	}
	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return nil, false, err
	}

	s.publishUserEvent(ctx, events.UserRegistered, identity, displayName, "")

	// Let the superadmin know a new user signed up.
	if admin := s.cfg.Admin.Identity; admin != "" && admin != identity {
		notice := events.NotificationEvent{
			Recipient: admin,
			Text:      fmt.Sprintf("New user registered: %s (%s)", displayName, identity),
		}
		if err := s.eventBus.Publish(ctx, events.NotifySend, notice); err != nil {
			logger.ErrorContext(ctx, "Failed to publish registration notice", "error", err, "identity", identity)
		}
	}

	return user, true, nil
}

func (s *userService) AddUser(ctx context.Context, actor, identity, displayName string) (*domain.User, error) {
	existing, err := s.userRepo.Get(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: user %s already exists", domain.ErrConflict, identity)
	}

	user := &domain.User{
		Identity:    identity,
		DisplayName: displayName,
		Role:        domain.RoleRegistered,
	}
	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return nil, err
	}

	s.publishUserEvent(ctx, events.UserAdded, identity, displayName, actor)
	return user, nil
}

func (s *userService) RemoveUser(ctx context.Context, actor, identity string) error {
	if err := s.guardSuperadmin(identity, "removed"); err != nil {
		return err
	}
	if _, err := s.mustGet(ctx, identity); err != nil {
		return err
	}

	if err := s.userRepo.Delete(ctx, identity); err != nil {
		return err
	}

	s.publishUserEvent(ctx, events.UserRemoved, identity, "", actor)
	return nil
}

func (s *userService) Promote(ctx context.Context, actor, identity string) error {
	user, err := s.mustGet(ctx, identity)
	if err != nil {
		return err
	}

	user.Role = domain.RoleAdmin
	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return err
	}

	s.publishUserEvent(ctx, events.UserPromoted, identity, user.DisplayName, actor)
	return nil
}

func (s *userService) Revoke(ctx context.Context, actor, identity string) error {
	if err := s.guardSuperadmin(identity, "revoked"); err != nil {
		return err
	}
	user, err := s.mustGet(ctx, identity)
	if err != nil {
		return err
	}

	if user.Role == domain.RoleAdmin {
		admins, err := s.userRepo.CountAdmins(ctx)
		if err != nil {
			return fmt.Errorf("failed to count admins: %w", err)
		}
		if admins <= 1 {
			return fmt.Errorf("%w: cannot revoke the last admin", domain.ErrInvariant)
		}
	}

	user.Role = domain.RoleRegistered
	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return err
	}

	s.publishUserEvent(ctx, events.UserRevoked, identity, user.DisplayName, actor)
	return nil
}

func (s *userService) Blacklist(ctx context.Context, actor, identity string) error {
	if err := s.guardSuperadmin(identity, "blacklisted"); err != nil {
		return err
	}
	user, err := s.mustGet(ctx, identity)
	if err != nil {
		return err
	}

	user.Blacklisted = true
	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return err
	}

	s.publishUserEvent(ctx, events.UserBlacklisted, identity, user.DisplayName, actor)
	return nil
}

func (s *userService) Unblacklist(ctx context.Context, actor, identity string) error {
	user, err := s.mustGet(ctx, identity)
	if err != nil {
		return err
	}

	user.Blacklisted = false
	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return err
	}

	s.publishUserEvent(ctx, events.UserUnblacklisted, identity, user.DisplayName, actor)
	return nil
}

func (s *userService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.userRepo.ListAll(ctx)
}

func (s *userService) mustGet(ctx context.Context, identity string) (*domain.User, error) {
	user, err := s.userRepo.Get(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: no user found with identity %s", domain.ErrNotFound, identity)
	}
	return user, nil
}

func (s *userService) guardSuperadmin(identity, action string) error {
	if s.cfg.Admin.Identity != "" && identity == s.cfg.Admin.Identity {
		return fmt.Errorf("%w: the superadmin cannot be %s", domain.ErrInvariant, action)
	}
	return nil
}

func (s *userService) publishUserEvent(ctx context.Context, subject, identity, displayName, actor string) {
	event := events.UserEvent{
		Identity:    identity,
		DisplayName: displayName,
		Actor:       actor,
		OccurredAt:  time.Now(),
	}
	if err := s.eventBus.Publish(ctx, subject, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish user event", "error", err, "subject", subject, "identity", identity)
	}
}

var _ UserService = (*userService)(nil)
