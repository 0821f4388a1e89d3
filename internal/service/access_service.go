package service

import (
	"context"
	"fmt"

	"github.com/deskly/deskbot/internal/domain"
	"github.com/deskly/deskbot/internal/repository"
)

type AccessService interface {
	// Resolve computes the effective permission of a sender: superadmin is
	// always admin, unknown identities are guests, and the blacklist flag
	// overrides any stored role.
	Resolve(ctx context.Context, identity string) (domain.Permission, error)
}

type accessService struct {
	userRepo   repository.UserRepository
	superadmin string
}

func NewAccessService(userRepo repository.UserRepository, superadmin string) AccessService {
	return &accessService{userRepo: userRepo, superadmin: superadmin}
}

func (s *accessService) Resolve(ctx context.Context, identity string) (domain.Permission, error) {
	if s.superadmin != "" && identity == s.superadmin {
		return domain.PermissionAdmin, nil
	}

	user, err := s.userRepo.Get(ctx, identity)
	if err != nil {
		return domain.PermissionGuest, fmt.Errorf("failed to resolve permission: %w", err)
	}
	if user == nil {
		return domain.PermissionGuest, nil
	}
	return user.EffectivePermission(), nil
}

var _ AccessService = (*accessService)(nil)
