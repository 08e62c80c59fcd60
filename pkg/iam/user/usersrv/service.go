// Package usersrv implements the user-directory operations.
package usersrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/aegis/pkg/cryptox"
	"github.com/Abraxas-365/aegis/pkg/errx"
	"github.com/Abraxas-365/aegis/pkg/iam/user"
	"github.com/Abraxas-365/aegis/pkg/kernel"
)

// UserService owns account creation and directory lookups.
type UserService struct {
	repo   user.Repository
	hasher *cryptox.PasswordHasher
}

// NewUserService creates the service.
func NewUserService(repo user.Repository, hasher *cryptox.PasswordHasher) *UserService {
	return &UserService{repo: repo, hasher: hasher}
}

// Create registers a principal: email shape, normalized uniqueness and the
// password policy are all enforced here. The account starts active and
// unverified.
func (s *UserService) Create(ctx context.Context, email, password, displayName string) (*user.User, error) {
	email = user.NormalizeEmail(email)
	if !user.ValidEmail(email) {
		return nil, user.ErrInvalidEmail().WithDetail("field", "email")
	}
	if err := user.CheckPasswordPolicy(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, errx.Wrap(err, "failed to hash password", errx.TypeInternal)
	}

	now := time.Now().UTC()
	u := &user.User{
		ID:            kernel.NewUserID(cryptox.GenerateID()),
		Email:         email,
		PasswordHash:  hash,
		EmailVerified: false,
		DisplayName:   displayName,
		Status:        user.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Get returns the principal by id.
func (s *UserService) Get(ctx context.Context, id kernel.UserID) (*user.User, error) {
	return s.repo.FindByID(ctx, id)
}

// GetByEmail returns the principal by normalized email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.repo.FindByEmail(ctx, email)
}

// ListRecent returns the newest principals, capped at 100.
func (s *UserService) ListRecent(ctx context.Context, limit int) ([]*user.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.repo.ListRecent(ctx, limit)
}
