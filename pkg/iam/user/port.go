package user

import (
	"context"

	"github.com/Abraxas-365/aegis/pkg/kernel"
)

// Repository is the persistence contract for principals.
type Repository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id kernel.UserID) (*User, error)
	// FindByEmail looks up by the lowercase-normalized address.
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdateLastLogin(ctx context.Context, id kernel.UserID) error
	SetPasswordHash(ctx context.Context, id kernel.UserID, hash string) error
	MarkEmailVerified(ctx context.Context, id kernel.UserID) error
	// ListRecent returns up to limit principals, newest first.
	ListRecent(ctx context.Context, limit int) ([]*User, error)
}
