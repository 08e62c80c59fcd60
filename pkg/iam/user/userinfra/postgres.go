// Package userinfra is the PostgreSQL implementation of the user directory.
package userinfra

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Abraxas-365/aegis/pkg/errx"
	"github.com/Abraxas-365/aegis/pkg/iam/user"
	"github.com/Abraxas-365/aegis/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresUserRepository implements user.Repository on sqlx.
type PostgresUserRepository struct {
	db *sqlx.DB
}

// NewPostgresUserRepository creates the repository.
func NewPostgresUserRepository(db *sqlx.DB) user.Repository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users (
			id, email, password_hash, email_verified, display_name, avatar_url,
			status, mfa_enabled, created_at, updated_at
		) VALUES (
			:id, :email, :password_hash, :email_verified, :display_name, :avatar_url,
			:status, :mfa_enabled, :created_at, :updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, u); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return user.ErrDuplicateEmail()
		}
		return errx.Wrap(err, "failed to create user", errx.TypeInternal).
			WithDetail("user_id", u.ID.String())
	}
	return nil
}

func (r *PostgresUserRepository) FindByID(ctx context.Context, id kernel.UserID) (*user.User, error) {
	var u user.User
	query := `SELECT * FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &u, query, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound()
		}
		return nil, errx.Wrap(err, "failed to find user by id", errx.TypeInternal)
	}
	return &u, nil
}

func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	var u user.User
	query := `SELECT * FROM users WHERE email = $1`
	if err := r.db.GetContext(ctx, &u, query, user.NormalizeEmail(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound()
		}
		return nil, errx.Wrap(err, "failed to find user by email", errx.TypeInternal)
	}
	return &u, nil
}

func (r *PostgresUserRepository) UpdateLastLogin(ctx context.Context, id kernel.UserID) error {
	query := `UPDATE users SET last_login_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id.String()); err != nil {
		return errx.Wrap(err, "failed to update last login", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresUserRepository) SetPasswordHash(ctx context.Context, id kernel.UserID, hash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id.String(), hash)
	if err != nil {
		return errx.Wrap(err, "failed to set password hash", errx.TypeInternal)
	}
	return requireOneRow(res, "set password hash")
}

func (r *PostgresUserRepository) MarkEmailVerified(ctx context.Context, id kernel.UserID) error {
	query := `UPDATE users SET email_verified = true, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to mark email verified", errx.TypeInternal)
	}
	return requireOneRow(res, "mark email verified")
}

func (r *PostgresUserRepository) ListRecent(ctx context.Context, limit int) ([]*user.User, error) {
	var users []*user.User
	query := `SELECT * FROM users ORDER BY created_at DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &users, query, limit); err != nil {
		return nil, errx.Wrap(err, "failed to list users", errx.TypeInternal)
	}
	return users, nil
}

func requireOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to read rows affected for "+op, errx.TypeInternal)
	}
	if n == 0 {
		return user.ErrNotFound()
	}
	return nil
}
