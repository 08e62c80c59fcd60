// Package authinfra holds the persistence and ephemeral-store adapters of the
// auth module: the three token repositories, the Redis blacklist and the
// cleanup sweeper.
package authinfra

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Abraxas-365/aegis/pkg/errx"
	"github.com/Abraxas-365/aegis/pkg/iam/auth"
	"github.com/Abraxas-365/aegis/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

// ============================================================================
// Continuation tokens
// ============================================================================

// PostgresTokenRepository implements auth.TokenRepository on sqlx.
type PostgresTokenRepository struct {
	db *sqlx.DB
}

// NewPostgresTokenRepository creates the repository.
func NewPostgresTokenRepository(db *sqlx.DB) auth.TokenRepository {
	return &PostgresTokenRepository{db: db}
}

func (r *PostgresTokenRepository) Save(ctx context.Context, t *auth.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked_at, created_at)
		VALUES (:id, :user_id, :token_hash, :expires_at, :revoked_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, t); err != nil {
		return errx.Wrap(err, "failed to save refresh token", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresTokenRepository) FindActiveByHash(ctx context.Context, hash string) (*auth.RefreshToken, error) {
	var t auth.RefreshToken
	query := `
		SELECT * FROM refresh_tokens
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()`
	if err := r.db.GetContext(ctx, &t, query, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrInvalidRefreshToken()
		}
		return nil, errx.Wrap(err, "failed to look up refresh token", errx.TypeInternal)
	}
	return &t, nil
}

// Revoke conditionally marks the record revoked. The WHERE revoked_at IS NULL
// clause makes rotation linearizable: of two racing rotations exactly one
// update reports a row affected.
func (r *PostgresTokenRepository) Revoke(ctx context.Context, hash string) error {
	query := `UPDATE refresh_tokens SET revoked_at = NOW() WHERE token_hash = $1 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, hash)
	if err != nil {
		return errx.Wrap(err, "failed to revoke refresh token", errx.TypeInternal)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to read rows affected on revoke", errx.TypeInternal)
	}
	if n != 1 {
		return auth.ErrInvalidRefreshToken()
	}
	return nil
}

func (r *PostgresTokenRepository) RevokeAllForUser(ctx context.Context, userID kernel.UserID) error {
	query := `UPDATE refresh_tokens SET revoked_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, userID.String()); err != nil {
		return errx.Wrap(err, "failed to revoke user refresh tokens", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired refresh tokens", errx.TypeInternal)
	}
	return res.RowsAffected()
}

// ============================================================================
// Email-verification tokens
// ============================================================================

// PostgresVerificationRepository implements auth.VerificationRepository.
type PostgresVerificationRepository struct {
	db *sqlx.DB
}

// NewPostgresVerificationRepository creates the repository.
func NewPostgresVerificationRepository(db *sqlx.DB) auth.VerificationRepository {
	return &PostgresVerificationRepository{db: db}
}

// Store deletes any prior record for the principal and inserts the new one in
// one transaction, keeping at most one active token per principal.
func (r *PostgresVerificationRepository) Store(ctx context.Context, t *auth.EmailVerificationToken) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin verification-token tx", errx.TypeInternal)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM email_verification_tokens WHERE user_id = $1`, t.UserID.String()); err != nil {
		return errx.Wrap(err, "failed to clear prior verification token", errx.TypeInternal)
	}

	query := `
		INSERT INTO email_verification_tokens (id, user_id, token, email, expires_at, created_at)
		VALUES (:id, :user_id, :token, :email, :expires_at, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, t); err != nil {
		return errx.Wrap(err, "failed to store verification token", errx.TypeInternal)
	}
	return tx.Commit()
}

// Consume resolves an unexpired token and deletes its row. The conditional
// DELETE ... RETURNING makes concurrent verifies single-winner.
func (r *PostgresVerificationRepository) Consume(ctx context.Context, token string) (*auth.EmailVerificationToken, error) {
	var t auth.EmailVerificationToken
	query := `
		DELETE FROM email_verification_tokens
		WHERE token = $1 AND expires_at > NOW()
		RETURNING *`
	if err := r.db.GetContext(ctx, &t, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrInvalidLifecycleToken()
		}
		return nil, errx.Wrap(err, "failed to consume verification token", errx.TypeInternal)
	}
	return &t, nil
}

func (r *PostgresVerificationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM email_verification_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired verification tokens", errx.TypeInternal)
	}
	return res.RowsAffected()
}

// ============================================================================
// Password-reset tokens
// ============================================================================

// PostgresPasswordResetRepository implements auth.PasswordResetRepository.
type PostgresPasswordResetRepository struct {
	db *sqlx.DB
}

// NewPostgresPasswordResetRepository creates the repository.
func NewPostgresPasswordResetRepository(db *sqlx.DB) auth.PasswordResetRepository {
	return &PostgresPasswordResetRepository{db: db}
}

// Store removes any prior unused record for the principal, then inserts. Used
// records stay behind so replays remain detectable.
func (r *PostgresPasswordResetRepository) Store(ctx context.Context, t *auth.PasswordResetToken) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin reset-token tx", errx.TypeInternal)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE user_id = $1 AND used_at IS NULL`, t.UserID.String()); err != nil {
		return errx.Wrap(err, "failed to clear prior reset token", errx.TypeInternal)
	}

	query := `
		INSERT INTO password_reset_tokens (id, user_id, token, expires_at, used_at, created_at)
		VALUES (:id, :user_id, :token, :expires_at, :used_at, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, t); err != nil {
		return errx.Wrap(err, "failed to store reset token", errx.TypeInternal)
	}
	return tx.Commit()
}

func (r *PostgresPasswordResetRepository) FindActive(ctx context.Context, token string) (*auth.PasswordResetToken, error) {
	var t auth.PasswordResetToken
	query := `
		SELECT * FROM password_reset_tokens
		WHERE token = $1 AND used_at IS NULL AND expires_at > NOW()`
	if err := r.db.GetContext(ctx, &t, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrInvalidLifecycleToken()
		}
		return nil, errx.Wrap(err, "failed to look up reset token", errx.TypeInternal)
	}
	return &t, nil
}

// MarkUsed sets used_at once. Conditional on used_at IS NULL so the
// timestamp is monotone and replays fail.
func (r *PostgresPasswordResetRepository) MarkUsed(ctx context.Context, id string) error {
	query := `UPDATE password_reset_tokens SET used_at = NOW() WHERE id = $1 AND used_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return errx.Wrap(err, "failed to mark reset token used", errx.TypeInternal)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to read rows affected on mark-used", errx.TypeInternal)
	}
	if n != 1 {
		return auth.ErrInvalidLifecycleToken()
	}
	return nil
}

func (r *PostgresPasswordResetRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE expires_at <= NOW() AND used_at IS NULL`)
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired reset tokens", errx.TypeInternal)
	}
	return res.RowsAffected()
}
