// Package rbacinfra is the PostgreSQL implementation of the role and
// assignment repositories. Every mutation carries its audit entry in the
// same transaction.
package rbacinfra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Abraxas-365/aegis/pkg/errx"
	"github.com/Abraxas-365/aegis/pkg/iam/audit"
	"github.com/Abraxas-365/aegis/pkg/iam/audit/auditinfra"
	"github.com/Abraxas-365/aegis/pkg/iam/rbac"
	"github.com/Abraxas-365/aegis/pkg/kernel"
	"github.com/Abraxas-365/aegis/pkg/perm"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ============================================================================
// Roles
// ============================================================================

// PostgresRoleRepository implements rbac.RoleRepository on sqlx. The bitmap
// halves live in NUMERIC(20,0) columns and travel as decimal strings; signed
// BIGINT cannot carry bit 63.
type PostgresRoleRepository struct {
	db *sqlx.DB
}

// NewPostgresRoleRepository creates the repository.
func NewPostgresRoleRepository(db *sqlx.DB) rbac.RoleRepository {
	return &PostgresRoleRepository{db: db}
}

type rolePersistence struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	PermLow     string         `db:"perm_low"`
	PermHigh    string         `db:"perm_high"`
	IsSystem    bool           `db:"is_system"`
	OrgID       *string        `db:"org_id"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func roleToPersistence(r *rbac.Role) rolePersistence {
	var orgID *string
	if r.OrgID != nil {
		s := r.OrgID.String()
		orgID = &s
	}
	return rolePersistence{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: sql.NullString{String: r.Description, Valid: r.Description != ""},
		PermLow:     r.Bitmap.LoString(),
		PermHigh:    r.Bitmap.HiString(),
		IsSystem:    r.IsSystem,
		OrgID:       orgID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func roleToDomain(p rolePersistence) (*rbac.Role, error) {
	bitmap, err := perm.ParseHalves(p.PermLow, p.PermHigh)
	if err != nil {
		return nil, errx.Wrap(err, "corrupt role bitmap in store", errx.TypeInternal).
			WithDetail("role_id", p.ID)
	}
	var orgID *kernel.OrgID
	if p.OrgID != nil {
		id := kernel.NewOrgID(*p.OrgID)
		orgID = &id
	}
	return &rbac.Role{
		ID:          kernel.NewRoleID(p.ID),
		Name:        p.Name,
		Description: p.Description.String,
		Bitmap:      bitmap,
		IsSystem:    p.IsSystem,
		OrgID:       orgID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, nil
}

func (r *PostgresRoleRepository) Create(ctx context.Context, role *rbac.Role, entry *audit.Entry) error {
	return r.inTx(ctx, entry, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO roles (id, name, description, perm_low, perm_high, is_system, org_id, created_at, updated_at)
			VALUES (:id, :name, :description, :perm_low, :perm_high, :is_system, :org_id, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, roleToPersistence(role)); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return errx.Conflict("A role with that name already exists at this scope")
			}
			return errx.Wrap(err, "failed to create role", errx.TypeInternal)
		}
		return nil
	})
}

func (r *PostgresRoleRepository) Update(ctx context.Context, role *rbac.Role, entry *audit.Entry) error {
	return r.inTx(ctx, entry, func(tx *sqlx.Tx) error {
		query := `
			UPDATE roles SET
				description = :description,
				perm_low = :perm_low,
				perm_high = :perm_high,
				updated_at = :updated_at
			WHERE id = :id AND is_system = false`
		res, err := tx.NamedExecContext(ctx, query, roleToPersistence(role))
		if err != nil {
			return errx.Wrap(err, "failed to update role", errx.TypeInternal)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errx.Wrap(err, "failed to read rows affected on role update", errx.TypeInternal)
		}
		if n == 0 {
			return rbac.ErrRoleNotFound()
		}
		return nil
	})
}

func (r *PostgresRoleRepository) Delete(ctx context.Context, id kernel.RoleID, entry *audit.Entry) error {
	return r.inTx(ctx, entry, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1 AND is_system = false`, id.String())
		if err != nil {
			return errx.Wrap(err, "failed to delete role", errx.TypeInternal)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errx.Wrap(err, "failed to read rows affected on role delete", errx.TypeInternal)
		}
		if n == 0 {
			return rbac.ErrRoleNotFound()
		}
		return nil
	})
}

func (r *PostgresRoleRepository) FindByID(ctx context.Context, id kernel.RoleID) (*rbac.Role, error) {
	var p rolePersistence
	if err := r.db.GetContext(ctx, &p, `SELECT * FROM roles WHERE id = $1`, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rbac.ErrRoleNotFound()
		}
		return nil, errx.Wrap(err, "failed to find role", errx.TypeInternal)
	}
	return roleToDomain(p)
}

func (r *PostgresRoleRepository) FindByIDs(ctx context.Context, ids []kernel.RoleID) ([]*rbac.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	query, args, err := sqlx.In(`SELECT * FROM roles WHERE id IN (?)`, raw)
	if err != nil {
		return nil, errx.Wrap(err, "failed to build role lookup", errx.TypeInternal)
	}
	var rows []rolePersistence
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, errx.Wrap(err, "failed to load roles", errx.TypeInternal)
	}
	return rolesToDomain(rows)
}

func (r *PostgresRoleRepository) ListByOrg(ctx context.Context, orgID *kernel.OrgID) ([]*rbac.Role, error) {
	var rows []rolePersistence
	var err error
	if orgID == nil {
		err = r.db.SelectContext(ctx, &rows, `SELECT * FROM roles WHERE org_id IS NULL ORDER BY created_at`)
	} else {
		err = r.db.SelectContext(ctx, &rows, `SELECT * FROM roles WHERE org_id = $1 ORDER BY created_at`, orgID.String())
	}
	if err != nil {
		return nil, errx.Wrap(err, "failed to list roles", errx.TypeInternal)
	}
	return rolesToDomain(rows)
}

func rolesToDomain(rows []rolePersistence) ([]*rbac.Role, error) {
	out := make([]*rbac.Role, 0, len(rows))
	for _, p := range rows {
		role, err := roleToDomain(p)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

func (r *PostgresRoleRepository) inTx(ctx context.Context, entry *audit.Entry, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin role tx", errx.TypeInternal)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if entry != nil {
		if err := auditinfra.AppendTx(ctx, tx, entry); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ============================================================================
// Assignments
// ============================================================================

// PostgresAssignmentRepository implements rbac.AssignmentRepository.
// Uniqueness of (user, role, org-or-null, team-or-null) rides on a unique
// index over COALESCEd scope columns; racing grants resolve there.
type PostgresAssignmentRepository struct {
	db *sqlx.DB
}

// NewPostgresAssignmentRepository creates the repository.
func NewPostgresAssignmentRepository(db *sqlx.DB) rbac.AssignmentRepository {
	return &PostgresAssignmentRepository{db: db}
}

type assignmentPersistence struct {
	ID        string     `db:"id"`
	UserID    string     `db:"user_id"`
	RoleID    string     `db:"role_id"`
	OrgID     *string    `db:"org_id"`
	TeamID    *string    `db:"team_id"`
	GrantedBy string     `db:"granted_by"`
	ExpiresAt *time.Time `db:"expires_at"`
	CreatedAt time.Time  `db:"created_at"`
}

func assignmentToPersistence(a *rbac.RoleAssignment) assignmentPersistence {
	p := assignmentPersistence{
		ID:        a.ID,
		UserID:    a.UserID.String(),
		RoleID:    a.RoleID.String(),
		GrantedBy: a.GrantedBy.String(),
		ExpiresAt: a.ExpiresAt,
		CreatedAt: a.CreatedAt,
	}
	if a.OrgID != nil {
		s := a.OrgID.String()
		p.OrgID = &s
	}
	if a.TeamID != nil {
		s := a.TeamID.String()
		p.TeamID = &s
	}
	return p
}

func assignmentToDomain(p assignmentPersistence) *rbac.RoleAssignment {
	a := &rbac.RoleAssignment{
		ID:        p.ID,
		UserID:    kernel.NewUserID(p.UserID),
		RoleID:    kernel.NewRoleID(p.RoleID),
		GrantedBy: kernel.NewUserID(p.GrantedBy),
		ExpiresAt: p.ExpiresAt,
		CreatedAt: p.CreatedAt,
	}
	if p.OrgID != nil {
		id := kernel.NewOrgID(*p.OrgID)
		a.OrgID = &id
	}
	if p.TeamID != nil {
		id := kernel.NewTeamID(*p.TeamID)
		a.TeamID = &id
	}
	return a
}

func scopeParams(scope rbac.Scope) (orgID, teamID *string) {
	if scope.OrgID != nil {
		s := scope.OrgID.String()
		orgID = &s
	}
	if scope.TeamID != nil {
		s := scope.TeamID.String()
		teamID = &s
	}
	return orgID, teamID
}

func (r *PostgresAssignmentRepository) Grant(ctx context.Context, a *rbac.RoleAssignment, entry *audit.Entry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin grant tx", errx.TypeInternal)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO role_assignments (id, user_id, role_id, org_id, team_id, granted_by, expires_at, created_at)
		VALUES (:id, :user_id, :role_id, :org_id, :team_id, :granted_by, :expires_at, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, assignmentToPersistence(a)); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return rbac.ErrAlreadyAssigned()
		}
		return errx.Wrap(err, "failed to create assignment", errx.TypeInternal)
	}
	if err := auditinfra.AppendTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostgresAssignmentRepository) Revoke(ctx context.Context, userID kernel.UserID, roleID kernel.RoleID, scope rbac.Scope, entry *audit.Entry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin revoke tx", errx.TypeInternal)
	}
	defer tx.Rollback()

	orgID, teamID := scopeParams(scope)
	query := `
		DELETE FROM role_assignments
		WHERE user_id = $1 AND role_id = $2
		  AND org_id IS NOT DISTINCT FROM $3
		  AND team_id IS NOT DISTINCT FROM $4`
	res, err := tx.ExecContext(ctx, query, userID.String(), roleID.String(), orgID, teamID)
	if err != nil {
		return errx.Wrap(err, "failed to revoke assignment", errx.TypeInternal)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to read rows affected on revoke", errx.TypeInternal)
	}
	if n == 0 {
		return rbac.ErrAssignmentNotFound()
	}
	if err := auditinfra.AppendTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostgresAssignmentRepository) FindForUserAtScope(ctx context.Context, userID kernel.UserID, scope rbac.Scope) ([]*rbac.RoleAssignment, error) {
	orgID, teamID := scopeParams(scope)
	query := `
		SELECT * FROM role_assignments
		WHERE user_id = $1
		  AND org_id IS NOT DISTINCT FROM $2
		  AND team_id IS NOT DISTINCT FROM $3
		  AND (expires_at IS NULL OR expires_at > NOW())`
	var rows []assignmentPersistence
	if err := r.db.SelectContext(ctx, &rows, query, userID.String(), orgID, teamID); err != nil {
		return nil, errx.Wrap(err, "failed to load assignments", errx.TypeInternal)
	}
	out := make([]*rbac.RoleAssignment, len(rows))
	for i, p := range rows {
		out[i] = assignmentToDomain(p)
	}
	return out, nil
}

func (r *PostgresAssignmentRepository) Exists(ctx context.Context, userID kernel.UserID, roleID kernel.RoleID, scope rbac.Scope) (bool, error) {
	orgID, teamID := scopeParams(scope)
	query := `
		SELECT EXISTS(
			SELECT 1 FROM role_assignments
			WHERE user_id = $1 AND role_id = $2
			  AND org_id IS NOT DISTINCT FROM $3
			  AND team_id IS NOT DISTINCT FROM $4)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID.String(), roleID.String(), orgID, teamID); err != nil {
		return false, errx.Wrap(err, "failed to check assignment existence", errx.TypeInternal)
	}
	return exists, nil
}

func (r *PostgresAssignmentRepository) DistinctOrgsForUser(ctx context.Context, userID kernel.UserID) ([]kernel.OrgID, error) {
	query := `
		SELECT DISTINCT org_id FROM role_assignments
		WHERE user_id = $1 AND org_id IS NOT NULL AND team_id IS NULL
		  AND (expires_at IS NULL OR expires_at > NOW())`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to list assignment orgs", errx.TypeInternal)
	}
	out := make([]kernel.OrgID, len(ids))
	for i, id := range ids {
		out[i] = kernel.NewOrgID(id)
	}
	return out, nil
}

func (r *PostgresAssignmentRepository) HasAssignments(ctx context.Context, roleID kernel.RoleID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM role_assignments WHERE role_id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, roleID.String()); err != nil {
		return false, errx.Wrap(err, "failed to check role assignments", errx.TypeInternal)
	}
	return exists, nil
}
