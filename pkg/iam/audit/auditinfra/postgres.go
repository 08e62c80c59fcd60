// Package auditinfra is the PostgreSQL implementation of the audit sink.
package auditinfra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Abraxas-365/aegis/pkg/cryptox"
	"github.com/Abraxas-365/aegis/pkg/errx"
	"github.com/Abraxas-365/aegis/pkg/iam/audit"
	"github.com/jmoiron/sqlx"
)

// AppendTx writes an entry on the given executor. rbacinfra calls this from
// inside its mutation transactions so an observable mutation can never exist
// without its audit row.
func AppendTx(ctx context.Context, ext sqlx.ExtContext, e *audit.Entry) error {
	if e.ID == "" {
		e.ID = cryptox.GenerateID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO permission_audit (id, action, actor_id, target_id, role_id, org_id, team_id, metadata, created_at)
		VALUES (:id, :action, :actor_id, :target_id, :role_id, :org_id, :team_id, :metadata, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, e); err != nil {
		return errx.Wrap(err, "failed to append audit entry", errx.TypeInternal)
	}
	return nil
}

// PostgresAuditRepository implements audit.Repository on sqlx.
type PostgresAuditRepository struct {
	db *sqlx.DB
}

// NewPostgresAuditRepository creates the repository.
func NewPostgresAuditRepository(db *sqlx.DB) audit.Repository {
	return &PostgresAuditRepository{db: db}
}

func (r *PostgresAuditRepository) Append(ctx context.Context, e *audit.Entry) error {
	return AppendTx(ctx, r.db, e)
}

func (r *PostgresAuditRepository) List(ctx context.Context, q audit.Query) ([]*audit.Entry, error) {
	conds := []string{"1=1"}
	args := []any{}

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.ActorID != nil {
		add("actor_id = $%d", q.ActorID.String())
	}
	if q.TargetID != nil {
		add("target_id = $%d", q.TargetID.String())
	}
	if q.RoleID != nil {
		add("role_id = $%d", q.RoleID.String())
	}
	if q.OrgID != nil {
		add("org_id = $%d", q.OrgID.String())
	}
	if q.Action != nil {
		add("action = $%d", string(*q.Action))
	}
	args = append(args, q.ClampLimit())

	query := fmt.Sprintf(`
		SELECT * FROM permission_audit
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d`, strings.Join(conds, " AND "), len(args))

	var entries []*audit.Entry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, errx.Wrap(err, "failed to list audit entries", errx.TypeInternal)
	}
	return entries, nil
}
