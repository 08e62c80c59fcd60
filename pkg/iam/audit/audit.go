// Package audit is the append-only record of permission mutations.
package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Abraxas-365/aegis/pkg/kernel"
)

// Action is the audited mutation kind.
type Action string

const (
	ActionGrant      Action = "grant"
	ActionRevoke     Action = "revoke"
	ActionRoleCreate Action = "role_create"
	ActionRoleUpdate Action = "role_update"
	ActionRoleDelete Action = "role_delete"
)

// Metadata is the free-form JSON payload of an entry. It serializes to a
// JSONB column.
type Metadata map[string]any

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("audit: cannot scan %T into Metadata", src)
	}
	return json.Unmarshal(raw, m)
}

// Entry is one audit record. Append-only; created_at descending is the
// canonical history order.
type Entry struct {
	ID        string         `db:"id" json:"id"`
	Action    Action         `db:"action" json:"action"`
	ActorID   kernel.UserID  `db:"actor_id" json:"actorId"`
	TargetID  *kernel.UserID `db:"target_id" json:"targetId,omitempty"`
	RoleID    *kernel.RoleID `db:"role_id" json:"roleId,omitempty"`
	OrgID     *kernel.OrgID  `db:"org_id" json:"organizationId,omitempty"`
	TeamID    *kernel.TeamID `db:"team_id" json:"teamId,omitempty"`
	Metadata  Metadata       `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}

// Query filters the trail. Zero-value fields are not applied.
type Query struct {
	ActorID  *kernel.UserID
	TargetID *kernel.UserID
	RoleID   *kernel.RoleID
	OrgID    *kernel.OrgID
	Action   *Action
	Limit    int
}

const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// ClampLimit normalizes the query limit to [1, MaxQueryLimit].
func (q *Query) ClampLimit() int {
	if q.Limit <= 0 {
		return DefaultQueryLimit
	}
	if q.Limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return q.Limit
}
