package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/aegis/pkg/iam/audit"
	"github.com/Abraxas-365/aegis/pkg/iam/org"
	"github.com/Abraxas-365/aegis/pkg/kernel"
	"github.com/Abraxas-365/aegis/pkg/perm"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type memOrgRepo struct {
	orgs  map[kernel.OrgID]*org.Organization
	teams map[kernel.TeamID]*org.Team
}

func newMemOrgRepo() *memOrgRepo {
	return &memOrgRepo{
		orgs:  make(map[kernel.OrgID]*org.Organization),
		teams: make(map[kernel.TeamID]*org.Team),
	}
}

func (m *memOrgRepo) FindOrg(_ context.Context, id kernel.OrgID) (*org.Organization, error) {
	o, ok := m.orgs[id]
	if !ok {
		return nil, org.ErrOrgNotFound()
	}
	return o, nil
}

func (m *memOrgRepo) FindTeam(_ context.Context, id kernel.TeamID) (*org.Team, error) {
	t, ok := m.teams[id]
	if !ok {
		return nil, org.ErrTeamNotFound()
	}
	return t, nil
}

func (m *memOrgRepo) FindOrgsOwnedBy(_ context.Context, userID kernel.UserID) ([]*org.Organization, error) {
	var out []*org.Organization
	for _, o := range m.orgs {
		if o.OwnerID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

type memAssignmentRepo struct {
	assignments []*RoleAssignment
}

func sameScope(a *RoleAssignment, s Scope) bool {
	orgEq := (a.OrgID == nil && s.OrgID == nil) || (a.OrgID != nil && s.OrgID != nil && *a.OrgID == *s.OrgID)
	teamEq := (a.TeamID == nil && s.TeamID == nil) || (a.TeamID != nil && s.TeamID != nil && *a.TeamID == *s.TeamID)
	return orgEq && teamEq
}

func (m *memAssignmentRepo) Grant(_ context.Context, a *RoleAssignment, _ *audit.Entry) error {
	for _, existing := range m.assignments {
		if existing.UserID == a.UserID && existing.RoleID == a.RoleID && sameScope(existing, a.Scope()) {
			return ErrAlreadyAssigned()
		}
	}
	m.assignments = append(m.assignments, a)
	return nil
}

func (m *memAssignmentRepo) Revoke(_ context.Context, userID kernel.UserID, roleID kernel.RoleID, scope Scope, _ *audit.Entry) error {
	for i, a := range m.assignments {
		if a.UserID == userID && a.RoleID == roleID && sameScope(a, scope) {
			m.assignments = append(m.assignments[:i], m.assignments[i+1:]...)
			return nil
		}
	}
	return ErrAssignmentNotFound()
}

func (m *memAssignmentRepo) FindForUserAtScope(_ context.Context, userID kernel.UserID, scope Scope) ([]*RoleAssignment, error) {
	var out []*RoleAssignment
	for _, a := range m.assignments {
		if a.UserID == userID && sameScope(a, scope) && !a.IsExpired() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAssignmentRepo) Exists(_ context.Context, userID kernel.UserID, roleID kernel.RoleID, scope Scope) (bool, error) {
	for _, a := range m.assignments {
		if a.UserID == userID && a.RoleID == roleID && sameScope(a, scope) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAssignmentRepo) DistinctOrgsForUser(_ context.Context, userID kernel.UserID) ([]kernel.OrgID, error) {
	seen := make(map[kernel.OrgID]bool)
	var out []kernel.OrgID
	for _, a := range m.assignments {
		if a.UserID == userID && a.OrgID != nil && a.TeamID == nil && !a.IsExpired() && !seen[*a.OrgID] {
			seen[*a.OrgID] = true
			out = append(out, *a.OrgID)
		}
	}
	return out, nil
}

func (m *memAssignmentRepo) HasAssignments(_ context.Context, roleID kernel.RoleID) (bool, error) {
	for _, a := range m.assignments {
		if a.RoleID == roleID {
			return true, nil
		}
	}
	return false, nil
}

type memRoleRepo struct {
	roles map[kernel.RoleID]*Role
}

func newMemRoleRepo() *memRoleRepo {
	return &memRoleRepo{roles: make(map[kernel.RoleID]*Role)}
}

func (m *memRoleRepo) Create(_ context.Context, r *Role, _ *audit.Entry) error {
	m.roles[r.ID] = r
	return nil
}

func (m *memRoleRepo) Update(_ context.Context, r *Role, _ *audit.Entry) error {
	if _, ok := m.roles[r.ID]; !ok {
		return ErrRoleNotFound()
	}
	m.roles[r.ID] = r
	return nil
}

func (m *memRoleRepo) Delete(_ context.Context, id kernel.RoleID, _ *audit.Entry) error {
	if _, ok := m.roles[id]; !ok {
		return ErrRoleNotFound()
	}
	delete(m.roles, id)
	return nil
}

func (m *memRoleRepo) FindByID(_ context.Context, id kernel.RoleID) (*Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrRoleNotFound()
	}
	return r, nil
}

func (m *memRoleRepo) FindByIDs(_ context.Context, ids []kernel.RoleID) ([]*Role, error) {
	var out []*Role
	for _, id := range ids {
		if r, ok := m.roles[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRoleRepo) ListByOrg(_ context.Context, orgID *kernel.OrgID) ([]*Role, error) {
	var out []*Role
	for _, r := range m.roles {
		if orgID == nil && r.OrgID == nil {
			out = append(out, r)
		} else if orgID != nil && r.OrgID != nil && *r.OrgID == *orgID {
			out = append(out, r)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const (
	ownerID  = kernel.UserID("user-owner")
	memberID = kernel.UserID("user-member")
	orgOne   = kernel.OrgID("org-1")
	teamOne  = kernel.TeamID("team-1")
)

func fixture() (*Resolver, *memOrgRepo, *memAssignmentRepo, *memRoleRepo) {
	orgs := newMemOrgRepo()
	orgs.orgs[orgOne] = &org.Organization{ID: orgOne, Slug: "org-1", OwnerID: ownerID, Status: org.StatusActive}
	orgs.teams[teamOne] = &org.Team{ID: teamOne, OrgID: orgOne, Slug: "team-1", Status: org.StatusActive}

	assignments := &memAssignmentRepo{}
	roles := newMemRoleRepo()
	return NewResolver(orgs, assignments, roles), orgs, assignments, roles
}

func addRole(roles *memRoleRepo, id string, names ...string) kernel.RoleID {
	rid := kernel.NewRoleID(id)
	roles.roles[rid] = &Role{ID: rid, Name: id, Bitmap: perm.FromNames(names)}
	return rid
}

func assign(assignments *memAssignmentRepo, userID kernel.UserID, roleID kernel.RoleID, scope Scope, expires *time.Time) {
	assignments.assignments = append(assignments.assignments, &RoleAssignment{
		ID:        string(roleID) + "-" + string(userID),
		UserID:    userID,
		RoleID:    roleID,
		OrgID:     scope.OrgID,
		TeamID:    scope.TeamID,
		GrantedBy: ownerID,
		ExpiresAt: expires,
		CreatedAt: time.Now(),
	})
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestOwnerShortCircuit(t *testing.T) {
	resolver, _, _, _ := fixture()

	eff, err := resolver.Effective(context.Background(), ownerID, OrgScope(orgOne))
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if !eff.IsOwner {
		t.Error("owner must resolve with IsOwner")
	}
	if eff.Bitmap != perm.FullSuperset() {
		t.Error("owner must hold the full superset without assignment rows")
	}
	for _, p := range perm.All() {
		if !eff.Has(perm.FromBit(p.Bit)) {
			t.Errorf("owner missing catalog permission %s", p.Name)
		}
	}
}

func TestEffectiveCombinesRolesAtExactScope(t *testing.T) {
	resolver, _, assignments, roles := fixture()

	reader := addRole(roles, "reader", perm.DataRead)
	writer := addRole(roles, "writer", perm.DataWrite)
	assign(assignments, memberID, reader, OrgScope(orgOne), nil)
	assign(assignments, memberID, writer, OrgScope(orgOne), nil)

	eff, err := resolver.Effective(context.Background(), memberID, OrgScope(orgOne))
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if eff.IsOwner {
		t.Error("member must not resolve as owner")
	}
	want := perm.FromNames([]string{perm.DataRead, perm.DataWrite})
	if eff.Bitmap != want {
		t.Errorf("combined bitmap = %v, want %v", eff.Bitmap, want)
	}
}

func TestEffectiveScopesDoNotMerge(t *testing.T) {
	resolver, _, assignments, roles := fixture()

	globalRole := addRole(roles, "global-admin", perm.AdminUsersRead)
	orgRole := addRole(roles, "org-reader", perm.DataRead)
	teamRole := addRole(roles, "team-writer", perm.DataWrite)

	assign(assignments, memberID, globalRole, GlobalScope(), nil)
	assign(assignments, memberID, orgRole, OrgScope(orgOne), nil)
	assign(assignments, memberID, teamRole, TeamScope(orgOne, teamOne), nil)

	global, _ := resolver.Effective(context.Background(), memberID, GlobalScope())
	if !global.Has(perm.MustLookup(perm.AdminUsersRead)) || global.Has(perm.MustLookup(perm.DataRead)) {
		t.Errorf("global scope leaked org assignments: %v", global.Names)
	}

	atOrg, _ := resolver.Effective(context.Background(), memberID, OrgScope(orgOne))
	if !atOrg.Has(perm.MustLookup(perm.DataRead)) || atOrg.Has(perm.MustLookup(perm.DataWrite)) {
		t.Errorf("org scope leaked team assignments: %v", atOrg.Names)
	}

	atTeam, _ := resolver.Effective(context.Background(), memberID, TeamScope(orgOne, teamOne))
	if !atTeam.Has(perm.MustLookup(perm.DataWrite)) || atTeam.Has(perm.MustLookup(perm.DataRead)) {
		t.Errorf("team scope leaked org assignments: %v", atTeam.Names)
	}
}

func TestEffectiveFiltersExpired(t *testing.T) {
	resolver, _, assignments, roles := fixture()

	role := addRole(roles, "reader", perm.DataRead)
	past := time.Now().Add(-time.Hour)
	assign(assignments, memberID, role, OrgScope(orgOne), &past)

	eff, err := resolver.Effective(context.Background(), memberID, OrgScope(orgOne))
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if !eff.Bitmap.IsZero() {
		t.Errorf("expired assignment contributed permissions: %v", eff.Names)
	}
}

func TestTeamScopeRequiresOrg(t *testing.T) {
	resolver, _, _, _ := fixture()

	tid := teamOne
	_, err := resolver.Effective(context.Background(), memberID, Scope{TeamID: &tid})
	if err == nil {
		t.Fatal("team scope without org must be rejected")
	}
}

func TestOrgClaims(t *testing.T) {
	resolver, orgs, assignments, roles := fixture()

	// The member also owns a second organization.
	orgTwo := kernel.OrgID("org-2")
	orgs.orgs[orgTwo] = &org.Organization{ID: orgTwo, Slug: "org-2", OwnerID: memberID, Status: org.StatusActive}

	reader := addRole(roles, "reader", perm.DataRead)
	assign(assignments, memberID, reader, OrgScope(orgOne), nil)

	claims, err := resolver.OrgClaims(context.Background(), memberID)
	if err != nil {
		t.Fatalf("OrgClaims: %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("expected 2 org claims, got %d", len(claims))
	}

	byOrg := make(map[kernel.OrgID]kernel.OrgMembership)
	for _, cl := range claims {
		byOrg[cl.OrgID] = cl
	}
	owned := byOrg[orgTwo]
	if owned.Role != "owner" || !owned.IsOwner {
		t.Errorf("owned org claim = %+v, want owner", owned)
	}
	fs := perm.FullSuperset()
	if owned.Low != fs.LoString() || owned.High != fs.HiString() {
		t.Error("owner claim must carry the full-superset halves")
	}

	member := byOrg[orgOne]
	if member.Role != "member" || member.IsOwner {
		t.Errorf("member org claim = %+v, want member", member)
	}
	want := perm.FromNames([]string{perm.DataRead})
	if member.Low != want.LoString() || member.High != want.HiString() {
		t.Error("member claim must carry the resolved bitmap halves")
	}
}
