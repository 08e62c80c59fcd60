package perm

// -----------------------------------------------------------------------------
// Permission catalog
//
// Each permission owns one bit position in [0, 127]. Positions are grouped by
// domain with gaps left for future permissions inside each group. The bit
// assignments are persisted in role rows and access tokens: renumbering is a
// breaking change.
// -----------------------------------------------------------------------------

// Permission names referenced from code. The full catalog lives in the table
// below; these constants exist so call sites don't carry string literals.
const (
	// Organization (bits 0–12)
	OrgRead          = "org.read"
	OrgUpdate        = "org.update"
	OrgDelete        = "org.delete"
	OrgMembersRead   = "org.members.read"
	OrgMembersInvite = "org.members.invite"
	OrgMembersRemove = "org.members.remove"
	OrgSettingsRead  = "org.settings.read"
	OrgSettingsWrite = "org.settings.update"
	OrgBillingRead   = "org.billing.read"
	OrgBillingWrite  = "org.billing.update"
	OrgTeamsCreate   = "org.teams.create"
	OrgWebhooks      = "org.webhooks.manage"
	OrgTransfer      = "org.transfer"

	// Team (bits 20–26)
	TeamRead          = "team.read"
	TeamCreate        = "team.create"
	TeamUpdate        = "team.update"
	TeamDelete        = "team.delete"
	TeamMembersRead   = "team.members.read"
	TeamMembersAdd    = "team.members.add"
	TeamMembersRemove = "team.members.remove"

	// Repository (bits 30–36)
	RepoRead       = "repo.read"
	RepoCreate     = "repo.create"
	RepoUpdate     = "repo.update"
	RepoDelete     = "repo.delete"
	RepoPush       = "repo.push"
	RepoAdmin      = "repo.admin"
	RepoVisibility = "repo.visibility.change"

	// Data (bits 40–44)
	DataRead   = "data.read"
	DataWrite  = "data.write"
	DataDelete = "data.delete"
	DataExport = "data.export"
	DataImport = "data.import"

	// Collaboration (bits 50–59)
	IssueRead     = "issue.read"
	IssueCreate   = "issue.create"
	IssueUpdate   = "issue.update"
	IssueClose    = "issue.close"
	PRRead        = "pr.read"
	PRCreate      = "pr.create"
	PRMerge       = "pr.merge"
	CommentCreate = "comment.create"
	CommentUpdate = "comment.update"
	CommentDelete = "comment.delete"

	// Administration (bits 60–68)
	AdminUsersRead      = "admin.users.read"
	AdminUsersSuspend   = "admin.users.suspend"
	AdminUsersDelete    = "admin.users.delete"
	AdminAuditRead      = "admin.audit.read"
	AdminSystemSettings = "admin.system.settings"
	AdminTokensRevoke   = "admin.tokens.revoke"
	AdminOrgsManage     = "admin.orgs.manage"
	AdminImpersonate    = "admin.impersonate"
	AdminMetricsRead    = "admin.metrics.read"

	// Permission management (bits 70–75)
	PermGrant      = "perm.grant"
	PermRevoke     = "perm.revoke"
	PermRoleCreate = "perm.role.create"
	PermRoleUpdate = "perm.role.update"
	PermRoleDelete = "perm.role.delete"
	PermAuditRead  = "perm.audit.read"
)

// Domain groups for catalog introspection.
const (
	DomainOrganization = "organization"
	DomainTeam         = "team"
	DomainRepository   = "repository"
	DomainData         = "data"
	DomainCollab       = "collaboration"
	DomainAdmin        = "admin"
	DomainPermissions  = "permissions"
)

// Permission describes one catalog entry.
type Permission struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Domain      string `json:"domain"`
	Bit         uint8  `json:"bit"`
}

// catalog is the authoritative declaration-ordered permission table.
var catalog = []Permission{
	{OrgRead, "View organization profile and metadata", DomainOrganization, 0},
	{OrgUpdate, "Update organization profile", DomainOrganization, 1},
	{OrgDelete, "Delete the organization", DomainOrganization, 2},
	{OrgMembersRead, "List organization members", DomainOrganization, 3},
	{OrgMembersInvite, "Invite members to the organization", DomainOrganization, 4},
	{OrgMembersRemove, "Remove members from the organization", DomainOrganization, 5},
	{OrgSettingsRead, "View organization settings", DomainOrganization, 6},
	{OrgSettingsWrite, "Update organization settings", DomainOrganization, 7},
	{OrgBillingRead, "View billing information", DomainOrganization, 8},
	{OrgBillingWrite, "Update billing information", DomainOrganization, 9},
	{OrgTeamsCreate, "Create teams in the organization", DomainOrganization, 10},
	{OrgWebhooks, "Manage organization webhooks", DomainOrganization, 11},
	{OrgTransfer, "Transfer organization ownership", DomainOrganization, 12},

	{TeamRead, "View team profile and metadata", DomainTeam, 20},
	{TeamCreate, "Create a team", DomainTeam, 21},
	{TeamUpdate, "Update team profile", DomainTeam, 22},
	{TeamDelete, "Delete the team", DomainTeam, 23},
	{TeamMembersRead, "List team members", DomainTeam, 24},
	{TeamMembersAdd, "Add members to the team", DomainTeam, 25},
	{TeamMembersRemove, "Remove members from the team", DomainTeam, 26},

	{RepoRead, "Read repository contents", DomainRepository, 30},
	{RepoCreate, "Create repositories", DomainRepository, 31},
	{RepoUpdate, "Update repository settings", DomainRepository, 32},
	{RepoDelete, "Delete repositories", DomainRepository, 33},
	{RepoPush, "Push to repositories", DomainRepository, 34},
	{RepoAdmin, "Administer repositories", DomainRepository, 35},
	{RepoVisibility, "Change repository visibility", DomainRepository, 36},

	{DataRead, "Read stored data", DomainData, 40},
	{DataWrite, "Write stored data", DomainData, 41},
	{DataDelete, "Delete stored data", DomainData, 42},
	{DataExport, "Export data", DomainData, 43},
	{DataImport, "Import data", DomainData, 44},

	{IssueRead, "View issues", DomainCollab, 50},
	{IssueCreate, "Create issues", DomainCollab, 51},
	{IssueUpdate, "Update issues", DomainCollab, 52},
	{IssueClose, "Close issues", DomainCollab, 53},
	{PRRead, "View pull requests", DomainCollab, 54},
	{PRCreate, "Create pull requests", DomainCollab, 55},
	{PRMerge, "Merge pull requests", DomainCollab, 56},
	{CommentCreate, "Create comments", DomainCollab, 57},
	{CommentUpdate, "Edit comments", DomainCollab, 58},
	{CommentDelete, "Delete comments", DomainCollab, 59},

	{AdminUsersRead, "List and inspect user accounts", DomainAdmin, 60},
	{AdminUsersSuspend, "Suspend user accounts", DomainAdmin, 61},
	{AdminUsersDelete, "Delete user accounts", DomainAdmin, 62},
	{AdminAuditRead, "Read system audit logs", DomainAdmin, 63},
	{AdminSystemSettings, "Manage system settings", DomainAdmin, 64},
	{AdminTokensRevoke, "Revoke any user's tokens", DomainAdmin, 65},
	{AdminOrgsManage, "Manage any organization", DomainAdmin, 66},
	{AdminImpersonate, "Impersonate user accounts", DomainAdmin, 67},
	{AdminMetricsRead, "Read service metrics", DomainAdmin, 68},

	{PermGrant, "Grant roles to principals", DomainPermissions, 70},
	{PermRevoke, "Revoke roles from principals", DomainPermissions, 71},
	{PermRoleCreate, "Create custom roles", DomainPermissions, 72},
	{PermRoleUpdate, "Update custom roles", DomainPermissions, 73},
	{PermRoleDelete, "Delete custom roles", DomainPermissions, 74},
	{PermAuditRead, "Read the permission audit trail", DomainPermissions, 75},
}

var (
	byName       map[string]int
	byBit        map[uint8]int
	fullSuperset Bitmap
)

func init() {
	byName = make(map[string]int, len(catalog))
	byBit = make(map[uint8]int, len(catalog))
	for i, p := range catalog {
		if _, dup := byName[p.Name]; dup {
			panic("perm: duplicate permission name " + p.Name)
		}
		if _, dup := byBit[p.Bit]; dup {
			panic("perm: duplicate bit assignment " + p.Name)
		}
		byName[p.Name] = i
		byBit[p.Bit] = i
		fullSuperset = fullSuperset.Grant(FromBit(p.Bit))
	}
}

// All returns the catalog in declaration order.
func All() []Permission {
	out := make([]Permission, len(catalog))
	copy(out, catalog)
	return out
}

// FullSuperset is the bitmap with every catalog bit set. Organization owners
// hold it implicitly.
func FullSuperset() Bitmap { return fullSuperset }

// Lookup resolves a permission name to its single-bit bitmap.
func Lookup(name string) (Bitmap, bool) {
	i, ok := byName[name]
	if !ok {
		return Bitmap{}, false
	}
	return FromBit(catalog[i].Bit), true
}

// Describe resolves a bit position to its catalog entry.
func Describe(bit uint8) (Permission, bool) {
	i, ok := byBit[bit]
	if !ok {
		return Permission{}, false
	}
	return catalog[i], true
}

// FromNames folds a permission-name list into a bitmap. Unknown names are
// skipped silently: tokens minted by a newer deployment stay readable.
func FromNames(names []string) Bitmap {
	var b Bitmap
	for _, n := range names {
		if p, ok := Lookup(n); ok {
			b = b.Grant(p)
		}
	}
	return b
}

// Names decodes a bitmap into the catalog names it covers, in declaration
// order. Bits without a catalog entry are ignored.
func (b Bitmap) Names() []string {
	names := make([]string, 0, len(catalog))
	for _, p := range catalog {
		if b.Has(FromBit(p.Bit)) {
			names = append(names, p.Name)
		}
	}
	return names
}

// MustLookup is Lookup for catalog constants; it panics on an unknown name and
// exists for wiring static capability gates.
func MustLookup(name string) Bitmap {
	p, ok := Lookup(name)
	if !ok {
		panic("perm: unknown permission " + name)
	}
	return p
}
