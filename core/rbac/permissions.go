package rbac

// Permission is a single capability token. Tokens come in three scope
// variants: a bare token (or ".all") grants the action globally,
// ".department" limits it to incidents of the principal's department,
// ".own" to incidents the principal reported.
type Permission string

const (
	PermIncidentsCreate         Permission = "incidents.create"
	PermIncidentsView           Permission = "incidents.view"
	PermIncidentsViewAll        Permission = "incidents.view.all"
	PermIncidentsViewDepartment Permission = "incidents.view.department"
	PermIncidentsViewOwn        Permission = "incidents.view.own"
	PermIncidentsUpdate         Permission = "incidents.update"
	PermIncidentsAssign         Permission = "incidents.assign"
	PermIncidentsNote           Permission = "incidents.note"
	PermDepartmentsManage       Permission = "departments.manage"
	PermElectionsAccess         Permission = "elections.access"
	PermAuditView               Permission = "audit.view"
)

const (
	RoleCitizen           = "citizen"
	RoleResponseUnit      = "response_unit"
	RoleRegionalAuthority = "regional_authority"
	RoleDataAnalyst       = "data_analyst"
	RoleAdmin             = "admin"
)

type Role struct {
	Name        string
	Permissions []Permission
}

// DefaultRoles is the fixed role/capability matrix. There is no
// runtime role editing; absence of a grant is always a denial.
func DefaultRoles() []Role {
	return []Role{
		{
			Name: RoleCitizen,
			Permissions: []Permission{
				PermIncidentsCreate,
				PermIncidentsViewOwn,
			},
		},
		{
			Name: RoleResponseUnit,
			Permissions: []Permission{
				PermIncidentsViewDepartment,
				PermIncidentsUpdate + ".department",
				PermIncidentsNote + ".department",
			},
		},
		{
			Name: RoleRegionalAuthority,
			Permissions: []Permission{
				PermIncidentsViewAll,
				PermIncidentsUpdate,
				PermIncidentsAssign,
				PermIncidentsNote,
			},
		},
		{
			Name: RoleDataAnalyst,
			Permissions: []Permission{
				PermIncidentsViewAll,
				PermElectionsAccess,
			},
		},
		{
			Name: RoleAdmin,
			Permissions: []Permission{
				PermIncidentsCreate,
				PermIncidentsViewAll,
				PermIncidentsUpdate,
				PermIncidentsAssign,
				PermIncidentsNote,
				PermDepartmentsManage,
				PermElectionsAccess,
				PermAuditView,
			},
		},
	}
}
