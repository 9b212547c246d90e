package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAdmin      = "admin"      // full account control, catalog CRUD
	RoleSupervisor = "supervisor" // campaign control, stats, DNC management
	RoleAgent      = "agent"      // own status, manual calls, dispositions
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
