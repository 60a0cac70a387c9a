package auth

// rolePermissions is the single source of truth for which CRUD operations
// each role may perform on business data. Membership-management actions
// (ban, role change) are governed separately by the level hierarchy.
var rolePermissions = map[Role][]Operation{
	RoleAdmin:   {OpCreate, OpRead, OpUpdate, OpDelete},
	RoleManager: {OpCreate, OpRead, OpUpdate},
	RoleMember:  {OpRead},
}

// OperationAllowed reports whether the role may perform the operation.
func OperationAllowed(role Role, op Operation) bool {
	for _, allowed := range rolePermissions[role] {
		if allowed == op {
			return true
		}
	}
	return false
}

// AllowedOperations returns the full operation set for the role, in a
// stable create/read/update/delete order. Unknown roles get nothing.
func AllowedOperations(role Role) []Operation {
	perms := rolePermissions[role]
	out := make([]Operation, len(perms))
	copy(out, perms)
	return out
}
