package credentials

// RoleValidator defines the interface for role-based access control validation
type RoleValidator interface {
	// CanRead checks if the role can read resources
	CanRead() bool

	// CanEdit checks if the role can edit resources
	CanEdit() bool

	// CanCreate checks if the role can create resources
	CanCreate() bool

	// CanDelete checks if the role can delete resources
	CanDelete() bool

	// IsAtLeast checks if the user's role is at least the minimum required role
	IsAtLeast(minRole UserRole) bool
}

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleViewer, RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanRead checks if this role can read resources
func (r UserRole) CanRead() bool {
	switch r {
	case RoleViewer, RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanEdit checks if this role can edit resources
func (r UserRole) CanEdit() bool {
	switch r {
	case RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanCreate checks if this role can create resources
func (r UserRole) CanCreate() bool {
	switch r {
	case RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanDelete checks if this role can delete resources
func (r UserRole) CanDelete() bool {
	return r == RoleAdmin
}

// IsAtLeast checks if this role meets the minimum required level
func (r UserRole) IsAtLeast(minRole UserRole) bool {
	roleHierarchy := map[UserRole]int{
		RoleViewer: 0,
		RoleEditor: 1,
		RoleAdmin:  2,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleViewer,
		RoleEditor,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}
