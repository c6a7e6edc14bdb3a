package rbac

import (
	"slices"

	"credanchor/internal/domain"
)

const DefaultAdminRole = "credanchor_admin"

// Authorizer gates record administration on a single operator role.
type Authorizer struct {
	adminRole string
}

func NewAuthorizer() *Authorizer {
	return &Authorizer{adminRole: DefaultAdminRole}
}

func (a *Authorizer) RequireAdmin(principal domain.Principal) error {
	if principal.Subject == "" {
		return domain.ErrUnauthorized
	}
	if !slices.Contains(principal.Roles, a.adminRole) {
		return domain.ErrForbidden
	}
	return nil
}
