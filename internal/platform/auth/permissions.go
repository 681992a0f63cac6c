package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	domain "github.com/hanko-field/quotations/internal/domain"
)

// ErrPermissionDenied reports a caller lacking the capability for an action.
var ErrPermissionDenied = errors.New("auth: permission denied")

var defaultOwnerActions = []string{"read", "update", "cancel:item", "move:item"}

// RolePermissionChecker authorises quotation actions from the caller identity stored in context.
// Verified service principals and admins may do anything, staff act within the shops they operate, and
// owners perform the owner actions on resources scoped to their account.
type RolePermissionChecker struct {
	ownerActions []string
}

// PermissionOption customises RolePermissionChecker.
type PermissionOption func(*RolePermissionChecker)

// WithOwnerActions replaces the actions owners may perform on their own resources.
func WithOwnerActions(actions ...string) PermissionOption {
	return func(c *RolePermissionChecker) {
		c.ownerActions = c.ownerActions[:0]
		for _, action := range actions {
			if action = strings.TrimSpace(action); action != "" {
				c.ownerActions = append(c.ownerActions, action)
			}
		}
	}
}

// NewRolePermissionChecker constructs the checker.
func NewRolePermissionChecker(opts ...PermissionOption) *RolePermissionChecker {
	c := &RolePermissionChecker{ownerActions: slices.Clone(defaultOwnerActions)}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Validate returns nil when the caller may perform action on capability within scope.
func (c *RolePermissionChecker) Validate(ctx context.Context, capability, action string, scope domain.PermissionScope) error {
	if _, ok := ServiceIdentityFromContext(ctx); ok {
		return nil
	}
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: unauthenticated caller for %s %s", ErrPermissionDenied, action, capability)
	}
	switch {
	case identity.HasRole(RoleAdmin):
		return nil
	case identity.HasRole(RoleStaff) && identity.OperatesShop(scope.ShopID):
		return nil
	case scope.OwnerID != "" && scope.OwnerID == identity.UID && slices.Contains(c.ownerActions, action):
		return nil
	}
	return fmt.Errorf("%w: %s may not %s %s", ErrPermissionDenied, identity.UID, action, capability)
}
