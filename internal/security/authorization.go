package security

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/onoacademic/campusid/internal/domain"
)

// Permission represents an action permission
type Permission string

const (
	PermReadEntities Permission = "read_entities"
	PermManageUsers  Permission = "manage_users"
	PermViewAuditLog Permission = "view_audit_log"
)

// WritePermission is the permission to create, update and delete records of a collection
func WritePermission(collection string) Permission {
	return Permission("write:" + collection)
}

func writeAll(collections ...string) []Permission {
	out := make([]Permission, 0, len(collections))
	for _, c := range collections {
		out = append(out, WritePermission(c))
	}
	return out
}

// RolePermissions maps roles to their permissions
var RolePermissions = map[domain.Role][]Permission{
	domain.RoleAdmin: append([]Permission{
		PermReadEntities,
		PermManageUsers,
		PermViewAuditLog,
	}, writeAll(domain.Collections...)...),
	domain.RoleLecturer: append([]Permission{PermReadEntities}, writeAll(
		domain.CollectionCourses,
		domain.CollectionFiles,
		domain.CollectionMessages,
		domain.CollectionNotifications,
	)...),
	domain.RoleStudent: append([]Permission{PermReadEntities}, writeAll(
		domain.CollectionMessages,
		domain.CollectionFiles,
	)...),
}

// AuthorizationService handles authorization checks
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{logger: logger}
}

// HasPermission checks if a role has a specific permission
func (as *AuthorizationService) HasPermission(role domain.Role, permission Permission) bool {
	return slices.Contains(RolePermissions[role], permission)
}

// ValidatePermission returns an error wrapping domain.ErrForbidden when role lacks permission
func (as *AuthorizationService) ValidatePermission(role domain.Role, permission Permission) error {
	if !as.HasPermission(role, permission) {
		as.logger.Warn("permission denied",
			slog.String("role", string(role)),
			slog.String("permission", string(permission)),
		)
		return fmt.Errorf("%w: %s role cannot %s", domain.ErrForbidden, role, permission)
	}
	return nil
}

// GetRolePermissions returns all permissions for a role
func (as *AuthorizationService) GetRolePermissions(role domain.Role) []Permission {
	return slices.Clone(RolePermissions[role])
}
