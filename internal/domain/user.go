package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Role is one of the roles a single account may hold simultaneously
type Role string

const (
	RoleStudent  Role = "student"
	RoleLecturer Role = "lecturer"
	RoleAdmin    Role = "admin"
)

// rolePriority orders roles for picking a default current role
var rolePriority = []Role{RoleAdmin, RoleLecturer, RoleStudent}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return slices.Contains(rolePriority, r)
}

// ParseRole converts a raw string into a Role
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Theme is a UI color scheme preference
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid reports whether t is a supported theme
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// ParseTheme converts a raw string into a Theme
func ParseTheme(s string) (Theme, error) {
	t := Theme(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown theme %q", s)
	}
	return t, nil
}

// User is the identity record shared by every role an account holds
type User struct {
	ID              string    `json:"id"`
	FullName        string    `json:"full_name"`
	Email           string    `json:"email"`
	NationalID      string    `json:"national_id"`
	Roles           []Role    `json:"roles"`
	CurrentRole     Role      `json:"current_role,omitempty"`
	ThemePreference *Theme    `json:"theme_preference"`
	PasswordHash    string    `json:"password_hash,omitempty"`
	CreatedDate     time.Time `json:"created_date,omitzero"`
	UpdatedDate     time.Time `json:"updated_date,omitzero"`
}

// HasRole reports whether the user holds role r
func (u *User) HasRole(r Role) bool {
	return slices.Contains(u.Roles, r)
}

// AddRoles grants roles without ever removing an existing one
func (u *User) AddRoles(roles ...Role) {
	for _, r := range roles {
		if r.Valid() && !u.HasRole(r) {
			u.Roles = append(u.Roles, r)
		}
	}
}

// DefaultRole picks the highest priority role the user holds (admin > lecturer > student)
func (u *User) DefaultRole() Role {
	for _, r := range rolePriority {
		if u.HasRole(r) {
			return r
		}
	}
	return ""
}

// ReconcileCurrentRole makes sure CurrentRole references a held role.
// It returns true when the value had to be corrected.
func (u *User) ReconcileCurrentRole() bool {
	if u.CurrentRole != "" && u.HasRole(u.CurrentRole) {
		return false
	}
	next := u.DefaultRole()
	changed := next != u.CurrentRole
	u.CurrentRole = next
	return changed
}

// Session is the derived view of an authenticated user and the active role
type Session struct {
	User           User   `json:"user"`
	CurrentRole    Role   `json:"current_role"`
	AvailableRoles []Role `json:"available_roles"`
}

// NewSession rebuilds a session from a user record.
// AvailableRoles is recomputed and CurrentRole is always one of them.
func NewSession(u User) Session {
	u.ReconcileCurrentRole()
	return Session{
		User:           u,
		CurrentRole:    u.CurrentRole,
		AvailableRoles: slices.Clone(u.Roles),
	}
}
