package featureflags

import (
	"os"
	"strings"
)

// Known flags
const (
	// UniquenessFailClosed rejects writes when uniqueness cannot be verified
	UniquenessFailClosed = "uniqueness_fail_closed"
	// LazyRoleProfiles creates a minimal role profile on the first switch into a role
	LazyRoleProfiles = "lazy_role_profiles"
)

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive)
func Enabled(name string) bool {
	return EnabledOr(name, false)
}

// EnabledOr is Enabled with an explicit default for unset flags
func EnabledOr(name string, fallback bool) bool {
	v, ok := os.LookupEnv("FLAG_" + strings.ToUpper(name))
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
