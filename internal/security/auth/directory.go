package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"slices"
	"strings"
	"sync"

	"github.com/onoacademic/campusid/internal/domain"
)

// DemoAccount is a built-in account used when the primary backend cannot authenticate
type DemoAccount struct {
	ID       string
	Email    string
	FullName string
	Roles    []domain.Role
}

// Directory is the fixed in-memory demo directory keyed by email.
// Every account shares one password.
type Directory struct {
	mu           sync.RWMutex
	accounts     map[string]DemoAccount
	passwordHash [sha256.Size]byte
}

// NewDirectory creates the directory with the default demo accounts
func NewDirectory(sharedPassword string) *Directory {
	d := &Directory{
		accounts:     make(map[string]DemoAccount),
		passwordHash: sha256.Sum256([]byte(sharedPassword)),
	}
	for _, acc := range DefaultDemoAccounts() {
		d.Add(acc)
	}
	return d
}

// DefaultDemoAccounts lists the accounts seeded into every directory
func DefaultDemoAccounts() []DemoAccount {
	return []DemoAccount{
		{ID: "demo_student", Email: "student@ono.ac.il", FullName: "סטודנט לדוגמה", Roles: []domain.Role{domain.RoleStudent}},
		{ID: "demo_lecturer", Email: "lecturer@ono.ac.il", FullName: "מרצה לדוגמה", Roles: []domain.Role{domain.RoleLecturer}},
		{ID: "demo_admin", Email: "admin@ono.ac.il", FullName: "מנהל מערכת", Roles: []domain.Role{domain.RoleAdmin}},
		{ID: "demo_multi", Email: "multi@ono.ac.il", FullName: "משתמש רב תפקידים", Roles: []domain.Role{domain.RoleStudent, domain.RoleLecturer}},
	}
}

// Add registers or replaces an account
func (d *Directory) Add(acc DemoAccount) {
	d.mu.Lock()
	defer d.mu.Unlock()
	acc.Email = normalizeEmail(acc.Email)
	acc.Roles = slices.Clone(acc.Roles)
	d.accounts[acc.Email] = acc
}

// Authenticate matches email against the directory and checks the shared password
func (d *Directory) Authenticate(email, password string) (domain.User, error) {
	u, ok := d.Lookup(email)
	if !ok {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	hash := sha256.Sum256([]byte(password))
	if subtle.ConstantTimeCompare(hash[:], d.passwordHash[:]) != 1 {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return u, nil
}

// Lookup returns the demo user for email
func (d *Directory) Lookup(email string) (domain.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acc, ok := d.accounts[normalizeEmail(email)]
	if !ok {
		return domain.User{}, false
	}
	return domain.User{
		ID:       acc.ID,
		FullName: acc.FullName,
		Email:    acc.Email,
		Roles:    slices.Clone(acc.Roles),
	}, true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
