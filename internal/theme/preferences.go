package theme

import (
	"fmt"

	"github.com/onoacademic/campusid/internal/domain"
	"github.com/onoacademic/campusid/internal/infrastructure/bolt"
	"github.com/onoacademic/campusid/pkg/cache"
)

// PermanentKey is the durable cache key of the permanent preference
const PermanentKey = "theme_preference"

// Preferences stores the session layer in memory and the permanent layer in
// the durable local cache.
type Preferences struct {
	session *cache.Cache[domain.Theme]
	local   domain.LocalStorage
}

// NewPreferences creates the two storage layers
func NewPreferences(local domain.LocalStorage) *Preferences {
	return &Preferences{session: cache.New[domain.Theme](), local: local}
}

// Session returns the session-scoped theme of a user
func (p *Preferences) Session(userID string) *domain.Theme {
	t, ok := p.session.Get(userID)
	if !ok {
		return nil
	}
	return &t
}

// SetSession applies t for the current login session only
func (p *Preferences) SetSession(userID string, t domain.Theme) {
	p.session.Set(userID, t, 0)
}

// ClearSession drops the session layer of a user
func (p *Preferences) ClearSession(userID string) {
	p.session.Delete(userID)
}

// Durable reads the permanent preference copy from the local cache
func (p *Preferences) Durable() (*domain.Theme, error) {
	t, ok, err := bolt.Load[domain.Theme](p.local, PermanentKey)
	if err != nil {
		return nil, err
	}
	if !ok || !t.Valid() {
		return nil, nil
	}
	return &t, nil
}

// SetDurable writes (or with nil removes) the permanent preference copy
func (p *Preferences) SetDurable(t *domain.Theme) error {
	if t == nil {
		return p.local.Remove(PermanentKey)
	}
	if err := bolt.Save(p.local, PermanentKey, *t); err != nil {
		return fmt.Errorf("failed to store theme preference: %w", err)
	}
	return nil
}

// Permanent reconciles the user record with the durable copy. The user record
// wins whenever they disagree, an absent preference included, and the durable
// copy is rewritten to match. Without a user only the durable copy is read.
func (p *Preferences) Permanent(u *domain.User) (*domain.Theme, error) {
	durable, err := p.Durable()
	if err != nil {
		return nil, err
	}
	if u == nil {
		return durable, nil
	}
	if sameTheme(durable, u.ThemePreference) {
		return durable, nil
	}
	var record *domain.Theme
	if u.ThemePreference != nil && u.ThemePreference.Valid() {
		t := *u.ThemePreference
		record = &t
	}
	if err := p.SetDurable(record); err != nil {
		return nil, err
	}
	return record, nil
}

func sameTheme(a, b *domain.Theme) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
