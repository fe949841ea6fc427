// Package theme resolves the UI theme from three layers: a session-scoped
// override, the permanent preference and a time-of-day default.
package theme

import (
	"time"

	"github.com/onoacademic/campusid/internal/domain"
)

// Source names the layer a resolved theme came from
type Source string

const (
	SourceSession   Source = "session"
	SourcePermanent Source = "permanent"
	SourceAuto      Source = "auto"
)

// Resolver applies the precedence session > permanent > automatic
type Resolver struct {
	// DayStartHour and DayEndHour bound the light window [start, end)
	DayStartHour int
	DayEndHour   int
	Now          func() time.Time
}

// NewResolver creates a resolver with the given day window
func NewResolver(dayStart, dayEnd int) *Resolver {
	return &Resolver{DayStartHour: dayStart, DayEndHour: dayEnd, Now: time.Now}
}

// AutoDefault returns light inside the day window and dark outside it
func (r *Resolver) AutoDefault() domain.Theme {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	h := now().Hour()
	if h >= r.DayStartHour && h < r.DayEndHour {
		return domain.ThemeLight
	}
	return domain.ThemeDark
}

// Resolve picks the effective theme. nil layers are absent.
func (r *Resolver) Resolve(session, permanent *domain.Theme) (domain.Theme, Source) {
	if session != nil && session.Valid() {
		return *session, SourceSession
	}
	if permanent != nil && permanent.Valid() {
		return *permanent, SourcePermanent
	}
	return r.AutoDefault(), SourceAuto
}
