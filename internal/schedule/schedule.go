// Package schedule decides which monitors are due for a check.
package schedule

import (
	"sort"
	"time"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/domain"
)

// NextCheckAt returns when m is next due. ok is false for a monitor that has
// never been checked, which is always due.
func NextCheckAt(m domain.Monitor) (next time.Time, ok bool) {
	if m.LastCheckedAt == nil || m.LastCheckedAt.IsZero() {
		return time.Time{}, false
	}
	return m.LastCheckedAt.Add(m.Interval()), true
}

// IsDue reports whether m's interval has elapsed at now. Disabled monitors are
// never due.
func IsDue(m domain.Monitor, now time.Time) bool {
	if !m.Enabled {
		return false
	}
	next, ok := NextCheckAt(m)
	if !ok {
		return true
	}
	return !now.Before(next)
}

// Due returns the monitors due at now, oldest next-check first. It does not
// mutate its input, so repeated calls without a recorded check agree.
func Due(monitors []domain.Monitor, now time.Time) []domain.Monitor {
	out := make([]domain.Monitor, 0, len(monitors))
	for _, m := range monitors {
		if IsDue(m, now) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ni, _ := NextCheckAt(out[i])
		nj, _ := NextCheckAt(out[j])
		return ni.Before(nj)
	})
	return out
}
