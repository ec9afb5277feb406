package attendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// DedupMode selects how RecordOnce suppresses repeated events.
type DedupMode int

const (
	// DedupNone records every call.
	DedupNone DedupMode = iota
	// DedupPerDay keeps at most one event per identity per UTC calendar day.
	DedupPerDay
	// DedupPerSession suppresses events within Window of the previous one.
	DedupPerSession
)

// DefaultSessionWindow is used by DedupPerSession when Window is not set.
const DefaultSessionWindow = constants.DefaultSessionWindow

// DedupPolicy configures RecordOnce. The zero value disables deduplication.
type DedupPolicy struct {
	Mode   DedupMode
	Window time.Duration
}

// ParseDedupPolicy builds a policy from config values ("none", "day", "session").
func ParseDedupPolicy(mode string, window time.Duration) (DedupPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "none":
		return DedupPolicy{Mode: DedupNone}, nil
	case "day":
		return DedupPolicy{Mode: DedupPerDay}, nil
	case "session":
		if window <= 0 {
			window = DefaultSessionWindow
		}
		return DedupPolicy{Mode: DedupPerSession, Window: window}, nil
	default:
		return DedupPolicy{}, fmt.Errorf("unknown dedup mode %q (want none, day or session)", mode)
	}
}

func (p DedupPolicy) String() string {
	switch p.Mode {
	case DedupPerDay:
		return "day"
	case DedupPerSession:
		return "session(" + p.Window.String() + ")"
	default:
		return "none"
	}
}

// lookupBound returns the latest instant an existing event may have to suppress ts.
func (p DedupPolicy) lookupBound(ts time.Time) time.Time {
	if p.Mode == DedupPerDay {
		return dayStart(ts).Add(24*time.Hour - time.Nanosecond)
	}
	return ts
}

// suppresses reports whether an existing event makes a new one at ts redundant.
func (p DedupPolicy) suppresses(existing, ts time.Time) bool {
	switch p.Mode {
	case DedupPerDay:
		return dayStart(existing).Equal(dayStart(ts))
	case DedupPerSession:
		window := p.Window
		if window <= 0 {
			window = DefaultSessionWindow
		}
		return ts.Sub(existing) < window
	default:
		return false
	}
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
