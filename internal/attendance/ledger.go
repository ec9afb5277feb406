// Package attendance implements the attendance ledger: an append-only log of
// recognition events keyed by identity.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// TimestampLayout is the display format for report timestamps.
const TimestampLayout = constants.ReportTimestampLayout

// IdentityLookup is the non-owning view of the identity store the ledger needs.
type IdentityLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
	Get(ctx context.Context, id int64) (*database.Identity, error)
}

// Ledger owns AttendanceEvent records.
type Ledger struct {
	repo       database.AttendanceWriter
	identities IdentityLookup
	dedup      DedupPolicy

	mu sync.Mutex // serializes writes so dedup checks and appends do not interleave

	// OnRecord, if set, is called after every stored event.
	OnRecord func(database.AttendanceEvent)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithDedup sets the policy used by RecordOnce.
func WithDedup(p DedupPolicy) Option {
	return func(l *Ledger) { l.dedup = p }
}

// NewLedger creates a ledger over the given repository.
func NewLedger(repo database.AttendanceWriter, identities IdentityLookup, opts ...Option) *Ledger {
	l := &Ledger{repo: repo, identities: identities}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dedup returns the configured deduplication policy.
func (l *Ledger) Dedup() DedupPolicy {
	return l.dedup
}

// Record appends an event for identityID at timestamp. No deduplication is performed.
func (l *Ledger) Record(ctx context.Context, identityID int64, timestamp time.Time) (database.AttendanceEvent, error) {
	return l.RecordMatch(ctx, identityID, timestamp, 0)
}

// RecordMatch is Record with the match distance that produced the event.
func (l *Ledger) RecordMatch(ctx context.Context, identityID int64, timestamp time.Time, distance float64) (database.AttendanceEvent, error) {
	if err := l.checkIdentity(ctx, identityID); err != nil {
		return database.AttendanceEvent{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.append(ctx, identityID, timestamp, distance)
}

// RecordOnce records unless the dedup policy finds an earlier event that covers this one.
// When suppressed it returns the covering event and recorded=false.
func (l *Ledger) RecordOnce(ctx context.Context, identityID int64, timestamp time.Time, distance float64) (database.AttendanceEvent, bool, error) {
	if err := l.checkIdentity(ctx, identityID); err != nil {
		return database.AttendanceEvent{}, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dedup.Mode != DedupNone {
		ts := storageTime(timestamp)
		latest, err := l.repo.LatestForIdentity(ctx, identityID, l.dedup.lookupBound(ts))
		switch {
		case errors.Is(err, database.ErrNotFound):
		case err != nil:
			return database.AttendanceEvent{}, false, fmt.Errorf("look up latest event: %w", err)
		case l.dedup.suppresses(latest.Timestamp, ts):
			return *latest, false, nil
		}
	}

	ev, err := l.append(ctx, identityID, timestamp, distance)
	if err != nil {
		return database.AttendanceEvent{}, false, err
	}
	return ev, true, nil
}

func (l *Ledger) checkIdentity(ctx context.Context, identityID int64) error {
	ok, err := l.identities.Exists(ctx, identityID)
	if err != nil {
		return fmt.Errorf("check identity %d: %w", identityID, err)
	}
	if !ok {
		return &UnknownIdentityError{IdentityID: identityID}
	}
	return nil
}

// append must be called with l.mu held.
func (l *Ledger) append(ctx context.Context, identityID int64, timestamp time.Time, distance float64) (database.AttendanceEvent, error) {
	ev := &database.AttendanceEvent{
		IdentityID: identityID,
		Timestamp:  storageTime(timestamp),
		Distance:   distance,
	}
	if err := l.repo.Append(ctx, ev); err != nil {
		// The identity can only vanish between the check and the insert if the
		// storage reports a broken reference.
		if errors.Is(err, database.ErrNotFound) {
			return database.AttendanceEvent{}, &UnknownIdentityError{IdentityID: identityID}
		}
		return database.AttendanceEvent{}, fmt.Errorf("append attendance event: %w", err)
	}

	if l.OnRecord != nil {
		l.OnRecord(*ev)
	}
	return *ev, nil
}

// EventsForRange returns a lazy sequence of events with start <= timestamp < end,
// ordered by timestamp ascending. Storage is queried when iteration starts, so the
// sequence can be ranged over again to re-read the range.
func (l *Ledger) EventsForRange(ctx context.Context, start, end time.Time) iter.Seq2[database.AttendanceEvent, error] {
	return func(yield func(database.AttendanceEvent, error) bool) {
		events, err := l.repo.ListRange(ctx, utcOrZero(start), utcOrZero(end))
		if err != nil {
			yield(database.AttendanceEvent{}, fmt.Errorf("list attendance events: %w", err))
			return
		}
		for _, ev := range events {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// storageTime normalizes t to UTC at microsecond precision, the finest
// resolution TIMESTAMPTZ and DATETIME(6) keep, so a recorded event reads back unchanged.
func storageTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func utcOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
