package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups for a record that does not exist.
var ErrNotFound = errors.New("not found")

// IdentityReader provides read-only access to enrolled identities
type IdentityReader interface {
	// Get retrieves an identity by ID, returns ErrNotFound if missing
	Get(ctx context.Context, id int64) (*Identity, error)
	// Exists checks if an identity with the given ID is enrolled
	Exists(ctx context.Context, id int64) (bool, error)
	// List returns every identity ordered by ID (enrollment order)
	List(ctx context.Context) ([]Identity, error)
	// Count returns the number of enrolled identities
	Count(ctx context.Context) (int, error)
	// Dimension returns the embedding dimension of the first enrolled identity, 0 if none
	Dimension(ctx context.Context) (int, error)
}

// IdentityWriter provides write access to identities
type IdentityWriter interface {
	IdentityReader

	// Create persists a new identity and fills in its ID and CreatedAt
	Create(ctx context.Context, identity *Identity) error
}

// AttendanceReader provides read-only access to the attendance log
type AttendanceReader interface {
	// ListRange returns events with start <= timestamp < end ordered by timestamp, then ID.
	// A zero start or end leaves that side of the range open.
	ListRange(ctx context.Context, start, end time.Time) ([]AttendanceEvent, error)
	// LatestForIdentity returns the most recent event for an identity at or before the given time,
	// or ErrNotFound if there is none
	LatestForIdentity(ctx context.Context, identityID int64, before time.Time) (*AttendanceEvent, error)
	// Count returns the total number of events
	Count(ctx context.Context) (int, error)
}

// AttendanceWriter provides append-only write access to the attendance log
type AttendanceWriter interface {
	AttendanceReader

	// Append stores a new event and fills in its ID.
	// Implementations must reject events whose identity does not exist with ErrNotFound.
	Append(ctx context.Context, event *AttendanceEvent) error
}

// Backend bundles the repositories of one storage engine.
type Backend interface {
	Identities() IdentityWriter
	Attendance() AttendanceWriter
	Close() error
}
