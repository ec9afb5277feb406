// Package memory provides an in-memory storage backend.
// It is used by tests and for ephemeral runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// IdentityRepository is an in-memory implementation of database.IdentityWriter
type IdentityRepository struct {
	mu         sync.RWMutex
	identities []database.Identity
	nextID     int64
	now        func() time.Time

	// Error injection
	CreateError error
	ListError   error
	GetError    error
}

// NewIdentityRepository creates a new in-memory identity repository
func NewIdentityRepository() *IdentityRepository {
	return &IdentityRepository{nextID: 1, now: time.Now}
}

// Create stores a copy of the identity and assigns its ID
func (r *IdentityRepository) Create(ctx context.Context, identity *database.Identity) error {
	if r.CreateError != nil {
		return r.CreateError
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	identity.ID = r.nextID
	identity.CreatedAt = r.now().UTC()
	r.nextID++

	stored := *identity
	stored.Embedding = identity.Embedding.Clone()
	r.identities = append(r.identities, stored)
	return nil
}

// Get retrieves an identity by ID
func (r *IdentityRepository) Get(ctx context.Context, id int64) (*database.Identity, error) {
	if r.GetError != nil {
		return nil, r.GetError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.identities {
		if r.identities[i].ID == id {
			out := r.identities[i]
			out.Embedding = out.Embedding.Clone()
			return &out, nil
		}
	}
	return nil, database.ErrNotFound
}

// Exists checks if an identity is enrolled
func (r *IdentityRepository) Exists(ctx context.Context, id int64) (bool, error) {
	if r.GetError != nil {
		return false, r.GetError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.identities {
		if r.identities[i].ID == id {
			return true, nil
		}
	}
	return false, nil
}

// List returns copies of all identities in enrollment order
func (r *IdentityRepository) List(ctx context.Context) ([]database.Identity, error) {
	if r.ListError != nil {
		return nil, r.ListError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]database.Identity, len(r.identities))
	for i, id := range r.identities {
		out[i] = id
		out[i].Embedding = id.Embedding.Clone()
	}
	return out, nil
}

// Count returns the number of identities
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identities), nil
}

// Dimension returns the embedding dimension of the first identity
func (r *IdentityRepository) Dimension(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.identities) == 0 {
		return 0, nil
	}
	return len(r.identities[0].Embedding), nil
}

// AttendanceRepository is an in-memory implementation of database.AttendanceWriter
type AttendanceRepository struct {
	mu         sync.RWMutex
	events     []database.AttendanceEvent
	nextID     int64
	identities database.IdentityReader

	// Error injection
	AppendError error
	ListError   error
}

// NewAttendanceRepository creates a new in-memory attendance repository.
// identities is consulted to enforce the identity reference, like a foreign key.
func NewAttendanceRepository(identities database.IdentityReader) *AttendanceRepository {
	return &AttendanceRepository{nextID: 1, identities: identities}
}

// Append stores the event and assigns its ID
func (r *AttendanceRepository) Append(ctx context.Context, event *database.AttendanceEvent) error {
	if r.AppendError != nil {
		return r.AppendError
	}
	if r.identities != nil {
		ok, err := r.identities.Exists(ctx, event.IdentityID)
		if err != nil {
			return err
		}
		if !ok {
			return database.ErrNotFound
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	event.ID = r.nextID
	event.Timestamp = event.Timestamp.UTC()
	r.nextID++
	r.events = append(r.events, *event)
	return nil
}

// ListRange returns events in [start, end) ordered by timestamp, then ID
func (r *AttendanceRepository) ListRange(ctx context.Context, start, end time.Time) ([]database.AttendanceEvent, error) {
	if r.ListError != nil {
		return nil, r.ListError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []database.AttendanceEvent
	for _, e := range r.events {
		if !start.IsZero() && e.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && !e.Timestamp.Before(end) {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// LatestForIdentity returns the most recent event for the identity at or before the given time
func (r *AttendanceRepository) LatestForIdentity(ctx context.Context, identityID int64, before time.Time) (*database.AttendanceEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *database.AttendanceEvent
	for i := range r.events {
		e := r.events[i]
		if e.IdentityID != identityID || e.Timestamp.After(before) {
			continue
		}
		if latest == nil || e.Timestamp.After(latest.Timestamp) ||
			(e.Timestamp.Equal(latest.Timestamp) && e.ID > latest.ID) {
			latest = &e
		}
	}
	if latest == nil {
		return nil, database.ErrNotFound
	}
	return latest, nil
}

// Count returns the number of events
func (r *AttendanceRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events), nil
}

// Backend is an in-memory database.Backend
type Backend struct {
	identities *IdentityRepository
	attendance *AttendanceRepository
}

// NewBackend creates an empty in-memory backend
func NewBackend() *Backend {
	ids := NewIdentityRepository()
	return &Backend{
		identities: ids,
		attendance: NewAttendanceRepository(ids),
	}
}

// Identities returns the identity repository
func (b *Backend) Identities() database.IdentityWriter { return b.identities }

// Attendance returns the attendance repository
func (b *Backend) Attendance() database.AttendanceWriter { return b.attendance }

// IdentityRepository returns the concrete repository for error injection in tests
func (b *Backend) IdentityRepository() *IdentityRepository { return b.identities }

// AttendanceRepository returns the concrete repository for error injection in tests
func (b *Backend) AttendanceRepository() *AttendanceRepository { return b.attendance }

// Close is a no-op
func (b *Backend) Close() error { return nil }
