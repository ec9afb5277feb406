// Package gallery implements the embedding store: enrollment of identities
// and snapshot reads of the full gallery for matching.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
)

// Store owns Identity records. Enrollment is append-only; the embedding
// dimensionality is locked by the first enrolled identity.
type Store struct {
	repo database.IdentityWriter

	mu  sync.Mutex // serializes enrollment so the dimension lock and the write are atomic
	dim int

	// OnEnroll, if set, is called after every successful enrollment.
	OnEnroll func(database.Identity)
}

// NewStore creates a store over the given repository. A positive dim locks the
// gallery dimensionality up front; otherwise it is taken from the repository
// or from the first enrollment.
func NewStore(ctx context.Context, repo database.IdentityWriter, dim int) (*Store, error) {
	existing, err := repo.Dimension(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading gallery dimension: %w", err)
	}
	if dim > 0 && existing > 0 && dim != existing {
		return nil, &embedding.ValidationError{
			Reason: fmt.Sprintf("configured dimension %d does not match enrolled gallery dimension %d", dim, existing),
		}
	}
	if dim <= 0 {
		dim = existing
	}
	return &Store{repo: repo, dim: dim}, nil
}

// Enroll validates and persists a new identity.
// Returns a *embedding.ValidationError and writes nothing if the input is rejected.
func (s *Store) Enroll(ctx context.Context, displayName string, ref embedding.Vector) (database.Identity, error) {
	return s.EnrollWithImage(ctx, displayName, ref, "")
}

// EnrollWithImage is Enroll with a reference to the enrollment photo.
func (s *Store) EnrollWithImage(ctx context.Context, displayName string, ref embedding.Vector, imageFile string) (database.Identity, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return database.Identity{}, &embedding.ValidationError{Reason: "display name is empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another process sharing the repository may have enrolled since the store was opened.
	if s.dim == 0 {
		existing, err := s.repo.Dimension(ctx)
		if err != nil {
			return database.Identity{}, fmt.Errorf("reading gallery dimension: %w", err)
		}
		s.dim = existing
	}

	if err := embedding.ValidateDim(ref, s.dim); err != nil {
		return database.Identity{}, err
	}

	identity := &database.Identity{
		DisplayName: displayName,
		Embedding:   ref.Clone(),
		ImageFile:   imageFile,
	}
	if err := s.repo.Create(ctx, identity); err != nil {
		return database.Identity{}, fmt.Errorf("enroll %q: %w", displayName, err)
	}
	if s.dim == 0 {
		s.dim = len(ref)
	}

	if s.OnEnroll != nil {
		s.OnEnroll(*identity)
	}
	return *identity, nil
}

// All returns every enrolled identity in enrollment order.
// The slice is a snapshot: later enrollments do not affect it.
func (s *Store) All(ctx context.Context) ([]database.Identity, error) {
	identities, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return identities, nil
}

// Get returns the identity with the given ID, or database.ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*database.Identity, error) {
	identity, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get identity %d: %w", id, err)
	}
	return identity, nil
}

// Exists reports whether an identity with the given ID is enrolled.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check identity %d: %w", id, err)
	}
	return ok, nil
}

// FindByName returns all identities whose normalized display name equals the normalized input.
func (s *Store) FindByName(ctx context.Context, name string) ([]database.Identity, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}

	want := NormalizeName(name)
	var out []database.Identity
	for _, id := range all {
		if NormalizeName(id.DisplayName) == want {
			out = append(out, id)
		}
	}
	return out, nil
}

// Dimension returns the locked embedding dimension, 0 if nothing is enrolled yet.
func (s *Store) Dimension() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dim
}
