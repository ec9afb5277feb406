package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
)

// IdentityRepository stores identities with their reference embedding in a pgvector column.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

const identityColumns = "id, display_name, embedding, image_file, created_at"

// Create inserts the identity and fills in ID and CreatedAt.
func (r *IdentityRepository) Create(ctx context.Context, identity *database.Identity) error {
	vec := pgvector.NewVector(identity.Embedding)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO identities (display_name, embedding, image_file)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, identity.DisplayName, vec, identity.ImageFile).Scan(&identity.ID, &identity.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	identity.CreatedAt = identity.CreatedAt.UTC()
	return nil
}

// Get retrieves an identity by ID.
func (r *IdentityRepository) Get(ctx context.Context, id int64) (*database.Identity, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+identityColumns+" FROM identities WHERE id = $1", id)
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity %d: %w", id, err)
	}
	return &identity, nil
}

// Exists checks whether an identity is enrolled.
func (r *IdentityRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM identities WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check identity: %w", err)
	}
	return exists, nil
}

// List returns all identities in enrollment order.
func (r *IdentityRepository) List(ctx context.Context) ([]database.Identity, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+identityColumns+" FROM identities ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []database.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

// Count returns the number of identities.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// Dimension returns the embedding dimension of the first identity, 0 when empty.
func (r *IdentityRepository) Dimension(ctx context.Context) (int, error) {
	var dim int
	err := r.pool.QueryRow(ctx, "SELECT vector_dims(embedding) FROM identities ORDER BY id LIMIT 1").Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read gallery dimension: %w", err)
	}
	return dim, nil
}

func scanIdentity(scanner interface{ Scan(...any) error }) (database.Identity, error) {
	var (
		identity database.Identity
		vec      pgvector.Vector
	)
	if err := scanner.Scan(&identity.ID, &identity.DisplayName, &vec, &identity.ImageFile, &identity.CreatedAt); err != nil {
		return database.Identity{}, err
	}
	identity.Embedding = embedding.Vector(vec.Slice())
	identity.CreatedAt = identity.CreatedAt.UTC()
	return identity, nil
}
