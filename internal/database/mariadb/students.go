package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// StudentRepository maps identities onto the student table.
type StudentRepository struct {
	pool *Pool
}

const studentColumns = "id, name, image_file, embedding, dim, created_at"

// Create inserts the identity and fills in ID and CreatedAt.
func (r *StudentRepository) Create(ctx context.Context, identity *database.Identity) error {
	now := time.Now().UTC()
	res, err := r.pool.db.ExecContext(ctx,
		"INSERT INTO student (name, image_file, embedding, dim, created_at) VALUES (?, ?, ?, ?, ?)",
		identity.DisplayName, identity.ImageFile, encodeEmbedding(identity.Embedding), len(identity.Embedding), now,
	)
	if err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read student id: %w", err)
	}
	identity.ID = id
	identity.CreatedAt = now
	return nil
}

// Get retrieves a student by ID.
func (r *StudentRepository) Get(ctx context.Context, id int64) (*database.Identity, error) {
	row := r.pool.db.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM student WHERE id = ?", id)
	identity, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student %d: %w", id, err)
	}
	return &identity, nil
}

// Exists checks whether a student is enrolled.
func (r *StudentRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM student WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check student: %w", err)
	}
	return exists, nil
}

// List returns all students in enrollment order.
func (r *StudentRepository) List(ctx context.Context) ([]database.Identity, error) {
	rows, err := r.pool.db.QueryContext(ctx, "SELECT "+studentColumns+" FROM student ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var out []database.Identity
	for rows.Next() {
		identity, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return out, nil
}

// Count returns the number of students.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM student").Scan(&count); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

// Dimension returns the embedding dimension of the first student, 0 when empty.
func (r *StudentRepository) Dimension(ctx context.Context) (int, error) {
	var dim int
	err := r.pool.db.QueryRowContext(ctx, "SELECT dim FROM student ORDER BY id LIMIT 1").Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read gallery dimension: %w", err)
	}
	return dim, nil
}

func scanStudent(scanner interface{ Scan(...any) error }) (database.Identity, error) {
	var (
		identity database.Identity
		blob     []byte
		dim      int
	)
	if err := scanner.Scan(&identity.ID, &identity.DisplayName, &identity.ImageFile, &blob, &dim, &identity.CreatedAt); err != nil {
		return database.Identity{}, err
	}
	v, err := decodeEmbedding(blob, dim)
	if err != nil {
		return database.Identity{}, fmt.Errorf("student %d: %w", identity.ID, err)
	}
	identity.Embedding = v
	identity.CreatedAt = identity.CreatedAt.UTC()
	return identity, nil
}
