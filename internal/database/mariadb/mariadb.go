// Package mariadb stores the gallery and the attendance log in MariaDB/MySQL,
// using the student/attendance schema shared with existing attendance databases.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool. Timestamps are always read
// and written in UTC regardless of the DSN.
func NewPool(dsn string, maxOpen, maxIdle int) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	if maxOpen <= 0 {
		maxOpen = 5
	}
	if maxIdle <= 0 {
		maxIdle = 2
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS student (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		image_file VARCHAR(255) NOT NULL DEFAULT '',
		embedding MEDIUMBLOB NOT NULL,
		dim INT NOT NULL,
		created_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		student_id BIGINT NOT NULL,
		timestamp DATETIME(6) NOT NULL,
		distance DOUBLE NOT NULL DEFAULT 0,
		INDEX idx_attendance_timestamp (timestamp, id),
		INDEX idx_attendance_student (student_id, timestamp),
		CONSTRAINT fk_attendance_student FOREIGN KEY (student_id) REFERENCES student(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the tables when they do not exist.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Backend bundles the MariaDB repositories over one pool.
type Backend struct {
	pool       *Pool
	identities *StudentRepository
	attendance *AttendanceRepository
}

// Open connects, creates the schema and returns the backend.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int) (*Backend, error) {
	pool, err := NewPool(dsn, maxOpen, maxIdle)
	if err != nil {
		return nil, err
	}
	if err := pool.EnsureSchema(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return NewBackend(pool), nil
}

// NewBackend wraps a pool whose schema already exists.
func NewBackend(pool *Pool) *Backend {
	return &Backend{
		pool:       pool,
		identities: &StudentRepository{pool: pool},
		attendance: &AttendanceRepository{pool: pool},
	}
}

func (b *Backend) Identities() database.IdentityWriter { return b.identities }

func (b *Backend) Attendance() database.AttendanceWriter { return b.attendance }

// Close closes the pool.
func (b *Backend) Close() error { return b.pool.Close() }
