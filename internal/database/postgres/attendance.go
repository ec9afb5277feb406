package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// foreignKeyViolation is the SQLSTATE for a broken REFERENCES constraint.
const foreignKeyViolation = "23503"

// AttendanceRepository stores attendance events.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// Append inserts the event inside a transaction. A missing identity is
// reported as database.ErrNotFound.
func (r *AttendanceRepository) Append(ctx context.Context, event *database.AttendanceEvent) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ts := event.Timestamp.UTC()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO attendance_events (identity_id, ts, distance)
		VALUES ($1, $2, $3)
		RETURNING id
	`, event.IdentityID, ts, event.Distance).Scan(&event.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == foreignKeyViolation {
			return database.ErrNotFound
		}
		return fmt.Errorf("insert attendance event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance event: %w", err)
	}
	event.Timestamp = ts
	return nil
}

// ListRange returns events in [start, end); zero bounds are open.
func (r *AttendanceRepository) ListRange(ctx context.Context, start, end time.Time) ([]database.AttendanceEvent, error) {
	var (
		conds []string
		args  []any
	)
	if !start.IsZero() {
		args = append(args, start.UTC())
		conds = append(conds, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if !end.IsZero() {
		args = append(args, end.UTC())
		conds = append(conds, fmt.Sprintf("ts < $%d", len(args)))
	}

	query := "SELECT id, identity_id, ts, distance FROM attendance_events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts, id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance events: %w", err)
	}
	defer rows.Close()

	var out []database.AttendanceEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance events: %w", err)
	}
	return out, nil
}

// LatestForIdentity returns the newest event of the identity at or before the given time.
func (r *AttendanceRepository) LatestForIdentity(ctx context.Context, identityID int64, before time.Time) (*database.AttendanceEvent, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, identity_id, ts, distance
		FROM attendance_events
		WHERE identity_id = $1 AND ts <= $2
		ORDER BY ts DESC, id DESC
		LIMIT 1
	`, identityID, before.UTC())

	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest attendance event: %w", err)
	}
	return &ev, nil
}

// Count returns the number of events.
func (r *AttendanceRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM attendance_events").Scan(&count); err != nil {
		return 0, fmt.Errorf("count attendance events: %w", err)
	}
	return count, nil
}

func scanEvent(scanner interface{ Scan(...any) error }) (database.AttendanceEvent, error) {
	var ev database.AttendanceEvent
	if err := scanner.Scan(&ev.ID, &ev.IdentityID, &ev.Timestamp, &ev.Distance); err != nil {
		return database.AttendanceEvent{}, err
	}
	ev.Timestamp = ev.Timestamp.UTC()
	return ev, nil
}
