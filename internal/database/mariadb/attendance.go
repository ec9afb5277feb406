package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// errNoReferencedRow is ER_NO_REFERENCED_ROW_2.
const errNoReferencedRow = 1452

// AttendanceRepository stores attendance rows.
type AttendanceRepository struct {
	pool *Pool
}

// Append inserts the event in a transaction. A missing student is reported as database.ErrNotFound.
func (r *AttendanceRepository) Append(ctx context.Context, event *database.AttendanceEvent) error {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ts := event.Timestamp.UTC()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO attendance (student_id, timestamp, distance) VALUES (?, ?, ?)",
		event.IdentityID, ts, event.Distance,
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == errNoReferencedRow {
			return database.ErrNotFound
		}
		return fmt.Errorf("insert attendance: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read attendance id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance: %w", err)
	}
	event.ID = id
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
		conds = append(conds, "timestamp >= ?")
		args = append(args, start.UTC())
	}
	if !end.IsZero() {
		conds = append(conds, "timestamp < ?")
		args = append(args, end.UTC())
	}

	query := "SELECT id, student_id, timestamp, distance FROM attendance"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp, id"

	rows, err := r.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var out []database.AttendanceEvent
	for rows.Next() {
		ev, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return out, nil
}

// LatestForIdentity returns the newest event of the student at or before the given time.
func (r *AttendanceRepository) LatestForIdentity(ctx context.Context, identityID int64, before time.Time) (*database.AttendanceEvent, error) {
	row := r.pool.db.QueryRowContext(ctx, `
		SELECT id, student_id, timestamp, distance
		FROM attendance
		WHERE student_id = ? AND timestamp <= ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`, identityID, before.UTC())

	ev, err := scanAttendance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest attendance: %w", err)
	}
	return &ev, nil
}

// Count returns the number of attendance rows.
func (r *AttendanceRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attendance").Scan(&count); err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return count, nil
}

func scanAttendance(scanner interface{ Scan(...any) error }) (database.AttendanceEvent, error) {
	var ev database.AttendanceEvent
	if err := scanner.Scan(&ev.ID, &ev.IdentityID, &ev.Timestamp, &ev.Distance); err != nil {
		return database.AttendanceEvent{}, err
	}
	ev.Timestamp = ev.Timestamp.UTC()
	return ev, nil
}
