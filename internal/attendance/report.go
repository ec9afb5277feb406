package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// ReportRow is one line of the attendance report.
type ReportRow struct {
	EventID     int64  `json:"event_id"`
	IdentityID  int64  `json:"identity_id"`
	DisplayName string `json:"name"`
	Timestamp   string `json:"timestamp"` // UTC, TimestampLayout
}

// Report joins events in [start, end) with identity display names, ordered by timestamp.
func (l *Ledger) Report(ctx context.Context, start, end time.Time) ([]ReportRow, error) {
	names := make(map[int64]string)
	var rows []ReportRow

	for ev, err := range l.EventsForRange(ctx, start, end) {
		if err != nil {
			return nil, err
		}

		name, ok := names[ev.IdentityID]
		if !ok {
			identity, err := l.identities.Get(ctx, ev.IdentityID)
			switch {
			case errors.Is(err, database.ErrNotFound):
				return nil, &UnknownIdentityError{IdentityID: ev.IdentityID}
			case err != nil:
				return nil, fmt.Errorf("get identity %d: %w", ev.IdentityID, err)
			}
			name = identity.DisplayName
			names[ev.IdentityID] = name
		}

		rows = append(rows, ReportRow{
			EventID:     ev.ID,
			IdentityID:  ev.IdentityID,
			DisplayName: name,
			Timestamp:   FormatTimestamp(ev.Timestamp),
		})
	}
	return rows, nil
}

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
