package database

import (
	"time"

	"github.com/kozaktomas/face-attendance/internal/embedding"
)

// Identity is an enrolled person with one reference embedding.
// Identities are immutable once enrolled.
type Identity struct {
	ID          int64
	DisplayName string
	Embedding   embedding.Vector
	ImageFile   string // Optional reference to the enrollment photo
	CreatedAt   time.Time
}

// Dim returns the dimensionality of the reference embedding.
func (i *Identity) Dim() int {
	return len(i.Embedding)
}

// AttendanceEvent records that an identity was recognized at a point in time.
type AttendanceEvent struct {
	ID         int64     `json:"id"`
	IdentityID int64     `json:"identity_id"`
	Timestamp  time.Time `json:"timestamp"` // Always UTC
	Distance   float64   `json:"distance"`  // Match distance that produced the event (0 for manual records)
}
