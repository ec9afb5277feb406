// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Matching constants
const (
	// DefaultMatchThreshold is the Euclidean distance below which a face is accepted.
	// Lower values = stricter matching
	DefaultMatchThreshold = 0.6

	// DefaultTopK is the default number of nearest identities listed by diagnostics
	DefaultTopK = 5
)

// Attendance constants
const (
	// DefaultSessionWindow is how long a session-deduplicated event covers repeat sightings
	DefaultSessionWindow = time.Hour

	// ReportTimestampLayout is the display format of report timestamps (always UTC)
	ReportTimestampLayout = "2006-01-02 15:04:05"
)

// Processing constants
const (
	// ExtractorTimeout bounds a single call to the embedding server
	ExtractorTimeout = 30 * time.Second

	// ShutdownTimeout is how long the server waits for in-flight requests on shutdown
	ShutdownTimeout = 30 * time.Second
)
