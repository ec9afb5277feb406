package recognition

import (
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/matcher"
)

// Outcome is the terminal result of a whole pass.
type Outcome string

const (
	// OutcomeNoFaceDetected means extraction produced no embeddings; the matcher never ran.
	OutcomeNoFaceDetected Outcome = "no_face_detected"
	// OutcomeUnknown means every face was compared and none was accepted.
	OutcomeUnknown Outcome = "unknown"
	// OutcomeRecognized means at least one face matched an identity.
	OutcomeRecognized Outcome = "recognized"
)

// FaceState is where a single face ended up in the pass.
type FaceState string

const (
	StateUnknown FaceState = "unknown"
	StateMatched FaceState = "matched"
	// StateRecorded faces produced a new attendance event.
	StateRecorded FaceState = "recorded"
	// StateDeduplicated faces matched, but an existing event already covers them.
	StateDeduplicated FaceState = "deduplicated"
)

// FaceResult describes one query embedding of the pass.
type FaceResult struct {
	Index       int                       `json:"index"`
	State       FaceState                 `json:"state"`
	IdentityID  int64                     `json:"identity_id,omitempty"`
	DisplayName string                    `json:"name,omitempty"`
	Distance    *float64                  `json:"distance,omitempty"` // nil when nothing was compared
	Event       *database.AttendanceEvent `json:"event,omitempty"`
}

// Pass is the result of one capture-and-recognize request.
type Pass struct {
	ID          string            `json:"id"`
	At          time.Time         `json:"at"`
	Outcome     Outcome           `json:"outcome"`
	Algorithm   matcher.Algorithm `json:"algorithm,omitempty"`
	GallerySize int               `json:"gallery_size"`
	Faces       []FaceResult      `json:"faces"`
}

// Recorded returns the faces that produced a new event.
func (p Pass) Recorded() []FaceResult {
	var out []FaceResult
	for _, f := range p.Faces {
		if f.State == StateRecorded {
			out = append(out, f)
		}
	}
	return out
}

func faceResult(index int, res matcher.Result) FaceResult {
	f := FaceResult{Index: index, State: StateUnknown}
	if res.Compared() {
		d := res.Distance
		f.Distance = &d
	}
	if res.Matched {
		f.State = StateMatched
		f.IdentityID = res.Identity.ID
		f.DisplayName = res.Identity.DisplayName
	}
	return f
}
