// Package recognition runs recognition passes: snapshot the gallery, match every
// captured face and record attendance for the accepted ones.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// DefaultThreshold is the distance below which a face is accepted.
const DefaultThreshold = constants.DefaultMatchThreshold

// ErrExtraction marks failures of the embedding extractor.
var ErrExtraction = errors.New("extract face embeddings")

// Gallery supplies the snapshot a pass matches against.
type Gallery interface {
	All(ctx context.Context) ([]database.Identity, error)
}

// Recorder stores attendance for matched faces.
type Recorder interface {
	RecordOnce(ctx context.Context, identityID int64, timestamp time.Time, distance float64) (database.AttendanceEvent, bool, error)
}

// Extractor turns a captured image into face embeddings.
type Extractor interface {
	FaceEmbeddings(ctx context.Context, image []byte) ([]embedding.Vector, error)
}

// Service runs recognition passes.
type Service struct {
	gallery   Gallery
	recorder  Recorder
	extractor Extractor
	strategy  matcher.Strategy
	threshold float64
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithThreshold sets the acceptance threshold.
func WithThreshold(t float64) Option { return func(s *Service) { s.threshold = t } }

// WithStrategy replaces the exact matcher.
func WithStrategy(st matcher.Strategy) Option { return func(s *Service) { s.strategy = st } }

// WithExtractor enables RecognizeImage.
func WithExtractor(e Extractor) Option { return func(s *Service) { s.extractor = e } }

// WithLogger sets the logger passes report to.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithMetrics enables pass and face metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func withClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a Service using the exact matcher and DefaultThreshold
// unless options say otherwise.
func NewService(gallery Gallery, recorder Recorder, opts ...Option) *Service {
	s := &Service{
		gallery:   gallery,
		recorder:  recorder,
		strategy:  matcher.Exact{},
		threshold: DefaultThreshold,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold returns the acceptance threshold.
func (s *Service) Threshold() float64 { return s.threshold }

// Algorithm returns the matching algorithm in use.
func (s *Service) Algorithm() matcher.Algorithm { return s.strategy.Algorithm() }

// Recognize matches queries against one gallery snapshot and records attendance
// for every accepted face. A zero at means now.
//
// Identities are recorded independently, so a recording error can leave events
// of other identities stored. The Pass returned with such an error reflects
// them: their faces are recorded or deduplicated, the failed ones stay matched.
func (s *Service) Recognize(ctx context.Context, queries []embedding.Vector, at time.Time) (Pass, error) {
	return s.run(ctx, queries, at, true)
}

// Identify is Recognize without recording.
func (s *Service) Identify(ctx context.Context, queries []embedding.Vector) (Pass, error) {
	return s.run(ctx, queries, time.Time{}, false)
}

// RecognizeImage extracts faces from image and runs Recognize on them.
func (s *Service) RecognizeImage(ctx context.Context, image []byte, at time.Time) (Pass, error) {
	if s.extractor == nil {
		return Pass{}, fmt.Errorf("no embedding extractor configured")
	}
	queries, err := s.extractor.FaceEmbeddings(ctx, image)
	if err != nil {
		return Pass{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return s.Recognize(ctx, queries, at)
}

func (s *Service) run(ctx context.Context, queries []embedding.Vector, at time.Time, record bool) (Pass, error) {
	started := s.now()
	if at.IsZero() {
		at = started
	}
	pass := Pass{
		ID:        uuid.NewString(),
		At:        at.UTC(),
		Algorithm: s.strategy.Algorithm(),
		Faces:     []FaceResult{},
	}
	logger := s.logger.With("pass", pass.ID)

	if len(queries) == 0 {
		pass.Outcome = OutcomeNoFaceDetected
		logger.Info("no face detected")
		s.metrics.ObserveFace(string(OutcomeNoFaceDetected), string(pass.Algorithm), 0, false)
		return pass, nil
	}

	gallery, err := s.gallery.All(ctx)
	if err != nil {
		return Pass{}, fmt.Errorf("snapshot gallery: %w", err)
	}
	pass.GallerySize = len(gallery)

	pass.Outcome = OutcomeUnknown
	results := make([]matcher.Result, len(queries))
	for i, q := range queries {
		res, err := s.strategy.Match(q, gallery, s.threshold)
		if err != nil {
			return Pass{}, fmt.Errorf("match face %d: %w", i, err)
		}
		results[i] = res
		pass.Faces = append(pass.Faces, faceResult(i, res))
		if res.Matched {
			pass.Outcome = OutcomeRecognized
		}
	}

	if record {
		if err := s.record(ctx, &pass, results); err != nil {
			logger.Error("recording attendance failed", "error", err)
			return pass, err
		}
	}

	for i, f := range pass.Faces {
		logger.Info("face processed",
			"face", f.Index,
			"state", f.State,
			"identity", f.IdentityID,
			"distance", results[i].Distance,
		)
		s.metrics.ObserveFace(string(f.State), string(pass.Algorithm), results[i].Distance, results[i].Compared())
	}
	s.metrics.ObservePass(s.now().Sub(started).Seconds(), pass.GallerySize)
	return pass, nil
}

// record stores one event per matched identity. When several faces of a pass
// match the same identity only the closest one is recorded.
func (s *Service) record(ctx context.Context, pass *Pass, results []matcher.Result) error {
	primary := make(map[int64]int)
	for i, res := range results {
		if !res.Matched {
			continue
		}
		j, seen := primary[res.Identity.ID]
		if !seen || res.Distance < results[j].Distance {
			primary[res.Identity.ID] = i
		}
	}

	events := make([]database.AttendanceEvent, len(results))
	stored := make([]bool, len(results))
	done := make([]bool, len(results))

	// Identities are recorded independently; one failure does not cancel the rest.
	var g errgroup.Group
	for id, i := range primary {
		g.Go(func() error {
			ev, recorded, err := s.recorder.RecordOnce(ctx, id, pass.At, results[i].Distance)
			if err != nil {
				s.metrics.Attendance("error")
				return fmt.Errorf("record face %d: %w", i, err)
			}
			events[i] = ev
			stored[i] = recorded
			done[i] = true
			return nil
		})
	}
	err := g.Wait()

	for i := range pass.Faces {
		f := &pass.Faces[i]
		if f.State != StateMatched {
			continue
		}
		j := primary[f.IdentityID]
		if !done[j] {
			continue
		}
		ev := events[j]
		f.Event = &ev
		switch {
		case i == j && stored[i]:
			f.State = StateRecorded
			s.metrics.Attendance("recorded")
		default:
			f.State = StateDeduplicated
			s.metrics.Attendance("deduplicated")
		}
	}
	return err
}
