package recognition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/memory"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

var fixedNow = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

type fixture struct {
	backend *memory.Backend
	store   *gallery.Store
	ledger  *attendance.Ledger
	svc     *Service
	alice   database.Identity
	bob     database.Identity
}

func newFixture(t *testing.T, ledgerOpts []attendance.Option, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	b := memory.NewBackend()

	store, err := gallery.NewStore(ctx, b.Identities(), 0)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	alice, err := store.Enroll(ctx, "Alice", embedding.Vector{0, 0})
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	bob, err := store.Enroll(ctx, "Bob", embedding.Vector{1, 1})
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	ledger := attendance.NewLedger(b.Attendance(), store, ledgerOpts...)
	opts = append([]Option{withClock(func() time.Time { return fixedNow })}, opts...)

	return &fixture{
		backend: b,
		store:   store,
		ledger:  ledger,
		svc:     NewService(store, ledger, opts...),
		alice:   alice,
		bob:     bob,
	}
}

func (f *fixture) eventCount(t *testing.T) int {
	t.Helper()
	n, err := f.backend.Attendance().Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	return n
}

func TestRecognize_NoFaceDetected(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.IdentityRepository().ListError = errors.New("must not be read")

	pass, err := f.svc.Recognize(context.Background(), nil, time.Time{})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if pass.Outcome != OutcomeNoFaceDetected {
		t.Errorf("Outcome = %q, want %q", pass.Outcome, OutcomeNoFaceDetected)
	}
	if pass.ID == "" {
		t.Error("expected a pass id")
	}
	if f.eventCount(t) != 0 {
		t.Error("no event may be recorded")
	}
}

func TestRecognize_MatchedFaceIsRecorded(t *testing.T) {
	f := newFixture(t, nil)

	pass, err := f.svc.Recognize(context.Background(), []embedding.Vector{{0.1, 0}}, time.Time{})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if pass.Outcome != OutcomeRecognized {
		t.Fatalf("Outcome = %q, want recognized", pass.Outcome)
	}
	if pass.GallerySize != 2 || pass.Algorithm != "exact-v1" {
		t.Errorf("unexpected pass metadata: %+v", pass)
	}
	if !pass.At.Equal(fixedNow) {
		t.Errorf("At = %v, want %v", pass.At, fixedNow)
	}

	face := pass.Faces[0]
	if face.State != StateRecorded || face.IdentityID != f.alice.ID || face.DisplayName != "Alice" {
		t.Errorf("unexpected face result: %+v", face)
	}
	if face.Event == nil || face.Event.IdentityID != f.alice.ID || !face.Event.Timestamp.Equal(fixedNow) {
		t.Errorf("unexpected event: %+v", face.Event)
	}
	if len(pass.Recorded()) != 1 || f.eventCount(t) != 1 {
		t.Errorf("expected exactly one recorded event")
	}
}

func TestRecognize_UnknownFaceNotRecorded(t *testing.T) {
	f := newFixture(t, nil)

	pass, err := f.svc.Recognize(context.Background(), []embedding.Vector{{5, 5}}, fixedNow)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if pass.Outcome != OutcomeUnknown {
		t.Errorf("Outcome = %q, want unknown", pass.Outcome)
	}
	face := pass.Faces[0]
	if face.State != StateUnknown || face.Event != nil || face.Distance == nil {
		t.Errorf("unexpected face result: %+v", face)
	}
	if f.eventCount(t) != 0 {
		t.Error("unknown face must not be recorded")
	}
}

func TestRecognize_EmptyGalleryIsUnknown(t *testing.T) {
	b := memory.NewBackend()
	store, _ := gallery.NewStore(context.Background(), b.Identities(), 0)
	svc := NewService(store, attendance.NewLedger(b.Attendance(), store))

	pass, err := svc.Recognize(context.Background(), []embedding.Vector{{1, 2}}, fixedNow)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if pass.Outcome != OutcomeUnknown || pass.Faces[0].Distance != nil {
		t.Errorf("expected unknown without distance, got %+v", pass)
	}
}

func TestRecognize_MultipleFaces(t *testing.T) {
	f := newFixture(t, nil)
	queries := []embedding.Vector{{0, 0.1}, {9, 9}, {1, 0.9}}

	pass, err := f.svc.Recognize(context.Background(), queries, fixedNow)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	want := []struct {
		state FaceState
		id    int64
	}{
		{StateRecorded, f.alice.ID},
		{StateUnknown, 0},
		{StateRecorded, f.bob.ID},
	}
	for i, w := range want {
		if pass.Faces[i].State != w.state || pass.Faces[i].IdentityID != w.id {
			t.Errorf("face %d = %+v, want %s/%d", i, pass.Faces[i], w.state, w.id)
		}
	}
	if f.eventCount(t) != 2 {
		t.Errorf("expected 2 events, got %d", f.eventCount(t))
	}
}

func TestRecognize_SameIdentityTwiceRecordedOnce(t *testing.T) {
	f := newFixture(t, nil)
	queries := []embedding.Vector{{0.3, 0}, {0.1, 0}}

	pass, err := f.svc.Recognize(context.Background(), queries, fixedNow)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if pass.Faces[1].State != StateRecorded {
		t.Errorf("closest face should be recorded, got %s", pass.Faces[1].State)
	}
	if pass.Faces[0].State != StateDeduplicated || pass.Faces[0].Event.ID != pass.Faces[1].Event.ID {
		t.Errorf("farther face should share the event, got %+v", pass.Faces[0])
	}
	if f.eventCount(t) != 1 {
		t.Errorf("expected 1 event, got %d", f.eventCount(t))
	}
}

func TestRecognize_DedupAcrossPasses(t *testing.T) {
	f := newFixture(t, []attendance.Option{attendance.WithDedup(attendance.DedupPolicy{Mode: attendance.DedupPerDay})})
	ctx := context.Background()
	q := []embedding.Vector{{0, 0}}

	if _, err := f.svc.Recognize(ctx, q, fixedNow); err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	pass, err := f.svc.Recognize(ctx, q, fixedNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if pass.Faces[0].State != StateDeduplicated {
		t.Errorf("State = %s, want deduplicated", pass.Faces[0].State)
	}
	if f.eventCount(t) != 1 {
		t.Errorf("expected 1 event, got %d", f.eventCount(t))
	}
}

func TestRecognize_DimensionMismatchAborts(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Recognize(context.Background(), []embedding.Vector{{0, 0}, {1, 2, 3}}, fixedNow)
	if !errors.Is(err, embedding.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if f.eventCount(t) != 0 {
		t.Error("a failed pass must not record anything")
	}
}

func TestRecognize_RecordErrorSurfaced(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.AttendanceRepository().AppendError = errors.New("disk full")

	if _, err := f.svc.Recognize(context.Background(), []embedding.Vector{{0, 0}}, fixedNow); err == nil {
		t.Fatal("expected record error")
	}
}

// failingRecorder refuses to record one identity and delegates the rest.
type failingRecorder struct {
	Recorder
	failID int64
}

func (r failingRecorder) RecordOnce(ctx context.Context, id int64, ts time.Time, dist float64) (database.AttendanceEvent, bool, error) {
	if id == r.failID {
		return database.AttendanceEvent{}, false, errors.New("connection reset")
	}
	return r.Recorder.RecordOnce(ctx, id, ts, dist)
}

func TestRecognize_PartialRecordErrorReturnsPass(t *testing.T) {
	f := newFixture(t, nil)
	svc := NewService(f.store, failingRecorder{Recorder: f.ledger, failID: f.bob.ID},
		withClock(func() time.Time { return fixedNow }))

	pass, err := svc.Recognize(context.Background(), []embedding.Vector{{0, 0}, {1, 1}}, fixedNow)
	if err == nil {
		t.Fatal("expected record error")
	}
	if len(pass.Faces) != 2 {
		t.Fatalf("expected 2 faces in partial pass, got %+v", pass)
	}
	if pass.Faces[0].State != StateRecorded || pass.Faces[0].Event == nil {
		t.Errorf("alice face = %+v, want recorded with event", pass.Faces[0])
	}
	if pass.Faces[1].State != StateMatched || pass.Faces[1].Event != nil {
		t.Errorf("bob face = %+v, want matched without event", pass.Faces[1])
	}
	if f.eventCount(t) != 1 {
		t.Errorf("expected alice's event to be stored, got %d events", f.eventCount(t))
	}
}

func TestRecognize_GallerySnapshotError(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.IdentityRepository().ListError = errors.New("timeout")

	if _, err := f.svc.Recognize(context.Background(), []embedding.Vector{{0, 0}}, fixedNow); err == nil {
		t.Fatal("expected snapshot error")
	}
}

func TestIdentify_DoesNotRecord(t *testing.T) {
	f := newFixture(t, nil)

	pass, err := f.svc.Identify(context.Background(), []embedding.Vector{{1, 1}})
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if pass.Faces[0].State != StateMatched || pass.Faces[0].IdentityID != f.bob.ID {
		t.Errorf("unexpected face: %+v", pass.Faces[0])
	}
	if f.eventCount(t) != 0 {
		t.Error("Identify must not record")
	}
}

func TestRecognize_ThresholdOption(t *testing.T) {
	f := newFixture(t, nil, WithThreshold(0.05))
	if f.svc.Threshold() != 0.05 {
		t.Fatalf("Threshold = %v", f.svc.Threshold())
	}

	pass, err := f.svc.Recognize(context.Background(), []embedding.Vector{{0.1, 0}}, fixedNow)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if pass.Outcome != OutcomeUnknown {
		t.Errorf("distance 0.1 must be rejected at threshold 0.05, got %s", pass.Outcome)
	}
}

func TestRecognize_ConcurrentPasses(t *testing.T) {
	f := newFixture(t, nil, WithMetrics(metrics.New(nil)))
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Recognize(ctx, []embedding.Vector{{0, 0}, {1, 1}}, time.Now()); err != nil {
				t.Errorf("Recognize failed: %v", err)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.store.Enroll(ctx, "Carol", embedding.Vector{3, 3}); err != nil {
				t.Errorf("Enroll failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.eventCount(t); got != 40 {
		t.Errorf("expected 40 events, got %d", got)
	}
}

type stubExtractor struct {
	faces []embedding.Vector
	err   error
}

func (s stubExtractor) FaceEmbeddings(context.Context, []byte) ([]embedding.Vector, error) {
	return s.faces, s.err
}

func TestRecognizeImage(t *testing.T) {
	tests := []struct {
		name    string
		ext     Extractor
		want    Outcome
		wantErr bool
	}{
		{"no extractor", nil, "", true},
		{"extractor error", stubExtractor{err: errors.New("503")}, "", true},
		{"no faces", stubExtractor{}, OutcomeNoFaceDetected, false},
		{"one face", stubExtractor{faces: []embedding.Vector{{0, 0}}}, OutcomeRecognized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.ext != nil {
				opts = append(opts, WithExtractor(tt.ext))
			}
			f := newFixture(t, nil, opts...)

			pass, err := f.svc.RecognizeImage(context.Background(), []byte("img"), fixedNow)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.ext != nil && tt.wantErr && !errors.Is(err, ErrExtraction) {
				t.Errorf("expected ErrExtraction, got %v", err)
			}
			if pass.Outcome != tt.want {
				t.Errorf("Outcome = %q, want %q", pass.Outcome, tt.want)
			}
		})
	}
}
