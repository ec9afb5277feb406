//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

func TestPostgresBackend(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	backend := NewBackend(pool)
	identities := backend.Identities()
	events := backend.Attendance()

	var alice database.Identity

	t.Run("MigrationsApplied", func(t *testing.T) {
		versions, err := pool.MigrationsApplied(ctx)
		if err != nil {
			t.Fatalf("MigrationsApplied failed: %v", err)
		}
		if len(versions) != 2 || versions[0] != "001_initial.sql" {
			t.Errorf("unexpected migrations: %v", versions)
		}
		// Second run is a no-op.
		if err := pool.Migrate(ctx); err != nil {
			t.Errorf("re-running migrations failed: %v", err)
		}
	})

	t.Run("EmptyDimension", func(t *testing.T) {
		dim, err := identities.Dimension(ctx)
		if err != nil || dim != 0 {
			t.Errorf("Dimension = %d, %v; want 0", dim, err)
		}
	})

	t.Run("CreateAndGet", func(t *testing.T) {
		alice = database.Identity{DisplayName: "Alice", Embedding: embedding.Vector{0.1, 0.2, 0.3, 0.4}, ImageFile: "alice.jpg"}
		if err := identities.Create(ctx, &alice); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if alice.ID == 0 || alice.CreatedAt.IsZero() {
			t.Fatalf("expected ID and CreatedAt, got %+v", alice)
		}

		got, err := identities.Get(ctx, alice.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.DisplayName != "Alice" || got.ImageFile != "alice.jpg" || len(got.Embedding) != 4 {
			t.Errorf("unexpected identity: %+v", got)
		}
		if got.Embedding[2] != 0.3 {
			t.Errorf("embedding not round-tripped: %v", got.Embedding)
		}

		dim, _ := identities.Dimension(ctx)
		if dim != 4 {
			t.Errorf("Dimension = %d, want 4", dim)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := identities.Get(ctx, 999999); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		ok, err := identities.Exists(ctx, 999999)
		if err != nil || ok {
			t.Errorf("Exists = %v, %v; want false", ok, err)
		}
	})

	t.Run("AppendUnknownIdentity", func(t *testing.T) {
		ev := &database.AttendanceEvent{IdentityID: 999999, Timestamp: time.Now()}
		if err := events.Append(ctx, ev); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if n, _ := events.Count(ctx); n != 0 {
			t.Errorf("expected no events after failed append, got %d", n)
		}
	})

	t.Run("AppendAndRange", func(t *testing.T) {
		base := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
		for _, off := range []time.Duration{2 * time.Hour, 0, time.Hour} {
			ev := &database.AttendanceEvent{IdentityID: alice.ID, Timestamp: base.Add(off), Distance: 0.25}
			if err := events.Append(ctx, ev); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}

		got, err := events.ListRange(ctx, base, base.Add(2*time.Hour))
		if err != nil {
			t.Fatalf("ListRange failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 events in half-open range, got %d", len(got))
		}
		if !got[0].Timestamp.Equal(base) || !got[1].Timestamp.Equal(base.Add(time.Hour)) {
			t.Errorf("unexpected order: %v, %v", got[0].Timestamp, got[1].Timestamp)
		}

		all, _ := events.ListRange(ctx, time.Time{}, time.Time{})
		if len(all) != 3 {
			t.Errorf("expected 3 events with open range, got %d", len(all))
		}

		latest, err := events.LatestForIdentity(ctx, alice.ID, base.Add(90*time.Minute))
		if err != nil {
			t.Fatalf("LatestForIdentity failed: %v", err)
		}
		if !latest.Timestamp.Equal(base.Add(time.Hour)) {
			t.Errorf("latest = %v, want %v", latest.Timestamp, base.Add(time.Hour))
		}
	})

	t.Run("StoreAndLedger", func(t *testing.T) {
		store, err := gallery.NewStore(ctx, identities, 0)
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}
		if store.Dimension() != 4 {
			t.Fatalf("expected dimension locked from existing rows, got %d", store.Dimension())
		}
		if _, err := store.Enroll(ctx, "Bob", embedding.Vector{1, 2}); !errors.Is(err, embedding.ErrValidation) {
			t.Errorf("expected validation error for wrong dimension, got %v", err)
		}

		ledger := attendance.NewLedger(events, store)
		if _, err := ledger.Record(ctx, 424242, time.Now()); !errors.Is(err, attendance.ErrUnknownIdentity) {
			t.Errorf("expected unknown identity, got %v", err)
		}

		rows, err := ledger.Report(ctx, time.Time{}, time.Time{})
		if err != nil {
			t.Fatalf("Report failed: %v", err)
		}
		if len(rows) != 3 || rows[0].DisplayName != "Alice" || rows[0].Timestamp != "2024-05-06 08:00:00" {
			t.Errorf("unexpected report: %+v", rows)
		}
	})

	t.Run("LedgerSubMicrosecondRoundTrip", func(t *testing.T) {
		store, err := gallery.NewStore(ctx, identities, 0)
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}
		ledger := attendance.NewLedger(events, store)

		ts := time.Date(2024, 6, 1, 23, 59, 59, 999_999_700, time.UTC)
		ev, err := ledger.Record(ctx, alice.ID, ts)
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}

		day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		var got []database.AttendanceEvent
		for e, err := range ledger.EventsForRange(ctx, day, day.AddDate(0, 0, 1)) {
			if err != nil {
				t.Fatalf("EventsForRange failed: %v", err)
			}
			got = append(got, e)
		}
		if len(got) != 1 || got[0].ID != ev.ID || !got[0].Timestamp.Equal(ev.Timestamp) {
			t.Fatalf("expected recorded event %+v back unchanged, got %+v", ev, got)
		}
	})
}
