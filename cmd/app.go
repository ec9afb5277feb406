package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/database/memory"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// app holds everything a command needs, wired from config.
type app struct {
	cfg       *config.Config
	backend   database.Backend
	store     *gallery.Store
	ledger    *attendance.Ledger
	service   *recognition.Service
	extractor *extractor.Client
	index     *database.GalleryIndex // nil unless MATCH_ALGORITHM=hnsw-v1
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// openBackend connects to the configured storage engine.
func openBackend(ctx context.Context, cfg *config.DatabaseConfig) (database.Backend, error) {
	driver := cfg.Driver
	if driverOverride != "" {
		driver = driverOverride
	}

	switch driver {
	case "postgres", "":
		if cfg.URL == "" {
			return nil, errors.New("DATABASE_URL environment variable is required")
		}
		fmt.Printf("Connecting to PostgreSQL database...\n")
		return postgres.Open(ctx, cfg)
	case "mariadb", "mysql":
		if cfg.MariaDBDSN == "" {
			return nil, errors.New("MARIADB_DSN environment variable is required")
		}
		fmt.Printf("Connecting to MariaDB database...\n")
		return mariadb.Open(ctx, cfg.MariaDBDSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
	case "memory":
		fmt.Printf("Using in-memory storage (nothing is persisted)\n")
		return memory.NewBackend(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

// openApp loads configuration, applies overrides and wires storage, gallery,
// ledger and recognition service together.
func openApp(ctx context.Context, overrides ...func(*config.Config)) (*app, error) {
	cfg := config.Load()
	for _, override := range overrides {
		override(cfg)
	}
	if cfg.Match.Threshold <= 0 {
		return nil, fmt.Errorf("match threshold must be positive, got %v", cfg.Match.Threshold)
	}

	algorithm, err := matcher.ParseAlgorithm(cfg.Match.Algorithm)
	if err != nil {
		return nil, err
	}
	dedup, err := attendance.ParseDedupPolicy(cfg.Attendance.Dedup, cfg.Attendance.SessionWindow)
	if err != nil {
		return nil, err
	}

	backend, err := openBackend(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	store, err := gallery.NewStore(ctx, backend.Identities(), cfg.Embedding.Dim)
	if err != nil {
		backend.Close()
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		backend:   backend,
		store:     store,
		extractor: extractor.NewClient(cfg.Embedding.URL),
		metrics:   metrics.New(nil),
		logger:    slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}

	var strategy matcher.Strategy = matcher.Exact{}
	if algorithm == matcher.AlgorithmHNSW {
		if err := a.initGalleryIndex(ctx); err != nil {
			backend.Close()
			return nil, err
		}
		strategy = &matcher.Indexed{Index: a.index}
	}

	store.OnEnroll = func(identity database.Identity) {
		a.metrics.Enrolled()
		if a.index != nil {
			if err := a.index.Add(identity); err != nil {
				a.logger.Warn("gallery index add failed", "identity", identity.ID, "error", err)
			}
		}
	}

	a.ledger = attendance.NewLedger(backend.Attendance(), store, attendance.WithDedup(dedup))
	a.ledger.OnRecord = func(ev database.AttendanceEvent) {
		a.logger.Debug("attendance recorded", "event", ev.ID, "identity", ev.IdentityID, "at", ev.Timestamp)
	}
	a.service = recognition.NewService(store, a.ledger,
		recognition.WithThreshold(cfg.Match.Threshold),
		recognition.WithStrategy(strategy),
		recognition.WithExtractor(a.extractor),
		recognition.WithLogger(a.logger),
		recognition.WithMetrics(a.metrics),
	)
	return a, nil
}

// initGalleryIndex loads the persisted gallery index, or builds it from the store.
func (a *app) initGalleryIndex(ctx context.Context) error {
	identities, err := a.store.All(ctx)
	if err != nil {
		return err
	}

	a.index = database.NewGalleryIndex()
	path := a.cfg.Match.IndexPath
	if path != "" {
		fmt.Printf("Loading gallery HNSW index from %s...\n", path)
		err := a.index.Load(path, identities)
		if err == nil {
			fmt.Printf("Gallery HNSW index ready with %d identities\n", a.index.Count())
			return nil
		}
		fmt.Printf("Rebuilding gallery HNSW index: %v\n", err)
	}

	if err := a.index.Build(identities); err != nil {
		return fmt.Errorf("build gallery index: %w", err)
	}
	fmt.Printf("Gallery HNSW index built with %d identities\n", a.index.Count())
	return nil
}

// Close persists the gallery index when configured and closes storage.
func (a *app) Close() {
	if a.index != nil && a.cfg.Match.IndexPath != "" {
		if err := a.index.Save(a.cfg.Match.IndexPath); err != nil {
			fmt.Printf("Warning: failed to save gallery index: %v\n", err)
		}
	}
	if err := a.backend.Close(); err != nil {
		fmt.Printf("Warning: failed to close database: %v\n", err)
	}
}
