package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

type Config struct {
	Database   DatabaseConfig
	Embedding  EmbeddingConfig
	Match      MatchConfig
	Attendance AttendanceConfig
	Web        WebConfig
}

type DatabaseConfig struct {
	Driver       string // postgres, mariadb or memory (default postgres)
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
	MariaDBDSN   string // e.g. attendance:secret@tcp(mariadb:3306)/attendance
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
	Dim int    // 0 locks the dimension on first enrollment
}

type MatchConfig struct {
	Threshold float64 // accept when distance < Threshold (default 0.6)
	Algorithm string  // exact-v1 or hnsw-v1
	IndexPath string  // Path to persist the gallery HNSW index (optional, rebuilt on startup when empty)
}

type AttendanceConfig struct {
	Dedup         string        // none, day or session
	SessionWindow time.Duration // used by session dedup (default 1h)
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat is envInt for positive floats.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:       strings.ToLower(envString("DATABASE_DRIVER", "postgres")),
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			MariaDBDSN:   os.Getenv("MARIADB_DSN"),
		},
		Embedding: EmbeddingConfig{
			URL: envString("EMBEDDING_URL", "http://localhost:8000"),
			Dim: envInt("EMBEDDING_DIM", 0),
		},
		Match: MatchConfig{
			Threshold: envFloat("MATCH_THRESHOLD", constants.DefaultMatchThreshold),
			Algorithm: envString("MATCH_ALGORITHM", "exact-v1"),
			IndexPath: os.Getenv("GALLERY_INDEX_PATH"),
		},
		Attendance: AttendanceConfig{
			Dedup:         envString("ATTENDANCE_DEDUP", "none"),
			SessionWindow: envDuration("ATTENDANCE_SESSION_WINDOW", constants.DefaultSessionWindow),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8085),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}
