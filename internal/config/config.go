package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Env      string
	Port     string
	Store    string
	SQLite   SQLiteConfig
	Postgres PostgresConfig
	Terms    TermsConfig
	Annotate AnnotateConfig
	Recorder RecorderConfig
	Trending TrendingConfig
	NodeID   int64
	// ReportLocation is the timezone used to bucket quiz days.
	ReportLocation *time.Location
}

type SQLiteConfig struct {
	Path string
}

type PostgresConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

type TermsConfig struct {
	Path            string
	URL             string
	CollisionPolicy string
	Watch           bool
}

type AnnotateConfig struct {
	MaxTermsPerBlock int
	SegmentCJK       bool
}

type RecorderConfig struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

type TrendingConfig struct {
	Fallback []string
	Weights  map[string]float64
}

// Load reads configuration from environment variables. In development a .env
// file in the working directory is loaded first when present.
func Load() (Config, error) {
	if getEnv("GLOSSARY_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env:   getEnv("GLOSSARY_ENV", "development"),
		Port:  getEnv("PORT", "8080"),
		Store: strings.ToLower(getEnv("GLOSSARY_STORE", StoreSQLite)),
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "glossary.db"),
		},
		Postgres: PostgresConfig{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
			MinConns: getEnvInt32("DB_MIN_CONNS", 2),
		},
		Terms: TermsConfig{
			Path:            getEnv("TERMS_PATH", "terms.json"),
			URL:             getEnv("TERMS_URL", ""),
			CollisionPolicy: getEnv("COLLISION_POLICY", "last-wins"),
			Watch:           getEnvBool("TERMS_WATCH", true),
		},
		Annotate: AnnotateConfig{
			MaxTermsPerBlock: getEnvInt("MAX_TERMS_PER_BLOCK", 3),
			SegmentCJK:       getEnvBool("SEGMENT_CJK", false),
		},
		Recorder: RecorderConfig{
			QueueSize:    getEnvInt("RECORDER_QUEUE", 1024),
			Workers:      getEnvInt("RECORDER_WORKERS", 2),
			WriteTimeout: getEnvDuration("RECORDER_WRITE_TIMEOUT", 2*time.Second),
		},
		Trending: TrendingConfig{
			Fallback: splitList(getEnv("TRENDING_FALLBACK", "")),
		},
		NodeID: int64(getEnvInt("NODE_ID", 1)),
	}

	weights, err := ParseWeights(getEnv("TRENDING_WEIGHTS", "view=1,search=1"))
	if err != nil {
		return Config{}, err
	}
	cfg.Trending.Weights = weights

	loc, err := time.LoadLocation(getEnv("REPORT_TIMEZONE", "UTC"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid REPORT_TIMEZONE: %w", err)
	}
	cfg.ReportLocation = loc

	switch cfg.Store {
	case StoreSQLite, StoreMemory:
	case StorePostgres:
		if cfg.Postgres.DSN == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when GLOSSARY_STORE=postgres")
		}
	default:
		return Config{}, fmt.Errorf("unknown GLOSSARY_STORE %q", cfg.Store)
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ParseWeights parses "view=1,search=1,copy=0.5".
func ParseWeights(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, part := range splitList(s) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid weight %q, want type=value", part)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight for %s: %w", k, err)
		}
		out[strings.TrimSpace(k)] = w
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(v, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
