package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration sourced from the environment.
// The postgres, redis, and object storage settings are optional; leaving an
// address empty disables the feature backed by it (change journal, cross
// instance broadcast, planet export).
type Config struct {
	AppName         string
	Instances       []string
	AnonymousUser   string
	PostgresURL     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	ObjectEndpoint  string
	ObjectRegion    string
	ObjectBucket    string
	ObjectAccessKey string
	ObjectSecretKey string
	ObjectUseSSL    bool
	HTTPListenAddr  string
	MetricsAddr     string
	ShutdownTimeout time.Duration
	ExportInterval  time.Duration
	OTLPEndpoint    string
}

// Load reads configuration from the environment while applying sensible
// defaults for local development.
func Load() (Config, error) {
	cfg := Config{
		AppName:         getEnv("APP_NAME", "osm-edit-engine"),
		Instances:       splitList(getEnv("API_INSTANCES", "default")),
		AnonymousUser:   getEnv("ANONYMOUS_USER", "anonymous"),
		PostgresURL:     os.Getenv("POSTGRES_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getInt("REDIS_DB", 0),
		ObjectEndpoint:  os.Getenv("OBJECT_ENDPOINT"),
		ObjectRegion:    getEnv("OBJECT_REGION", "us-east-1"),
		ObjectBucket:    getEnv("OBJECT_BUCKET", "osm-exports"),
		ObjectAccessKey: os.Getenv("OBJECT_ACCESS_KEY"),
		ObjectSecretKey: os.Getenv("OBJECT_SECRET_KEY"),
		ObjectUseSSL:    getBool("OBJECT_USE_SSL", false),
		HTTPListenAddr:  getEnv("HTTP_LISTEN_ADDR", ":8080"),
		MetricsAddr:     getEnv("METRICS_LISTEN_ADDR", ":9090"),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		ExportInterval:  getDuration("EXPORT_INTERVAL", 15*time.Second),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if len(cfg.Instances) == 0 {
		cfg.Instances = []string{"default"}
	}

	return cfg, nil
}

// JournalEnabled reports whether a change journal backend is configured.
func (c Config) JournalEnabled() bool {
	return c.PostgresURL != ""
}

// BroadcastEnabled reports whether cross instance broadcast is configured.
func (c Config) BroadcastEnabled() bool {
	return c.RedisAddr != ""
}

// ExportEnabled reports whether planet exports are configured.
func (c Config) ExportEnabled() bool {
	return c.ObjectEndpoint != "" && c.ObjectAccessKey != "" && c.ObjectSecretKey != ""
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
