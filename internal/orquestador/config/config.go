// Package config loads the orchestrator's runtime settings from the
// environment, with working local-dev defaults for every knob.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	// HTTPAddr is the listen address of the public HTTP surface.
	HTTPAddr string

	// Base URLs of the three collaborators.
	CatalogoBaseURL   string
	InventarioBaseURL string
	RecetasBaseURL    string

	// HTTPTimeout bounds each downstream call.
	HTTPTimeout time.Duration

	// IdempotencyTTL is the replay window for cached saga outcomes;
	// ReservaTTL is the lifetime of soft stock reservations.
	IdempotencyTTL time.Duration
	ReservaTTL     time.Duration

	// SagaDBPath is the SQLite file of the saga audit log. Empty disables
	// the log.
	SagaDBPath string

	// RedisAddr, when set, backs the idempotency and reservation caches
	// with Redis instead of process memory.
	RedisAddr string

	// OTLPEndpoint is the OTLP gRPC collector address for traces.
	OTLPEndpoint string

	// ServiceName identifies this process in logs and traces.
	ServiceName string
}

// Load reads the environment and applies defaults. It never fails: a
// malformed duration falls back to its default rather than aborting boot.
func Load() Config {
	return Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		CatalogoBaseURL:   getEnv("CATALOGO_BASE_URL", "http://localhost:8081"),
		InventarioBaseURL: getEnv("INVENTARIO_BASE_URL", "http://localhost:8082"),
		RecetasBaseURL:    getEnv("RECETAS_BASE_URL", "http://localhost:8083"),
		HTTPTimeout:       getEnvMS("HTTP_TIMEOUT_MS", 3*time.Second),
		IdempotencyTTL:    getEnvMS("IDEMPOTENCY_TTL_MS", 10*time.Minute),
		ReservaTTL:        getEnvMS("RESERVA_TTL_MS", 2*time.Minute),
		SagaDBPath:        getEnv("SAGA_DB_PATH", "saga_log.db"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		OTLPEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		ServiceName:       getEnv("OTEL_SERVICE_NAME", "orquestador"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvMS(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
