// Package sqlite provides a SQLite-backed implementation of sagalog.Repository.
//
// WAL mode is enabled on Open so that readers never block writers and vice
// versa — important because the saga writes rows while the audit endpoint
// may be reading them.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pharmatrack/orquestador/internal/coordinator/sagalog"

	// Register the pure-Go SQLite driver.
	// modernc.org/sqlite instead of mattn/go-sqlite3 avoids CGO, which keeps
	// the Docker (Alpine) build simple.
	_ "modernc.org/sqlite"
)

// schema is the DDL executed once on startup.
// The table is append-only: each row is an immutable event in a saga
// execution's lifecycle.
const schema = `
CREATE TABLE IF NOT EXISTS dispensacion_saga_log (
    -- Surrogate primary key, auto-incremented by SQLite.
    id              INTEGER PRIMARY KEY AUTOINCREMENT,

    -- One saga execution. Multiple rows per saga_id, one per transition.
    saga_id         TEXT        NOT NULL,

    -- Business identifier, for joining with recetas data.
    id_receta       INTEGER     NOT NULL,

    -- Lifecycle state at the time this row was written.
    estado          TEXT        NOT NULL,

    -- Step that just executed (e.g. "aplicar_egreso").
    paso            TEXT        NOT NULL DEFAULT '',

    -- Correlation id of the inbound request, for cross-service log joins.
    correlation_id  TEXT        NOT NULL DEFAULT '',

    -- JSON fragment with step-specific data (shortfalls, movements, errors).
    detalle         TEXT        NOT NULL DEFAULT '{}',

    -- W3C trace_id (32 hex chars) from the active OTel span.
    trace_id        TEXT        NOT NULL DEFAULT '',

    -- W3C span_id (16 hex chars), pinpoints the exact call within the trace.
    span_id         TEXT        NOT NULL DEFAULT '',

    -- Wall-clock timestamp (RFC3339 stored as TEXT, SQLite idiom).
    updated_at      TEXT        NOT NULL
);

-- Most common query: "all events for receta X, newest last".
CREATE INDEX IF NOT EXISTS idx_saga_log_receta ON dispensacion_saga_log(id_receta, updated_at);

-- Observability query: "find the saga for trace Y".
CREATE INDEX IF NOT EXISTS idx_saga_log_trace ON dispensacion_saga_log(trace_id);
`

// Repository is the SQLite implementation of sagalog.Repository.
type Repository struct {
	db *sql.DB
}

var _ sagalog.Repository = (*Repository)(nil)

// Open opens (or creates) the SQLite database at the given path and applies
// the schema.
//
//	repo, err := sqlite.Open("./data/orquestador.db")
func Open(path string) (*Repository, error) {
	// The pure-Go driver configures connection state via _pragma query
	// parameters. WAL enables concurrent readers; busy_timeout waits for
	// locks instead of failing immediately.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	// Use "sqlite", not "sqlite3", for the modernc driver.
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close releases the database connection. Call it with defer in main().
func (r *Repository) Close() error {
	return r.db.Close()
}

// Save inserts a new saga log entry. Safe to call concurrently.
func (r *Repository) Save(ctx context.Context, entrada *sagalog.Entrada) error {
	const q = `
		INSERT INTO dispensacion_saga_log
			(saga_id, id_receta, estado, paso, correlation_id, detalle, trace_id, span_id, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		entrada.SagaID,
		entrada.IDReceta,
		string(entrada.Estado),
		entrada.Paso,
		entrada.CorrelationID,
		entrada.Detalle,
		entrada.TraceID,
		entrada.SpanID,
		entrada.UpdatedAt.UTC().Format("2006-01-02T15:04:05.999999999Z"),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save saga log for receta %d: %w", entrada.IDReceta, err)
	}
	return nil
}

// GetLatest returns the most recent log entry for a receta.
func (r *Repository) GetLatest(ctx context.Context, idReceta int) (*sagalog.Entrada, error) {
	const q = `
		SELECT saga_id, id_receta, estado, paso, correlation_id, detalle,
		       trace_id, span_id, updated_at
		FROM   dispensacion_saga_log
		WHERE  id_receta = ?
		ORDER  BY updated_at DESC, id DESC
		LIMIT  1`

	row := r.db.QueryRowContext(ctx, q, idReceta)

	var entrada sagalog.Entrada
	var updatedAt string
	err := row.Scan(
		&entrada.SagaID,
		&entrada.IDReceta,
		&entrada.Estado,
		&entrada.Paso,
		&entrada.CorrelationID,
		&entrada.Detalle,
		&entrada.TraceID,
		&entrada.SpanID,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, sagalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get latest for receta %d: %w", idReceta, err)
	}

	// updated_at is RFC3339 TEXT; SQLite has no native datetime type.
	entrada.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parse updated_at %q: %w", updatedAt, err)
	}

	return &entrada, nil
}

// applySchema runs the DDL statements once. Idempotent due to IF NOT EXISTS.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}
