package sagalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetLatest when no entry exists for the receta.
var ErrNotFound = errors.New("sagalog: sin entradas para la receta")

// Repository is the port for persisting and reading saga log entries.
// The coordinator depends on this abstraction, not on SQLite directly,
// so the implementation can be swapped (Postgres, in-memory for tests).
type Repository interface {
	// Save persists a new log entry. Each call appends a row; the table is
	// an append-only audit log, not an upsert.
	Save(ctx context.Context, entrada *Entrada) error

	// GetLatest returns the most recent entry for a receta, or
	// ErrNotFound when the receta has never entered a saga.
	GetLatest(ctx context.Context, idReceta int) (*Entrada, error)
}
