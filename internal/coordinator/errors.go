package coordinator

import (
	"errors"
	"fmt"

	"github.com/pharmatrack/orquestador/internal/orquestador/core/ports"
	"github.com/pharmatrack/orquestador/internal/pkg/httpclient"
)

// ValidationError means the request itself is unusable (missing fields, a
// receta with no lines). It never reaches a ledger mutation.
type ValidationError struct {
	Motivo string
}

func (e *ValidationError) Error() string { return e.Motivo }

// Faltante describes one line whose demand the sucursal cannot cover.
type Faltante struct {
	IDProducto string `json:"id_producto"`
	Solicitado int    `json:"solicitado"`
	Disponible int    `json:"disponible"`
}

// StockInsuficienteError is a verified shortfall: at least one line of the
// receta cannot be covered. It carries the full shortfall list — only the
// short lines, never the ones that passed.
type StockInsuficienteError struct {
	Faltantes []Faltante
}

func (e *StockInsuficienteError) Error() string {
	return fmt.Sprintf("stock insuficiente en %d línea(s)", len(e.Faltantes))
}

// DownstreamFailure means a collaborator call failed or was rejected
// mid-saga. Mensaje preserves the original diagnostic text so an idempotent
// replay reproduces the exact same failure; Err is the underlying cause and
// is nil on replay.
type DownstreamFailure struct {
	Mensaje string
	Err     error
}

func (e *DownstreamFailure) Error() string { return e.Mensaje }

func (e *DownstreamFailure) Unwrap() error { return e.Err }

// Codes used in the cached-result envelope so a terminal failure can be
// replayed as the same error value.
const (
	codigoValidacion        = "VALIDATION_ERROR"
	codigoStockInsuficiente = "STOCK_INSUFICIENTE"
	codigoNoEncontrado      = "NO_ENCONTRADO"
	codigoDownstream        = "DOWNSTREAM_ERROR"
)

type errorCacheado struct {
	Codigo    string     `json:"codigo"`
	Mensaje   string     `json:"mensaje"`
	Faltantes []Faltante `json:"faltantes,omitempty"`
}

// newErrorCacheado flattens a terminal saga error into its replayable form.
func newErrorCacheado(err error) *errorCacheado {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return &errorCacheado{Codigo: codigoValidacion, Mensaje: verr.Motivo}
	}
	var serr *StockInsuficienteError
	if errors.As(err, &serr) {
		return &errorCacheado{Codigo: codigoStockInsuficiente, Mensaje: serr.Error(), Faltantes: serr.Faltantes}
	}
	if errors.Is(err, ports.ErrNoEncontrado) {
		return &errorCacheado{Codigo: codigoNoEncontrado, Mensaje: err.Error()}
	}
	var dfail *DownstreamFailure
	if errors.As(err, &dfail) {
		return &errorCacheado{Codigo: codigoDownstream, Mensaje: dfail.Mensaje}
	}
	var derr *httpclient.DownstreamError
	if errors.As(err, &derr) {
		return &errorCacheado{Codigo: codigoDownstream, Mensaje: derr.Error()}
	}
	return &errorCacheado{Codigo: codigoDownstream, Mensaje: err.Error()}
}

// toError rebuilds the error value a cached terminal failure stands for.
func (e *errorCacheado) toError() error {
	switch e.Codigo {
	case codigoValidacion:
		return &ValidationError{Motivo: e.Mensaje}
	case codigoStockInsuficiente:
		return &StockInsuficienteError{Faltantes: e.Faltantes}
	case codigoNoEncontrado:
		return &notFoundError{mensaje: e.Mensaje}
	default:
		return &DownstreamFailure{Mensaje: e.Mensaje}
	}
}

// notFoundError replays a cached not-found with its original message intact.
// Is makes it transparent to errors.Is(err, ports.ErrNoEncontrado).
type notFoundError struct {
	mensaje string
}

func (e *notFoundError) Error() string { return e.mensaje }

func (e *notFoundError) Is(target error) bool { return target == ports.ErrNoEncontrado }
