package ports

import (
	"context"

	"github.com/pharmatrack/orquestador/internal/orquestador/core/domain/entity"
)

// InventarioService is the outbound port for the inventario stock ledger.
type InventarioService interface {
	// ConsultarStock returns the ledger rows matching the query.
	// Row ordering is whatever the ledger returns; callers must not rely
	// on it beyond "some order".
	ConsultarStock(ctx context.Context, q entity.ConsultaStock) ([]entity.Stock, error)

	// RegistrarMovimiento applies a signed stock movement. The ledger
	// enforces non-negative stock and rejects an EGRESO that would
	// overdraw it.
	RegistrarMovimiento(ctx context.Context, m entity.Movimiento) (*entity.Movimiento, error)

	// Health probes the service's liveness endpoint.
	Health(ctx context.Context) error
}
