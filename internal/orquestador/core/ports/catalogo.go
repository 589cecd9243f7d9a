package ports

import (
	"context"

	"github.com/pharmatrack/orquestador/internal/orquestador/core/domain/entity"
)

// CatalogoService is the outbound port for the product catalog.
type CatalogoService interface {
	// ObtenerProducto fetches a product by id.
	// Returns ErrNoEncontrado if the product does not exist.
	ObtenerProducto(ctx context.Context, idProducto string) (*entity.Producto, error)

	// BuscarProductos searches products by free text (name or ATC code).
	BuscarProductos(ctx context.Context, q string) ([]entity.Producto, error)

	// Health probes the service's liveness endpoint.
	Health(ctx context.Context) error
}
