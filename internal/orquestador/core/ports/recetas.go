package ports

import (
	"context"

	"github.com/pharmatrack/orquestador/internal/orquestador/core/domain/entity"
)

// RecetaService is the outbound port for the recetas collaborator.
type RecetaService interface {
	// ObtenerReceta fetches a prescription with its detail lines.
	// Returns ErrNoEncontrado if the prescription does not exist.
	ObtenerReceta(ctx context.Context, idReceta int) (*entity.Receta, error)

	// CrearDispensacion records a completed dispense for the prescription,
	// with the total quantity summed across the applied lines.
	CrearDispensacion(ctx context.Context, idReceta, cantidadTotal int) (*entity.Dispensacion, error)

	// Health probes the service's liveness endpoint.
	Health(ctx context.Context) error
}
