package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pharmatrack/orquestador/internal/pkg/correlation"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(correlation.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.Healthz)
	r.Get("/readyz", handler.Readyz)

	r.Get("/disponibilidad", handler.Disponibilidad)
	r.Get("/productos/buscar", handler.BuscarProductos)

	r.Post("/recetas/validar", handler.ValidarReceta)
	r.Get("/recetas/{id}/validacion", handler.ValidacionReceta)

	r.Post("/reserva-stock", handler.ReservarStock)
	r.Get("/reserva-stock/{id}", handler.ConsultarReserva)

	r.Post("/dispensar", handler.Dispensar)
	r.Get("/dispensaciones/{id}/saga", handler.SagaReceta)

	return r
}
