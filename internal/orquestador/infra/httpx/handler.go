package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pharmatrack/orquestador/internal/coordinator"
	"github.com/pharmatrack/orquestador/internal/orquestador/core/domain/entity"
	"github.com/pharmatrack/orquestador/internal/orquestador/core/ports"
	"github.com/pharmatrack/orquestador/internal/orquestador/readiness"
)

// Handler exposes the orchestrator over HTTP: the saga operations, the
// read-only lookups against catálogo and inventario, and the health probes.
type Handler struct {
	coordinador *coordinator.Coordinator
	catalogo    ports.CatalogoService
	inventario  ports.InventarioService
	readiness   *readiness.Aggregator
	now         func() time.Time
}

func NewHandler(c *coordinator.Coordinator, catalogo ports.CatalogoService, inventario ports.InventarioService, ready *readiness.Aggregator) *Handler {
	return &Handler{
		coordinador: c,
		catalogo:    catalogo,
		inventario:  inventario,
		readiness:   ready,
		now:         time.Now,
	}
}

// Healthz answers liveness: the process is up and serving.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz answers readiness: 200 only when every downstream collaborator
// passes its health probe; 503 with the per-service detail otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.readiness.Check(r.Context())
	if !rep.Ready {
		writeError(w, r, http.StatusServiceUnavailable, codeDownstreamUnavailable,
			"al menos un servicio colaborador no responde", rep.Servicios)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "servicios": rep.Servicios})
}

// Dispensar runs the dispensation saga for a receta.
func (h *Handler) Dispensar(w http.ResponseWriter, r *http.Request) {
	var req DispensarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, "cuerpo JSON inválido", nil)
		return
	}
	if req.IDReceta <= 0 {
		writeError(w, r, http.StatusBadRequest, codeValidation, "id_receta es obligatorio", nil)
		return
	}

	idemKey := idempotencyKey(r, req.IdempotencyKey)
	slog.InfoContext(r.Context(), "dispensación solicitada", "id_receta", req.IDReceta, "idempotency_key_present", idemKey != "")

	res, err := h.coordinador.Dispensar(r.Context(), req.IDReceta, idemKey)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ValidarReceta runs the pre-validation dry run, via POST body.
func (h *Handler) ValidarReceta(w http.ResponseWriter, r *http.Request) {
	var req ValidarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, "cuerpo JSON inválido", nil)
		return
	}
	if req.IDReceta <= 0 {
		writeError(w, r, http.StatusBadRequest, codeValidation, "id_receta es obligatorio", nil)
		return
	}
	h.validar(w, r, req.IDReceta)
}

// ValidacionReceta is the GET form of the pre-validation dry run.
func (h *Handler) ValidacionReceta(w http.ResponseWriter, r *http.Request) {
	idReceta, ok := idRecetaParam(w, r)
	if !ok {
		return
	}
	h.validar(w, r, idReceta)
}

func (h *Handler) validar(w http.ResponseWriter, r *http.Request, idReceta int) {
	res, err := h.coordinador.Validar(r.Context(), idReceta)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Veredicto != coordinator.VeredictoValidada {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, res)
}

// ReservarStock places a soft hold on the stock a receta needs.
func (h *Handler) ReservarStock(w http.ResponseWriter, r *http.Request) {
	var req ReservaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, "cuerpo JSON inválido", nil)
		return
	}
	if req.IDReceta <= 0 {
		writeError(w, r, http.StatusBadRequest, codeValidation, "id_receta es obligatorio", nil)
		return
	}

	reserva, err := h.coordinador.Reservar(r.Context(), req.IDReceta, idempotencyKey(r, req.IdempotencyKey))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReservaResponse{OK: true, VenceEnMS: reserva.VenceEnMS(h.now())})
}

// ConsultarReserva returns the live reservation for a receta, 404 once it
// has expired.
func (h *Handler) ConsultarReserva(w http.ResponseWriter, r *http.Request) {
	idReceta, ok := idRecetaParam(w, r)
	if !ok {
		return
	}
	reserva, err := h.coordinador.ConsultarReserva(r.Context(), idReceta)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	items := make([]ItemReservaDTO, 0, len(reserva.Items))
	for _, it := range reserva.Items {
		items = append(items, ItemReservaDTO{IDProducto: it.IDProducto, Cantidad: it.Cantidad})
	}
	writeJSON(w, http.StatusOK, ReservaDetalleResponse{
		IDReceta:      reserva.IDReceta,
		IDSucursal:    reserva.IDSucursal,
		Items:         items,
		VenceEnMS:     reserva.VenceEnMS(h.now()),
		CorrelationID: reserva.CorrelationID,
	})
}

// SagaReceta returns the latest saga log entry for a receta.
func (h *Handler) SagaReceta(w http.ResponseWriter, r *http.Request) {
	idReceta, ok := idRecetaParam(w, r)
	if !ok {
		return
	}
	entrada, err := h.coordinador.EstadoSaga(r.Context(), idReceta)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSagaEntrada(entrada))
}

// Disponibilidad resolves a product in the catálogo and reports its stock
// per sucursal, optionally filtered by distrito.
func (h *Handler) Disponibilidad(w http.ResponseWriter, r *http.Request) {
	idProducto := strings.TrimSpace(r.URL.Query().Get("id_producto"))
	if idProducto == "" {
		writeError(w, r, http.StatusBadRequest, codeValidation, "id_producto es obligatorio", nil)
		return
	}

	producto, err := h.catalogo.ObtenerProducto(r.Context(), idProducto)
	if err != nil {
		if errors.Is(err, ports.ErrNoEncontrado) {
			writeError(w, r, http.StatusBadRequest, codeValidation, "producto "+idProducto+" no existe en el catálogo", nil)
			return
		}
		writeDomainError(w, r, err)
		return
	}

	rows, err := h.inventario.ConsultarStock(r.Context(), entity.ConsultaStock{
		IDProducto: idProducto,
		Distrito:   strings.TrimSpace(r.URL.Query().Get("distrito")),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	res := DisponibilidadResponse{
		Producto:   mapProducto(producto),
		Sucursales: make([]StockSucursalDTO, 0, len(rows)),
	}
	for _, row := range rows {
		res.Total += row.StockActual
		res.Sucursales = append(res.Sucursales, StockSucursalDTO{
			IDSucursal:       row.IDSucursal,
			StockActual:      row.StockActual,
			UmbralReposicion: row.UmbralReposicion,
		})
	}
	writeJSON(w, http.StatusOK, res)
}

// BuscarProductos is a passthrough to the catálogo's free-text search.
func (h *Handler) BuscarProductos(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, r, http.StatusBadRequest, codeValidation, "q es obligatorio", nil)
		return
	}

	productos, err := h.catalogo.BuscarProductos(r.Context(), q)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]ProductoResponse, 0, len(productos))
	for i := range productos {
		out = append(out, mapProducto(&productos[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"productos": out})
}

// idempotencyKey resolves the client token: header wins over body field.
func idempotencyKey(r *http.Request, bodyKey string) string {
	if k := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey)); k != "" {
		return k
	}
	return strings.TrimSpace(bodyKey)
}

func idRecetaParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, codeValidation, "id de receta inválido: "+raw, nil)
		return 0, false
	}
	return id, true
}
