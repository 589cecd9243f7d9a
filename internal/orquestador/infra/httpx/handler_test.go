package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pharmatrack/orquestador/internal/coordinator"
	"github.com/pharmatrack/orquestador/internal/coordinator/sagalog"
	"github.com/pharmatrack/orquestador/internal/orquestador/core/domain/entity"
	"github.com/pharmatrack/orquestador/internal/orquestador/core/ports"
	"github.com/pharmatrack/orquestador/internal/orquestador/readiness"
	"github.com/pharmatrack/orquestador/internal/pkg/cache"
	"github.com/pharmatrack/orquestador/internal/pkg/correlation"
)

type stubRecetas struct {
	receta *entity.Receta
}

func (s *stubRecetas) ObtenerReceta(_ context.Context, idReceta int) (*entity.Receta, error) {
	if s.receta == nil || s.receta.IDReceta != idReceta {
		return nil, ports.ErrNoEncontrado
	}
	r := *s.receta
	return &r, nil
}

func (s *stubRecetas) CrearDispensacion(_ context.Context, idReceta, cantidadTotal int) (*entity.Dispensacion, error) {
	return &entity.Dispensacion{ID: 900, IDReceta: idReceta, CantidadTotal: cantidadTotal}, nil
}

func (s *stubRecetas) Health(context.Context) error { return nil }

type stubInventario struct {
	rows []entity.Stock

	mu        sync.Mutex
	consultas int
	egresos   int
}

func (s *stubInventario) ConsultarStock(_ context.Context, q entity.ConsultaStock) ([]entity.Stock, error) {
	s.mu.Lock()
	s.consultas++
	s.mu.Unlock()
	var out []entity.Stock
	for _, r := range s.rows {
		if q.IDProducto != "" && r.IDProducto != q.IDProducto {
			continue
		}
		if q.IDSucursal != nil && r.IDSucursal != *q.IDSucursal {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *stubInventario) RegistrarMovimiento(_ context.Context, m entity.Movimiento) (*entity.Movimiento, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.TipoMovimiento == entity.MovimientoEgreso {
		s.egresos++
	}
	return &m, nil
}

func (s *stubInventario) Health(context.Context) error { return nil }

type stubCatalogo struct {
	productos map[string]entity.Producto
}

func (s *stubCatalogo) ObtenerProducto(_ context.Context, id string) (*entity.Producto, error) {
	p, ok := s.productos[id]
	if !ok {
		return nil, ports.ErrNoEncontrado
	}
	return &p, nil
}

func (s *stubCatalogo) BuscarProductos(_ context.Context, q string) ([]entity.Producto, error) {
	var out []entity.Producto
	for _, p := range s.productos {
		if strings.Contains(strings.ToLower(p.Nombre), strings.ToLower(q)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubCatalogo) Health(context.Context) error { return nil }

type stubSagaLog struct {
	mu       sync.Mutex
	entradas []*sagalog.Entrada
}

func (l *stubSagaLog) Save(_ context.Context, e *sagalog.Entrada) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entradas = append(l.entradas, e)
	return nil
}

func (l *stubSagaLog) GetLatest(_ context.Context, idReceta int) (*sagalog.Entrada, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entradas) - 1; i >= 0; i-- {
		if l.entradas[i].IDReceta == idReceta {
			return l.entradas[i], nil
		}
	}
	return nil, sagalog.ErrNotFound
}

type fixture struct {
	recetas    *stubRecetas
	inventario *stubInventario
	catalogo   *stubCatalogo
	server     http.Handler
}

func newFixture() *fixture {
	recetas := &stubRecetas{receta: &entity.Receta{
		IDReceta:   42,
		IDSucursal: 1,
		Estado:     entity.EstadoRecetaNueva,
		Detalle: []entity.LineaReceta{
			{IDProducto: "PROD-1", Cantidad: 2},
			{IDProducto: "PROD-2", Cantidad: 10},
		},
	}}
	inventario := &stubInventario{rows: []entity.Stock{
		{IDSucursal: 1, IDProducto: "PROD-1", StockActual: 5, UmbralReposicion: 2},
		{IDSucursal: 1, IDProducto: "PROD-2", StockActual: 12, UmbralReposicion: 4},
	}}
	catalogo := &stubCatalogo{productos: map[string]entity.Producto{
		"PROD-1": {IDProducto: "PROD-1", Nombre: "Paracetamol 500mg", CodigoATC: "N02BE01"},
	}}

	coord := coordinator.New(recetas, inventario, &stubSagaLog{},
		cache.NewMemoryCache("test"), cache.NewMemoryCache("test"))
	ready := readiness.New(
		readiness.Probe{Nombre: "catalogo", Check: catalogo.Health},
		readiness.Probe{Nombre: "inventario", Check: inventario.Health},
		readiness.Probe{Nombre: "recetas", Check: recetas.Health},
	)
	handler := NewHandler(coord, catalogo, inventario, ready)
	return &fixture{
		recetas:    recetas,
		inventario: inventario,
		catalogo:   catalogo,
		server:     NewRouter(handler),
	}
}

func (f *fixture) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decodificando respuesta %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestPostDispensarExitoso(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/dispensar", `{"id_receta":42}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	res := decode[coordinator.ResultadoDispensacion](t, rec)
	if res.EstadoFinal != entity.EstadoRecetaDispensada || res.CantidadTotal != 12 {
		t.Errorf("resultado = %+v", res)
	}
	if rec.Header().Get(correlation.Header) == "" {
		t.Error("la respuesta no ecoa el correlation id")
	}
}

func TestPostDispensarReusaCorrelationID(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/dispensar", `{"id_receta":42}`,
		map[string]string{correlation.Header: "corr-entrante"})
	if got := rec.Header().Get(correlation.Header); got != "corr-entrante" {
		t.Errorf("correlation id = %q, esperaba el entrante", got)
	}
	res := decode[coordinator.ResultadoDispensacion](t, rec)
	if res.CorrelationID != "corr-entrante" {
		t.Errorf("correlation_id en el cuerpo = %q", res.CorrelationID)
	}
}

func TestPostDispensarStockInsuficiente(t *testing.T) {
	f := newFixture()
	f.inventario.rows[1].StockActual = 2 // PROD-2 pide 10

	rec := f.do(t, http.MethodPost, "/dispensar", `{"id_receta":42}`, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, esperaba 409", rec.Code)
	}
	res := decode[ErrorResponse](t, rec)
	if res.Error != "STOCK_INSUFICIENTE" || res.Detalle == nil {
		t.Errorf("envelope = %+v, esperaba STOCK_INSUFICIENTE con detalle", res)
	}
	if f.inventario.egresos != 0 {
		t.Error("el rechazo mutó el ledger")
	}
}

func TestPostDispensarValidaciones(t *testing.T) {
	f := newFixture()

	if rec := f.do(t, http.MethodPost, "/dispensar", `{no es json`, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("json inválido: status = %d, esperaba 400", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/dispensar", `{}`, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("sin id_receta: status = %d, esperaba 400", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/dispensar", `{"id_receta":99}`, nil); rec.Code != http.StatusNotFound {
		t.Errorf("receta inexistente: status = %d, esperaba 404", rec.Code)
	}
}

func TestPostDispensarHeaderIdempotencyGanaAlCuerpo(t *testing.T) {
	f := newFixture()
	header := map[string]string{HeaderIdempotencyKey: "clave-header"}

	rec1 := f.do(t, http.MethodPost, "/dispensar", `{"id_receta":42,"idempotency_key":"clave-cuerpo"}`, header)
	if rec1.Code != http.StatusOK {
		t.Fatalf("primera llamada: %d %s", rec1.Code, rec1.Body.String())
	}
	egresosAntes := f.inventario.egresos

	// Mismo header, cuerpo distinto: debe ser replay.
	rec2 := f.do(t, http.MethodPost, "/dispensar", `{"id_receta":42,"idempotency_key":"otra-clave"}`, header)
	if rec2.Code != http.StatusOK {
		t.Fatalf("replay: %d %s", rec2.Code, rec2.Body.String())
	}
	if f.inventario.egresos != egresosAntes {
		t.Error("el replay volvió a aplicar egresos: el header no ganó al cuerpo")
	}
}

func TestGetSagaReceta(t *testing.T) {
	f := newFixture()

	if rec := f.do(t, http.MethodGet, "/dispensaciones/42/saga", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("sin sagas: status = %d, esperaba 404", rec.Code)
	}

	if rec := f.do(t, http.MethodPost, "/dispensar", `{"id_receta":42}`, nil); rec.Code != http.StatusOK {
		t.Fatalf("dispensar: %d", rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/dispensaciones/42/saga", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	res := decode[SagaEntradaResponse](t, rec)
	if res.IDReceta != 42 || res.Estado != string(sagalog.EstadoCompletada) {
		t.Errorf("entrada = %+v, esperaba COMPLETADA", res)
	}
}

func TestReservaStockCicloCompleto(t *testing.T) {
	f := newFixture()

	if rec := f.do(t, http.MethodGet, "/reserva-stock/42", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("sin reserva: status = %d, esperaba 404", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/reserva-stock", `{"id_receta":42}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reservar: %d %s", rec.Code, rec.Body.String())
	}
	res := decode[ReservaResponse](t, rec)
	if !res.OK || res.VenceEnMS <= 0 {
		t.Errorf("reserva = %+v, esperaba ok con TTL restante", res)
	}

	rec = f.do(t, http.MethodGet, "/reserva-stock/42", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("consultar reserva: %d", rec.Code)
	}
	det := decode[ReservaDetalleResponse](t, rec)
	if det.IDReceta != 42 || len(det.Items) != 2 {
		t.Errorf("detalle = %+v", det)
	}
}

func TestReservaStockInsuficiente(t *testing.T) {
	f := newFixture()
	f.inventario.rows[1].StockActual = 1

	rec := f.do(t, http.MethodPost, "/reserva-stock", `{"id_receta":42}`, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, esperaba 409", rec.Code)
	}
}

func TestValidacionReceta(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/recetas/42/validacion", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	res := decode[coordinator.ResultadoValidacion](t, rec)
	if res.Veredicto != coordinator.VeredictoValidada {
		t.Errorf("veredicto = %q", res.Veredicto)
	}

	// Con la línea corta cubierta en otra sucursal el veredicto baja a
	// PARCIAL y el status a 207.
	f.inventario.rows[1].StockActual = 2
	f.inventario.rows = append(f.inventario.rows, entity.Stock{IDSucursal: 4, IDProducto: "PROD-2", StockActual: 30})

	rec = f.do(t, http.MethodPost, "/recetas/validar", `{"id_receta":42}`, nil)
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, esperaba 207", rec.Code)
	}
	res = decode[coordinator.ResultadoValidacion](t, rec)
	if res.Veredicto != coordinator.VeredictoParcial {
		t.Errorf("veredicto = %q, esperaba PARCIAL", res.Veredicto)
	}
}

func TestDisponibilidad(t *testing.T) {
	f := newFixture()

	if rec := f.do(t, http.MethodGet, "/disponibilidad", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("sin id_producto: status = %d, esperaba 400", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/disponibilidad?id_producto=NO-EXISTE", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("producto inexistente: status = %d, esperaba 400", rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/disponibilidad?id_producto=PROD-1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	res := decode[DisponibilidadResponse](t, rec)
	if res.Producto.IDProducto != "PROD-1" || res.Total != 5 || len(res.Sucursales) != 1 {
		t.Errorf("disponibilidad = %+v", res)
	}
}

func TestBuscarProductos(t *testing.T) {
	f := newFixture()

	if rec := f.do(t, http.MethodGet, "/productos/buscar", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("sin q: status = %d, esperaba 400", rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/productos/buscar?q=paracetamol", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealthYReadyz(t *testing.T) {
	f := newFixture()

	if rec := f.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz: status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("readyz: status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
