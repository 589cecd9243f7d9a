package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pharmatrack/orquestador/internal/coordinator/sagalog"
	"github.com/pharmatrack/orquestador/internal/orquestador/core/domain/entity"
	"github.com/pharmatrack/orquestador/internal/orquestador/core/ports"
	"github.com/pharmatrack/orquestador/internal/pkg/cache"
)

// fakeRecetas serves a fixed receta and records dispensation writes.
type fakeRecetas struct {
	receta   *entity.Receta
	getErr   error
	crearErr error

	mu             sync.Mutex
	obtenerCalls   int
	dispensaciones []int
}

func (f *fakeRecetas) ObtenerReceta(_ context.Context, idReceta int) (*entity.Receta, error) {
	f.mu.Lock()
	f.obtenerCalls++
	f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.receta == nil || f.receta.IDReceta != idReceta {
		return nil, ports.ErrNoEncontrado
	}
	r := *f.receta
	return &r, nil
}

func (f *fakeRecetas) CrearDispensacion(_ context.Context, idReceta, cantidadTotal int) (*entity.Dispensacion, error) {
	if f.crearErr != nil {
		return nil, f.crearErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispensaciones = append(f.dispensaciones, cantidadTotal)
	return &entity.Dispensacion{ID: 500 + len(f.dispensaciones), IDReceta: idReceta, CantidadTotal: cantidadTotal}, nil
}

func (f *fakeRecetas) Health(context.Context) error { return nil }

// fakeInventario holds ledger rows in memory and records every movement.
// failEgreso injects a rejection for a specific producto's EGRESO.
type fakeInventario struct {
	rows       []entity.Stock
	failEgreso map[string]error

	mu          sync.Mutex
	consultas   int
	movimientos []entity.Movimiento
}

func (f *fakeInventario) ConsultarStock(_ context.Context, q entity.ConsultaStock) ([]entity.Stock, error) {
	f.mu.Lock()
	f.consultas++
	f.mu.Unlock()
	var out []entity.Stock
	for _, r := range f.rows {
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

func (f *fakeInventario) RegistrarMovimiento(_ context.Context, m entity.Movimiento) (*entity.Movimiento, error) {
	if m.TipoMovimiento == entity.MovimientoEgreso {
		if err, ok := f.failEgreso[m.IDProducto]; ok {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.movimientos = append(f.movimientos, m)
	m.ID = len(f.movimientos)
	return &m, nil
}

func (f *fakeInventario) Health(context.Context) error { return nil }

func (f *fakeInventario) registrados() []entity.Movimiento {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entity.Movimiento, len(f.movimientos))
	copy(out, f.movimientos)
	return out
}

// memLog is an in-memory sagalog.Repository.
type memLog struct {
	mu       sync.Mutex
	entradas []*sagalog.Entrada
}

func (l *memLog) Save(_ context.Context, e *sagalog.Entrada) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entradas = append(l.entradas, e)
	return nil
}

func (l *memLog) GetLatest(_ context.Context, idReceta int) (*sagalog.Entrada, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entradas) - 1; i >= 0; i-- {
		if l.entradas[i].IDReceta == idReceta {
			return l.entradas[i], nil
		}
	}
	return nil, sagalog.ErrNotFound
}

func (l *memLog) last() *sagalog.Entrada {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entradas) == 0 {
		return nil
	}
	return l.entradas[len(l.entradas)-1]
}

// recetaDosLineas is the canonical fixture: two lines at sucursal 1.
func recetaDosLineas() *entity.Receta {
	return &entity.Receta{
		IDReceta:       42,
		IDSucursal:     1,
		NombrePaciente: "Ana Quispe",
		Estado:         entity.EstadoRecetaNueva,
		Detalle: []entity.LineaReceta{
			{IDProducto: "PROD-1", Cantidad: 2},
			{IDProducto: "PROD-2", Cantidad: 10},
		},
	}
}

func newTestCoordinator(recetas *fakeRecetas, inventario *fakeInventario, log *memLog, opts ...Option) *Coordinator {
	idem := cache.NewMemoryCache("orquestador-test")
	reservas := cache.NewMemoryCache("orquestador-test")
	return New(recetas, inventario, log, idem, reservas, opts...)
}

var errLedgerCaido = fmt.Errorf("inventario: connection refused")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
