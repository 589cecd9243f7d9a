package coordinator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pharmatrack/orquestador/internal/orquestador/core/domain/entity"
	"github.com/pharmatrack/orquestador/internal/orquestador/core/ports"
)

// ResultadoLinea is the per-line outcome of a stock reconciliation. Derived,
// never persisted; recomputed on every request so its staleness window is a
// single downstream round trip.
type ResultadoLinea struct {
	IDProducto   string `json:"id_producto"`
	Solicitado   int    `json:"solicitado"`
	Disponible   int    `json:"disponible"`
	Satisfacible bool   `json:"satisfacible"`

	// SucursalSugerida is only set on an unscoped reconciliation: the first
	// sucursal whose own stock alone meets the demand. First-fit over the
	// ledger's ordering, which is unspecified — callers get "some sucursal
	// that independently satisfies demand", nothing more deterministic.
	SucursalSugerida *int `json:"sucursal_sugerida,omitempty"`
}

// Reconciler compares requested quantities against ledger availability.
// Read-only and side-effect-free; safe to invoke speculatively.
type Reconciler struct {
	inventario ports.InventarioService
}

func NewReconciler(inventario ports.InventarioService) *Reconciler {
	return &Reconciler{inventario: inventario}
}

// Reconcile resolves availability for each line. With a target sucursal the
// stock query is scoped to it; without one it spans every sucursal and
// availability is the sum. A line is satisfacible iff availability within
// the scope covers the requested quantity.
//
// Lines are queried concurrently — there is no ordering dependency between
// them — and results come back in input order.
func (r *Reconciler) Reconcile(ctx context.Context, lineas []entity.LineaReceta, idSucursal *int) ([]ResultadoLinea, error) {
	resultados := make([]ResultadoLinea, len(lineas))

	g, gctx := errgroup.WithContext(ctx)
	for i, linea := range lineas {
		g.Go(func() error {
			res, err := r.reconcileLinea(gctx, linea, idSucursal)
			if err != nil {
				return err
			}
			resultados[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resultados, nil
}

func (r *Reconciler) reconcileLinea(ctx context.Context, linea entity.LineaReceta, idSucursal *int) (ResultadoLinea, error) {
	if linea.IDProducto == "" || linea.Cantidad <= 0 {
		return ResultadoLinea{}, &ValidationError{Motivo: fmt.Sprintf("línea inválida: producto %q, cantidad %d", linea.IDProducto, linea.Cantidad)}
	}

	rows, err := r.inventario.ConsultarStock(ctx, entity.ConsultaStock{
		IDProducto: linea.IDProducto,
		IDSucursal: idSucursal,
	})
	if err != nil {
		return ResultadoLinea{}, err
	}

	res := ResultadoLinea{
		IDProducto: linea.IDProducto,
		Solicitado: linea.Cantidad,
	}
	for _, row := range rows {
		res.Disponible += row.StockActual
		if idSucursal == nil && res.SucursalSugerida == nil && row.StockActual >= linea.Cantidad {
			sucursal := row.IDSucursal
			res.SucursalSugerida = &sucursal
		}
	}
	res.Satisfacible = res.Disponible >= linea.Cantidad
	return res, nil
}

// faltantes extracts the shortfall list from a scoped reconciliation.
// Lines that passed are omitted.
func faltantes(lineas []ResultadoLinea) []Faltante {
	var out []Faltante
	for _, l := range lineas {
		if !l.Satisfacible {
			out = append(out, Faltante{
				IDProducto: l.IDProducto,
				Solicitado: l.Solicitado,
				Disponible: l.Disponible,
			})
		}
	}
	return out
}
