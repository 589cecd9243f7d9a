package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pharmatrack/orquestador/internal/orquestador/core/domain/entity"
	"github.com/pharmatrack/orquestador/internal/orquestador/core/ports"
	"github.com/pharmatrack/orquestador/internal/pkg/correlation"
)

// Pre-validation verdicts. VALIDADA: every line is covered at the receta's
// own sucursal. PARCIAL: at least one line falls short there, but every
// short line is covered by the network-wide aggregate. RECHAZADA: some line
// cannot be covered even summing every sucursal.
const (
	VeredictoValidada  = "VALIDADA"
	VeredictoParcial   = "PARCIAL"
	VeredictoRechazada = "RECHAZADA"
)

// ResultadoValidacion is the outcome of a dry-run check: what a dispense
// would decide right now, without touching the ledger. Advisory only —
// stock can move between validation and dispense.
type ResultadoValidacion struct {
	IDReceta      int              `json:"id_receta"`
	IDSucursal    int              `json:"id_sucursal"`
	Veredicto     string           `json:"veredicto"`
	Lineas        []ResultadoLinea `json:"lineas"`
	CorrelationID string           `json:"correlation_id"`
}

// Validar checks whether a receta could be dispensed at its sucursal. Lines
// that fall short there are re-checked against the whole network to decide
// between PARCIAL (transferable) and RECHAZADA (nowhere to get it), with a
// suggested sucursal attached when a single one covers the line on its own.
func (c *Coordinator) Validar(ctx context.Context, idReceta int) (*ResultadoValidacion, error) {
	ctx, span := c.tracer.Start(ctx, "validar-receta", trace.WithAttributes(
		attribute.Int("receta.id", idReceta),
	))
	defer span.End()

	receta, err := c.recetas.ObtenerReceta(ctx, idReceta)
	if err != nil {
		if errors.Is(err, ports.ErrNoEncontrado) {
			return nil, fmt.Errorf("receta %d: %w", idReceta, ports.ErrNoEncontrado)
		}
		return nil, &DownstreamFailure{Mensaje: fmt.Sprintf("recetas: %v", err), Err: err}
	}
	if len(receta.Detalle) == 0 {
		return nil, &ValidationError{Motivo: fmt.Sprintf("receta %d no tiene líneas", idReceta)}
	}

	sucursal := receta.IDSucursal
	lineas, err := c.reconciler.Reconcile(ctx, receta.Detalle, &sucursal)
	if err != nil {
		return nil, c.wrapReconcile(err)
	}

	res := &ResultadoValidacion{
		IDReceta:      idReceta,
		IDSucursal:    sucursal,
		Veredicto:     VeredictoValidada,
		Lineas:        lineas,
		CorrelationID: correlation.FromContext(ctx),
	}

	var cortas []entity.LineaReceta
	var cortasIdx []int
	for i, l := range lineas {
		if !l.Satisfacible {
			cortas = append(cortas, entity.LineaReceta{IDProducto: l.IDProducto, Cantidad: l.Solicitado})
			cortasIdx = append(cortasIdx, i)
		}
	}
	if len(cortas) == 0 {
		return res, nil
	}

	// Second pass, network-wide, only for the short lines.
	globales, err := c.reconciler.Reconcile(ctx, cortas, nil)
	if err != nil {
		return nil, c.wrapReconcile(err)
	}

	res.Veredicto = VeredictoParcial
	for j, g := range globales {
		if !g.Satisfacible {
			res.Veredicto = VeredictoRechazada
		}
		res.Lineas[cortasIdx[j]].SucursalSugerida = g.SucursalSugerida
	}

	slog.InfoContext(ctx, "receta validada",
		"id_receta", idReceta, "veredicto", res.Veredicto, "lineas_cortas", len(cortas))
	span.SetAttributes(attribute.String("validacion.veredicto", res.Veredicto))
	return res, nil
}

// wrapReconcile maps a reconciliation error to the public taxonomy.
func (c *Coordinator) wrapReconcile(err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return &DownstreamFailure{Mensaje: fmt.Sprintf("inventario: %v", err), Err: err}
}
