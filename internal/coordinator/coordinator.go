// Package coordinator implements the dispensation saga: the single writer
// path that turns a receta into ledger egresses and a dispensation record,
// with verified-shortfall rejection before any mutation and best-effort
// compensation after a partial one.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pharmatrack/orquestador/internal/coordinator/sagalog"
	"github.com/pharmatrack/orquestador/internal/orquestador/core/domain/entity"
	"github.com/pharmatrack/orquestador/internal/orquestador/core/ports"
	"github.com/pharmatrack/orquestador/internal/pkg/cache"
	"github.com/pharmatrack/orquestador/internal/pkg/correlation"
)

const (
	// DefaultIdempotencyTTL is how long a finished saga's outcome stays
	// replayable under its idempotency key.
	DefaultIdempotencyTTL = 10 * time.Minute

	// DefaultReservaTTL is the lifetime of a soft stock reservation.
	DefaultReservaTTL = 2 * time.Minute
)

// Cache-key namespaces. The two idempotency namespaces and the reservation
// records may share one backing store (they do in Redis mode), so each gets
// its own prefix: an idempotency key that happens to equal a receta id must
// never touch the reservation record.
const (
	opDispensa        = "dispensa"
	opReserva         = "reserva-idem"
	opReservaRegistro = "reserva-registro"
)

// MovimientoAplicado is one egress the saga committed against the ledger.
type MovimientoAplicado struct {
	IDSucursal int    `json:"id_sucursal"`
	IDProducto string `json:"id_producto"`
	Cantidad   int    `json:"cantidad"`
}

// ResultadoDispensacion is the terminal success outcome of a dispense.
type ResultadoDispensacion struct {
	IDReceta       int                  `json:"id_receta"`
	IDDispensacion int                  `json:"id_dispensacion"`
	EstadoFinal    string               `json:"estado_final"`
	CantidadTotal  int                  `json:"cantidad_total"`
	Movimientos    []MovimientoAplicado `json:"movimientos"`
	CorrelationID  string               `json:"correlation_id"`
}

// resultadoCacheado is the envelope stored under an idempotency key: exactly
// one of its fields is set, so a replay reproduces the original outcome —
// success, reservation, or terminal error — byte for byte.
type resultadoCacheado struct {
	Dispensacion *ResultadoDispensacion `json:"dispensacion,omitempty"`
	Reserva      *Reserva               `json:"reserva,omitempty"`
	Error        *errorCacheado         `json:"error,omitempty"`
}

// Coordinator drives the dispensation saga across the three collaborators.
// One instance serves all requests; all state lives in the caches and the
// saga log.
type Coordinator struct {
	recetas    ports.RecetaService
	inventario ports.InventarioService
	reconciler *Reconciler
	sagaLog    sagalog.Repository

	idem     cache.Cache
	reservas cache.Cache

	idemTTL    time.Duration
	reservaTTL time.Duration

	tracer trace.Tracer
	now    func() time.Time
}

// Option customises a Coordinator at construction.
type Option func(*Coordinator)

// WithIdempotencyTTL overrides the replay window for cached outcomes.
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(c *Coordinator) { c.idemTTL = ttl }
}

// WithReservaTTL overrides the lifetime of soft reservations.
func WithReservaTTL(ttl time.Duration) Option {
	return func(c *Coordinator) { c.reservaTTL = ttl }
}

// WithClock replaces the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func New(recetas ports.RecetaService, inventario ports.InventarioService, sagaLog sagalog.Repository, idem, reservas cache.Cache, opts ...Option) *Coordinator {
	c := &Coordinator{
		recetas:    recetas,
		inventario: inventario,
		reconciler: NewReconciler(inventario),
		sagaLog:    sagaLog,
		idem:       idem,
		reservas:   reservas,
		idemTTL:    DefaultIdempotencyTTL,
		reservaTTL: DefaultReservaTTL,
		tracer:     otel.Tracer("coordinator"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispensar executes the full dispensation saga for a receta. With an
// idempotency key, a repeat call inside the replay window returns the cached
// outcome — success or terminal failure — without touching any downstream
// service. Without a key every call is a fresh execution.
//
// The saga is all-or-nothing at the sucursal of the receta: any line the
// sucursal cannot cover rejects the whole dispense before a single egress is
// applied. A mid-apply failure triggers compensation of the already-applied
// egresses, in reverse order, before the saga reports failure.
func (c *Coordinator) Dispensar(ctx context.Context, idReceta int, idemKey string) (*ResultadoDispensacion, error) {
	ctx, span := c.tracer.Start(ctx, "saga-dispensar", trace.WithAttributes(
		attribute.Int("receta.id", idReceta),
		attribute.Bool("idempotency.key_present", idemKey != ""),
	))
	defer span.End()

	if idemKey != "" {
		if env, ok := c.replay(ctx, opDispensa, idemKey); ok {
			span.SetAttributes(attribute.Bool("idempotency.replayed", true))
			slog.InfoContext(ctx, "dispensación resuelta por replay", "id_receta", idReceta)
			if env.Error != nil {
				return nil, env.Error.toError()
			}
			return env.Dispensacion, nil
		}
	}

	res, err := c.dispensar(ctx, idReceta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if idemKey != "" && terminal(err) {
			c.guardar(ctx, opDispensa, idemKey, &resultadoCacheado{Error: newErrorCacheado(err)})
		}
		return nil, err
	}

	if idemKey != "" {
		c.guardar(ctx, opDispensa, idemKey, &resultadoCacheado{Dispensacion: res})
	}
	return res, nil
}

// dispensar is one fresh saga execution, replay already ruled out.
func (c *Coordinator) dispensar(ctx context.Context, idReceta int) (*ResultadoDispensacion, error) {
	sagaID := uuid.NewString()
	log := slog.With("saga_id", sagaID, "id_receta", idReceta)

	c.registrar(ctx, sagaID, idReceta, sagalog.EstadoIniciada, sagalog.PasoObtenerReceta, nil)

	receta, err := c.recetas.ObtenerReceta(ctx, idReceta)
	if err != nil {
		if errors.Is(err, ports.ErrNoEncontrado) {
			c.registrar(ctx, sagaID, idReceta, sagalog.EstadoFallida, sagalog.PasoObtenerReceta, map[string]string{"error": err.Error()})
			return nil, fmt.Errorf("receta %d: %w", idReceta, ports.ErrNoEncontrado)
		}
		c.registrar(ctx, sagaID, idReceta, sagalog.EstadoFallida, sagalog.PasoObtenerReceta, map[string]string{"error": err.Error()})
		return nil, &DownstreamFailure{Mensaje: fmt.Sprintf("recetas: %v", err), Err: err}
	}
	if len(receta.Detalle) == 0 {
		verr := &ValidationError{Motivo: fmt.Sprintf("receta %d no tiene líneas", idReceta)}
		c.registrar(ctx, sagaID, idReceta, sagalog.EstadoRechazada, sagalog.PasoVerificarLineas, map[string]string{"motivo": verr.Motivo})
		return nil, verr
	}

	// Verification is scoped to the sucursal the receta was issued at: a
	// dispense never crosses sucursales.
	sucursal := receta.IDSucursal
	resultados, err := c.reconciler.Reconcile(ctx, receta.Detalle, &sucursal)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			c.registrar(ctx, sagaID, idReceta, sagalog.EstadoRechazada, sagalog.PasoVerificarLineas, map[string]string{"motivo": verr.Motivo})
			return nil, verr
		}
		c.registrar(ctx, sagaID, idReceta, sagalog.EstadoFallida, sagalog.PasoVerificarLineas, map[string]string{"error": err.Error()})
		return nil, &DownstreamFailure{Mensaje: fmt.Sprintf("inventario: %v", err), Err: err}
	}
	if f := faltantes(resultados); len(f) > 0 {
		c.registrar(ctx, sagaID, idReceta, sagalog.EstadoRechazada, sagalog.PasoVerificarLineas, map[string]any{"faltantes": f})
		log.InfoContext(ctx, "dispensación rechazada por stock insuficiente", "lineas_faltantes", len(f))
		return nil, &StockInsuficienteError{Faltantes: f}
	}

	// Past this point the saga mutates the ledger; a caller disconnect must
	// not abandon it halfway, so cancellation is dropped while trace and
	// correlation values are kept.
	ctx = context.WithoutCancel(ctx)

	aplicados, err := c.aplicarEgresos(ctx, sagaID, receta)
	if err != nil {
		c.compensar(ctx, sagaID, idReceta, aplicados)
		c.registrar(ctx, sagaID, idReceta, sagalog.EstadoFallida, sagalog.PasoAplicarEgreso, map[string]string{"error": err.Error()})
		return nil, &DownstreamFailure{Mensaje: fmt.Sprintf("egreso fallido, ledger compensado: %v", err), Err: err}
	}

	cantidadTotal := 0
	for _, m := range aplicados {
		cantidadTotal += m.Cantidad
	}

	disp, err := c.recetas.CrearDispensacion(ctx, idReceta, cantidadTotal)
	if err != nil {
		c.compensar(ctx, sagaID, idReceta, aplicados)
		c.registrar(ctx, sagaID, idReceta, sagalog.EstadoFallida, sagalog.PasoRegistrarDispensa, map[string]string{"error": err.Error()})
		return nil, &DownstreamFailure{Mensaje: fmt.Sprintf("registro de dispensación fallido, ledger compensado: %v", err), Err: err}
	}

	c.registrar(ctx, sagaID, idReceta, sagalog.EstadoCompletada, sagalog.PasoRegistrarDispensa, map[string]any{
		"id_dispensacion": disp.ID,
		"cantidad_total":  cantidadTotal,
	})
	log.InfoContext(ctx, "dispensación completada", "id_dispensacion", disp.ID, "cantidad_total", cantidadTotal)

	return &ResultadoDispensacion{
		IDReceta:       idReceta,
		IDDispensacion: disp.ID,
		EstadoFinal:    entity.EstadoRecetaDispensada,
		CantidadTotal:  cantidadTotal,
		Movimientos:    aplicados,
		CorrelationID:  correlation.FromContext(ctx),
	}, nil
}

// aplicarEgresos commits one EGRESO per line, sequentially and in line
// order. On failure it returns the movements applied so far so the caller
// can compensate them; the failing movement itself was never applied.
func (c *Coordinator) aplicarEgresos(ctx context.Context, sagaID string, receta *entity.Receta) ([]MovimientoAplicado, error) {
	aplicados := make([]MovimientoAplicado, 0, len(receta.Detalle))
	motivo := "dispensacion receta " + strconv.Itoa(receta.IDReceta)

	for _, linea := range receta.Detalle {
		_, err := c.inventario.RegistrarMovimiento(ctx, entity.Movimiento{
			IDSucursal:     receta.IDSucursal,
			IDProducto:     linea.IDProducto,
			TipoMovimiento: entity.MovimientoEgreso,
			Cantidad:       linea.Cantidad,
			Motivo:         motivo,
		})
		if err != nil {
			return aplicados, fmt.Errorf("egreso producto %s: %w", linea.IDProducto, err)
		}
		aplicados = append(aplicados, MovimientoAplicado{
			IDSucursal: receta.IDSucursal,
			IDProducto: linea.IDProducto,
			Cantidad:   linea.Cantidad,
		})
		c.registrar(ctx, sagaID, receta.IDReceta, sagalog.EstadoPasoCompletado, sagalog.PasoAplicarEgreso, map[string]any{
			"id_producto": linea.IDProducto,
			"cantidad":    linea.Cantidad,
		})
	}
	return aplicados, nil
}

// compensar reverses the applied egresses with matching ENTRADA movements,
// newest first. Best-effort: a failed reversal is logged for the operator
// and the loop keeps going — the saga log row is the reconciliation record.
func (c *Coordinator) compensar(ctx context.Context, sagaID string, idReceta int, aplicados []MovimientoAplicado) {
	if len(aplicados) == 0 {
		return
	}

	ctx, span := c.tracer.Start(ctx, "saga-compensar", trace.WithAttributes(
		attribute.Int("receta.id", idReceta),
		attribute.Int("movimientos.count", len(aplicados)),
	))
	defer span.End()

	c.registrar(ctx, sagaID, idReceta, sagalog.EstadoCompensando, sagalog.PasoCompensar, map[string]any{"a_revertir": aplicados})

	motivo := "compensacion dispensacion receta " + strconv.Itoa(idReceta)
	var fallidos []MovimientoAplicado
	for i := len(aplicados) - 1; i >= 0; i-- {
		m := aplicados[i]
		_, err := c.inventario.RegistrarMovimiento(ctx, entity.Movimiento{
			IDSucursal:     m.IDSucursal,
			IDProducto:     m.IDProducto,
			TipoMovimiento: entity.MovimientoEntrada,
			Cantidad:       m.Cantidad,
			Motivo:         motivo,
		})
		if err != nil {
			fallidos = append(fallidos, m)
			slog.ErrorContext(ctx, "CRITICAL: compensación fallida, ledger inconsistente",
				"saga_id", sagaID,
				"id_receta", idReceta,
				"id_producto", m.IDProducto,
				"id_sucursal", m.IDSucursal,
				"cantidad", m.Cantidad,
				"error", err)
		}
	}
	if len(fallidos) > 0 {
		span.SetStatus(codes.Error, "compensación parcial")
		c.registrar(ctx, sagaID, idReceta, sagalog.EstadoCompensando, sagalog.PasoCompensar, map[string]any{"no_revertidos": fallidos})
	}
}

// registrar appends a saga log row. The log is observability, not control
// flow: a nil repository skips it and a write failure is logged and
// swallowed, so it never changes the saga's outcome.
func (c *Coordinator) registrar(ctx context.Context, sagaID string, idReceta int, estado sagalog.Estado, paso string, detalle any) {
	if c.sagaLog == nil {
		return
	}
	entrada := sagalog.NewEntrada(ctx, sagaID, idReceta, estado, paso, detalle)
	if err := c.sagaLog.Save(ctx, entrada); err != nil {
		slog.ErrorContext(ctx, "no se pudo guardar la entrada del saga log",
			"saga_id", sagaID, "id_receta", idReceta, "estado", estado, "error", err)
	}
}

// EstadoSaga returns the latest saga log entry for a receta.
// Returns ports.ErrNoEncontrado when the receta never entered a saga.
func (c *Coordinator) EstadoSaga(ctx context.Context, idReceta int) (*sagalog.Entrada, error) {
	if c.sagaLog == nil {
		return nil, fmt.Errorf("saga de receta %d: %w", idReceta, ports.ErrNoEncontrado)
	}
	entrada, err := c.sagaLog.GetLatest(ctx, idReceta)
	if err != nil {
		if errors.Is(err, sagalog.ErrNotFound) {
			return nil, fmt.Errorf("saga de receta %d: %w", idReceta, ports.ErrNoEncontrado)
		}
		return nil, err
	}
	return entrada, nil
}

// replay looks up a cached outcome. A cache read failure degrades to a
// fresh execution rather than failing the request.
func (c *Coordinator) replay(ctx context.Context, operation, idemKey string) (*resultadoCacheado, bool) {
	raw, ok, err := c.idem.Get(ctx, c.idem.GenerateKey(operation, idemKey))
	if err != nil {
		slog.WarnContext(ctx, "lectura de caché de idempotencia fallida, ejecutando de nuevo", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var env resultadoCacheado
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		slog.WarnContext(ctx, "entrada de idempotencia corrupta, ejecutando de nuevo", "error", err)
		return nil, false
	}
	return &env, true
}

// guardar stores a terminal outcome under the idempotency key. Failures are
// logged and swallowed: the outcome already happened, the caller gets it
// either way.
func (c *Coordinator) guardar(ctx context.Context, operation, idemKey string, env *resultadoCacheado) {
	raw, err := json.Marshal(env)
	if err != nil {
		slog.ErrorContext(ctx, "no se pudo serializar el resultado para idempotencia", "error", err)
		return
	}
	if err := c.idem.Set(ctx, c.idem.GenerateKey(operation, idemKey), string(raw), c.idemTTL); err != nil {
		slog.WarnContext(ctx, "escritura de caché de idempotencia fallida", "error", err)
	}
}

// terminal reports whether an error is a settled outcome that a replay
// should reproduce. Every error the saga surfaces qualifies, downstream
// failures included — even one before any mutation — so retries with the
// same key are always deterministic and a post-compensation replay can
// never double-spend stock. The fallthrough guards future error kinds that
// might not be safe to freeze for the whole replay window.
func terminal(err error) bool {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return true
	}
	var serr *StockInsuficienteError
	if errors.As(err, &serr) {
		return true
	}
	if errors.Is(err, ports.ErrNoEncontrado) {
		return true
	}
	var dfail *DownstreamFailure
	if errors.As(err, &dfail) {
		return true
	}
	return false
}
