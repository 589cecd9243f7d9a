package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pharmatrack/orquestador/internal/orquestador/core/ports"
	"github.com/pharmatrack/orquestador/internal/pkg/correlation"
)

// ItemReserva is one line held by a soft reservation.
type ItemReserva struct {
	IDProducto string `json:"id_producto"`
	Cantidad   int    `json:"cantidad"`
}

// Reserva is a soft hold on the stock needed by a receta. It is purely
// advisory — nothing in the ledger is locked, a concurrent dispense can
// still drain the stock — and it evaporates when its TTL lapses.
type Reserva struct {
	IDReceta      int           `json:"id_receta"`
	IDSucursal    int           `json:"id_sucursal"`
	Items         []ItemReserva `json:"items"`
	ExpiraEn      time.Time     `json:"expira_en"`
	CorrelationID string        `json:"correlation_id"`
}

// VenceEnMS reports how many milliseconds remain until expiry, from now,
// clamped at zero. Zero means already expired — possible when a reservation
// outcome is replayed through its idempotency key after the reservation's
// own TTL lapsed.
func (r *Reserva) VenceEnMS(now time.Time) int64 {
	if ms := r.ExpiraEn.Sub(now).Milliseconds(); ms > 0 {
		return ms
	}
	return 0
}

// Reservar verifies that the receta's sucursal can currently cover every
// line and, if so, records a soft reservation for DefaultReservaTTL (or the
// configured override). A shortfall returns StockInsuficienteError with the
// short lines, same taxonomy as a dispense rejection. With an idempotency
// key, a repeat call inside the replay window returns the original outcome.
func (c *Coordinator) Reservar(ctx context.Context, idReceta int, idemKey string) (*Reserva, error) {
	ctx, span := c.tracer.Start(ctx, "reservar-stock", trace.WithAttributes(
		attribute.Int("receta.id", idReceta),
	))
	defer span.End()

	if idemKey != "" {
		if env, ok := c.replay(ctx, opReserva, idemKey); ok {
			span.SetAttributes(attribute.Bool("idempotency.replayed", true))
			if env.Error != nil {
				return nil, env.Error.toError()
			}
			return env.Reserva, nil
		}
	}

	reserva, err := c.reservar(ctx, idReceta)
	if err != nil {
		if idemKey != "" && terminal(err) {
			c.guardar(ctx, opReserva, idemKey, &resultadoCacheado{Error: newErrorCacheado(err)})
		}
		return nil, err
	}
	if idemKey != "" {
		c.guardar(ctx, opReserva, idemKey, &resultadoCacheado{Reserva: reserva})
	}
	return reserva, nil
}

func (c *Coordinator) reservar(ctx context.Context, idReceta int) (*Reserva, error) {
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
	if f := faltantes(lineas); len(f) > 0 {
		return nil, &StockInsuficienteError{Faltantes: f}
	}

	items := make([]ItemReserva, 0, len(receta.Detalle))
	for _, l := range receta.Detalle {
		items = append(items, ItemReserva{IDProducto: l.IDProducto, Cantidad: l.Cantidad})
	}
	reserva := &Reserva{
		IDReceta:      idReceta,
		IDSucursal:    sucursal,
		Items:         items,
		ExpiraEn:      c.now().Add(c.reservaTTL).UTC(),
		CorrelationID: correlation.FromContext(ctx),
	}

	raw, err := json.Marshal(reserva)
	if err != nil {
		return nil, fmt.Errorf("serializando reserva: %w", err)
	}
	key := c.reservas.GenerateKey(opReservaRegistro, strconv.Itoa(idReceta))
	if err := c.reservas.Set(ctx, key, string(raw), c.reservaTTL); err != nil {
		return nil, fmt.Errorf("guardando reserva: %w", err)
	}

	slog.InfoContext(ctx, "reserva creada",
		"id_receta", idReceta, "items", len(items), "expira_en", reserva.ExpiraEn)
	return reserva, nil
}

// ConsultarReserva returns the live reservation for a receta, or
// ports.ErrNoEncontrado when none exists or it already expired.
func (c *Coordinator) ConsultarReserva(ctx context.Context, idReceta int) (*Reserva, error) {
	key := c.reservas.GenerateKey(opReservaRegistro, strconv.Itoa(idReceta))
	raw, ok, err := c.reservas.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("leyendo reserva: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("reserva de receta %d: %w", idReceta, ports.ErrNoEncontrado)
	}
	var reserva Reserva
	if err := json.Unmarshal([]byte(raw), &reserva); err != nil {
		return nil, fmt.Errorf("reserva corrupta para receta %d: %w", idReceta, err)
	}
	return &reserva, nil
}
