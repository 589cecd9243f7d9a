// Package sagalog defines the audit trail of dispensation saga executions.
//
// Each saga execution appends one row per state transition. It serves two
// purposes:
//
//  1. Observability: the latest row for a receta shows exactly where a
//     dispense is (or stopped), joinable with the distributed trace via
//     trace_id and with downstream service logs via correlation_id.
//
//  2. Forensics after partial outage: compensation is best-effort, so when a
//     reversing movement fails the log row is what an operator reconciles
//     the ledger against.
package sagalog

import "time"

// Estado is the lifecycle state of a dispensation saga execution.
type Estado string

const (
	EstadoIniciada       Estado = "INICIADA"
	EstadoPasoCompletado Estado = "PASO_COMPLETADO"
	EstadoRechazada      Estado = "RECHAZADA"
	EstadoCompensando    Estado = "COMPENSANDO"
	EstadoFallida        Estado = "FALLIDA"
	EstadoCompletada     Estado = "COMPLETADA"
)

// Step names recorded in the Paso column, one per coordinator state.
const (
	PasoObtenerReceta     = "obtener_receta"
	PasoVerificarLineas   = "verificar_lineas"
	PasoAplicarEgreso     = "aplicar_egreso"
	PasoCompensar         = "compensar"
	PasoRegistrarDispensa = "registrar_dispensacion"
)

// Entrada is a single row in the dispensacion_saga_log table: a
// point-in-time snapshot of one saga execution.
type Entrada struct {
	// SagaID uniquely identifies one execution. Distinct executions for the
	// same receta (e.g. a retry without an idempotency key) get distinct ids.
	SagaID string

	// IDReceta is the business identifier, for joining with recetas data.
	IDReceta int

	// Estado is the lifecycle state at the time this row was written.
	Estado Estado

	// Paso is the step that just executed or failed.
	Paso string

	// CorrelationID links this row to the logs of all three downstream
	// services for the same logical request.
	CorrelationID string

	// Detalle is a JSON fragment with step-specific data: shortfalls on
	// rejection, applied/reversed movements during compensation, error text.
	Detalle string

	// TraceID is the W3C trace id of the active OTel span when the row was
	// written; SpanID pinpoints the exact operation within the trace.
	TraceID string
	SpanID  string

	// UpdatedAt is the wall-clock time of this log entry.
	UpdatedAt time.Time
}
