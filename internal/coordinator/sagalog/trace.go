package sagalog

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/pharmatrack/orquestador/internal/pkg/correlation"
)

// TraceInfo holds the OTel identifiers extracted from a context.
type TraceInfo struct {
	// TraceID is the W3C trace ID (32 lowercase hex chars).
	// Empty string if no active span is found in the context.
	TraceID string

	// SpanID is the W3C span ID (16 lowercase hex chars).
	SpanID string
}

// ExtractTraceInfo reads the active OpenTelemetry span from ctx and returns
// its trace_id and span_id as hex strings. If the context carries no active
// span (e.g. in unit tests), both fields come back empty — callers handle
// this gracefully, the row is still written.
func ExtractTraceInfo(ctx context.Context) TraceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceInfo{}
	}
	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// NewEntrada builds a log entry for the given transition, with the trace
// info and correlation id extracted from ctx and detalle serialised as JSON.
// A nil detalle is stored as an empty object.
func NewEntrada(ctx context.Context, sagaID string, idReceta int, estado Estado, paso string, detalle any) *Entrada {
	ti := ExtractTraceInfo(ctx)

	detalleJSON := "{}"
	if detalle != nil {
		if b, err := json.Marshal(detalle); err == nil {
			detalleJSON = string(b)
		}
	}

	return &Entrada{
		SagaID:        sagaID,
		IDReceta:      idReceta,
		Estado:        estado,
		Paso:          paso,
		CorrelationID: correlation.FromContext(ctx),
		Detalle:       detalleJSON,
		TraceID:       ti.TraceID,
		SpanID:        ti.SpanID,
		UpdatedAt:     time.Now().UTC(),
	}
}
