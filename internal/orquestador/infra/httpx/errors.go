package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pharmatrack/orquestador/internal/coordinator"
	"github.com/pharmatrack/orquestador/internal/orquestador/core/ports"
	"github.com/pharmatrack/orquestador/internal/pkg/correlation"
	"github.com/pharmatrack/orquestador/internal/pkg/httpclient"
)

// Error codes of the public envelope.
const (
	codeValidation            = "VALIDATION_ERROR"
	codeStockInsuficiente     = "STOCK_INSUFICIENTE"
	codeNotFound              = "NOT_FOUND"
	codeDownstreamError       = "DOWNSTREAM_ERROR"
	codeDownstreamUnavailable = "DOWNSTREAM_UNAVAILABLE"
	codeInternal              = "INTERNAL_ERROR"
)

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string, detalle any) {
	writeJSON(w, status, ErrorResponse{
		Error:         code,
		Message:       msg,
		CorrelationID: correlation.FromContext(r.Context()),
		Detalle:       detalle,
	})
}

// writeDomainError maps an error from the coordinator or the ports layer to
// the public taxonomy. Every envelope carries the correlation id so the
// failure can be cross-referenced against downstream logs.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *coordinator.ValidationError
	if errors.As(err, &verr) {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidation, verr.Motivo, nil)
		return
	}
	var serr *coordinator.StockInsuficienteError
	if errors.As(err, &serr) {
		writeError(w, r, http.StatusConflict, codeStockInsuficiente, serr.Error(), serr.Faltantes)
		return
	}
	if errors.Is(err, ports.ErrNoEncontrado) {
		writeError(w, r, http.StatusNotFound, codeNotFound, err.Error(), nil)
		return
	}
	var dfail *coordinator.DownstreamFailure
	if errors.As(err, &dfail) {
		writeError(w, r, http.StatusBadGateway, codeDownstreamError, dfail.Mensaje, nil)
		return
	}
	var derr *httpclient.DownstreamError
	if errors.As(err, &derr) {
		writeError(w, r, http.StatusBadGateway, codeDownstreamError, derr.Error(), nil)
		return
	}
	writeError(w, r, http.StatusInternalServerError, codeInternal, err.Error(), nil)
}

// rawDetalle surfaces the stored JSON fragment of a saga log row without
// double-encoding it.
func rawDetalle(detalle string) any {
	if detalle == "" || detalle == "{}" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(detalle), &v); err != nil {
		return detalle
	}
	return v
}
