package httpx

import (
	"github.com/pharmatrack/orquestador/internal/coordinator/sagalog"
	"github.com/pharmatrack/orquestador/internal/orquestador/core/domain/entity"
)

// HeaderIdempotencyKey carries the client's idempotency token. It wins over
// the idempotency_key body field when both are present.
const HeaderIdempotencyKey = "X-Idempotency-Key"

type DispensarRequest struct {
	IDReceta       int    `json:"id_receta"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type ValidarRequest struct {
	IDReceta int `json:"id_receta"`
}

type ReservaRequest struct {
	IDReceta       int    `json:"id_receta"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type ReservaResponse struct {
	OK        bool  `json:"ok"`
	VenceEnMS int64 `json:"vence_en_ms"`
}

type ReservaDetalleResponse struct {
	IDReceta      int              `json:"id_receta"`
	IDSucursal    int              `json:"id_sucursal"`
	Items         []ItemReservaDTO `json:"items"`
	VenceEnMS     int64            `json:"vence_en_ms"`
	CorrelationID string           `json:"correlation_id"`
}

type ItemReservaDTO struct {
	IDProducto string `json:"id_producto"`
	Cantidad   int    `json:"cantidad"`
}

type ProductoResponse struct {
	IDProducto string `json:"id_producto"`
	Nombre     string `json:"nombre"`
	CodigoATC  string `json:"codigo_atc,omitempty"`
	Forma      string `json:"forma,omitempty"`
}

type DisponibilidadResponse struct {
	Producto   ProductoResponse   `json:"producto"`
	Sucursales []StockSucursalDTO `json:"sucursales"`
	Total      int                `json:"total"`
}

type StockSucursalDTO struct {
	IDSucursal       int `json:"id_sucursal"`
	StockActual      int `json:"stock_actual"`
	UmbralReposicion int `json:"umbral_reposicion"`
}

type SagaEntradaResponse struct {
	SagaID        string `json:"saga_id"`
	IDReceta      int    `json:"id_receta"`
	Estado        string `json:"estado"`
	Paso          string `json:"paso"`
	CorrelationID string `json:"correlation_id"`
	Detalle       any    `json:"detalle,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`
	UpdatedAt     string `json:"updated_at"`
}

type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Detalle       any    `json:"detalle,omitempty"`
}

func mapProducto(p *entity.Producto) ProductoResponse {
	return ProductoResponse{
		IDProducto: p.IDProducto,
		Nombre:     p.Nombre,
		CodigoATC:  p.CodigoATC,
		Forma:      p.Forma,
	}
}

func mapSagaEntrada(e *sagalog.Entrada) SagaEntradaResponse {
	return SagaEntradaResponse{
		SagaID:        e.SagaID,
		IDReceta:      e.IDReceta,
		Estado:        string(e.Estado),
		Paso:          e.Paso,
		CorrelationID: e.CorrelationID,
		Detalle:       rawDetalle(e.Detalle),
		TraceID:       e.TraceID,
		UpdatedAt:     e.UpdatedAt.Format(timeLayout),
	}
}
