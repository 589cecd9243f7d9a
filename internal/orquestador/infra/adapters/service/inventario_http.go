package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/pharmatrack/orquestador/internal/orquestador/core/domain/entity"
	"github.com/pharmatrack/orquestador/internal/orquestador/core/ports"
	"github.com/pharmatrack/orquestador/internal/pkg/httpclient"
)

// Ensure the adapter implements the port at compile time.
var _ ports.InventarioService = (*HTTPInventarioService)(nil)

// HTTPInventarioService talks to the inventario stock ledger over HTTP.
type HTTPInventarioService struct {
	client *httpclient.Client
}

// NewHTTPInventarioService returns the inventario port backed by the given
// downstream client.
func NewHTTPInventarioService(client *httpclient.Client) *HTTPInventarioService {
	return &HTTPInventarioService{client: client}
}

type stockDTO struct {
	IDSucursal       int    `json:"id_sucursal"`
	IDProducto       string `json:"id_producto"`
	StockActual      int    `json:"stock_actual"`
	UmbralReposicion int    `json:"umbral_reposicion"`
}

type movimientoDTO struct {
	ID             int    `json:"id_movimiento,omitempty"`
	IDSucursal     int    `json:"id_sucursal"`
	IDProducto     string `json:"id_producto"`
	TipoMovimiento string `json:"tipo_movimiento"`
	Cantidad       int    `json:"cantidad"`
	Motivo         string `json:"motivo,omitempty"`
}

func (s *HTTPInventarioService) ConsultarStock(ctx context.Context, q entity.ConsultaStock) ([]entity.Stock, error) {
	params := url.Values{}
	if q.IDProducto != "" {
		params.Set("id_producto", q.IDProducto)
	}
	if q.IDSucursal != nil {
		params.Set("id_sucursal", strconv.Itoa(*q.IDSucursal))
	}
	if q.Distrito != "" {
		params.Set("distrito", q.Distrito)
	}

	var rows []stockDTO
	if err := s.client.Get(ctx, "/stock", params, &rows); err != nil {
		return nil, fmt.Errorf("inventario ConsultarStock: %w", err)
	}

	out := make([]entity.Stock, len(rows))
	for i, r := range rows {
		out[i] = entity.Stock{
			IDSucursal:       r.IDSucursal,
			IDProducto:       r.IDProducto,
			StockActual:      r.StockActual,
			UmbralReposicion: r.UmbralReposicion,
		}
	}
	return out, nil
}

func (s *HTTPInventarioService) RegistrarMovimiento(ctx context.Context, m entity.Movimiento) (*entity.Movimiento, error) {
	body := movimientoDTO{
		IDSucursal:     m.IDSucursal,
		IDProducto:     m.IDProducto,
		TipoMovimiento: m.TipoMovimiento,
		Cantidad:       m.Cantidad,
		Motivo:         m.Motivo,
	}

	var created movimientoDTO
	if err := s.client.Post(ctx, "/movimientos", body, &created); err != nil {
		var derr *httpclient.DownstreamError
		if errors.As(err, &derr) && derr.NotFound() {
			return nil, fmt.Errorf("inventario RegistrarMovimiento %s/%d: %w", m.IDProducto, m.IDSucursal, ports.ErrNoEncontrado)
		}
		return nil, fmt.Errorf("inventario RegistrarMovimiento: %w", err)
	}

	m.ID = created.ID
	return &m, nil
}

func (s *HTTPInventarioService) Health(ctx context.Context) error {
	return s.client.Get(ctx, "/healthz", nil, nil)
}
