package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/pharmatrack/orquestador/internal/orquestador/core/domain/entity"
	"github.com/pharmatrack/orquestador/internal/orquestador/core/ports"
	"github.com/pharmatrack/orquestador/internal/pkg/httpclient"
)

var _ ports.CatalogoService = (*HTTPCatalogoService)(nil)

// HTTPCatalogoService talks to the catálogo product service over HTTP.
type HTTPCatalogoService struct {
	client *httpclient.Client
}

// NewHTTPCatalogoService returns the catálogo port backed by the given
// downstream client.
func NewHTTPCatalogoService(client *httpclient.Client) *HTTPCatalogoService {
	return &HTTPCatalogoService{client: client}
}

type productoDTO struct {
	IDProducto string `json:"id_producto"`
	Nombre     string `json:"nombre"`
	CodigoATC  string `json:"codigo_atc"`
	Forma      string `json:"forma_farmaceutica"`
}

func (p productoDTO) toEntity() entity.Producto {
	return entity.Producto{
		IDProducto: p.IDProducto,
		Nombre:     p.Nombre,
		CodigoATC:  p.CodigoATC,
		Forma:      p.Forma,
	}
}

func (s *HTTPCatalogoService) ObtenerProducto(ctx context.Context, idProducto string) (*entity.Producto, error) {
	var dto productoDTO
	if err := s.client.Get(ctx, "/productos/"+url.PathEscape(idProducto), nil, &dto); err != nil {
		var derr *httpclient.DownstreamError
		if errors.As(err, &derr) && derr.NotFound() {
			return nil, fmt.Errorf("producto %s: %w", idProducto, ports.ErrNoEncontrado)
		}
		return nil, fmt.Errorf("catalogo ObtenerProducto %s: %w", idProducto, err)
	}
	producto := dto.toEntity()
	return &producto, nil
}

func (s *HTTPCatalogoService) BuscarProductos(ctx context.Context, q string) ([]entity.Producto, error) {
	params := url.Values{"q": {q}}

	var rows []productoDTO
	if err := s.client.Get(ctx, "/productos", params, &rows); err != nil {
		return nil, fmt.Errorf("catalogo BuscarProductos %q: %w", q, err)
	}

	out := make([]entity.Producto, len(rows))
	for i, r := range rows {
		out[i] = r.toEntity()
	}
	return out, nil
}

func (s *HTTPCatalogoService) Health(ctx context.Context) error {
	return s.client.Get(ctx, "/healthz", nil, nil)
}
