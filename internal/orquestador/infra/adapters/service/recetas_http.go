package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pharmatrack/orquestador/internal/orquestador/core/domain/entity"
	"github.com/pharmatrack/orquestador/internal/orquestador/core/ports"
	"github.com/pharmatrack/orquestador/internal/pkg/httpclient"
)

var _ ports.RecetaService = (*HTTPRecetaService)(nil)

// HTTPRecetaService talks to the recetas prescription store over HTTP.
type HTTPRecetaService struct {
	client *httpclient.Client
}

// NewHTTPRecetaService returns the recetas port backed by the given
// downstream client.
func NewHTTPRecetaService(client *httpclient.Client) *HTTPRecetaService {
	return &HTTPRecetaService{client: client}
}

type lineaDTO struct {
	IDProducto string `json:"id_producto"`
	Cantidad   int    `json:"cantidad"`
}

type recetaDTO struct {
	IDReceta       int        `json:"id_receta"`
	IDSucursal     int        `json:"id_sucursal"`
	NombrePaciente string     `json:"nombre_paciente"`
	FechaReceta    string     `json:"fecha_receta"`
	Estado         string     `json:"estado"`
	Detalle        []lineaDTO `json:"detalle"`
}

type dispensacionDTO struct {
	ID                int    `json:"id"`
	IDReceta          int    `json:"id_receta"`
	FechaDispensacion string `json:"fecha_dispensacion"`
	CantidadTotal     int    `json:"cantidad_total"`
}

func (s *HTTPRecetaService) ObtenerReceta(ctx context.Context, idReceta int) (*entity.Receta, error) {
	var dto recetaDTO
	if err := s.client.Get(ctx, fmt.Sprintf("/recetas/%d", idReceta), nil, &dto); err != nil {
		var derr *httpclient.DownstreamError
		if errors.As(err, &derr) && derr.NotFound() {
			return nil, fmt.Errorf("receta %d: %w", idReceta, ports.ErrNoEncontrado)
		}
		return nil, fmt.Errorf("recetas ObtenerReceta %d: %w", idReceta, err)
	}

	detalle := make([]entity.LineaReceta, len(dto.Detalle))
	for i, l := range dto.Detalle {
		detalle[i] = entity.LineaReceta{IDProducto: l.IDProducto, Cantidad: l.Cantidad}
	}
	return &entity.Receta{
		IDReceta:       dto.IDReceta,
		IDSucursal:     dto.IDSucursal,
		NombrePaciente: dto.NombrePaciente,
		FechaReceta:    parseFecha(dto.FechaReceta),
		Estado:         dto.Estado,
		Detalle:        detalle,
	}, nil
}

func (s *HTTPRecetaService) CrearDispensacion(ctx context.Context, idReceta, cantidadTotal int) (*entity.Dispensacion, error) {
	body := map[string]int{
		"id_receta":      idReceta,
		"cantidad_total": cantidadTotal,
	}

	var dto dispensacionDTO
	if err := s.client.Post(ctx, "/dispensaciones", body, &dto); err != nil {
		var derr *httpclient.DownstreamError
		if errors.As(err, &derr) && derr.NotFound() {
			return nil, fmt.Errorf("receta %d: %w", idReceta, ports.ErrNoEncontrado)
		}
		return nil, fmt.Errorf("recetas CrearDispensacion %d: %w", idReceta, err)
	}

	return &entity.Dispensacion{
		ID:                dto.ID,
		IDReceta:          dto.IDReceta,
		FechaDispensacion: parseFecha(dto.FechaDispensacion),
		CantidadTotal:     dto.CantidadTotal,
	}, nil
}

func (s *HTTPRecetaService) Health(ctx context.Context) error {
	return s.client.Get(ctx, "/healthz", nil, nil)
}

// parseFecha tolerates the two timestamp shapes the recetas service emits:
// RFC3339 and a naive ISO timestamp without offset. A zero time is returned
// for anything else; dates are informational here, never load-bearing.
func parseFecha(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
