package entity

import "time"

// Estados del ciclo de vida de una receta, as recorded by the recetas service.
const (
	EstadoRecetaNueva      = "NUEVA"
	EstadoRecetaValidada   = "VALIDADA"
	EstadoRecetaDispensada = "DISPENSADA"
	EstadoRecetaAnulada    = "ANULADA"
)

// LineaReceta is one prescribed product line. Immutable once read for the
// duration of a saga execution.
type LineaReceta struct {
	IDProducto string
	Cantidad   int
}

// Receta is a prescription as returned by the recetas service, including its
// detail lines and the sucursal it was issued at.
type Receta struct {
	IDReceta       int
	IDSucursal     int
	NombrePaciente string
	FechaReceta    time.Time
	Estado         string
	Detalle        []LineaReceta
}

// Dispensacion is the record the recetas service creates once a dispense
// has fully committed against the ledger.
type Dispensacion struct {
	ID                int
	IDReceta          int
	FechaDispensacion time.Time
	CantidadTotal     int
}
