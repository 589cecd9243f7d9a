package entity

import "time"

// Movement kinds accepted by the inventario ledger. An EGRESO decrements
// stock, an ENTRADA restores it; the ledger rejects any movement that would
// drive stock below zero.
const (
	MovimientoEntrada = "ENTRADA"
	MovimientoEgreso  = "EGRESO"
)

// Stock is one (sucursal, producto) row of the ledger.
type Stock struct {
	IDSucursal         int
	IDProducto         string
	StockActual        int
	UmbralReposicion   int
	FechaActualizacion time.Time
}

// ConsultaStock narrows a stock query. All fields are optional; a nil
// IDSucursal spans every sucursal.
type ConsultaStock struct {
	IDProducto string
	IDSucursal *int
	Distrito   string
}

// Movimiento is a signed stock mutation the orchestrator applies (EGRESO)
// or reverses (ENTRADA) against the ledger.
type Movimiento struct {
	ID             int
	IDSucursal     int
	IDProducto     string
	TipoMovimiento string
	Cantidad       int
	Motivo         string
}

// Sucursal is a pharmacy branch.
type Sucursal struct {
	IDSucursal int
	Nombre     string
	Distrito   string
	Direccion  string
}
