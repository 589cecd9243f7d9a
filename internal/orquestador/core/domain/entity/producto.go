package entity

// Producto is a catalog product. The orchestrator only reads it to validate
// ids and to enrich availability responses.
type Producto struct {
	IDProducto string
	Nombre     string
	CodigoATC  string
	Forma      string
}
