package ports

import "errors"

// ErrNoEncontrado is returned by any port when the downstream service
// answered 404 for the requested resource. Adapters translate wire-level
// not-found responses into this sentinel so callers can branch with
// errors.Is without knowing about HTTP.
var ErrNoEncontrado = errors.New("recurso no encontrado")
