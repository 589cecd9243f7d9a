// Package correlation threads a per-request correlation id through the
// process: it is read from the inbound request (or generated), stored in the
// context, injected into every downstream call, and echoed in every response
// — success and error alike — so one logical request can be cross-referenced
// against the logs of all three downstream services.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Header is the wire header carrying the correlation id, inbound and
// outbound. An inbound value is reused verbatim; ids are never rewritten
// mid-flight so two concurrent requests can never be conflated.
const Header = "X-Correlation-Id"

// ctxKey is an unexported type for context keys in this package.
// A custom type prevents collisions with keys from other packages.
type ctxKey string

const correlationKey ctxKey = "correlation_id"

// WithID returns a child context carrying the given correlation id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// FromContext returns the correlation id stored in ctx, or "" if absent.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey).(string); ok {
		return id
	}
	return ""
}

// Middleware resolves the correlation id for the request: the inbound header
// if present, a fresh UUID otherwise. The id is stored in the request context
// and echoed in the response header before the handler runs.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(Header))
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}
