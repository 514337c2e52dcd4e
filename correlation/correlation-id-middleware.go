// Package correlation threads a per-request correlation id through the
// request context, the response headers, and the zerolog logger attached to
// the context, so every log line and error body for one request carries the
// same id.
package correlation

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

const Header = "x-correlation-id"

type ctxKey struct{}

// Generator produces a fresh correlation id for a request that arrives
// without one.
type Generator func() string

// Middleware assigns each request a correlation id. An inbound id from an
// upstream caller is kept as a prefix so cross-service traces stay joined.
func Middleware(generate Generator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			id := generate()
			if inbound := request.Header.Get(Header); inbound != "" {
				id = inbound + ":" + id
			}
			writer.Header().Add(Header, id)
			next.ServeHTTP(writer, request.WithContext(WithContext(request.Context(), id)))
		})
	}
}

// WithContext stores the id and rebinds the context logger to include it.
func WithContext(ctx context.Context, id string) context.Context {
	logger := zerolog.Ctx(ctx).With().Str("correlationID", id).Logger()
	return context.WithValue(logger.WithContext(ctx), ctxKey{}, id)
}

// FromContext returns the request's correlation id, or "" outside a request.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
