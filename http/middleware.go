package http

import (
	"net/http"

	"github.com/rs/zerolog"
	uuid "github.com/satori/go.uuid"
)

// requestIDHandler reuses the request id sent by a proxy in headerName or
// generates one, adds it to the request logger under fieldKey and echoes it
// in the response.
func requestIDHandler(fieldKey, headerName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(headerName)
			if id == "" {
				id = uuid.NewV4().String()
			}

			log := zerolog.Ctx(r.Context())
			log.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str(fieldKey, id)
			})

			w.Header().Set(headerName, id)
			next.ServeHTTP(w, r)
		})
	}
}
