package middleware

import (
	"fmt"
	"net/http"

	"github.com/omni/question-oracle/presenter/http/render"
)

// Recoverer turns a handler panic into a logged 500 JSON error.
// http.ErrAbortHandler is re-raised so the server can abort the response.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler { //nolint:errorlint
				panic(rec)
			}
			if err, ok := rec.(error); ok {
				render.Error(w, r, fmt.Errorf("recovered panic in http handler: %w", err))
				return
			}
			render.Error(w, r, fmt.Errorf("recovered panic in http handler: %v", rec))
		}()
		next.ServeHTTP(w, r)
	})
}
