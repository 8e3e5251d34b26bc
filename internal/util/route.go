package util

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// UnmatchedRoute labels requests no chi route matched.
const UnmatchedRoute = "unmatched"

// RoutePattern returns the matched chi route pattern of r. Tokens carried in
// path segments stay out of logs and metric labels this way.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return UnmatchedRoute
}
