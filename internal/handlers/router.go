package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouteRegistrar is implemented by every handler group
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// NewRouter mounts the handler groups behind panic recovery and request logging
func NewRouter(groups ...RouteRegistrar) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)

	for _, g := range groups {
		g.RegisterRoutes(r)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	return r
}
