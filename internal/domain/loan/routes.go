package loan

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/liwaywai/lending-api/internal/middleware"
)

// Routes returns loan router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireBorrower())

	r.Post("/apply", h.Apply)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)

	return r
}
