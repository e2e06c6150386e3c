package share

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/liwaywai/lending-api/internal/middleware"
)

// Routes returns the borrower share router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireBorrower())

	r.Post("/", h.Mint)
	r.Get("/", h.List)
	r.Post("/{id}/revoke", h.Revoke)
	r.Get("/{id}/access-logs", h.AccessLogs)

	return r
}

// RPRoutes returns the public relying-party router
func (h *Handler) RPRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/claims/{token}", h.Claims)
	r.Post("/verify", h.Verify)

	return r
}
