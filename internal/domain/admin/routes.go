package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/liwaywai/lending-api/internal/middleware"
)

// Routes returns admin router. shareAudit serves GET /shares.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler, shareAudit http.HandlerFunc) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireAdmin())

	r.Get("/applications", h.ListApplications)
	r.Post("/applications/{id}/override", h.Override)
	r.Get("/borrowers/{id}", h.Borrower)
	r.Get("/policy", h.ListPolicies)
	r.Put("/policy", h.PublishPolicy)
	r.Get("/shares", shareAudit)
	r.Get("/dashboard", h.Dashboard)
	r.Get("/audit-logs", h.AuditLogs)

	return r
}
