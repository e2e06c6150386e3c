package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/liwaywai/lending-api/internal/domain/loan"
	"github.com/liwaywai/lending-api/internal/domain/policy"
	"github.com/liwaywai/lending-api/internal/middleware"
	"github.com/liwaywai/lending-api/internal/pkg/errorhandler"
	"github.com/liwaywai/lending-api/internal/pkg/response"
	"github.com/liwaywai/lending-api/internal/pkg/validator"
)

// Handler handles admin HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates admin handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func actorFrom(r *http.Request) Actor {
	return Actor{AdminID: middleware.GetUserID(r.Context()), IPAddress: middleware.ClientIP(r)}
}

func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// ListApplications handles GET /admin/applications
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	status := loan.Status(r.URL.Query().Get("status"))
	switch status {
	case "", loan.StatusApplied, loan.StatusApproved, loan.StatusDeclined, loan.StatusCounterOffered,
		loan.StatusActive, loan.StatusCompleted, loan.StatusDefaulted:
	default:
		errorhandler.ValidationError(r.Context(), w, map[string]string{"status": "Unknown loan status"})
		return
	}

	apps, total, err := h.service.ListApplications(r.Context(), loan.ApplicationFilter{Status: status, Page: page, Limit: limit})
	if err != nil {
		errorhandler.Internal(r.Context(), w, err)
		return
	}
	response.WithMeta(w, apps, response.NewMeta(total, page, limit))
}

// Override handles POST /admin/applications/{id}/override
func (h *Handler) Override(w http.ResponseWriter, r *http.Request) {
	loanID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid loan ID")
		return
	}

	var req OverrideRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.ValidationError(r.Context(), w, errs)
		return
	}

	res, err := h.service.Override(r.Context(), actorFrom(r), loanID, &req)
	if err != nil {
		switch {
		case errors.Is(err, loan.ErrLoanNotFound):
			response.NotFound(w, "Loan not found")
		case errors.Is(err, loan.ErrOverrideNotAllowed):
			errorhandler.HandleError(r.Context(), w, http.StatusConflict, "CONFLICT", "Loan can no longer be overridden", err)
		default:
			errorhandler.Internal(r.Context(), w, err)
		}
		return
	}
	response.OK(w, res)
}

// Borrower handles GET /admin/borrowers/{id}
func (h *Handler) Borrower(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid borrower ID")
		return
	}

	b, err := h.service.Borrower(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrBorrowerNotFound) {
			response.NotFound(w, "Borrower not found")
			return
		}
		errorhandler.Internal(r.Context(), w, err)
		return
	}
	response.OK(w, b)
}

// ListPolicies handles GET /admin/policy
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	versions, err := h.service.ListPolicies(r.Context())
	if err != nil {
		errorhandler.Internal(r.Context(), w, err)
		return
	}
	if versions == nil {
		versions = []*policy.Version{}
	}
	response.OK(w, versions)
}

// PublishPolicy handles PUT /admin/policy
func (h *Handler) PublishPolicy(w http.ResponseWriter, r *http.Request) {
	var req PublishPolicyRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.ValidationError(r.Context(), w, errs)
		return
	}

	v, err := h.service.PublishPolicy(r.Context(), actorFrom(r), &req)
	if err != nil {
		var pe *policy.ParamsError
		switch {
		case errors.As(err, &pe):
			errorhandler.ValidationError(r.Context(), w, map[string]string{pe.Field: pe.Reason})
		case errors.Is(err, policy.ErrVersionExists):
			response.Conflict(w, "Policy version already exists")
		default:
			errorhandler.Internal(r.Context(), w, err)
		}
		return
	}
	response.Created(w, v)
}

// Dashboard handles GET /admin/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context())
	if err != nil {
		errorhandler.Internal(r.Context(), w, err)
		return
	}
	response.OK(w, d)
}

// AuditLogs handles GET /admin/audit-logs
func (h *Handler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	f := AuditLogFilter{Action: r.URL.Query().Get("action"), Page: page, Limit: limit}

	logs, total, err := h.service.ListAuditLogs(r.Context(), f)
	if err != nil {
		errorhandler.Internal(r.Context(), w, err)
		return
	}
	response.WithMeta(w, logs, response.NewMeta(total, page, limit))
}
