package share

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/liwaywai/lending-api/internal/middleware"
	"github.com/liwaywai/lending-api/internal/pkg/errorhandler"
	"github.com/liwaywai/lending-api/internal/pkg/response"
	"github.com/liwaywai/lending-api/internal/pkg/validator"
)

// Handler handles share HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates share handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Mint handles POST /shares
func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req MintRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.ValidationError(r.Context(), w, errs)
		return
	}

	res, err := h.service.Mint(r.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoScopes), errors.Is(err, ErrInvalidScope):
			errorhandler.ValidationError(r.Context(), w, map[string]string{"scopes": err.Error()})
		case errors.Is(err, ErrInvalidTTL):
			errorhandler.ValidationError(r.Context(), w, map[string]string{"ttl_minutes": err.Error()})
		default:
			errorhandler.Internal(r.Context(), w, err)
		}
		return
	}

	response.Created(w, res)
}

// List handles GET /shares
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	out, err := h.service.List(r.Context(), userID)
	if err != nil {
		errorhandler.Internal(r.Context(), w, err)
		return
	}
	response.OK(w, out)
}

// Revoke handles POST /shares/{id}/revoke
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.NotFound(w, "Share token not found")
		return
	}

	t, err := h.service.Revoke(r.Context(), userID, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenNotFound):
			response.NotFound(w, "Share token not found")
		case errors.Is(err, ErrAlreadyRevoked):
			response.Conflict(w, "Token already revoked")
		default:
			errorhandler.Internal(r.Context(), w, err)
		}
		return
	}
	response.OK(w, t)
}

// AccessLogs handles GET /shares/{id}/access-logs
func (h *Handler) AccessLogs(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.NotFound(w, "Share token not found")
		return
	}

	logs, err := h.service.History(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			response.NotFound(w, "Share token not found")
			return
		}
		errorhandler.Internal(r.Context(), w, err)
		return
	}
	if logs == nil {
		logs = []*AccessLog{}
	}
	response.OK(w, logs)
}

// Claims handles GET /rp/claims/{token}
func (h *Handler) Claims(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	p, err := h.service.Present(r.Context(), chi.URLParam(r, "token"), Requester{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		if errors.Is(err, ErrSubjectNotFound) {
			response.Error(w, http.StatusNotFound, "USER_NOT_FOUND", "User data not found")
			return
		}
		errorhandler.Internal(r.Context(), w, err)
		return
	}

	switch p.Status {
	case AccessSuccess:
		response.OK(w, p.Result)
	case AccessExpired:
		response.Error(w, http.StatusGone, "TOKEN_EXPIRED", "Token has expired")
	case AccessRevoked:
		response.Error(w, http.StatusGone, "TOKEN_REVOKED", "Token has been revoked")
	default:
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
	}
}

// Verify handles POST /rp/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.ValidationError(r.Context(), w, errs)
		return
	}

	res := h.service.Verify(req.Token)
	if !res.Valid {
		response.JSON(w, http.StatusUnauthorized, res)
		return
	}
	response.OK(w, res)
}

// Audit handles GET /admin/shares
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := AuditFilter{Status: TokenStatus(q.Get("status"))}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	errs := map[string]string{}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := parseDate(v)
		if err != nil {
			errs[name] = "Use RFC3339 or YYYY-MM-DD"
			continue
		}
		*dst = &t
	}
	switch f.Status {
	case "", TokenActive, TokenExpired, TokenRevoked:
	default:
		errs["status"] = "Must be one of: active, expired, revoked"
	}
	if len(errs) > 0 {
		errorhandler.ValidationError(r.Context(), w, errs)
		return
	}

	f.normalize()
	entries, total, err := h.service.Audit(r.Context(), f)
	if err != nil {
		errorhandler.Internal(r.Context(), w, err)
		return
	}
	if entries == nil {
		entries = []*AuditEntry{}
	}
	response.WithMeta(w, entries, response.NewMeta(total, f.Page, f.Limit))
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
