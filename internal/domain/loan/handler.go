package loan

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/liwaywai/lending-api/internal/domain/level"
	"github.com/liwaywai/lending-api/internal/middleware"
	"github.com/liwaywai/lending-api/internal/pkg/errorhandler"
	"github.com/liwaywai/lending-api/internal/pkg/money"
	"github.com/liwaywai/lending-api/internal/pkg/response"
	"github.com/liwaywai/lending-api/internal/pkg/validator"
)

// Handler handles loan HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates loan handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Apply handles POST /loans/apply
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req ApplyRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	errs := validator.Validate(&req)
	if req.Amount.LessThan(MinAmount) || req.Amount.GreaterThan(MaxAmount) {
		if errs == nil {
			errs = map[string]string{}
		}
		errs["amount"] = "Amount must be between " + money.Format(MinAmount) + " and " + money.Format(MaxAmount)
	}
	if errs != nil {
		errorhandler.ValidationError(r.Context(), w, errs)
		return
	}

	view, err := h.service.Apply(r.Context(), userID, &req)
	if err != nil {
		var active *ActiveLoanError
		var overCap *CapExceededError
		switch {
		case errors.As(err, &active):
			response.ConflictWithDetails(w, "You already have an active loan", map[string]string{
				"active_loan_id": active.LoanID.String(),
			})
		case errors.As(err, &overCap):
			errorhandler.HandleErrorWithDetails(r.Context(), w, http.StatusUnprocessableEntity, "AMOUNT_EXCEEDS_CAP", overCap.Error(), map[string]string{
				"current_cap":      overCap.Cap.StringFixed(2),
				"requested_amount": overCap.Requested.StringFixed(2),
			}, err)
		case errors.Is(err, ErrTermTooLong):
			errorhandler.ValidationError(r.Context(), w, map[string]string{"term_weeks": err.Error()})
		case errors.Is(err, level.ErrRecordNotFound):
			response.NotFound(w, "Level record not found")
		default:
			errorhandler.Internal(r.Context(), w, err)
		}
		return
	}

	response.Created(w, view)
}

// List handles GET /loans
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	loans, err := h.service.List(r.Context(), userID, limit)
	if err != nil {
		errorhandler.Internal(r.Context(), w, err)
		return
	}

	response.OK(w, loans)
}

// Get handles GET /loans/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.NotFound(w, "Loan not found")
		return
	}

	d, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, ErrLoanNotFound) {
			response.NotFound(w, "Loan not found")
			return
		}
		errorhandler.Internal(r.Context(), w, err)
		return
	}

	response.OK(w, d)
}
