package wallet

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/liwaywai/lending-api/internal/domain/loan"
	"github.com/liwaywai/lending-api/internal/middleware"
	"github.com/liwaywai/lending-api/internal/pkg/errorhandler"
	"github.com/liwaywai/lending-api/internal/pkg/response"
	"github.com/liwaywai/lending-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Summary handles GET /wallet
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	sum, err := h.svc.Summary(r.Context(), userID)
	if err != nil {
		errorhandler.Internal(r.Context(), w, err)
		return
	}
	response.OK(w, sum)
}

// Transactions handles GET /wallet/transactions
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	txs, total, err := h.svc.Transactions(r.Context(), userID, limit, offset)
	if err != nil {
		errorhandler.Internal(r.Context(), w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"transactions": txs,
		"total":        total,
		"has_more":     offset+len(txs) < total,
	})
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.handleMovement(w, r, h.svc.Deposit)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.handleMovement(w, r, h.svc.Withdraw)
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, userID uuid.UUID, req *MovementRequest) (*Receipt, error)) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req MovementRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.ValidationError(r.Context(), w, errs)
		return
	}

	receipt, err := fn(r.Context(), userID, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, receipt)
}

// PayLoan handles POST /wallet/pay-loan
func (h *Handler) PayLoan(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req PayLoanRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.ValidationError(r.Context(), w, errs)
		return
	}

	res, err := h.svc.PayLoanRepayment(r.Context(), userID, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, res)
}

// DisburseLoan handles POST /wallet/disburse-loan
func (h *Handler) DisburseLoan(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req DisburseRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.ValidationError(r.Context(), w, errs)
		return
	}

	res, err := h.svc.DisburseLoan(r.Context(), userID, req.LoanID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, res)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		errorhandler.ValidationError(r.Context(), w, map[string]string{"amount": "Amount must be greater than zero"})
	case errors.Is(err, ErrDepositLimit), errors.Is(err, ErrAmountMismatch):
		errorhandler.ValidationError(r.Context(), w, map[string]string{"amount": err.Error()})
	case errors.Is(err, ErrInsufficientFunds):
		response.Conflict(w, "insufficient wallet balance")
	case errors.Is(err, ErrReferenceConflict):
		response.Conflict(w, "reference_id already used with a different amount")
	case errors.Is(err, loan.ErrLoanNotFound), errors.Is(err, loan.ErrRepaymentNotFound):
		response.NotFound(w, "Loan or repayment not found")
	case errors.Is(err, loan.ErrAlreadyPaid):
		response.Conflict(w, "Repayment already completed")
	case errors.Is(err, loan.ErrNotApproved):
		response.Conflict(w, "Loan is not awaiting disbursement")
	case errors.Is(err, loan.ErrNotActive):
		response.Conflict(w, "Loan is not active")
	default:
		errorhandler.Internal(r.Context(), w, err)
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireBorrower())

	r.Get("/", h.Summary)
	r.Get("/transactions", h.Transactions)
	r.Post("/deposit", h.Deposit)
	r.Post("/withdraw", h.Withdraw)
	r.Post("/pay-loan", h.PayLoan)
	r.Post("/disburse-loan", h.DisburseLoan)
	return r
}
