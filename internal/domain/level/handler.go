package level

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/liwaywai/lending-api/internal/middleware"
	"github.com/liwaywai/lending-api/internal/pkg/errorhandler"
	"github.com/liwaywai/lending-api/internal/pkg/response"
)

// Handler handles level HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates level handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetProgress handles GET /level
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	info, err := h.service.GetInfo(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			response.NotFound(w, "Level record not found")
			return
		}
		errorhandler.Internal(r.Context(), w, err)
		return
	}

	response.OK(w, info)
}

// digitalIDResponse is the borrower's own card. Unlike shared claims it carries the full name.
type digitalIDResponse struct {
	*CardView
	Info *Info `json:"level_info"`
}

// GetDigitalID handles GET /level/digital-id
func (h *Handler) GetDigitalID(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	card, err := h.service.GetCard(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrCardNotFound) {
			response.NotFound(w, "Digital ID not found")
			return
		}
		errorhandler.Internal(r.Context(), w, err)
		return
	}

	info, err := h.service.GetInfo(r.Context(), userID)
	if err != nil {
		errorhandler.Internal(r.Context(), w, err)
		return
	}

	response.OK(w, digitalIDResponse{CardView: card, Info: info})
}
