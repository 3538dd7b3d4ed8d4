package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/pipeline-snapshots/internal/adapters/primary/validation"
	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	"github.com/lorrc/pipeline-snapshots/internal/core/ports"
)

// TicketDetailHandler accepts ticket details pushed by the ticketing system.
type TicketDetailHandler struct {
	detailService ports.TicketDetailService
	errorHandler  *ErrorHandler
	logger        *slog.Logger
}

// NewTicketDetailHandler creates a new ticket detail handler
func NewTicketDetailHandler(
	detailService ports.TicketDetailService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *TicketDetailHandler {
	return &TicketDetailHandler{
		detailService: detailService,
		errorHandler:  errorHandler,
		logger:        logger.With("handler", "ticket_detail"),
	}
}

// Router sets up a new chi Router for the ticket detail routes.
func (h *TicketDetailHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.HandleUpsert)
	return r
}

// UpsertDetailsRequest defines the expected JSON body for a detail upsert.
type UpsertDetailsRequest struct {
	Details []domain.DetailRecord `json:"details"`
}

// UpsertDetailsResponse reports how many details were written.
type UpsertDetailsResponse struct {
	Written int `json:"written"`
}

// HandleUpsert inserts or replaces ticket details.
func (h *TicketDetailHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)
	req, err := validation.Decode[UpsertDetailsRequest](r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	written, err := h.detailService.Upsert(r.Context(), req.Details)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteJSON(w, http.StatusOK, UpsertDetailsResponse{Written: written})
}
