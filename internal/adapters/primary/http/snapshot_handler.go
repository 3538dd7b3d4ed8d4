package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	mw "github.com/lorrc/pipeline-snapshots/internal/adapters/primary/http/middleware"
	"github.com/lorrc/pipeline-snapshots/internal/adapters/primary/validation"
	"github.com/lorrc/pipeline-snapshots/internal/core/diff"
	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	apperrors "github.com/lorrc/pipeline-snapshots/internal/core/errors"
	"github.com/lorrc/pipeline-snapshots/internal/core/ports"
)

// maxDocumentBytes bounds capture and import bodies.
const maxDocumentBytes = 32 << 20

// SnapshotHandler handles HTTP requests for snapshots
type SnapshotHandler struct {
	snapshotService  ports.SnapshotService
	drillDownHandler *DrillDownHandler
	captureLimiter   func(http.Handler) http.Handler
	errorHandler     *ErrorHandler
	logger           *slog.Logger
}

// NewSnapshotHandler creates a new snapshot handler. captureLimiter, when
// set, wraps the capture and import routes.
func NewSnapshotHandler(
	snapshotService ports.SnapshotService,
	drillDownHandler *DrillDownHandler,
	captureLimiter func(http.Handler) http.Handler,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *SnapshotHandler {
	return &SnapshotHandler{
		snapshotService:  snapshotService,
		drillDownHandler: drillDownHandler,
		captureLimiter:   captureLimiter,
		errorHandler:     errorHandler,
		logger:           logger.With("handler", "snapshot"),
	}
}

// Router sets up a new chi Router for all snapshot routes.
func (h *SnapshotHandler) Router() http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes sets up the routing for all snapshot endpoints.
func (h *SnapshotHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleListSnapshots)
	r.Get("/compare", h.HandleCompare)
	r.Get("/trends", h.HandleTrends)

	r.Group(func(r chi.Router) {
		if h.captureLimiter != nil {
			r.Use(h.captureLimiter)
		}
		r.Post("/", h.HandleCapture)
		r.Post("/import", h.HandleImport)
	})

	// Routes for a specific snapshot
	r.Route("/{date}/{type}", func(r chi.Router) {
		r.Get("/", h.HandleGetSnapshot)
		r.Delete("/", h.HandleDeleteSnapshot)

		if h.drillDownHandler != nil {
			r.Mount("/drilldown", h.drillDownHandler.Router())
		}
	})
}

// --- Request/Response DTOs ---

// CaptureSnapshotRequest defines the expected JSON body for a capture.
type CaptureSnapshotRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Validate validates the capture request
func (r *CaptureSnapshotRequest) Validate() error {
	v := validation.NewValidator()

	v.Required("type", r.Type).SnapshotType("type", r.Type)
	v.Custom("data", len(r.Data) > 0 && string(r.Data) != "null", "This field is required")

	return v.Err()
}

// StageCountsDTO holds the stage counters of a snapshot.
type StageCountsDTO struct {
	Formed    int `json:"formed"`
	Review    int `json:"review"`
	Execution int `json:"execution"`
	Total     int `json:"total"`
}

// SnapshotSummaryDTO describes a stored snapshot without its tickets.
type SnapshotSummaryDTO struct {
	ID        int64          `json:"id"`
	Date      string         `json:"date"`
	Type      string         `json:"type"`
	Version   string         `json:"version"`
	SectorID  string         `json:"sectorId,omitempty"`
	CreatedBy string         `json:"createdBy,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	Tickets   int            `json:"tickets"`
	Employees int            `json:"employees"`
	Stages    StageCountsDTO `json:"stages"`
}

// SnapshotDTO is a stored snapshot with its full document.
type SnapshotDTO struct {
	SnapshotSummaryDTO
	Snapshot *domain.Snapshot `json:"snapshot"`
}

// CaptureResponse is returned by capture and import.
type CaptureResponse struct {
	Snapshot SnapshotSummaryDTO `json:"snapshot"`
	Warnings []domain.Warning   `json:"warnings,omitempty"`
}

func toSnapshotSummaryDTO(stored *domain.StoredSnapshot) SnapshotSummaryDTO {
	dto := SnapshotSummaryDTO{
		ID:   stored.ID,
		Date: stored.Date.Format(domain.DateLayout),
	}
	s := stored.Snapshot
	if s == nil {
		return dto
	}

	dto.Type = s.Metadata.Type
	dto.Version = s.Metadata.Version
	dto.SectorID = s.Metadata.SectorID
	dto.CreatedBy = s.Metadata.CreatedBy
	dto.CreatedAt = s.Metadata.CreatedAt.UTC()
	dto.Tickets = len(s.TicketIDs)
	dto.Employees = len(s.Statistics.Employees)
	dto.Stages = StageCountsDTO{
		Formed:    s.Statistics.Stages.Count(domain.StageFormed),
		Review:    s.Statistics.Stages.Count(domain.StageReview),
		Execution: s.Statistics.Stages.Count(domain.StageExecution),
		Total:     s.Statistics.Stages.TotalCount(),
	}
	return dto
}

// --- Handlers ---

// HandleCapture normalizes raw pipeline data and stores it as today's
// snapshot of the requested type.
func (h *SnapshotHandler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	claims, ok := mw.ClaimsFromContext(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.ErrUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)
	req, err := validation.Decode[CaptureSnapshotRequest](r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	if HandleError(w, r, req.Validate(), h.errorHandler) {
		return
	}

	result, err := h.snapshotService.Capture(r.Context(), ports.CaptureParams{
		Type:      req.Type,
		SectorID:  claims.SectorID,
		CreatedBy: claims.UserID.String(),
		Data:      req.Data,
	})
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteCreated(w, CaptureResponse{
		Snapshot: toSnapshotSummaryDTO(result.Stored),
		Warnings: result.Warnings,
	})
}

// HandleImport stores a ready snapshot document as sent.
func (h *SnapshotHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	claims, ok := mw.ClaimsFromContext(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.ErrUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Could not read request body"))
		return
	}

	result, err := h.snapshotService.Import(r.Context(), ports.ImportParams{
		Document:  body,
		SectorID:  claims.SectorID,
		CreatedBy: claims.UserID.String(),
	})
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteCreated(w, CaptureResponse{
		Snapshot: toSnapshotSummaryDTO(result.Stored),
		Warnings: result.Warnings,
	})
}

// HandleListSnapshots lists snapshot summaries within an optional date range.
func (h *SnapshotHandler) HandleListSnapshots(w http.ResponseWriter, r *http.Request) {
	dr, err := parseDateRange(r, false)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	stored, err := h.snapshotService.List(r.Context(), dr)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	dtos := make([]SnapshotSummaryDTO, len(stored))
	for i, s := range stored {
		dtos[i] = toSnapshotSummaryDTO(s)
	}
	WriteList(w, dtos)
}

// HandleGetSnapshot returns one snapshot with its document.
func (h *SnapshotHandler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	key, err := parseSnapshotKey(r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	stored, err := h.snapshotService.Get(r.Context(), key)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteJSON(w, http.StatusOK, SnapshotDTO{
		SnapshotSummaryDTO: toSnapshotSummaryDTO(stored),
		Snapshot:           stored.Snapshot,
	})
}

// HandleDeleteSnapshot removes one snapshot.
func (h *SnapshotHandler) HandleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	claims, ok := mw.ClaimsFromContext(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.ErrUnauthorized)
		return
	}

	key, err := parseSnapshotKey(r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	if err := h.snapshotService.Delete(r.Context(), key, claims.SectorID); HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteNoContent(w)
}

// HandleCompare compares the snapshots of one type stored on two dates.
func (h *SnapshotHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v := validation.NewValidator()

	v.Required("from", q.Get("from"))
	v.Required("to", q.Get("to"))
	v.Required("type", q.Get("type")).SnapshotType("type", q.Get("type"))
	from := v.Date("from", q.Get("from"))
	to := v.Date("to", q.Get("to"))
	if HandleError(w, r, v.Err(), h.errorHandler) {
		return
	}

	comparison, err := h.snapshotService.Compare(r.Context(), ports.CompareParams{
		From:    from,
		To:      to,
		Type:    q.Get("type"),
		Options: parseDiffOptions(r),
	})
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteJSON(w, http.StatusOK, comparison)
}

// HandleTrends compares every snapshot of one type within a date range.
func (h *SnapshotHandler) HandleTrends(w http.ResponseWriter, r *http.Request) {
	dr, err := parseDateRange(r, true)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	trends, err := h.snapshotService.Trends(r.Context(), ports.TrendsParams{
		Range:   dr,
		Options: parseDiffOptions(r),
	})
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteJSON(w, http.StatusOK, trends)
}

// --- Parameter parsing ---

func parseSnapshotKey(r *http.Request) (ports.SnapshotKey, error) {
	v := validation.NewValidator()

	rawDate := chi.URLParam(r, "date")
	snapshotType := chi.URLParam(r, "type")

	v.Required("date", rawDate)
	date := v.Date("date", rawDate)
	v.Required("type", snapshotType).SnapshotType("type", snapshotType)

	if err := v.Err(); err != nil {
		return ports.SnapshotKey{}, err
	}
	return ports.SnapshotKey{Date: date, Type: snapshotType}, nil
}

func parseDateRange(r *http.Request, typeRequired bool) (domain.DateRange, error) {
	q := r.URL.Query()
	v := validation.NewValidator()

	dr := domain.DateRange{
		From: v.Date("from", q.Get("from")),
		To:   v.Date("to", q.Get("to")),
		Type: q.Get("type"),
	}
	if typeRequired {
		v.Required("type", dr.Type)
	}
	v.SnapshotType("type", dr.Type)

	if err := v.Err(); err != nil {
		return domain.DateRange{}, err
	}
	return dr, nil
}

func parseDiffOptions(r *http.Request) diff.Options {
	return diff.Options{
		IncludeTickets:   validation.ParseBoolQueryParam(r, "tickets", true),
		IncludeEmployees: validation.ParseBoolQueryParam(r, "employees", true),
	}
}
