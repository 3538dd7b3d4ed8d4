package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/pipeline-snapshots/internal/adapters/primary/validation"
	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	"github.com/lorrc/pipeline-snapshots/internal/core/drilldown"
	apperrors "github.com/lorrc/pipeline-snapshots/internal/core/errors"
	"github.com/lorrc/pipeline-snapshots/internal/core/ports"
)

const maxVisibleLimit = 100

// DrillDownHandler handles the drill-down navigation of one snapshot. It is
// mounted below /snapshots/{date}/{type}.
type DrillDownHandler struct {
	drillDownService ports.DrillDownService
	errorHandler     *ErrorHandler
	logger           *slog.Logger
}

// NewDrillDownHandler creates a new drill-down handler
func NewDrillDownHandler(
	drillDownService ports.DrillDownService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *DrillDownHandler {
	return &DrillDownHandler{
		drillDownService: drillDownService,
		errorHandler:     errorHandler,
		logger:           logger.With("handler", "drilldown"),
	}
}

// Router sets up a new chi Router for the drill-down routes.
func (h *DrillDownHandler) Router() http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes sets up the routing for all drill-down endpoints.
func (h *DrillDownHandler) RegisterRoutes(r chi.Router) {
	r.Route("/stages/{stage}", func(r chi.Router) {
		r.Get("/", h.HandleStage)
		r.Get("/employees/{employee}", h.HandleEmployee)
		r.Get("/employees/{employee}/aging/{category}", h.HandleAging)
	})
	r.Post("/tickets", h.HandleTickets)
}

// --- Request DTOs ---

// EmployeeSelector accepts a numeric employee id or "zero-point", as a JSON
// number or string.
type EmployeeSelector string

// UnmarshalJSON implements json.Unmarshaler.
func (s *EmployeeSelector) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = EmployeeSelector(str)
		return nil
	}
	id, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("employee: %w", err)
	}
	*s = EmployeeSelector(strconv.FormatInt(id, 10))
	return nil
}

// TicketListRequest defines the expected JSON body for the ticket list.
// TicketIDs are the tickets the previous level showed.
type TicketListRequest struct {
	Stage          string           `json:"stage"`
	Employee       EmployeeSelector `json:"employee"`
	DateCategory   string           `json:"dateCategory"`
	DepartmentName *string          `json:"departmentName"`
	TicketIDs      []int64          `json:"ticketIds"`
}

// Validate validates the ticket list request and resolves it to a query.
func (r *TicketListRequest) Validate(key ports.SnapshotKey) (ports.TicketListQuery, error) {
	v := validation.NewValidator()
	q := ports.TicketListQuery{
		Snapshot:       key,
		Stage:          r.Stage,
		DepartmentName: r.DepartmentName,
		TicketIDs:      r.TicketIDs,
	}

	v.Required("stage", r.Stage)

	if r.Employee != "" {
		sel, err := drilldown.ParseSelection(string(r.Employee))
		v.Custom("employee", err == nil, "Must be a numeric employee id or "+drilldown.ZeroPointSelector)
		q.Selection = sel
	}

	if r.DateCategory != "" {
		category, ok := domain.ParseAgingCategory(r.DateCategory)
		v.Custom("dateCategory", ok, "Unknown date category")
		q.DateCategory = &category
	}

	for i, id := range r.TicketIDs {
		v.Custom(fmt.Sprintf("ticketIds.%d", i), id > 0, "Must be a positive ticket id")
	}

	if err := v.Err(); err != nil {
		return ports.TicketListQuery{}, err
	}
	return q, nil
}

// --- Handlers ---

// HandleStage returns Level 1: the contributors of one stage.
func (h *DrillDownHandler) HandleStage(w http.ResponseWriter, r *http.Request) {
	q, err := parseStageQuery(r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	level1, err := h.drillDownService.Stage(r.Context(), q)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteJSON(w, http.StatusOK, level1)
}

// HandleEmployee returns Level 2: one employee's tickets on a stage.
func (h *DrillDownHandler) HandleEmployee(w http.ResponseWriter, r *http.Request) {
	q, err := parseEmployeeQuery(r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	level2, err := h.drillDownService.Employee(r.Context(), q)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteJSON(w, http.StatusOK, level2)
}

// HandleAging returns Level 3: the customers within one aging category.
func (h *DrillDownHandler) HandleAging(w http.ResponseWriter, r *http.Request) {
	eq, err := parseEmployeeQuery(r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	category, ok := domain.ParseAgingCategory(chi.URLParam(r, "category"))
	if !ok {
		h.errorHandler.Handle(w, r, fmt.Errorf("%w: %q", apperrors.ErrUnknownDateCategory, chi.URLParam(r, "category")))
		return
	}

	level3, err := h.drillDownService.Aging(r.Context(), ports.AgingQuery{EmployeeQuery: eq, Category: category})
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteJSON(w, http.StatusOK, level3)
}

// HandleTickets returns Level 4: the enriched ticket list.
func (h *DrillDownHandler) HandleTickets(w http.ResponseWriter, r *http.Request) {
	key, err := parseSnapshotKey(r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	req, err := validation.Decode[TicketListRequest](r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	q, err := req.Validate(key)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	list, err := h.drillDownService.Tickets(r.Context(), q)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	if len(list.Warnings) > 0 {
		h.logger.DebugContext(r.Context(), "ticket list served with warnings", "warnings", len(list.Warnings))
	}
	WriteJSON(w, http.StatusOK, list)
}

// --- Parameter parsing ---

func parseStageQuery(r *http.Request) (ports.StageQuery, error) {
	key, err := parseSnapshotKey(r)
	if err != nil {
		return ports.StageQuery{}, err
	}

	limit := validation.ParseIntQueryParam(r, "limit", 0)
	if limit > maxVisibleLimit {
		limit = maxVisibleLimit
	}

	return ports.StageQuery{
		Snapshot:   key,
		Stage:      chi.URLParam(r, "stage"),
		MaxVisible: limit,
	}, nil
}

func parseEmployeeQuery(r *http.Request) (ports.EmployeeQuery, error) {
	sq, err := parseStageQuery(r)
	if err != nil {
		return ports.EmployeeQuery{}, err
	}

	sel, err := drilldown.ParseSelection(chi.URLParam(r, "employee"))
	if err != nil {
		return ports.EmployeeQuery{}, err
	}
	grouping, err := drilldown.ParseGrouping(r.URL.Query().Get("groupBy"))
	if err != nil {
		return ports.EmployeeQuery{}, err
	}

	return ports.EmployeeQuery{StageQuery: sq, Selection: sel, Grouping: grouping}, nil
}
