// Package drilldown builds the four nested navigation levels over a single
// snapshot: stage, employee, aging category or customer, and ticket list.
// Every builder is a pure function of its parent context and the user's
// selection.
package drilldown

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	apperrors "github.com/lorrc/pipeline-snapshots/internal/core/errors"
)

// ZeroPointName is the display name of the synthetic zero-point contributor.
const ZeroPointName = "Zero point"

// ZeroPointSelector is the selector value that addresses the zero point
// instead of an employee id.
const ZeroPointSelector = "zero-point"

// Context is the state of one drill-down level. Builders never modify a
// context they receive; they return a new one with additional fields set.
type Context struct {
	SourceLevel       int                           `json:"sourceLevel"`
	EmployeeID        *int64                        `json:"employeeId"`
	EmployeeName      *string                       `json:"employeeName"`
	ZeroPoint         bool                          `json:"zeroPoint"`
	StageID           string                        `json:"stageId"`
	StageKey          domain.StageKey               `json:"stageKey"`
	StageName         string                        `json:"stageName"`
	DateCategory      *domain.AgingCategory         `json:"dateCategory"`
	DateCategoryLabel *string                       `json:"dateCategoryLabel"`
	DepartmentName    *string                       `json:"departmentName"`
	Tickets           []domain.TicketRecord         `json:"tickets"`
	Snapshot          *domain.Snapshot              `json:"-"`
	TicketDetails     map[int64]domain.DetailRecord `json:"ticketDetails"`
	Warnings          []domain.Warning              `json:"warnings,omitempty"`
}

// Selection addresses either one employee or the zero point.
type Selection struct {
	EmployeeID *int64
	ZeroPoint  bool
}

// EmployeeSelection selects one employee.
func EmployeeSelection(id int64) Selection {
	return Selection{EmployeeID: &id}
}

// ZeroPointSelection selects the zero point.
func ZeroPointSelection() Selection {
	return Selection{ZeroPoint: true}
}

// ParseSelection reads a numeric employee id or ZeroPointSelector.
func ParseSelection(s string) (Selection, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, ZeroPointSelector) {
		return ZeroPointSelection(), nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Selection{}, fmt.Errorf("%w: employee must be a numeric id or %q", apperrors.ErrBadRequest, ZeroPointSelector)
	}
	return EmployeeSelection(id), nil
}

// IsSet reports whether the selection addresses anything.
func (s Selection) IsSet() bool {
	return s.ZeroPoint || s.EmployeeID != nil
}

func (s Selection) matches(t domain.TicketRecord) bool {
	assignee := t.ResolvedAssignee()
	if s.ZeroPoint {
		return assignee.IsZeroPoint()
	}
	return s.EmployeeID != nil && assignee.IsEmployee(*s.EmployeeID)
}

// Filter is the AND-filter applied directly to a snapshot's tickets. Nil
// fields do not constrain the result.
type Filter struct {
	Stage          *domain.StageKey
	Selection      Selection
	DateCategory   *domain.AgingCategory
	DepartmentName *string
}

// ResolveStage accepts a stage key or a raw stage identifier.
func ResolveStage(s string) (domain.StageKey, string, error) {
	key := domain.StageKey(s)
	if key.IsValid() {
		raw, _ := domain.RawStageID(key)
		return key, raw, nil
	}
	if mapped, ok := domain.MapStage(s); ok {
		return mapped, s, nil
	}
	return "", "", &apperrors.UnknownStageError{StageID: s}
}

func (c Context) selection() Selection {
	return Selection{EmployeeID: c.EmployeeID, ZeroPoint: c.ZeroPoint}
}

// clone copies the scalar fields of a context. Slices and maps are shared
// because builders only ever replace them.
func (c Context) clone(level int) Context {
	next := c
	next.SourceLevel = level
	next.Warnings = nil
	return next
}

func stringPtr(s string) *string {
	return &s
}
