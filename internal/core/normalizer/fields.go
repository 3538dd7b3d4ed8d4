package normalizer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
)

// field is an ordered list of the names a logical field goes by in raw
// pipeline data. A dotted name reaches into a nested object.
type field []string

var (
	fieldStages     = field{"stages", "Stages", "STAGES"}
	fieldUnassigned = field{"unassigned", "Unassigned", "UNASSIGNED", "zeroPoint"}
	fieldEmployees  = field{"employees", "Employees", "EMPLOYEES"}
	fieldTickets    = field{"tickets", "Tickets", "TICKETS", "items"}

	fieldID                 = field{"ID", "id", "Id"}
	fieldTitle              = field{"TITLE", "title", "Title", "NAME", "name"}
	fieldStage              = field{"STAGE_ID", "stageId", "stage_id", "StageId"}
	fieldAssigneeID         = field{"ASSIGNED_BY_ID", "assignedById", "assigned_by_id", "assignedTo.id"}
	fieldAssigneeName       = field{"ASSIGNED_BY_NAME", "assignedByName", "assignedTo.name"}
	fieldCreated            = field{"DATE_CREATE", "createdTime", "createdAt", "created_at"}
	fieldUpdated            = field{"DATE_MODIFY", "updatedTime", "updatedAt", "updated_at"}
	fieldDepartmentHead     = field{"departmentHead", "DEPARTMENT_HEAD", "department_head"}
	fieldDepartmentHeadFull = field{"departmentHeadFull", "DEPARTMENT_HEAD_FULL"}
	fieldPriority           = field{"priorityId", "PRIORITY_ID", "priority"}
	fieldPriorityLabel      = field{"priorityLabel", "PRIORITY_LABEL"}
	fieldService            = field{"service", "SERVICE"}
	fieldServiceLabel       = field{"serviceLabel", "SERVICE_LABEL"}
	fieldSubject            = field{"subject", "SUBJECT"}
	fieldDescription        = field{"description", "DESCRIPTION"}
	fieldActions            = field{"actions", "ACTIONS", "history"}
	fieldEmployeeName       = field{"name", "NAME", "fullName", "FULL_NAME"}

	fieldActionCreated = field{"createdAt", "CREATED", "date", "DATE"}
	fieldActionAuthor  = field{"author", "AUTHOR", "user", "authorName"}
	fieldActionText    = field{"text", "TEXT", "comment", "message"}
)

// lookup returns the first non-null value among the field's names.
func (f field) lookup(obj map[string]any) (any, bool) {
	for _, name := range f {
		if v, ok := resolvePath(obj, name); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (f field) str(obj map[string]any) string {
	v, ok := f.lookup(obj)
	if !ok {
		return ""
	}
	return stringValue(v)
}

func (f field) integer(obj map[string]any) (int64, bool) {
	v, ok := f.lookup(obj)
	if !ok {
		return 0, false
	}
	return intValue(v)
}

func resolvePath(obj map[string]any, path string) (any, bool) {
	head, rest, nested := strings.Cut(path, ".")
	v, ok := obj[head]
	if !ok || !nested {
		return v, ok
	}
	child, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return resolvePath(child, rest)
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func intValue(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int64:
		return val, true
	case int32:
		return int64(val), true
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || math.IsNaN(val) {
			return 0, false
		}
		return int64(val), true
	case json.Number:
		n, err := val.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func asList(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []map[string]any:
		list := make([]any, len(val))
		for i := range val {
			list[i] = val[i]
		}
		return list, true
	default:
		return nil, false
	}
}

// dateValue coerces a raw date. The second result is false when a value was
// present but could not be parsed.
func dateValue(obj map[string]any, f field) (*time.Time, bool) {
	v, ok := f.lookup(obj)
	if !ok {
		return nil, true
	}
	raw := stringValue(v)
	if raw == "" {
		return nil, true
	}
	t, ok := domain.ParseTimestamp(raw)
	if !ok {
		return nil, false
	}
	t = t.UTC()
	return &t, true
}
