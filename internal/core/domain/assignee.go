package domain

import "fmt"

// AssigneeKind tags the variant of an AssigneeRef.
type AssigneeKind string

const (
	AssigneeUnassigned AssigneeKind = "unassigned"
	AssigneeKeeper     AssigneeKind = "keeper"
	AssigneeEmployee   AssigneeKind = "employee"
)

// AssigneeRef is who holds a ticket: nobody, the default keeper, or a named
// employee. It is resolved once when the snapshot is normalized.
type AssigneeRef struct {
	Kind AssigneeKind `json:"kind"`
	ID   int64        `json:"id,omitempty"`
	Name string       `json:"name,omitempty"`
}

func Unassigned() AssigneeRef {
	return AssigneeRef{Kind: AssigneeUnassigned}
}

func KeeperAssignee(id int64, name string) AssigneeRef {
	return AssigneeRef{Kind: AssigneeKeeper, ID: id, Name: name}
}

func EmployeeAssignee(id int64, name string) AssigneeRef {
	return AssigneeRef{Kind: AssigneeEmployee, ID: id, Name: name}
}

// IsZeroPoint reports whether the ticket is counted in the zero point.
func (a AssigneeRef) IsZeroPoint() bool {
	return a.Kind == AssigneeUnassigned || a.Kind == AssigneeKeeper
}

// IsEmployee reports whether the ref is the named employee id.
func (a AssigneeRef) IsEmployee(id int64) bool {
	return a.Kind == AssigneeEmployee && a.ID == id
}

// DisplayName returns a label suitable for ticket lists.
func (a AssigneeRef) DisplayName() string {
	switch a.Kind {
	case AssigneeEmployee, AssigneeKeeper:
		if a.Name != "" {
			return a.Name
		}
		return fmt.Sprintf("Employee #%d", a.ID)
	default:
		return "Unassigned"
	}
}
