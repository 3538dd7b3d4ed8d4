package domain

import (
	"sort"
	"strings"
	"time"
)

// SchemaVersion is the only snapshot document version this service reads
// and writes.
const SchemaVersion = "1.0"

// WithoutCustomer is the customer label of tickets with no department head.
const WithoutCustomer = "Without customer"

// Snapshot is an immutable point-in-time capture of the pipeline.
type Snapshot struct {
	Metadata   Metadata       `json:"metadata"`
	Statistics Statistics     `json:"statistics"`
	TicketIDs  []int64        `json:"ticketIds"`
	Tickets    []TicketRecord `json:"tickets"`
}

// Metadata describes when and by whom a snapshot was captured.
type Metadata struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	Type      string    `json:"type"`
	SectorID  string    `json:"sectorId,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty"`
}

// Statistics holds the aggregate counters of a snapshot. Pointer fields are
// nil when a decoded document omitted them.
type Statistics struct {
	Stages           StageStats             `json:"stages"`
	Employees        []EmployeeStat         `json:"employees"`
	ZeroPoint        *ZeroPoint             `json:"zeroPoint"`
	ZeroPointByStage map[StageKey]ZeroPoint `json:"zeroPointByStage,omitempty"`
}

// StageCount is the ticket count of one stage.
type StageCount struct {
	Count int `json:"count"`
}

// StageStats holds the per-stage counters and their total.
type StageStats struct {
	Formed    *StageCount `json:"formed"`
	Review    *StageCount `json:"review"`
	Execution *StageCount `json:"execution"`
	Total     *StageCount `json:"total"`
}

// NewStageStats builds stage counters with a consistent total.
func NewStageStats(formed, review, execution int) StageStats {
	return StageStats{
		Formed:    &StageCount{Count: formed},
		Review:    &StageCount{Count: review},
		Execution: &StageCount{Count: execution},
		Total:     &StageCount{Count: formed + review + execution},
	}
}

// Count returns the count of a stage, treating a missing entry as zero.
func (s StageStats) Count(key StageKey) int {
	switch key {
	case StageFormed:
		return s.Formed.value()
	case StageReview:
		return s.Review.value()
	case StageExecution:
		return s.Execution.value()
	default:
		return 0
	}
}

// TotalCount returns the stored total, or the sum of the stages when the
// total is missing.
func (s StageStats) TotalCount() int {
	if s.Total != nil {
		return s.Total.Count
	}
	return s.Formed.value() + s.Review.value() + s.Execution.value()
}

func (c *StageCount) value() int {
	if c == nil {
		return 0
	}
	return c.Count
}

// StageTally counts tickets per stage for one employee.
type StageTally struct {
	Formed    int `json:"formed"`
	Review    int `json:"review"`
	Execution int `json:"execution"`
}

// Get returns the tally of a stage.
func (t StageTally) Get(key StageKey) int {
	switch key {
	case StageFormed:
		return t.Formed
	case StageReview:
		return t.Review
	case StageExecution:
		return t.Execution
	default:
		return 0
	}
}

// Add increments the tally of a stage.
func (t *StageTally) Add(key StageKey, n int) {
	switch key {
	case StageFormed:
		t.Formed += n
	case StageReview:
		t.Review += n
	case StageExecution:
		t.Execution += n
	}
}

// Sum returns the tally across all stages.
func (t StageTally) Sum() int {
	return t.Formed + t.Review + t.Execution
}

// EmployeeStat aggregates one employee's tickets.
type EmployeeStat struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	TicketsByStage StageTally `json:"ticketsByStage"`
	TotalTickets   int        `json:"totalTickets"`
}

// ZeroPoint counts tickets not held by a named employee.
type ZeroPoint struct {
	Unassigned int `json:"unassigned"`
	Keeper     int `json:"keeper"`
	Total      int `json:"total"`
}

// TicketRecord is one ticket as captured in a snapshot.
type TicketRecord struct {
	ID                 int64       `json:"id"`
	Title              string      `json:"title"`
	AssignedTo         *AssignedTo `json:"assignedTo"`
	Assignee           AssigneeRef `json:"assignee"`
	CreatedAt          *time.Time  `json:"createdAt"`
	UpdatedAt          *time.Time  `json:"updatedAt"`
	StageID            string      `json:"stageId"`
	DepartmentHead     string      `json:"departmentHead"`
	DepartmentHeadFull string      `json:"departmentHeadFull"`
	PriorityID         string      `json:"priorityId"`
	PriorityLabel      string      `json:"priorityLabel"`
	Service            string      `json:"service"`
	ServiceLabel       string      `json:"serviceLabel"`
	Subject            string      `json:"subject,omitempty"`
	Description        string      `json:"description,omitempty"`
	Actions            []Action    `json:"actions,omitempty"`
}

// AssignedTo is the raw assignee reference carried by a ticket.
type AssignedTo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AssigneeID returns the assignee id, or nil for an unassigned ticket.
func (t TicketRecord) AssigneeID() *int64 {
	if t.AssignedTo == nil {
		return nil
	}
	id := t.AssignedTo.ID
	return &id
}

// ResolvedAssignee returns the assignee resolved at capture time. Documents
// that predate the resolved field fall back to the raw reference.
func (t TicketRecord) ResolvedAssignee() AssigneeRef {
	if t.Assignee.Kind != "" {
		return t.Assignee
	}
	if t.AssignedTo == nil {
		return Unassigned()
	}
	return EmployeeAssignee(t.AssignedTo.ID, t.AssignedTo.Name)
}

// StageKey maps the ticket's raw stage through the stage table.
func (t TicketRecord) StageKey() (StageKey, bool) {
	return MapStage(t.StageID)
}

// Customer returns the requesting customer: the department head, then its
// full form, then WithoutCustomer.
func (t TicketRecord) Customer() string {
	if head := strings.TrimSpace(t.DepartmentHead); head != "" {
		return head
	}
	if full := strings.TrimSpace(t.DepartmentHeadFull); full != "" {
		return full
	}
	return WithoutCustomer
}

// Action is one entry of a ticket's history.
type Action struct {
	CreatedAt *time.Time `json:"createdAt"`
	Author    string     `json:"author"`
	Text      string     `json:"text"`
}

// DetailRecord is the rich ticket content served by the detail store.
type DetailRecord struct {
	ID          int64    `json:"id"`
	Subject     string   `json:"subject"`
	Description string   `json:"description"`
	Actions     []Action `json:"actions"`
	Title       string   `json:"title,omitempty"`
	PriorityID  string   `json:"priorityId,omitempty"`
	Service     string   `json:"service,omitempty"`
}

// Employee returns the employee stat with the given id.
func (s *Snapshot) Employee(id int64) (EmployeeStat, bool) {
	for _, e := range s.Statistics.Employees {
		if e.ID == id {
			return e, true
		}
	}
	return EmployeeStat{}, false
}

// ZeroPointFor returns the zero-point counters of a stage.
func (s *Snapshot) ZeroPointFor(key StageKey) ZeroPoint {
	return s.Statistics.ZeroPointByStage[key]
}

// TicketIndex returns the snapshot's tickets keyed by id.
func (s *Snapshot) TicketIndex() map[int64]TicketRecord {
	index := make(map[int64]TicketRecord, len(s.Tickets))
	for _, t := range s.Tickets {
		index[t.ID] = t
	}
	return index
}

// SortedTicketIDs returns the ascending unique ids of tickets.
func SortedTicketIDs(tickets []TicketRecord) []int64 {
	seen := make(map[int64]struct{}, len(tickets))
	ids := make([]int64, 0, len(tickets))
	for _, t := range tickets {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		ids = append(ids, t.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// StoredSnapshot is a snapshot together with its storage key.
type StoredSnapshot struct {
	ID       int64
	Date     time.Time
	Snapshot *Snapshot
}

// DateRange selects stored snapshots by capture date. Zero bounds are open
// and an empty Type matches every type.
type DateRange struct {
	From time.Time
	To   time.Time
	Type string
}
