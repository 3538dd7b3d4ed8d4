package domain

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	apperrors "github.com/lorrc/pipeline-snapshots/internal/core/errors"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed snapshot.schema.json
var snapshotSchema []byte

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(snapshotSchema))
})

// DecodeSnapshot parses a stored or imported snapshot document. The document
// is checked against the snapshot JSON schema, its version and the snapshot
// invariants; every violation is reported in one ValidationErrors.
func DecodeSnapshot(data []byte) (*Snapshot, []Warning, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile snapshot schema: %w", err)
	}

	v := apperrors.NewValidationErrors()

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		v.Add("document", "must be a valid JSON object")
		return nil, nil, v
	}
	for _, resultErr := range result.Errors() {
		v.Add(resultErr.Field(), resultErr.Description())
	}

	var probe struct {
		Metadata struct {
			Version *string `json:"version"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && probe.Metadata.Version != nil {
		checkVersion(v, *probe.Metadata.Version)
	}
	if v.HasErrors() {
		return nil, nil, v
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		v.Add("document", err.Error())
		return nil, nil, v
	}

	warnings, err := ValidateSnapshot(&snapshot)
	if err != nil {
		return nil, nil, err
	}
	if err := CheckInvariants(&snapshot); err != nil {
		return nil, nil, err
	}
	return &snapshot, warnings, nil
}

// EncodeSnapshot serializes a snapshot document.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// ValidateSnapshot checks the fields every consumer of a snapshot relies on.
// Missing employee or zero-point statistics are reported as warnings.
func ValidateSnapshot(s *Snapshot) ([]Warning, error) {
	v := apperrors.NewValidationErrors()
	if s == nil {
		v.Add("snapshot", "is required")
		return nil, v
	}

	if s.Metadata.CreatedAt.IsZero() {
		v.Add("metadata.createdAt", "is required")
	}
	if s.Metadata.Type == "" {
		v.Add("metadata.type", "is required")
	}
	checkVersion(v, s.Metadata.Version)

	stages := s.Statistics.Stages
	if stages.Formed == nil {
		v.Add("statistics.stages.formed", "is required")
	}
	if stages.Review == nil {
		v.Add("statistics.stages.review", "is required")
	}
	if stages.Execution == nil {
		v.Add("statistics.stages.execution", "is required")
	}

	if v.HasErrors() {
		return nil, v
	}

	var warnings []Warning
	if s.Statistics.Employees == nil {
		warnings = append(warnings, Warning{
			Code:    WarningMissingEmployees,
			Message: "statistics.employees is missing; employee counts treated as empty",
		})
	}
	if s.Statistics.ZeroPoint == nil {
		warnings = append(warnings, Warning{
			Code:    WarningMissingZeroPoint,
			Message: "statistics.zeroPoint is missing; zero point treated as empty",
		})
	}
	return warnings, nil
}

// CheckInvariants verifies the counters and ticket ids agree with each other.
func CheckInvariants(s *Snapshot) error {
	v := apperrors.NewValidationErrors()
	stages := s.Statistics.Stages

	sum := stages.Count(StageFormed) + stages.Count(StageReview) + stages.Count(StageExecution)
	if stages.Total != nil && stages.Total.Count != sum {
		v.Add("statistics.stages.total", fmt.Sprintf("must equal the sum of the stages (%d)", sum))
	}

	if zp := s.Statistics.ZeroPoint; zp != nil && zp.Total != zp.Unassigned+zp.Keeper {
		v.Add("statistics.zeroPoint.total", "must equal unassigned + keeper")
	}

	for i, e := range s.Statistics.Employees {
		if e.TotalTickets != e.TicketsByStage.Sum() {
			v.Add(fmt.Sprintf("statistics.employees.%d.totalTickets", i), "must equal the sum of ticketsByStage")
		}
	}

	for i := 1; i < len(s.TicketIDs); i++ {
		if s.TicketIDs[i] <= s.TicketIDs[i-1] {
			v.Add("ticketIds", "must be strictly ascending")
			break
		}
	}
	expected := SortedTicketIDs(s.Tickets)
	if len(s.Tickets) != len(expected) {
		v.Add("tickets", "must not contain duplicate ids")
	}
	if !slices.Equal(expected, s.TicketIDs) {
		v.Add("ticketIds", "must equal the ids of tickets")
	}

	if v.HasErrors() {
		return v
	}
	return nil
}

func checkVersion(v *apperrors.ValidationErrors, version string) {
	if version != SchemaVersion {
		v.AddCause("metadata.version",
			fmt.Errorf("%w: got %q, want %q", apperrors.ErrUnsupportedSchemaVersion, version, SchemaVersion))
	}
}
