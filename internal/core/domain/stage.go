package domain

// StageKey is one of the three internal pipeline phases.
type StageKey string

const (
	StageFormed    StageKey = "formed"
	StageReview    StageKey = "review"
	StageExecution StageKey = "execution"
)

// Stages lists the stage keys in pipeline order.
var Stages = []StageKey{StageFormed, StageReview, StageExecution}

// stageTable maps the upstream tracker's raw stage identifiers to stage keys.
// The normalizer, the diff engine and the drill-down builder all resolve
// stages through this table only.
var stageTable = map[string]StageKey{
	"DT1032_16:NEW":         StageFormed,
	"DT1032_16:PREPARATION": StageReview,
	"DT1032_16:CLIENT":      StageExecution,
}

// MapStage resolves a raw stage identifier. Unknown identifiers are not
// guessed.
func MapStage(rawStageID string) (StageKey, bool) {
	key, ok := stageTable[rawStageID]
	return key, ok
}

// RawStageID returns the upstream identifier for a stage key.
func RawStageID(key StageKey) (string, bool) {
	for raw, k := range stageTable {
		if k == key {
			return raw, true
		}
	}
	return "", false
}

// StageMappingSize is the number of entries in the stage table.
func StageMappingSize() int {
	return len(stageTable)
}

// IsValid reports whether k is one of the three stage keys.
func (k StageKey) IsValid() bool {
	switch k {
	case StageFormed, StageReview, StageExecution:
		return true
	}
	return false
}

// Name returns the display name of the stage.
func (k StageKey) Name() string {
	switch k {
	case StageFormed:
		return "Formed"
	case StageReview:
		return "Under review"
	case StageExecution:
		return "In execution"
	default:
		return "Unknown stage"
	}
}

// TicketStatus is the display status derived from a ticket's stage.
type TicketStatus string

const (
	StatusNew        TicketStatus = "NEW"
	StatusReview     TicketStatus = "REVIEW"
	StatusInProgress TicketStatus = "IN_PROGRESS"
	StatusUnknown    TicketStatus = "UNKNOWN"
)

// StatusForStage maps a raw stage identifier to its display status.
func StatusForStage(rawStageID string) TicketStatus {
	key, ok := MapStage(rawStageID)
	if !ok {
		return StatusUnknown
	}
	switch key {
	case StageFormed:
		return StatusNew
	case StageReview:
		return StatusReview
	default:
		return StatusInProgress
	}
}

// Label returns the human readable status text.
func (s TicketStatus) Label() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusReview:
		return "Under review"
	case StatusInProgress:
		return "In progress"
	default:
		return "Unknown"
	}
}

func (s TicketStatus) String() string {
	return string(s)
}
