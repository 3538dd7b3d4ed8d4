package domain

// WarningCode identifies a recoverable per-record data issue.
type WarningCode string

const (
	WarningInvalidDate        WarningCode = "INVALID_DATE"
	WarningMissingTicketID    WarningCode = "MISSING_TICKET_ID"
	WarningInvalidEmployee    WarningCode = "INVALID_EMPLOYEE"
	WarningUnknownStage       WarningCode = "UNKNOWN_STAGE"
	WarningMissingEmployees   WarningCode = "MISSING_EMPLOYEES"
	WarningMissingZeroPoint   WarningCode = "MISSING_ZERO_POINT"
	WarningDuplicateTicket    WarningCode = "DUPLICATE_TICKET"
	WarningEnrichmentFailed   WarningCode = "ENRICHMENT_FAILED"
	WarningUnrecognizedLookup WarningCode = "UNRECOGNIZED_LOOKUP"
)

// Warning is a non-fatal issue reported alongside a result.
type Warning struct {
	Code     WarningCode `json:"code"`
	Message  string      `json:"message"`
	TicketID int64       `json:"ticketId,omitempty"`
	StageID  string      `json:"stageId,omitempty"`
}
