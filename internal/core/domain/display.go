package domain

import (
	"strings"
	"time"
)

// Colors is the color triple used to badge a value in ticket lists.
type Colors struct {
	Background string `json:"background" yaml:"background"`
	Text       string `json:"text" yaml:"text"`
	Border     string `json:"border" yaml:"border"`
}

// PaletteEntry is the display label and colors of one priority or service.
type PaletteEntry struct {
	Label  string `yaml:"label"`
	Colors Colors `yaml:"colors"`
}

// Palette maps priority and service ids to their badges. Keys are matched
// case-insensitively.
type Palette struct {
	Neutral    Colors                  `yaml:"neutral"`
	Priorities map[string]PaletteEntry `yaml:"priorities"`
	Services   map[string]PaletteEntry `yaml:"services"`
}

// NeutralColors is the fallback badge for unrecognized values.
var NeutralColors = Colors{Background: "#f3f4f6", Text: "#374151", Border: "#d1d5db"}

// DefaultPalette is used when no palette file is configured.
func DefaultPalette() Palette {
	return Palette{
		Neutral: NeutralColors,
		Priorities: map[string]PaletteEntry{
			"low":      {Label: "Low", Colors: Colors{Background: "#ecfdf5", Text: "#065f46", Border: "#a7f3d0"}},
			"normal":   {Label: "Normal", Colors: Colors{Background: "#eff6ff", Text: "#1e40af", Border: "#bfdbfe"}},
			"high":     {Label: "High", Colors: Colors{Background: "#fff7ed", Text: "#9a3412", Border: "#fed7aa"}},
			"critical": {Label: "Critical", Colors: Colors{Background: "#fef2f2", Text: "#991b1b", Border: "#fecaca"}},
		},
		Services: map[string]PaletteEntry{
			"it":         {Label: "IT support", Colors: Colors{Background: "#eef2ff", Text: "#3730a3", Border: "#c7d2fe"}},
			"hr":         {Label: "Human resources", Colors: Colors{Background: "#fdf4ff", Text: "#86198f", Border: "#f5d0fe"}},
			"facilities": {Label: "Facilities", Colors: Colors{Background: "#fefce8", Text: "#854d0e", Border: "#fef08a"}},
			"finance":    {Label: "Finance", Colors: Colors{Background: "#f0fdfa", Text: "#115e59", Border: "#99f6e4"}},
		},
	}
}

// Priority looks up a priority id.
func (p Palette) Priority(id string) (PaletteEntry, bool) {
	return lookupEntry(p.Priorities, id)
}

// Service looks up a service id.
func (p Palette) Service(id string) (PaletteEntry, bool) {
	return lookupEntry(p.Services, id)
}

// NeutralOrDefault returns the configured neutral colors, or NeutralColors.
func (p Palette) NeutralOrDefault() Colors {
	if p.Neutral == (Colors{}) {
		return NeutralColors
	}
	return p.Neutral
}

func lookupEntry(entries map[string]PaletteEntry, id string) (PaletteEntry, bool) {
	key := strings.ToLower(strings.TrimSpace(id))
	if key == "" {
		return PaletteEntry{}, false
	}
	entry, ok := entries[key]
	return entry, ok
}

// Badge is a labeled, colored value of a display ticket.
type Badge struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Colors Colors `json:"colors"`
}

// DisplayTicket is a ticket ready to be listed.
type DisplayTicket struct {
	ID            int64         `json:"id"`
	Title         string        `json:"title"`
	Subject       string        `json:"subject"`
	Description   string        `json:"description"`
	Actions       []Action      `json:"actions"`
	Status        TicketStatus  `json:"status"`
	StatusLabel   string        `json:"statusLabel"`
	StageKey      StageKey      `json:"stageKey"`
	AssigneeName  string        `json:"assigneeName"`
	Customer      string        `json:"customer"`
	CreatedAt     *time.Time    `json:"createdAt"`
	UpdatedAt     *time.Time    `json:"updatedAt"`
	AgingCategory AgingCategory `json:"agingCategory"`
	AgingLabel    string        `json:"agingLabel"`
	Priority      Badge         `json:"priority"`
	Service       Badge         `json:"service"`
	Enriched      bool          `json:"enriched"`
}
