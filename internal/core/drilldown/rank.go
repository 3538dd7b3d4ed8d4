package drilldown

import (
	"math"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DefaultMaxVisible is the number of contributors shown before the rest is
// collapsed into Others.
const DefaultMaxVisible = 10

// DefaultLocale orders names when no locale is configured.
const DefaultLocale = "ru"

// Options tunes the presentation of level results.
type Options struct {
	MaxVisible int
	Locale     string
}

func (o Options) maxVisible() int {
	if o.MaxVisible <= 0 {
		return DefaultMaxVisible
	}
	return o.MaxVisible
}

// newCollator returns a fresh collator; collators are not safe for
// concurrent use.
func (o Options) newCollator() *collate.Collator {
	tag := language.Russian
	if o.Locale != "" {
		if parsed, err := language.Parse(o.Locale); err == nil {
			tag = parsed
		}
	}
	return collate.New(tag)
}

// Contributor is one bar of the Level-1 chart: an employee or the zero
// point.
type Contributor struct {
	EmployeeID *int64  `json:"employeeId"`
	ZeroPoint  bool    `json:"zeroPoint"`
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	BarWidth   float64 `json:"barWidth"`
	Unassigned int     `json:"unassigned,omitempty"`
	Keeper     int     `json:"keeper,omitempty"`
}

// Others aggregates the contributors beyond the visible cap.
type Others struct {
	Count         int `json:"count"`
	EmployeeCount int `json:"employeeCount"`
}

// Grouped is a ranked contributor list cut at the visible cap.
type Grouped struct {
	Visible []Contributor `json:"visible"`
	Others  *Others       `json:"others"`
}

// GroupEmployeesByCount ranks contributors by count, descending, with ties
// ordered by name, and collapses everything past maxVisible into Others.
// Bar widths are set relative to the largest contributor.
func GroupEmployeesByCount(contributors []Contributor, maxVisible int) Grouped {
	return groupContributors(contributors, Options{MaxVisible: maxVisible})
}

func groupContributors(contributors []Contributor, opts Options) Grouped {
	ranked := make([]Contributor, len(contributors))
	copy(ranked, contributors)
	rankContributors(ranked, opts.newCollator())

	if len(ranked) > 0 && ranked[0].Count > 0 {
		largest := float64(ranked[0].Count)
		for i := range ranked {
			ranked[i].BarWidth = round1(float64(ranked[i].Count) / largest * 100)
		}
	}

	limit := opts.maxVisible()
	if len(ranked) <= limit {
		return Grouped{Visible: ranked}
	}

	others := &Others{EmployeeCount: len(ranked) - limit}
	for _, c := range ranked[limit:] {
		others.Count += c.Count
	}
	return Grouped{Visible: ranked[:limit], Others: others}
}

func rankContributors(contributors []Contributor, coll *collate.Collator) {
	sort.SliceStable(contributors, func(i, j int) bool {
		a, b := contributors[i], contributors[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if cmp := coll.CompareString(a.Name, b.Name); cmp != 0 {
			return cmp < 0
		}
		return contributorID(a) < contributorID(b)
	})
}

// contributorID orders the zero point after every employee with the same
// count and name.
func contributorID(c Contributor) int64 {
	if c.EmployeeID == nil {
		return math.MaxInt64
	}
	return *c.EmployeeID
}

// Group is one bucket of a Level-2 or Level-3 grouping.
type Group struct {
	Key        string  `json:"key"`
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	TicketIDs  []int64 `json:"ticketIds"`
}

// rankGroups orders groups by count descending, then by collated label.
func rankGroups(groups []Group, coll *collate.Collator) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return coll.CompareString(a.Label, b.Label) < 0
	})
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(part) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
