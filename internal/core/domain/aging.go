package domain

import (
	"math"
	"time"
)

// AgingCategory is a calendar-relative bucket describing how old a ticket's
// creation date is. The buckets drive both color coding and drill-down
// filtering, so every component classifies through Classify.
type AgingCategory string

const (
	AgingToday             AgingCategory = "today"
	AgingYesterday         AgingCategory = "yesterday"
	AgingThisWeek          AgingCategory = "this_week"
	AgingLastWeek          AgingCategory = "last_week"
	AgingMoreThanTwoWeeks  AgingCategory = "more_than_two_weeks"
	AgingUpToOneMonth      AgingCategory = "up_to_one_month"
	AgingMoreThanTwoMonths AgingCategory = "more_than_two_months"
	AgingMoreThanHalfYear  AgingCategory = "more_than_half_year"
	AgingMoreThanYear      AgingCategory = "more_than_year"
)

// AgingCategories lists the buckets from newest to oldest.
var AgingCategories = []AgingCategory{
	AgingToday,
	AgingYesterday,
	AgingThisWeek,
	AgingLastWeek,
	AgingMoreThanTwoWeeks,
	AgingUpToOneMonth,
	AgingMoreThanTwoMonths,
	AgingMoreThanHalfYear,
	AgingMoreThanYear,
}

var agingLabels = map[AgingCategory]string{
	AgingToday:             "Today",
	AgingYesterday:         "Yesterday",
	AgingThisWeek:          "This week",
	AgingLastWeek:          "Last week",
	AgingMoreThanTwoWeeks:  "More than two weeks",
	AgingUpToOneMonth:      "Up to one month",
	AgingMoreThanTwoMonths: "More than two months",
	AgingMoreThanHalfYear:  "More than half a year",
	AgingMoreThanYear:      "More than a year",
}

const msPerDay = 86400000

// Label returns the display label of the category.
func (c AgingCategory) Label() string {
	if label, ok := agingLabels[c]; ok {
		return label
	}
	return string(c)
}

// Ordinal returns the position of the category in AgingCategories, or -1.
func (c AgingCategory) Ordinal() int {
	for i, category := range AgingCategories {
		if category == c {
			return i
		}
	}
	return -1
}

// IsValid reports whether c is one of the nine buckets.
func (c AgingCategory) IsValid() bool {
	return c.Ordinal() >= 0
}

// ParseAgingCategory resolves a category key.
func ParseAgingCategory(s string) (AgingCategory, bool) {
	c := AgingCategory(s)
	return c, c.IsValid()
}

// Classify buckets createdAt relative to now. Both instants are truncated to
// midnight of their calendar date in now's location before comparing.
// Months and years are fixed 30 and 365 day spans.
func Classify(createdAt, now time.Time) AgingCategory {
	if createdAt.IsZero() {
		return AgingMoreThanYear
	}

	loc := now.Location()
	nowMidnight := midnight(now, loc)
	createdMidnight := midnight(createdAt, loc)

	diffDays := int(math.Floor(float64(nowMidnight.Sub(createdMidnight).Milliseconds()) / msPerDay))

	if diffDays < 0 || diffDays == 0 {
		return AgingToday
	}
	if diffDays == 1 {
		return AgingYesterday
	}

	startOfWeek := mondayOf(nowMidnight)
	if !createdMidnight.Before(startOfWeek) && diffDays < 7 {
		return AgingThisWeek
	}

	startOfLastWeek := startOfWeek.AddDate(0, 0, -7)
	if !createdMidnight.Before(startOfLastWeek) && createdMidnight.Before(startOfWeek) {
		return AgingLastWeek
	}

	diffWeeks := diffDays / 7
	diffMonths := diffDays / 30
	diffYears := diffDays / 365

	switch {
	case diffWeeks >= 2 && diffMonths < 1:
		return AgingMoreThanTwoWeeks
	case diffMonths >= 1 && diffMonths < 2:
		return AgingUpToOneMonth
	case diffMonths >= 2 && diffMonths < 6:
		return AgingMoreThanTwoMonths
	case diffMonths >= 6 && diffYears < 1:
		return AgingMoreThanHalfYear
	default:
		return AgingMoreThanYear
	}
}

// ClassifyPtr classifies a nullable timestamp.
func ClassifyPtr(createdAt *time.Time, now time.Time) AgingCategory {
	if createdAt == nil {
		return AgingMoreThanYear
	}
	return Classify(*createdAt, now)
}

// ClassifyString parses an ISO-8601 timestamp and classifies it. Values that
// do not parse are treated as the oldest bucket.
func ClassifyString(createdAt string, now time.Time) AgingCategory {
	t, ok := ParseTimestamp(createdAt)
	if !ok {
		return AgingMoreThanYear
	}
	return Classify(t, now)
}

func midnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// mondayOf returns midnight of the Monday at or before day.
func mondayOf(day time.Time) time.Time {
	offset := int(day.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	return time.Date(day.Year(), day.Month(), day.Day()-offset, 0, 0, 0, 0, day.Location())
}
