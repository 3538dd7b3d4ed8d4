package domain_test

import (
	"testing"
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func daysAgo(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}

func TestClassify(t *testing.T) {
	// Wednesday afternoon; the current week started on Monday 2024-03-11.
	now := time.Date(2024, time.March, 13, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		createdAt time.Time
		want      domain.AgingCategory
	}{
		{"same instant", now, domain.AgingToday},
		{"earlier today", time.Date(2024, time.March, 13, 0, 5, 0, 0, time.UTC), domain.AgingToday},
		{"future date", now.AddDate(0, 0, 3), domain.AgingToday},
		{"yesterday late evening", time.Date(2024, time.March, 12, 23, 59, 0, 0, time.UTC), domain.AgingYesterday},
		{"monday of this week", daysAgo(now, 2), domain.AgingThisWeek},
		{"sunday of last week", daysAgo(now, 3), domain.AgingLastWeek},
		{"monday of last week", daysAgo(now, 9), domain.AgingLastWeek},
		{"between last week and two weeks", daysAgo(now, 10), domain.AgingMoreThanYear},
		{"two weeks", daysAgo(now, 14), domain.AgingMoreThanTwoWeeks},
		{"29 days", daysAgo(now, 29), domain.AgingMoreThanTwoWeeks},
		{"30 days", daysAgo(now, 30), domain.AgingUpToOneMonth},
		{"59 days", daysAgo(now, 59), domain.AgingUpToOneMonth},
		{"60 days", daysAgo(now, 60), domain.AgingMoreThanTwoMonths},
		{"179 days", daysAgo(now, 179), domain.AgingMoreThanTwoMonths},
		{"180 days", daysAgo(now, 180), domain.AgingMoreThanHalfYear},
		{"364 days", daysAgo(now, 364), domain.AgingMoreThanHalfYear},
		{"365 days", daysAgo(now, 365), domain.AgingMoreThanYear},
		{"370 days", daysAgo(now, 370), domain.AgingMoreThanYear},
		{"zero time", time.Time{}, domain.AgingMoreThanYear},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.Classify(tt.createdAt, now))
		})
	}
}

func TestClassify_WeekStartingToday(t *testing.T) {
	monday := time.Date(2024, time.March, 11, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, domain.AgingYesterday, domain.Classify(daysAgo(monday, 1), monday))
	assert.Equal(t, domain.AgingLastWeek, domain.Classify(daysAgo(monday, 2), monday))
	assert.Equal(t, domain.AgingLastWeek, domain.Classify(daysAgo(monday, 7), monday))
	assert.Equal(t, domain.AgingMoreThanYear, domain.Classify(daysAgo(monday, 8), monday))
	assert.Equal(t, domain.AgingMoreThanTwoWeeks, domain.Classify(daysAgo(monday, 14), monday))
}

func TestClassify_UsesNowLocation(t *testing.T) {
	msk := time.FixedZone("MSK", 3*60*60)
	now := time.Date(2024, time.March, 13, 10, 0, 0, 0, msk)

	// 23:30 UTC on the 12th is already the 13th in MSK.
	createdAt := time.Date(2024, time.March, 12, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, domain.AgingToday, domain.Classify(createdAt, now))

	// 20:00 UTC on the 12th is still the 12th in MSK.
	createdAt = time.Date(2024, time.March, 12, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, domain.AgingYesterday, domain.Classify(createdAt, now))
}

func TestClassifyString(t *testing.T) {
	now := time.Date(2024, time.March, 13, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  domain.AgingCategory
	}{
		{"rfc3339", "2024-03-13T09:00:00Z", domain.AgingToday},
		{"with offset", "2024-03-12T10:00:00+03:00", domain.AgingYesterday},
		{"date only", "2024-03-11", domain.AgingThisWeek},
		{"empty", "", domain.AgingMoreThanYear},
		{"garbage", "not a date", domain.AgingMoreThanYear},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.ClassifyString(tt.value, now))
		})
	}
}

func TestClassifyPtr_Nil(t *testing.T) {
	assert.Equal(t, domain.AgingMoreThanYear, domain.ClassifyPtr(nil, time.Now()))
}

func TestAgingCategory_Ordinals(t *testing.T) {
	assert.Len(t, domain.AgingCategories, 9)
	for i, category := range domain.AgingCategories {
		assert.Equal(t, i, category.Ordinal())
		assert.NotEqual(t, string(category), category.Label())
	}
	assert.Equal(t, -1, domain.AgingCategory("someday").Ordinal())
}

func TestParseAgingCategory(t *testing.T) {
	category, ok := domain.ParseAgingCategory("last_week")
	assert.True(t, ok)
	assert.Equal(t, domain.AgingLastWeek, category)

	_, ok = domain.ParseAgingCategory("LAST_WEEK")
	assert.False(t, ok)
}
