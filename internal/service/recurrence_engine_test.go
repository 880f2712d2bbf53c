package service

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodforall-dc/delivery-api/internal/models"
	"github.com/foodforall-dc/delivery-api/pkg/dates"
	appErrors "github.com/foodforall-dc/delivery-api/pkg/errors"
)

func datePtr(year int, month time.Month, day int) *time.Time {
	d := dates.Date(year, month, day)
	return &d
}

func TestExpandWeeklyScenario(t *testing.T) {
	engine := NewRecurrenceEngine(0)
	got, err := engine.Expand(RecurrenceRule{
		StartDate: dates.Date(2025, time.January, 6),
		Kind:      models.RecurrenceWeekly,
		EndDate:   datePtr(2025, time.January, 27),
	})
	require.NoError(t, err)

	want := []time.Time{
		dates.Date(2025, time.January, 6),
		dates.Date(2025, time.January, 13),
		dates.Date(2025, time.January, 20),
		dates.Date(2025, time.January, 27),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("weekly expansion mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandFixedStepCountLaw(t *testing.T) {
	engine := NewRecurrenceEngine(0)
	start := dates.Date(2024, time.December, 30)
	for _, tc := range []struct {
		kind models.RecurrenceKind
		step int
	}{{models.RecurrenceWeekly, 7}, {models.RecurrenceBiweekly, 14}} {
		for span := 0; span <= 120; span += 5 {
			end := dates.AddDays(start, span)
			got, err := engine.Expand(RecurrenceRule{StartDate: start, Kind: tc.kind, EndDate: &end})
			require.NoError(t, err)
			require.Len(t, got, span/tc.step+1, "%s span %d", tc.kind, span)
			for i, d := range got {
				assert.Equal(t, dates.AddDays(start, i*tc.step), d)
			}
			assert.False(t, got[len(got)-1].After(end))
		}
	}
}

func TestExpandMonthlySecondTuesday(t *testing.T) {
	engine := NewRecurrenceEngine(0)
	got, err := engine.Expand(RecurrenceRule{
		StartDate: dates.Date(2025, time.January, 14),
		Kind:      models.RecurrenceMonthly,
		EndDate:   datePtr(2025, time.April, 14),
	})
	require.NoError(t, err)

	want := []time.Time{
		dates.Date(2025, time.January, 14),
		dates.Date(2025, time.February, 11),
		dates.Date(2025, time.March, 11),
		dates.Date(2025, time.April, 8),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("monthly expansion mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandMonthlyFifthOccurrenceUsesLastWeekday(t *testing.T) {
	engine := NewRecurrenceEngine(0)
	got, err := engine.Expand(RecurrenceRule{
		StartDate: dates.Date(2025, time.January, 31),
		Kind:      models.RecurrenceMonthly,
		EndDate:   datePtr(2025, time.April, 30),
	})
	require.NoError(t, err)

	want := []time.Time{
		dates.Date(2025, time.January, 31),
		dates.Date(2025, time.February, 28),
		dates.Date(2025, time.March, 28),
		dates.Date(2025, time.April, 25),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("5th occurrence mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandMonthlyNeverSkipsAMonth(t *testing.T) {
	engine := NewRecurrenceEngine(0)
	for _, year := range []int{2024, 2025} {
		for day := 1; day <= 31; day++ {
			start := dates.Date(year, time.January, day)
			end := dates.Date(year, time.December, 31)
			got, err := engine.Expand(RecurrenceRule{StartDate: start, Kind: models.RecurrenceMonthly, EndDate: &end})
			require.NoError(t, err)
			require.Len(t, got, 12, "start %s", dates.Format(start))

			for i, d := range got {
				assert.Equal(t, time.Month(i+1), d.Month(), "start %s", dates.Format(start))
				assert.Equal(t, start.Weekday(), d.Weekday())
				if n := dates.WeekOfMonth(start); n <= 4 {
					assert.Equal(t, n, dates.WeekOfMonth(d))
				} else {
					assert.Greater(t, d.Day()+7, dates.DaysInMonth(d), "expected last %s of %s", d.Weekday(), d.Month())
				}
			}
		}
	}
}

func TestExpandIsDeterministic(t *testing.T) {
	engine := NewRecurrenceEngine(0)
	rule := RecurrenceRule{StartDate: dates.Date(2025, time.March, 29), Kind: models.RecurrenceMonthly, EndDate: datePtr(2026, time.March, 1)}
	first, err := engine.Expand(rule)
	require.NoError(t, err)
	second, err := engine.Expand(rule)
	require.NoError(t, err)
	assert.True(t, cmp.Equal(first, second))
}

func TestExpandNoneAndCustom(t *testing.T) {
	engine := NewRecurrenceEngine(0)
	start := dates.Date(2025, time.May, 2)

	got, err := engine.Expand(RecurrenceRule{StartDate: start, Kind: models.RecurrenceNone, EndDate: datePtr(2025, time.December, 1)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{start}, got)

	custom := []time.Time{dates.Date(2025, time.May, 20), time.Date(2025, time.May, 9, 14, 30, 0, 0, time.UTC)}
	got, err = engine.Expand(RecurrenceRule{StartDate: start, Kind: models.RecurrenceCustom, CustomDates: custom})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{dates.Date(2025, time.May, 20), dates.Date(2025, time.May, 9)}, got)
}

func TestExpandValidation(t *testing.T) {
	engine := NewRecurrenceEngine(3)
	start := dates.Date(2025, time.January, 6)

	cases := map[string]struct {
		rule  RecurrenceRule
		field string
	}{
		"missing end date":   {RecurrenceRule{StartDate: start, Kind: models.RecurrenceWeekly}, "repeatsEndDate"},
		"end before start":   {RecurrenceRule{StartDate: start, Kind: models.RecurrenceMonthly, EndDate: datePtr(2025, time.January, 1)}, "repeatsEndDate"},
		"too many dates":     {RecurrenceRule{StartDate: start, Kind: models.RecurrenceWeekly, EndDate: datePtr(2025, time.March, 1)}, "repeatsEndDate"},
		"missing start":      {RecurrenceRule{Kind: models.RecurrenceNone}, "startDate"},
		"empty custom dates": {RecurrenceRule{StartDate: start, Kind: models.RecurrenceCustom}, "customDates"},
		"unknown kind":       {RecurrenceRule{StartDate: start, Kind: "Yearly"}, "recurrence"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := engine.Expand(tc.rule)
			require.Error(t, err)
			var appErr *appErrors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
			assert.Contains(t, appErr.Fields, tc.field)
		})
	}
}

func TestPatternLabel(t *testing.T) {
	assert.Equal(t, "Every Monday", PatternLabel(models.RecurrenceWeekly, dates.Date(2025, time.January, 6)))
	assert.Equal(t, "Every other Monday", PatternLabel(models.RecurrenceBiweekly, dates.Date(2025, time.January, 6)))
	assert.Equal(t, "2nd Tuesday", PatternLabel(models.RecurrenceMonthly, dates.Date(2025, time.January, 14)))
	assert.Equal(t, "Last Friday", PatternLabel(models.RecurrenceMonthly, dates.Date(2025, time.January, 31)))
	assert.Equal(t, "One time", PatternLabel(models.RecurrenceNone, dates.Date(2025, time.January, 31)))
}

func TestExpandFromAnchorKeepsPattern(t *testing.T) {
	engine := NewRecurrenceEngine(0)
	got, err := engine.Expand(RecurrenceRule{
		StartDate: dates.Date(2025, time.February, 26),
		Kind:      models.RecurrenceMonthly,
		EndDate:   datePtr(2025, time.June, 30),
		Anchor:    dates.Date(2025, time.January, 29),
	})
	require.NoError(t, err)

	want := []time.Time{
		dates.Date(2025, time.February, 26),
		dates.Date(2025, time.March, 26),
		dates.Date(2025, time.April, 30),
		dates.Date(2025, time.May, 28),
		dates.Date(2025, time.June, 25),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("anchored expansion mismatch (-want +got):\n%s", diff)
	}

	// Without the anchor 02-26 reads as a 4th Wednesday.
	got, err = engine.Expand(RecurrenceRule{StartDate: dates.Date(2025, time.February, 26), Kind: models.RecurrenceMonthly, EndDate: datePtr(2025, time.June, 30)})
	require.NoError(t, err)
	assert.Equal(t, dates.Date(2025, time.April, 23), got[2])
}

func TestExpandAppliesExcludedAndIncludedDates(t *testing.T) {
	engine := NewRecurrenceEngine(0)
	got, err := engine.Expand(RecurrenceRule{
		StartDate: dates.Date(2025, time.January, 6),
		Kind:      models.RecurrenceWeekly,
		EndDate:   datePtr(2025, time.January, 27),
		Exclude:   []time.Time{dates.Date(2025, time.January, 13), dates.Date(2025, time.January, 20)},
		Include:   []time.Time{dates.Date(2025, time.January, 15), dates.Date(2025, time.January, 29), dates.Date(2025, time.January, 2)},
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		dates.Date(2025, time.January, 6),
		dates.Date(2025, time.January, 15),
		dates.Date(2025, time.January, 27),
		dates.Date(2025, time.January, 29),
	}, got)
}
