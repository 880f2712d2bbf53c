package service

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/foodforall-dc/delivery-api/internal/models"
	"github.com/foodforall-dc/delivery-api/pkg/dates"
	appErrors "github.com/foodforall-dc/delivery-api/pkg/errors"
)

const defaultMaxOccurrences = 1000

var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// RecurrenceRule describes how a series repeats.
//
// Anchor fixes the pattern of a generated kind when it differs from StartDate: the weekday, the
// week of month and the step are taken from the anchor and only dates after StartDate are kept.
// Exclude removes pattern dates and Include adds dates outside the pattern; both only apply after
// StartDate.
type RecurrenceRule struct {
	StartDate   time.Time
	Kind        models.RecurrenceKind
	EndDate     *time.Time
	CustomDates []time.Time
	Anchor      time.Time
	Exclude     []time.Time
	Include     []time.Time
}

// RecurrenceEngine expands recurrence rules into concrete delivery dates.
type RecurrenceEngine struct {
	maxOccurrences int
}

// NewRecurrenceEngine builds an engine that refuses to generate more than maxOccurrences dates.
func NewRecurrenceEngine(maxOccurrences int) *RecurrenceEngine {
	if maxOccurrences <= 0 {
		maxOccurrences = defaultMaxOccurrences
	}
	return &RecurrenceEngine{maxOccurrences: maxOccurrences}
}

// Expand returns the occurrence dates of rule in ascending order. Generated kinds always start with
// the start date and stop at the last pattern date on or before the end date; included dates are
// kept even past it. Custom rules return the supplied dates as given.
func (e *RecurrenceEngine) Expand(rule RecurrenceRule) ([]time.Time, error) {
	if rule.StartDate.IsZero() {
		return nil, appErrors.Validation("start date is required", map[string]string{"startDate": "required"})
	}
	start := dates.Normalize(rule.StartDate)

	switch rule.Kind {
	case models.RecurrenceNone, "":
		return []time.Time{start}, nil
	case models.RecurrenceCustom:
		if len(rule.CustomDates) == 0 {
			return nil, appErrors.Validation("custom recurrence needs at least one date", map[string]string{"customDates": "required"})
		}
		if len(rule.CustomDates) > e.maxOccurrences {
			return nil, e.tooMany()
		}
		out := make([]time.Time, len(rule.CustomDates))
		for i, d := range rule.CustomDates {
			out[i] = dates.Normalize(d)
		}
		return out, nil
	case models.RecurrenceWeekly, models.RecurrenceBiweekly, models.RecurrenceMonthly:
	default:
		return nil, appErrors.Validation("unsupported recurrence", map[string]string{"recurrence": fmt.Sprintf("unknown kind %q", rule.Kind)})
	}

	if rule.EndDate == nil || rule.EndDate.IsZero() {
		return nil, appErrors.Validation("repeats end date is required",
			map[string]string{"repeatsEndDate": fmt.Sprintf("required for %s recurrence", rule.Kind)})
	}
	end := dates.Normalize(*rule.EndDate)
	if end.Before(start) {
		return nil, appErrors.Validation("repeats end date is before the start date",
			map[string]string{"repeatsEndDate": "must be on or after startDate"})
	}

	anchor := start
	if !rule.Anchor.IsZero() && !dates.Normalize(rule.Anchor).After(start) {
		anchor = dates.Normalize(rule.Anchor)
	}
	r, err := rrule.NewRRule(e.option(rule.Kind, anchor, end))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build recurrence rule")
	}
	set := &rrule.Set{}
	set.RRule(r)
	for _, d := range rule.Include {
		set.RDate(dates.Normalize(d))
	}
	for _, d := range rule.Exclude {
		set.ExDate(dates.Normalize(d))
	}

	out := []time.Time{start}
	next := set.Iterator()
	for {
		occurrence, ok := next()
		if !ok {
			break
		}
		occurrence = dates.Normalize(occurrence)
		if !occurrence.After(start) {
			continue
		}
		if len(out) == e.maxOccurrences {
			return nil, e.tooMany()
		}
		out = append(out, occurrence)
	}
	return out, nil
}

// option maps a generated kind onto an RRULE. Weekly and 2x-Monthly are fixed 7 and 14 day steps.
// Monthly keeps the ordinal weekday of the anchor and falls back to the last such weekday
// (BYDAY=-1XX) when the anchor is a 5th occurrence.
func (e *RecurrenceEngine) option(kind models.RecurrenceKind, anchor, end time.Time) rrule.ROption {
	opt := rrule.ROption{Dtstart: anchor, Until: end}
	switch kind {
	case models.RecurrenceWeekly:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 1
	case models.RecurrenceBiweekly:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 2
	case models.RecurrenceMonthly:
		weekday := rruleWeekdays[anchor.Weekday()]
		opt.Freq = rrule.MONTHLY
		opt.Interval = 1
		opt.Byweekday = []rrule.Weekday{weekday.Nth(monthlyOrdinal(anchor))}
	}
	return opt
}

func (e *RecurrenceEngine) tooMany() *appErrors.Error {
	return appErrors.Validation("recurrence generates too many occurrences",
		map[string]string{"repeatsEndDate": fmt.Sprintf("at most %d occurrences per series", e.maxOccurrences)})
}

// monthlyOrdinal is the BYDAY ordinal for start: its week of month, or -1 for a 5th occurrence.
func monthlyOrdinal(start time.Time) int {
	n := dates.WeekOfMonth(start)
	if n > 4 {
		return -1
	}
	return n
}

// PatternLabel describes a recurrence for display, e.g. "Every Monday" or "2nd Tuesday".
func PatternLabel(kind models.RecurrenceKind, start time.Time) string {
	weekday := start.Weekday().String()
	switch kind {
	case models.RecurrenceWeekly:
		return "Every " + weekday
	case models.RecurrenceBiweekly:
		return "Every other " + weekday
	case models.RecurrenceMonthly:
		if n := monthlyOrdinal(start); n > 0 {
			return dates.Ordinal(n) + " " + weekday
		}
		return "Last " + weekday
	case models.RecurrenceCustom:
		return "Custom dates"
	default:
		return "One time"
	}
}
