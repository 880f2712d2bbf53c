package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// RecurrenceKind enumerates how a delivery series repeats.
type RecurrenceKind string

const (
	RecurrenceNone     RecurrenceKind = "None"
	RecurrenceWeekly   RecurrenceKind = "Weekly"
	RecurrenceBiweekly RecurrenceKind = "2x-Monthly"
	RecurrenceMonthly  RecurrenceKind = "Monthly"
	RecurrenceCustom   RecurrenceKind = "Custom"
)

// RecurrenceKinds lists every supported kind in display order.
var RecurrenceKinds = []RecurrenceKind{
	RecurrenceNone, RecurrenceWeekly, RecurrenceBiweekly, RecurrenceMonthly, RecurrenceCustom,
}

// ParseRecurrenceKind matches case-insensitively so "weekly" and "Weekly" are equivalent.
func ParseRecurrenceKind(raw string) (RecurrenceKind, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return RecurrenceNone, true
	}
	for _, kind := range RecurrenceKinds {
		if strings.EqualFold(value, string(kind)) {
			return kind, true
		}
	}
	return "", false
}

// RequiresEndDate reports whether the kind is generated and therefore needs a repeats end date.
func (k RecurrenceKind) RequiresEndDate() bool {
	switch k {
	case RecurrenceWeekly, RecurrenceBiweekly, RecurrenceMonthly:
		return true
	default:
		return false
	}
}

// DeliverySeries groups the delivery events of one client and recurrence kind. An edit that changes
// the pattern part way through splits the series; every part shares the RootID of the first one.
// AnchorDate is the date the pattern is generated from. ExcludedDates and AddedDates record single
// events removed from or moved off that pattern so regeneration keeps them.
type DeliverySeries struct {
	ID             string         `db:"id" json:"id"`
	RootID         string         `db:"root_id" json:"rootId"`
	ClientID       string         `db:"client_id" json:"clientId"`
	ClientName     string         `db:"client_name" json:"clientName"`
	Recurrence     RecurrenceKind `db:"recurrence" json:"recurrence"`
	StartDate      time.Time      `db:"start_date" json:"startDate"`
	AnchorDate     time.Time      `db:"anchor_date" json:"anchorDate"`
	RepeatsEndDate *time.Time     `db:"repeats_end_date" json:"repeatsEndDate,omitempty"`
	CustomDates    pq.StringArray `db:"custom_dates" json:"customDates,omitempty"`
	ExcludedDates  pq.StringArray `db:"excluded_dates" json:"excludedDates,omitempty"`
	AddedDates     pq.StringArray `db:"added_dates" json:"addedDates,omitempty"`
	Version        int            `db:"version" json:"version"`
	CreatedAt      time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updatedAt"`
}

// DeliveryEvent is one concrete, dated delivery obligation.
type DeliveryEvent struct {
	ID                 string         `db:"id" json:"id"`
	SeriesID           string         `db:"series_id" json:"seriesId"`
	ClientID           string         `db:"client_id" json:"clientId"`
	ClientName         string         `db:"client_name" json:"clientName"`
	AssignedDriverID   *string        `db:"assigned_driver_id" json:"assignedDriverId,omitempty"`
	AssignedDriverName *string        `db:"assigned_driver_name" json:"assignedDriverName,omitempty"`
	DeliveryDate       time.Time      `db:"delivery_date" json:"deliveryDate"`
	Recurrence         RecurrenceKind `db:"recurrence" json:"recurrence"`
	RepeatsEndDate     *time.Time     `db:"repeats_end_date" json:"repeatsEndDate,omitempty"`
	Time               string         `db:"time" json:"time"`
	Cluster            int            `db:"cluster" json:"cluster"`
	CreatedAt          time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updatedAt"`
}

// DeliveryEventFilter narrows event range queries.
type DeliveryEventFilter struct {
	From     time.Time
	To       time.Time
	ClientID string
	DriverID string
}

// MutationScope selects how far an edit or delete propagates across a series.
type MutationScope string

const (
	ScopeThis      MutationScope = "THIS"
	ScopeFollowing MutationScope = "FOLLOWING"
	ScopeAll       MutationScope = "ALL"
)

// ParseMutationScope accepts "this", "following" or "all" in any case. Empty input means THIS.
func ParseMutationScope(raw string) (MutationScope, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", string(ScopeThis):
		return ScopeThis, true
	case string(ScopeFollowing):
		return ScopeFollowing, true
	case string(ScopeAll):
		return ScopeAll, true
	default:
		return "", false
	}
}
