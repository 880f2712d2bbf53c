package models

import "time"

// DailyLimit overrides the delivery capacity of one calendar date.
type DailyLimit struct {
	Date      time.Time `db:"date" json:"date"`
	Limit     int       `db:"limit" json:"limit"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// WeeklyLimits is the singleton table of weekday default capacities.
type WeeklyLimits struct {
	Sunday    int       `db:"sunday" json:"sunday"`
	Monday    int       `db:"monday" json:"monday"`
	Tuesday   int       `db:"tuesday" json:"tuesday"`
	Wednesday int       `db:"wednesday" json:"wednesday"`
	Thursday  int       `db:"thursday" json:"thursday"`
	Friday    int       `db:"friday" json:"friday"`
	Saturday  int       `db:"saturday" json:"saturday"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// WeeklyLimitsFromSlots builds the table from Sunday..Saturday slots.
func WeeklyLimitsFromSlots(slots [7]int) WeeklyLimits {
	return WeeklyLimits{
		Sunday:    slots[0],
		Monday:    slots[1],
		Tuesday:   slots[2],
		Wednesday: slots[3],
		Thursday:  slots[4],
		Friday:    slots[5],
		Saturday:  slots[6],
	}
}

// Slots returns the limits indexed by time.Weekday.
func (w WeeklyLimits) Slots() [7]int {
	return [7]int{w.Sunday, w.Monday, w.Tuesday, w.Wednesday, w.Thursday, w.Friday, w.Saturday}
}

// For returns the default limit of a weekday.
func (w WeeklyLimits) For(day time.Weekday) int {
	return w.Slots()[day]
}

// With returns a copy with one weekday slot replaced.
func (w WeeklyLimits) With(day time.Weekday, limit int) WeeklyLimits {
	slots := w.Slots()
	slots[day] = limit
	out := WeeklyLimitsFromSlots(slots)
	out.UpdatedAt = w.UpdatedAt
	return out
}

// CapacityStatus classifies a date's occupancy against its limit.
type CapacityStatus string

const (
	CapacityNormal CapacityStatus = "normal"
	CapacityNear   CapacityStatus = "near"
	CapacityAt     CapacityStatus = "at"
	CapacityOver   CapacityStatus = "over"
)

// CapacitySource tells whether a limit came from an override or the weekday default.
type CapacitySource string

const (
	CapacitySourceOverride CapacitySource = "override"
	CapacitySourceDefault  CapacitySource = "weekday_default"
)

// ResolvedLimit is the effective capacity for one date.
type ResolvedLimit struct {
	Date   time.Time      `json:"date"`
	Limit  int            `json:"limit"`
	Source CapacitySource `json:"source"`
}

// DayCapacity pairs a date's booked deliveries with its resolved limit.
type DayCapacity struct {
	Date   string         `json:"date"`
	Count  int            `json:"count"`
	Limit  int            `json:"limit"`
	Source CapacitySource `json:"source"`
	Status CapacityStatus `json:"status"`
}

// CapacityWarning flags a date whose projected count reaches or exceeds its limit.
type CapacityWarning struct {
	Date           string         `json:"date"`
	ProjectedCount int            `json:"projectedCount"`
	Limit          int            `json:"limit"`
	Status         CapacityStatus `json:"status"`
	Message        string         `json:"message"`
}

// CapacityChangeKind enumerates capacity change notifications.
type CapacityChangeKind string

const (
	CapacityChangeOverride CapacityChangeKind = "OVERRIDE"
	CapacityChangeWeekly   CapacityChangeKind = "WEEKLY_DEFAULT"
	CapacityChangeResync   CapacityChangeKind = "RESYNC"
)

// CapacityChange is pushed to subscribers whenever a capacity document changes.
type CapacityChange struct {
	Kind   CapacityChangeKind `json:"kind"`
	Dates  []string           `json:"dates,omitempty"`
	Limit  *int               `json:"limit,omitempty"`
	Weekly *WeeklyLimits      `json:"weekly,omitempty"`
	Origin string             `json:"origin"`
	At     time.Time          `json:"at"`
}
