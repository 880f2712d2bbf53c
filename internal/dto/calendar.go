package dto

import (
	"time"

	"github.com/foodforall-dc/delivery-api/internal/models"
)

// CalendarGranularity selects the calendar view size.
type CalendarGranularity string

const (
	CalendarDay   CalendarGranularity = "DAY"
	CalendarMonth CalendarGranularity = "MONTH"
)

// CalendarQuery mirrors the supported calendar filters.
type CalendarQuery struct {
	Start    string `form:"start"`
	View     string `form:"view"`
	ClientID string `form:"clientId"`
	DriverID string `form:"driverId"`
}

// CalendarView is the read model consumed by calendar renderers.
type CalendarView struct {
	Granularity CalendarGranularity    `json:"granularity"`
	From        string                 `json:"from"`
	To          string                 `json:"to"`
	Events      []models.DeliveryEvent `json:"events"`
	Days        []models.DayCapacity   `json:"days"`
	GeneratedAt time.Time              `json:"generatedAt"`
}
