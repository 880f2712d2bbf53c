package dto

import "github.com/foodforall-dc/delivery-api/internal/models"

// CapacityMode selects what a capacity write changes.
type CapacityMode string

const (
	CapacityModeDateOverride   CapacityMode = "DATE_OVERRIDE"
	CapacityModeWeekdayDefault CapacityMode = "WEEKDAY_DEFAULT"
)

// LimitRequest carries a single limit value.
type LimitRequest struct {
	Limit *int `json:"limit" validate:"required,min=0"`
}

// BulkOverrideRequest applies one limit to several dates.
type BulkOverrideRequest struct {
	Dates []string `json:"dates" validate:"required,min=1,dive,required"`
	Limit *int     `json:"limit" validate:"required,min=0"`
}

// RewriteWeekdayDefaultsRequest rewrites the weekday default of every weekday covered by Dates.
// Confirm must be true for the write to happen.
type RewriteWeekdayDefaultsRequest struct {
	Dates   []string `json:"dates" validate:"required,min=1,dive,required"`
	Limit   *int     `json:"limit" validate:"required,min=0"`
	Confirm bool     `json:"confirm"`
}

// SetCapacityRequest is the combined capacity write contract. DATE_OVERRIDE uses Date or Dates.
// WEEKDAY_DEFAULT uses Weekday, or Dates together with Confirm.
type SetCapacityRequest struct {
	Mode    CapacityMode `json:"mode" validate:"required,oneof=DATE_OVERRIDE WEEKDAY_DEFAULT"`
	Date    string       `json:"date"`
	Dates   []string     `json:"dates" validate:"omitempty,dive,required"`
	Weekday string       `json:"weekday"`
	Limit   *int         `json:"limit" validate:"required,min=0"`
	Confirm bool         `json:"confirm"`
}

// CapacityWriteResult describes an applied capacity write.
type CapacityWriteResult struct {
	Mode     CapacityMode         `json:"mode"`
	Limit    int                  `json:"limit"`
	Dates    []string             `json:"dates,omitempty"`
	Weekdays []string             `json:"weekdays,omitempty"`
	Weekly   *models.WeeklyLimits `json:"weekly,omitempty"`
}
