package dto

import "github.com/foodforall-dc/delivery-api/internal/models"

// CreateSeriesRequest describes a new delivery series.
type CreateSeriesRequest struct {
	ClientID           string   `json:"clientId" validate:"required"`
	ClientName         string   `json:"clientName" validate:"required"`
	AssignedDriverID   *string  `json:"assignedDriverId"`
	AssignedDriverName *string  `json:"assignedDriverName"`
	StartDate          string   `json:"startDate" validate:"required"`
	Recurrence         string   `json:"recurrence"`
	RepeatsEndDate     string   `json:"repeatsEndDate"`
	CustomDates        []string `json:"customDates" validate:"omitempty,dive,required"`
	Time               string   `json:"time" validate:"max=32"`
	Cluster            int      `json:"cluster" validate:"min=0"`
}

// EditSeriesRequest updates an event, and with the FOLLOWING scope the rest of its series.
// DeliveryDate is the new date of the targeted event and, for FOLLOWING, the new series start.
// Empty recurrence fields keep the series' current values.
type EditSeriesRequest struct {
	DeliveryDate       string   `json:"deliveryDate" validate:"required"`
	Recurrence         string   `json:"recurrence"`
	RepeatsEndDate     string   `json:"repeatsEndDate"`
	CustomDates        []string `json:"customDates" validate:"omitempty,dive,required"`
	Time               *string  `json:"time" validate:"omitempty,max=32"`
	Cluster            *int     `json:"cluster" validate:"omitempty,min=0"`
	AssignedDriverID   *string  `json:"assignedDriverId"`
	AssignedDriverName *string  `json:"assignedDriverName"`
	ExpectedVersion    int      `json:"expectedVersion" validate:"min=0"`
}

// MutationStatus summarises the outcome of a series mutation.
type MutationStatus string

const (
	MutationCompleted MutationStatus = "COMPLETED"
	MutationPartial   MutationStatus = "PARTIAL"
	MutationFailed    MutationStatus = "FAILED"
)

// MutationResult reports what a series mutation changed.
type MutationResult struct {
	Status        MutationStatus           `json:"status"`
	Operation     string                   `json:"operation"`
	Scope         models.MutationScope     `json:"scope,omitempty"`
	SeriesID      string                   `json:"seriesId,omitempty"`
	SeriesVersion int                      `json:"seriesVersion,omitempty"`
	Created       []string                 `json:"created"`
	Deleted       int                      `json:"deleted"`
	Skipped       []string                 `json:"skipped,omitempty"`
	Warnings      []models.CapacityWarning `json:"warnings,omitempty"`
	Series        *models.DeliverySeries   `json:"series,omitempty"`
}

// SeriesDetail is a series together with its events.
type SeriesDetail struct {
	Series  models.DeliverySeries  `json:"series"`
	Pattern string                 `json:"pattern"`
	Events  []models.DeliveryEvent `json:"events"`
}
