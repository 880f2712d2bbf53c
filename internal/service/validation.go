package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/foodforall-dc/delivery-api/pkg/dates"
	appErrors "github.com/foodforall-dc/delivery-api/pkg/errors"
)

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// validationError converts validator failures into a VALIDATION_ERROR with per-field messages.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describeRule(fe)
	}
	return appErrors.Validation("invalid payload", fields)
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min":
		return "must be >= " + fe.Param()
	case "max":
		return "must be <= " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}

func parseDate(field, raw string) (time.Time, error) {
	d, err := dates.Parse(raw)
	if err != nil {
		return time.Time{}, appErrors.Validation("invalid date", map[string]string{field: err.Error()})
	}
	return d, nil
}

func parseOptionalDate(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := parseDate(field, raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseDateList(field string, raw []string) ([]time.Time, error) {
	if len(raw) == 0 {
		return nil, appErrors.Validation("at least one date is required", map[string]string{field: "required"})
	}
	out := make([]time.Time, 0, len(raw))
	for i, value := range raw {
		d, err := dates.Parse(value)
		if err != nil {
			return nil, appErrors.Validation("invalid date", map[string]string{fmt.Sprintf("%s[%d]", field, i): err.Error()})
		}
		out = append(out, d)
	}
	return out, nil
}
