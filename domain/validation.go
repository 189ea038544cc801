package domain

import (
	"errors"
	apperrors "eventmaster/errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("trimmed_min", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= n
	})
	return v
}

// ValidateStruct checks the struct tags of a draft or patch and translates
// failures into a *errors.ValidationError.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	fields := make([]apperrors.FieldError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, apperrors.FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: message(fe),
		})
	}
	return apperrors.NewValidationError(fields...)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "trimmed_min":
		return fmt.Sprintf("must have at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have at most %s characters", fe.Param())
	case "datetime":
		switch fe.Param() {
		case DateLayout:
			return "must be a date formatted YYYY-MM-DD"
		case TimeLayout:
			return "must be a time formatted HH:MM"
		}
		return "has an invalid format"
	case "gte", "lte":
		return fmt.Sprintf("is out of range (%s %s)", fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("failed rule %s", fe.Tag())
	}
}

// CheckSchedule rejects a date before today, and a time not strictly after
// now when the date is today. now carries the location the user lives in.
func CheckSchedule(fecha, hora string, now time.Time) []apperrors.FieldError {
	loc := now.Location()
	day, err := time.ParseInLocation(DateLayout, fecha, loc)
	if err != nil {
		return nil
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	switch {
	case day.Before(today):
		return []apperrors.FieldError{{Field: "fecha", Rule: "not_past", Message: "cannot be in the past"}}
	case day.Equal(today):
		at, err := time.ParseInLocation(DateLayout+" "+TimeLayout, fecha+" "+hora, loc)
		if err != nil {
			return nil
		}
		if !at.After(now) {
			return []apperrors.FieldError{{Field: "hora", Rule: "after_now", Message: "must be later than the current time"}}
		}
	}
	return nil
}
