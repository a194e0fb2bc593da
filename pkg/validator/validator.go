// Package validator registers the request validation tags used by the API on
// a go-playground validator and renders its errors as client messages.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
	"github.com/jwalitptl/therapy-scheduler/internal/timewindow"
)

const (
	TagAppointmentStatus = "appointment_status"
	TagGroupBy           = "group_by"
	TagTimeFilter        = "time_filter"
)

var messages = map[string]string{
	"required":           "is required",
	"gt":                 "must be greater than %s",
	"gte":                "must be at least %s",
	"lte":                "must be at most %s",
	"max":                "must be at most %s characters",
	"uuid":               "must be a valid UUID",
	TagAppointmentStatus: "must be one of pending, confirmed, completed, cancelled",
	TagGroupBy:           "must be either doctor or branch",
	TagTimeFilter:        "must be one of thisWeek, lastWeek, thisMonth, lastMonth",
}

// Register adds the custom tags and reports field names by their json or
// form tag.
func Register(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return fld.Name
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	custom := map[string]validator.Func{
		TagAppointmentStatus: validateAppointmentStatus,
		TagGroupBy:           validateGroupBy,
		TagTimeFilter:        validateTimeFilter,
	}
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s: %w", tag, err)
		}
	}
	return nil
}

func fieldString(fl validator.FieldLevel) (string, bool) {
	field := fl.Field()
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return "", false
		}
		field = field.Elem()
	}
	if field.Kind() != reflect.String {
		return "", false
	}
	return field.String(), true
}

func validateAppointmentStatus(fl validator.FieldLevel) bool {
	s, ok := fieldString(fl)
	if !ok {
		return true
	}
	return model.AppointmentStatus(strings.ToLower(strings.TrimSpace(s))).Valid()
}

func validateGroupBy(fl validator.FieldLevel) bool {
	s, ok := fieldString(fl)
	if !ok {
		return true
	}
	return s == model.GroupByDoctor || s == model.GroupByBranch
}

func validateTimeFilter(fl validator.FieldLevel) bool {
	s, ok := fieldString(fl)
	if !ok {
		return true
	}
	for _, name := range timewindow.Names {
		if s == name {
			return true
		}
	}
	return false
}

// Message renders validation errors as "field message; field message". Other
// errors, such as malformed JSON, are returned by their own text.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := messages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		if strings.Contains(msg, "%s") {
			msg = fmt.Sprintf(msg, fe.Param())
		}
		parts = append(parts, fe.Field()+" "+msg)
	}
	return strings.Join(parts, "; ")
}
