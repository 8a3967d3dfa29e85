// Package validation wraps go-playground/validator with the custom tags used by the
// trip, vehicle and route models:
//
//	objectid  non-zero Mongo ObjectID
//	clock     HH:MM 24-hour time string
//	weekday   Monday..Sunday
//
// Failures are returned as apperr validation errors.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-commute/internal/apperr"
	"github.com/ukydev/fleet-commute/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		mustRegister("objectid", func(fl validator.FieldLevel) bool {
			id, ok := fl.Field().Interface().(primitive.ObjectID)
			return ok && !id.IsZero()
		})
		mustRegister("clock", func(fl validator.FieldLevel) bool {
			return clockPattern.MatchString(fl.Field().String())
		})
		mustRegister("weekday", func(fl validator.FieldLevel) bool {
			return models.Weekday(fl.Field().String()).IsValid()
		})
	})
	return validate
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

// Struct validates s and returns an apperr validation error describing every failed field.
func Struct(s interface{}) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Validation("%v", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return apperr.Validation("%s", strings.Join(msgs, "; "))
}

// Clock reports whether s is an HH:MM time string.
func Clock(s string) bool {
	return clockPattern.MatchString(s)
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "objectid":
		return fmt.Sprintf("%s must be a valid id", field)
	case "clock":
		return fmt.Sprintf("%s must be HH:MM", field)
	case "weekday":
		return fmt.Sprintf("%s must be a day of the week", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "latitude", "longitude":
		return fmt.Sprintf("%s must be a valid %s", field, fe.Tag())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
