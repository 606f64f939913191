package utils

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used for numbers written without an international prefix.
var DefaultPhoneRegion = "US"

var signupRoles = map[string]struct{}{
	"patient":   {},
	"caretaker": {},
	"doctor":    {},
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is the client-facing shape of a single validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator returns the shared validator with the project's custom tags registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		_ = v.RegisterValidation("hhmm", validateHHMM)
		_ = v.RegisterValidation("weekday", validateWeekday)
		_ = v.RegisterValidation("user_role", validateUserRole)
		_ = v.RegisterValidation("phone", validatePhone)
		_ = v.RegisterValidation("quarter_step", validateQuarterStep)

		validate = v
	})
	return validate
}

func ValidateStruct(s interface{}) error {
	return Validator().Struct(s)
}

// ValidationDetails flattens validator errors into FieldErrors. Returns nil for other errors.
func ValidationDetails(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{
			Field:   fieldPath(fe),
			Message: describe(fe),
		})
	}
	return details
}

// IsHHMM reports whether s is a 24h "HH:MM" clock time.
func IsHHMM(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil && len(s) == 5
}

func validateHHMM(fl validator.FieldLevel) bool {
	return IsHHMM(fl.Field().String())
}

func validateWeekday(fl validator.FieldLevel) bool {
	d := fl.Field().Int()
	return d >= 1 && d <= 7
}

func validateUserRole(fl validator.FieldLevel) bool {
	_, ok := signupRoles[fl.Field().String()]
	return ok
}

func validatePhone(fl validator.FieldLevel) bool {
	raw := strings.TrimSpace(fl.Field().String())
	if raw == "" {
		return false
	}
	num, err := phonenumbers.Parse(raw, DefaultPhoneRegion)
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(num)
}

func validateQuarterStep(fl validator.FieldLevel) bool {
	v := fl.Field().Float()
	return math.Abs(v*4-math.Round(v*4)) < 1e-9
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "hhmm":
		return "must be a time in HH:MM format"
	case "weekday":
		return "must be a weekday between 1 (Monday) and 7 (Sunday)"
	case "user_role":
		return "must be one of: patient caretaker doctor"
	case "phone":
		return "must be a valid phone number"
	case "quarter_step":
		return "must be a multiple of 0.25"
	case "gtfield":
		return fmt.Sprintf("must be after %s", fe.Param())
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}
