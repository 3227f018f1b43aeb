package rules

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/availability-engine/internal/availability"
)

// NewValidator returns a validator that reports json field names and knows
// the "clock" (HH:MM) tag.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("clock", isClock)
	return v
}

func isClock(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", fl.Field().String())
	return err == nil
}

// validationError turns the first validator failure into an
// InvalidConfiguration naming the offending field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return availability.Invalid(fe.Field(), "failed %q validation", fe.Tag())
	}
	return availability.Invalid("body", "%v", err)
}
