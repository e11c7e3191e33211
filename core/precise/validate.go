package precise

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/kilianp07/kioskpower/core/model"
)

// ErrInvalidTime is returned when a submitted time is missing or not HH:MM.
var ErrInvalidTime = errors.New("times must be given as HH:MM")

type timeInput struct {
	OnTime  string `validate:"required,hhmm"`
	OffTime string `validate:"required,hhmm"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return model.ValidClock(fl.Field().String())
	})
	return v
}

func validateTimes(on, off string) error {
	err := validate.Struct(timeInput{OnTime: on, OffTime: off})
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("%s: %w", verrs[0].Field(), ErrInvalidTime)
	}
	return fmt.Errorf("%v: %w", err, ErrInvalidTime)
}
