// Package validators implements the named regex/length/range presets and
// per-field schema validation.
package validators

import (
	"fmt"
	"regexp"

	validator "gopkg.in/go-playground/validator.v9"

	"github.com/allankoechke/mantis/internal/apperr"
	"github.com/allankoechke/mantis/internal/schema"
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// password preset: at least 8 chars, each a letter, a digit or one of
	// the listed symbols; no particular character class is required.
	passwordRe = regexp.MustCompile(`^[A-Za-z0-9!@#$%^&*()_+\-=.,]{8,}$`)
)

// Instance is the shared validator.v9 instance backing both the `@email`/
// `@password` presets and struct-tag validation (e.g. CLI admin-add input).
var Instance = validator.New()

func init() {
	_ = Instance.RegisterValidation("email_preset", func(fl validator.FieldLevel) bool {
		return emailRe.MatchString(fl.Field().String())
	})
	_ = Instance.RegisterValidation("password_preset", func(fl validator.FieldLevel) bool {
		return passwordRe.MatchString(fl.Field().String())
	})
}

// Preset validates a raw scalar value against one of the named presets
// recognized by the `validator` constraint key (`@email`, `@password`),
// via the custom funcs registered on Instance above.
func Preset(name string, value string) error {
	switch name {
	case "@email":
		if err := Instance.Var(value, "email_preset"); err != nil {
			return apperr.NewInvalidArgument("invalid email format")
		}
	case "@password":
		if err := Instance.Var(value, "password_preset"); err != nil {
			return apperr.NewInvalidArgument("password must be at least 8 characters")
		}
	}
	return nil
}

// Field validates value (already coerced to the field's Go type) against
// f's required/min_value/max_value/validator constraints. value may be
// nil when the field was absent from the record.
func Field(f schema.Field, value any) error {
	if value == nil {
		if f.Required && !f.System {
			return apperr.NewInvalidArgument("%s is required", f.Name)
		}
		return nil
	}

	if preset, ok := f.Validator(); ok {
		if s, ok := value.(string); ok {
			if err := Preset(preset, s); err != nil {
				return err
			}
		}
	}

	switch v := value.(type) {
	case string:
		if min, ok := f.MinValue(); ok && float64(len(v)) < min {
			return apperr.NewInvalidArgument("%s should be at least %d chars long", f.Name, int(min))
		}
		if max, ok := f.MaxValue(); ok && float64(len(v)) > max {
			return apperr.NewInvalidArgument("%s should be at most %d chars long", f.Name, int(max))
		}
	case float64:
		if min, ok := f.MinValue(); ok && v < min {
			return apperr.NewInvalidArgument("%s should be at least %v", f.Name, min)
		}
		if max, ok := f.MaxValue(); ok && v > max {
			return apperr.NewInvalidArgument("%s should be at most %v", f.Name, max)
		}
	}

	return nil
}

// Record validates every field in data against s, returning the first
// violation found. Fields absent from s are expected to already have been
// dropped by the caller.
func Record(s schema.Schema, data map[string]any) error {
	for _, f := range s.Fields {
		if f.System {
			continue
		}
		if err := Field(f, data[f.Name]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateStruct runs the shared validator.v9 instance over s, wrapping
// any failure as an InvalidArgumentError.
func ValidateStruct(s any) error {
	if err := Instance.Struct(s); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return apperr.NewInvalidArgument("%s failed validation: %s", first.Field(), first.Tag())
		}
		return apperr.NewInvalidArgument(fmt.Sprintf("%v", err))
	}
	return nil
}
