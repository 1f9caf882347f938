// Package validation checks API request bodies with go-playground/validator
// and reports failures as validation AppErrors.
package validation

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"contact-sync/internal/common/errors"
	"contact-sync/internal/models"
)

// Validator wraps a configured validator.Validate.
type Validator struct {
	validator *validator.Validate
}

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

func New() *Validator {
	v := validator.New()
	registerValidators(v)

	// Report JSON names rather than Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{validator: v}
}

// Struct validates s. The returned AppError lists every failed field in
// its "fields" context entry.
func (v *Validator) Struct(s interface{}) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}
	fields := fieldErrors(err)
	messages := make([]string, len(fields))
	for i, f := range fields {
		messages[i] = f.Message
	}
	msg := messages[0]
	if len(messages) > 1 {
		msg = "validation failed: " + strings.Join(messages, "; ")
	}
	return errors.ValidationError(msg).WithContext("fields", fields)
}

// Var validates a single value against tag.
func (v *Validator) Var(field interface{}, tag string) error {
	if err := v.validator.Var(field, tag); err != nil {
		return errors.ValidationError(fieldErrors(err)[0].Message)
	}
	return nil
}

func fieldErrors(err error) []FieldError {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "unknown", Tag: "error", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: message(fe),
			Param:   fe.Param(),
		})
	}
	return out
}

func message(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", err.Field())
	case "email":
		return fmt.Sprintf("field '%s' must be a valid email address", err.Field())
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s", err.Field(), err.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", err.Field(), err.Param())
	case "nefield":
		return fmt.Sprintf("field '%s' must differ from '%s'", err.Field(), err.Param())
	case "server_url":
		return fmt.Sprintf("field '%s' must be an absolute http or https URL", err.Field())
	case "import_mode":
		return fmt.Sprintf("field '%s' must be '%s' or '%s'", err.Field(), models.ImportModeManual, models.ImportModeAuto)
	case "resolution":
		return fmt.Sprintf("field '%s' must be keep_local, keep_remote or merged", err.Field())
	case "duration":
		return fmt.Sprintf("field '%s' must be a valid duration", err.Field())
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", err.Field(), err.Tag())
	}
}

func registerValidators(v *validator.Validate) {
	v.RegisterValidation("server_url", func(fl validator.FieldLevel) bool {
		u, err := url.Parse(fl.Field().String())
		if err != nil || u.Host == "" {
			return false
		}
		return u.Scheme == "http" || u.Scheme == "https"
	})

	v.RegisterValidation("import_mode", func(fl validator.FieldLevel) bool {
		mode := fl.Field().String()
		return mode == models.ImportModeManual || mode == models.ImportModeAuto
	})

	v.RegisterValidation("resolution", func(fl validator.FieldLevel) bool {
		return models.ValidResolution(fl.Field().String())
	})

	// Non-negative Go duration strings such as "1h30m".
	v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d >= 0
	})
}

var global = New()

// ValidateStruct validates s with the shared validator.
func ValidateStruct(s interface{}) error {
	return global.Struct(s)
}

// ValidateVar validates one value with the shared validator.
func ValidateVar(field interface{}, tag string) error {
	return global.Var(field, tag)
}
