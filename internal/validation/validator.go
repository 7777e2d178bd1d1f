// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

// Package validation wraps go-playground/validator with the error shape used
// by the HTTP API and the configuration loader.
//
//	type listQuery struct {
//	    Type  string `validate:"omitempty,oneof=hot history all"`
//	    Limit int    `validate:"min=0,max=100"`
//	}
//
//	if verr := validation.ValidateStruct(q); verr != nil {
//	    return verr
//	}
//
// Custom tags:
//
//   - tagcolor: the value is a member of the closed tag color set
//   - duration_min: a time.Duration field is at least the given duration,
//     e.g. `validate:"duration_min=1s"`
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/intelstream/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError describes one failed field.
type ValidationError struct {
	field   string
	tag     string
	param   string
	value   interface{}
	message string
}

// Field returns the failing field name, as seen by clients.
func (e *ValidationError) Field() string { return e.field }

// Tag returns the validation tag that failed.
func (e *ValidationError) Tag() string { return e.tag }

// Param returns the tag parameter, if any.
func (e *ValidationError) Param() string { return e.param }

// Value returns the rejected value.
func (e *ValidationError) Value() interface{} { return e.value }

func (e *ValidationError) Error() string { return e.message }

// RequestValidationError collects every failed field of a struct.
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the individual field errors.
func (ve *RequestValidationError) Errors() []ValidationError {
	return ve.errors
}

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(ve.errors))
	for i := range ve.errors {
		messages = append(messages, ve.errors[i].Error())
	}
	return strings.Join(messages, "; ")
}

// Fields returns the failing field names in order.
func (ve *RequestValidationError) Fields() []string {
	fields := make([]string, 0, len(ve.errors))
	for i := range ve.errors {
		fields = append(fields, ve.errors[i].field)
	}
	return fields
}

// GetValidator returns the shared validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report koanf or json names so messages match what users typed.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, key := range []string{"koanf", "json", "query"} {
				name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})

		//nolint:errcheck // registration only fails for empty tag names
		validate.RegisterValidation("tagcolor", func(fl validator.FieldLevel) bool {
			return models.TagColor(fl.Field().String()).Valid()
		})

		//nolint:errcheck // registration only fails for empty tag names
		validate.RegisterValidation("duration_min", func(fl validator.FieldLevel) bool {
			minimum, err := time.ParseDuration(fl.Param())
			if err != nil {
				return false
			}
			return time.Duration(fl.Field().Int()) >= minimum
		})
	})
	return validate
}

// ValidateStruct validates s and returns nil when every rule passes.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{
			errors: []ValidationError{{field: "unknown", tag: "unknown", message: err.Error()}},
		}
	}

	fieldErrors := make([]ValidationError, len(validationErrs))
	for i, fieldErr := range validationErrs {
		fieldErrors[i] = ValidationError{
			field:   fieldPath(fieldErr),
			tag:     fieldErr.Tag(),
			param:   fieldErr.Param(),
			value:   fieldErr.Value(),
			message: translateError(fieldErr),
		}
	}
	return &RequestValidationError{errors: fieldErrors}
}

// fieldPath drops the root struct name from the namespace: Config.stream.cache_capacity
// becomes stream.cache_capacity.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

var errorMessageTemplates = map[string]string{
	"required": "%s is required",
	"url":      "%s must be a valid URL",
	"http_url": "%s must be a valid http(s) URL",
	"tagcolor": "%s must be one of: red blue gray purple",
	"hostname": "%s must be a valid hostname",
}

var errorMessageWithParam = map[string]string{
	"oneof":        "%s must be one of: %s",
	"gte":          "%s must be greater than or equal to %s",
	"lte":          "%s must be less than or equal to %s",
	"gt":           "%s must be greater than %s",
	"lt":           "%s must be less than %s",
	"duration_min": "%s must be at least %s",
	"required_if":  "%s is required when %s",
}

func translateError(fe validator.FieldError) string {
	field := fieldPath(fe)
	tag := fe.Tag()
	param := fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}

	isString := fe.Kind() == reflect.String
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
