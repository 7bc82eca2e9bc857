// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared by the process. Field names in error
// messages come from the koanf struct tags, so a failing field is reported
// the way it is written in config.yaml:
//
//	type CounterConfig struct {
//	    MaxCounters   int      `koanf:"max_counters" validate:"gte=0"`
//	    CIDRAllowList []string `koanf:"cidr_allowlist" validate:"dive,cidr_or_ip"`
//	}
//
//	if err := validation.ValidateStruct(&cfg); err != nil {
//	    return fmt.Errorf("invalid configuration: %w", err)
//	}
//
// Custom tags:
//   - listen: host:port, :port, or unix:/path/to.sock
//   - cidr_or_ip: a CIDR prefix or a bare IP address
//   - timezone: an IANA zone name known to the zone database
package validation

import (
	"errors"
	"fmt"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single field that failed validation.
type FieldError struct {
	field   string
	tag     string
	param   string
	value   any
	message string
}

// Field returns the dotted koanf path of the field, e.g. "counter.max_counters".
func (e *FieldError) Field() string { return e.field }

// Tag returns the validation tag that failed.
func (e *FieldError) Tag() string { return e.tag }

// Param returns the tag parameter (e.g. "1" for "gte=1").
func (e *FieldError) Param() string { return e.param }

// Value returns the value that failed validation.
func (e *FieldError) Value() any { return e.value }

func (e *FieldError) Error() string { return e.message }

// Error collects every failing field of one struct.
type Error struct {
	errors []FieldError
}

// Errors returns the failing fields.
func (ve *Error) Errors() []FieldError {
	return ve.errors
}

func (ve *Error) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(ve.errors))
	for i := range ve.errors {
		messages = append(messages, ve.errors[i].message)
	}
	return strings.Join(messages, "; ")
}

// GetValidator returns the shared validator, creating it on first use.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(koanfTagName)

		mustRegister("listen", validateListen)
		mustRegister("cidr_or_ip", validateCIDROrIP)
		mustRegister("timezone", validateTimezone)
	})
	return validate
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

// koanfTagName reports fields by their koanf name.
func koanfTagName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("koanf"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	default:
		return name
	}
}

// ValidateStruct validates s. It returns nil or an *Error.
func ValidateStruct(s any) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &Error{errors: []FieldError{{field: "unknown", tag: "unknown", message: err.Error()}}}
	}

	fieldErrors := make([]FieldError, len(validationErrs))
	for i, fe := range validationErrs {
		field := fieldPath(fe)
		fieldErrors[i] = FieldError{
			field:   field,
			tag:     fe.Tag(),
			param:   fe.Param(),
			value:   fe.Value(),
			message: translateError(fe, field),
		}
	}
	return &Error{errors: fieldErrors}
}

// fieldPath drops the root struct name from the namespace:
// "Config.counter.max_counters" becomes "counter.max_counters".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

var errorMessageTemplates = map[string]string{
	"required":   "%s is required",
	"url":        "%s must be a valid URL",
	"listen":     "%s must be host:port or unix:/path",
	"cidr_or_ip": "%s must be a CIDR prefix or an IP address",
	"timezone":   "%s must be an IANA timezone such as Asia/Shanghai",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func translateError(fe validator.FieldError, field string) string {
	tag := fe.Tag()
	if tmpl, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(tmpl, field)
	}
	if tmpl, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(tmpl, field, fe.Param())
	}

	isString := fe.Kind() == reflect.String
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must have at least %s", field, fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must have at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}

// ValidListen reports whether addr is a TCP listen address or a unix
// socket path.
func ValidListen(addr string) bool {
	if path, ok := strings.CutPrefix(addr, "unix:"); ok {
		return strings.HasPrefix(path, "/") || strings.HasPrefix(path, "./")
	}
	host, port, ok := strings.Cut(addr, ":")
	if !ok {
		return false
	}
	if i := strings.LastIndex(addr, ":"); i >= 0 && strings.HasPrefix(addr, "[") {
		host, port = strings.Trim(addr[:i], "[]"), addr[i+1:]
	}
	if host != "" && host != "localhost" {
		if _, err := netip.ParseAddr(host); err != nil {
			return false
		}
	}
	n, err := strconv.ParseUint(port, 10, 16)
	return err == nil && n > 0
}

func validateListen(fl validator.FieldLevel) bool {
	return ValidListen(fl.Field().String())
}

func validateCIDROrIP(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

func validateTimezone(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" {
		return true
	}
	_, err := time.LoadLocation(name)
	return err == nil
}
