// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package validate provides a chainable Validator that collects field-level
// errors before returning a single [apperr.AppError].
//
// It guards the JSON boundaries (session endpoints, sandbox API) so the
// session store and the channel only ever receive well-formed input.
package validate

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/taibuivan/evently/internal/platform/apperr"
	"github.com/taibuivan/evently/internal/platform/sec"
)

// maxEmailLength is the longest address SMTP allows.
const maxEmailLength = 254

// ErrInvalidJSON is returned when the request body cannot be decoded.
var ErrInvalidJSON = apperr.ValidationError("Invalid JSON payload")

// Validator collects field-level validation errors via a fluent, chainable API.
//
// A Validator is not safe for concurrent use; create one per request.
type Validator struct {
	errs []apperr.FieldError
}

// Required fails if the trimmed value is empty.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.add(field, "This field is required")
	}
	return v
}

// MaxLen fails if the Unicode character count exceeds max.
func (v *Validator) MaxLen(field, value string, max int) *Validator {
	if utf8.RuneCountInString(value) > max {
		v.add(field, fmt.Sprintf("Maximum %d characters", max))
	}
	return v
}

// Email fails for a non-empty value that is not a bare address
// ("ada@evently.test", not "Ada <ada@evently.test>"). Empty values are left to [Required].
func (v *Validator) Email(field, value string) *Validator {
	if value == "" {
		return v
	}
	if len(value) > maxEmailLength {
		v.add(field, fmt.Sprintf("Maximum %d characters", maxEmailLength))
		return v
	}
	address, err := mail.ParseAddress(value)
	if err != nil || address.Address != value {
		v.add(field, "Must be an email address")
	}
	return v
}

// OneOf fails if the value is not in the allowed set of strings.
func (v *Validator) OneOf(field, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.add(field, fmt.Sprintf("Must be one of: %s", strings.Join(allowed, ", ")))
	return v
}

// SignInRole fails for a non-empty role nobody can sign in as. An empty role
// means "whatever the account is".
func (v *Validator) SignInRole(field string, role sec.UserRole) *Validator {
	if role == "" || role.CanSignIn() {
		return v
	}
	names := make([]string, 0, len(sec.SignInRoles()))
	for _, allowed := range sec.SignInRoles() {
		names = append(names, allowed.String())
	}
	v.add(field, fmt.Sprintf("Must be one of: %s", strings.Join(names, ", ")))
	return v
}

// Err returns a VALIDATION_ERROR [apperr.AppError] carrying every failed rule,
// or nil if all rules passed.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return apperr.ValidationError("Validation failed", v.errs...)
}

// HasErrors reports whether any validation rule has failed so far.
func (v *Validator) HasErrors() bool {
	return len(v.errs) > 0
}

func (v *Validator) add(field, message string) {
	v.errs = append(v.errs, apperr.FieldError{Field: field, Message: message})
}
