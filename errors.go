// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type errorKind string

const (
	kindValidation     errorKind = "validation"
	kindNotFound       errorKind = "not_found"
	kindAuthentication errorKind = "authentication"
	kindUnauthorized   errorKind = "unauthorized"
	kindThrottled      errorKind = "throttled"
	kindMethod         errorKind = "method_not_allowed"
	kindInternal       errorKind = "internal"
)

// nonFieldErrors is the key cross-field validation messages are listed under.
const nonFieldErrors = "non_field_errors"

// fieldErrors maps a request field to its validation messages.
type fieldErrors map[string][]string

func (fe fieldErrors) add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

func (fe fieldErrors) has(field string) bool {
	return len(fe[field]) > 0
}

func (fe fieldErrors) empty() bool {
	return len(fe) == 0
}

// apiError is the one error shape every route returns. Fields is only
// populated for validation errors.
type apiError struct {
	Kind    errorKind
	Message string
	Fields  fieldErrors
}

func (e *apiError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	var keys []string
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, strings.Join(e.Fields[k], "; ")))
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(parts, ", "))
}

func (e *apiError) status() int {
	switch e.Kind {
	case kindValidation, kindAuthentication:
		return http.StatusBadRequest
	case kindUnauthorized:
		return http.StatusUnauthorized
	case kindNotFound:
		return http.StatusNotFound
	case kindMethod:
		return http.StatusMethodNotAllowed
	case kindThrottled:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func validationError(fields fieldErrors) *apiError {
	return &apiError{Kind: kindValidation, Message: "Invalid input.", Fields: fields}
}

// fieldError is shorthand for a validation error on a single field.
func fieldError(field, msg string) *apiError {
	fe := make(fieldErrors)
	fe.add(field, msg)
	return validationError(fe)
}

func notFoundError(msg string) *apiError {
	return &apiError{Kind: kindNotFound, Message: msg}
}

func authenticationError(msg string) *apiError {
	return &apiError{Kind: kindAuthentication, Message: msg}
}

func unauthorizedError(msg string) *apiError {
	return &apiError{Kind: kindUnauthorized, Message: msg}
}

func throttledError(msg string) *apiError {
	return &apiError{Kind: kindThrottled, Message: msg}
}

func methodNotAllowedError(method string) *apiError {
	return &apiError{Kind: kindMethod, Message: fmt.Sprintf("Method %q not allowed.", method)}
}
