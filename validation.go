// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	msgRequired      = "This field is required."
	msgInvalidString = "Not a valid string."
	msgInvalidNumber = "A valid number is required."
	msgInvalidInt    = "A valid integer is required."
	msgInvalidEmail  = "Enter a valid email address."
	msgInvalidPhone  = "Enter a valid value."
)

var (
	// phoneRegex accepts "+" followed by 11 to 15 digits, no leading zero.
	phoneRegex = regexp.MustCompile(`^\+[1-9]\d{10,14}$`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report fields by their json name
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRegex.MatchString(fl.Field().String())
	})
	v.RegisterCustomTypeFunc(optionalValue, optional[string]{}, optional[numeric]{})
	return v
}

// newPassword is embedded in requests which set a password.
type newPassword struct {
	Password  string `json:"password" validate:"required,min=8,max=128"`
	Password2 string `json:"password2" validate:"required,eqfield=Password"`
}

// numeric is a number sent either as a JSON number or a numeric string.
// Its format is checked with validate tags ("number", "latitude", ...).
type numeric string

var numericType = reflect.TypeOf(numeric(""))

func (n *numeric) UnmarshalJSON(bs []byte) error {
	var s string
	if err := json.Unmarshal(bs, &s); err == nil {
		*n = numeric(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(bs, &num); err != nil {
		return &json.UnmarshalTypeError{Value: string(bs), Type: numericType}
	}
	*n = numeric(num)
	return nil
}

// int is only meaningful once the "number" tag passed.
func (n numeric) int() int {
	v, _ := strconv.Atoi(string(n))
	return v
}

func (n numeric) float() float64 {
	v, _ := strconv.ParseFloat(string(n), 64)
	return v
}

// optional is a PATCH field. Set reports if the client sent it at all and
// Value is nil when it was sent as null (or as a blank string).
type optional[T any] struct {
	Set   bool
	Value *T
}

func (o *optional[T]) UnmarshalJSON(bs []byte) error {
	o.Set = true
	o.Value = nil
	if bytes.Equal(bytes.TrimSpace(bs), []byte("null")) {
		return nil
	}
	var v T
	if err := json.Unmarshal(bs, &v); err != nil {
		return err
	}
	if s, ok := any(&v).(*string); ok {
		*s = strings.TrimSpace(*s)
		if *s == "" {
			return nil
		}
	}
	o.Value = &v
	return nil
}

// optionalValue hands the validator what was sent, nil skips "omitempty" tags.
func optionalValue(field reflect.Value) interface{} {
	switch o := field.Interface().(type) {
	case optional[string]:
		if o.Value != nil {
			return *o.Value
		}
	case optional[numeric]:
		if o.Value != nil {
			return *o.Value
		}
	}
	return nil
}

// decodeRequest reads the JSON object in r's body into req, trims its
// strings and checks its validate tags. An empty body is read as {} so
// missing fields are reported one by one.
func decodeRequest(r *http.Request, req interface{}) error {
	if r.Body != nil {
		bs, err := read(r.Body)
		if err != nil {
			return err
		}
		if len(bytes.TrimSpace(bs)) > 0 {
			if err := json.Unmarshal(bs, req); err != nil {
				return decodeError(err)
			}
		}
	}
	trimStrings(reflect.ValueOf(req))
	return validateRequest(req)
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		msg := msgInvalidString
		switch {
		case typeErr.Type == numericType:
			msg = msgInvalidNumber
		case typeErr.Type.Kind() >= reflect.Int && typeErr.Type.Kind() <= reflect.Uint64:
			msg = msgInvalidInt
		}
		return fieldError(typeErr.Field, msg)
	}
	return &apiError{Kind: kindValidation, Message: fmt.Sprintf("JSON parse error - %v", err)}
}

// trimStrings strips surrounding whitespace from every string field of the
// struct v points to, embedded structs included.
func trimStrings(v reflect.Value) {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.String:
		if v.CanSet() {
			v.SetString(strings.TrimSpace(v.String()))
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if f := v.Type().Field(i); f.IsExported() || f.Anonymous {
				trimStrings(v.Field(i))
			}
		}
	}
}

// validateRequest runs req's validate tags, failures are returned as a
// validation *apiError keyed by json field name.
func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make(fieldErrors)
	for _, fe := range verrs {
		if fe.Tag() == "eqfield" {
			errs.add(nonFieldErrors, msgPasswordMismatch)
			continue
		}
		errs.add(fe.Field(), validationMessage(fe))
	}
	return validationError(errs)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return msgRequired
	case "email":
		return msgInvalidEmail
	case "phone":
		return msgInvalidPhone
	case "number":
		return msgInvalidInt
	case "latitude", "longitude":
		return fmt.Sprintf("Enter a valid %s.", fe.Tag())
	case "oneof":
		return fmt.Sprintf("%q is not a valid choice.", fmt.Sprint(fe.Value()))
	case "min":
		if fe.Field() == "password" {
			return fmt.Sprintf("This password is too short. It must contain at least %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	}
	return "Invalid value."
}
