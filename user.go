// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

type accountResponse struct {
	Message string   `json:"message"`
	User    *Account `json:"user"`
}

func addUserRoutes(router *mux.Router, logger log.Logger, auth *authenticator, svc *accountService) {
	router.Methods("GET").Path("/user/").HandlerFunc(auth.required(getUserRoute(logger)))
	router.Methods("PATCH").Path("/user/").HandlerFunc(auth.required(updateUserRoute(logger, svc)))
	router.Methods("DELETE").Path("/user/").HandlerFunc(auth.required(deleteUserRoute(logger, svc)))
	router.Methods("POST").Path("/user/password/change/").HandlerFunc(auth.required(changePasswordRoute(logger, svc)))
}

func getUserRoute(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, accountResponse{
			Message: "User retrieved successfully",
			User:    accountFromContext(r.Context()),
		})
	}
}

// accountPatch holds the mutable account fields of a PATCH /user/ body.
// Nullable columns use optional so an explicit null clears them.
type accountPatch struct {
	Email            *string           `json:"email" validate:"omitempty,email,max=254"`
	FullName         optional[string]  `json:"full_name" validate:"omitempty,max=15"`
	PhoneNumber      optional[string]  `json:"phone_number" validate:"omitempty,phone"`
	DeviceID         optional[string]  `json:"device_id" validate:"omitempty,max=255"`
	FormattedAddress optional[string]  `json:"formatted_address" validate:"omitempty,max=255"`
	Image            optional[string]  `json:"image" validate:"omitempty,max=255"`
	Gender           *string           `json:"gender" validate:"omitempty,oneof=None Male Female"`
	Age              *numeric          `json:"age" validate:"omitempty,number,max=3"`
	Latitude         optional[numeric] `json:"latitude" validate:"omitempty,latitude"`
	Longitude        optional[numeric] `json:"longitude" validate:"omitempty,longitude"`
}

// apply copies every field that was sent onto acct and returns the
// columns it changed.
func (p *accountPatch) apply(acct *Account) []string {
	var columns []string
	setString := func(column string, o optional[string], dst **string) {
		if o.Set {
			*dst = o.Value
			columns = append(columns, column)
		}
	}
	setFloat := func(column string, o optional[numeric], dst **float64) {
		if !o.Set {
			return
		}
		*dst = nil
		if o.Value != nil {
			v := o.Value.float()
			*dst = &v
		}
		columns = append(columns, column)
	}

	if p.Email != nil {
		acct.Email = *p.Email
		columns = append(columns, "email")
	}
	setString("full_name", p.FullName, &acct.FullName)
	setString("phone_number", p.PhoneNumber, &acct.PhoneNumber)
	setString("device_id", p.DeviceID, &acct.DeviceID)
	setString("formatted_address", p.FormattedAddress, &acct.FormattedAddress)
	setString("image", p.Image, &acct.Image)
	if p.Gender != nil {
		acct.Gender = Gender(*p.Gender)
		columns = append(columns, "gender")
	}
	if p.Age != nil {
		acct.Age = p.Age.int()
		columns = append(columns, "age")
	}
	setFloat("latitude", p.Latitude, &acct.Latitude)
	setFloat("longitude", p.Longitude, &acct.Longitude)
	return columns
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	newPassword
}

func updateUserRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		current := accountFromContext(r.Context())

		var req accountPatch
		if err := decodeRequest(r, &req); err != nil {
			encodeError(w, r, logger, err, "user")
			return
		}
		updated := *current
		columns := req.apply(&updated)

		acct, err := svc.updateAccount(r.Context(), current, &updated, columns)
		if err != nil {
			encodeError(w, r, logger, err, "user")
			return
		}
		respond(w, http.StatusOK, accountResponse{
			Message: "User updated successfully",
			User:    acct,
		})
	}
}

func deleteUserRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct := accountFromContext(r.Context())
		if err := svc.deleteAccount(r.Context(), acct); err != nil {
			encodeError(w, r, logger, err, "user")
			return
		}
		respond(w, http.StatusOK, accountResponse{
			Message: "Deleted User successfully",
			User:    acct,
		})
	}
}

func changePasswordRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePasswordRequest
		if err := decodeRequest(r, &req); err != nil {
			encodeError(w, r, logger, err, "password")
			return
		}

		if err := svc.changePassword(r.Context(), accountFromContext(r.Context()), req.OldPassword, req.Password); err != nil {
			encodeError(w, r, logger, err, "password")
			return
		}
		respond(w, http.StatusOK, messageResponse{Message: "User password changed successfully"})
	}
}
