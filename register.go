// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

type registerResponse struct {
	Message string `json:"message"`
	OTP     int    `json:"otp"`
}

type phoneRegisterResponse struct {
	Message   string `json:"message"`
	OTP       int    `json:"otp"`
	Delivered bool   `json:"delivered"`
}

type emailCheckResponse struct {
	Message string `json:"message"`
	Exists  bool   `json:"exists"`
}

func addRegisterRoutes(router *mux.Router, logger log.Logger, svc *accountService) {
	router.Methods("POST").Path("/register/").HandlerFunc(registerRoute(logger, svc))
	router.Methods("POST").Path("/register/phonenumber/").HandlerFunc(registerPhoneRoute(logger, svc))
	router.Methods("POST").Path("/email/check/").HandlerFunc(emailCheckRoute(logger, svc))
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type phoneRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,phone"`
}

func registerRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req emailRequest
		if err := decodeRequest(r, &req); err != nil {
			encodeError(w, r, logger, err, "register")
			return
		}

		acct, err := svc.registerEmail(r.Context(), req.Email)
		if err != nil {
			encodeError(w, r, logger, err, "register")
			return
		}
		respond(w, http.StatusOK, registerResponse{
			Message: "User created successfully",
			OTP:     acct.OTPCode,
		})
	}
}

func registerPhoneRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req phoneRequest
		if err := decodeRequest(r, &req); err != nil {
			encodeError(w, r, logger, err, "register")
			return
		}

		acct, delivered, err := svc.registerPhone(r.Context(), req.PhoneNumber)
		if err != nil {
			encodeError(w, r, logger, err, "register")
			return
		}
		msg := "OTP sent to provided Phonenumber"
		if !delivered {
			msg = "User created, but error sending OTP, resend OTP to number."
		}
		respond(w, http.StatusOK, phoneRegisterResponse{
			Message:   msg,
			OTP:       acct.OTPCode,
			Delivered: delivered,
		})
	}
}

func emailCheckRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req emailRequest
		if err := decodeRequest(r, &req); err != nil {
			encodeError(w, r, logger, err, "email-check")
			return
		}

		exists, err := svc.emailExists(r.Context(), req.Email)
		if err != nil {
			encodeError(w, r, logger, err, "email-check")
			return
		}
		respond(w, http.StatusOK, emailCheckResponse{
			Message: "Email Confirmed Successfully",
			Exists:  exists,
		})
	}
}
