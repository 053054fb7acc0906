// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

type messageResponse struct {
	Message string `json:"message"`
}

type otpConfirmResponse struct {
	Message string `json:"message"`
	Exists  bool   `json:"exists"`
}

type phoneResendFailure struct {
	Message    string `json:"message"`
	ErroredOTP int    `json:"errored_otp"`
}

type setPasswordResponse struct {
	Message string   `json:"message"`
	User    *Account `json:"user"`
	Access  string   `json:"access"`
	Refresh string   `json:"refresh"`
}

func addVerifyRoutes(router *mux.Router, logger log.Logger, svc *accountService) {
	router.Methods("POST").Path("/otp/confirm/").HandlerFunc(confirmOTPRoute(logger, svc))
	router.Methods("POST").Path("/otp/resend/").HandlerFunc(resendOTPRoute(logger, svc))
	router.Methods("POST").Path("/otp/set/password/").HandlerFunc(setPasswordRoute(logger, svc))
	router.Methods("POST").Path("/otp/phone/resend/").HandlerFunc(resendPhoneOTPRoute(logger, svc))
}

type otpRequest struct {
	OTPCode numeric `json:"otp_code" validate:"required,number,max=9"`
}

type setPasswordRequest struct {
	OTPCode numeric `json:"otp_code" validate:"required,number,max=9"`
	newPassword
}

func confirmOTPRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req otpRequest
		if err := decodeRequest(r, &req); err != nil {
			encodeError(w, r, logger, err, "otp")
			return
		}

		if err := svc.confirmOTP(r.Context(), req.OTPCode.int()); err != nil {
			encodeError(w, r, logger, err, "otp")
			return
		}
		respond(w, http.StatusOK, otpConfirmResponse{
			Message: "OTP code confirmed successfully",
			Exists:  true,
		})
	}
}

func resendOTPRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req emailRequest
		if err := decodeRequest(r, &req); err != nil {
			encodeError(w, r, logger, err, "otp")
			return
		}

		if err := svc.resendEmailOTP(r.Context(), req.Email); err != nil {
			encodeError(w, r, logger, err, "otp")
			return
		}
		respond(w, http.StatusOK, messageResponse{Message: "OTP resent to provided email"})
	}
}

func resendPhoneOTPRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req phoneRequest
		if err := decodeRequest(r, &req); err != nil {
			encodeError(w, r, logger, err, "otp")
			return
		}

		acct, sent, err := svc.resendPhoneOTP(r.Context(), req.PhoneNumber)
		if err != nil {
			encodeError(w, r, logger, err, "otp")
			return
		}
		if !sent {
			// hand the code back so the caller can still go on
			respond(w, http.StatusOK, phoneResendFailure{
				Message:    "Error sending OTP, resend OTP to number.",
				ErroredOTP: acct.OTPCode,
			})
			return
		}
		respond(w, http.StatusOK, messageResponse{Message: "OTP sent to provided Phonenumber"})
	}
}

func setPasswordRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setPasswordRequest
		if err := decodeRequest(r, &req); err != nil {
			encodeError(w, r, logger, err, "password")
			return
		}

		acct, tokens, err := svc.setPassword(r.Context(), req.OTPCode.int(), req.Password)
		if err != nil {
			encodeError(w, r, logger, err, "password")
			return
		}
		respond(w, http.StatusOK, setPasswordResponse{
			Message: "Password set successfully",
			User:    acct,
			Access:  tokens.Access,
			Refresh: tokens.Refresh,
		})
	}
}
