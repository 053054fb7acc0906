// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

type tokenResponse struct {
	Message string `json:"message"`
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

func addLoginRoutes(router *mux.Router, logger log.Logger, svc *accountService) {
	router.Methods("POST").Path("/token/").HandlerFunc(loginRoute(logger, svc))
	router.Methods("POST").Path("/token/refresh/").HandlerFunc(refreshRoute(logger, svc))
}

func loginRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeRequest(r, &req); err != nil {
			encodeError(w, r, logger, err, "login")
			return
		}

		tokens, err := svc.login(r.Context(), req.Email, req.Password)
		if err != nil {
			encodeError(w, r, logger, err, "login")
			return
		}
		respond(w, http.StatusOK, tokenResponse{
			Message: "Login successful",
			Access:  tokens.Access,
			Refresh: tokens.Refresh,
		})
	}
}

func refreshRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := decodeRequest(r, &req); err != nil {
			encodeError(w, r, logger, err, "login")
			return
		}

		tokens, err := svc.refresh(r.Context(), req.Refresh)
		if err != nil {
			encodeError(w, r, logger, err, "login")
			return
		}
		respond(w, http.StatusOK, tokenResponse{
			Message: "Token refreshed successfully",
			Access:  tokens.Access,
			Refresh: tokens.Refresh,
		})
	}
}
