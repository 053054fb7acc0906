// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"net/http"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

func addLogoutRoutes(router *mux.Router, logger log.Logger, auth *authenticator, svc *accountService) {
	router.Methods("DELETE").Path("/token/").HandlerFunc(auth.required(logoutRoute(logger, svc)))
}

// bearerToken returns the token of a "Bearer <token>" Authorization header.
func bearerToken(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// logoutRoute revokes the access token the request was made with.
func logoutRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			encodeError(w, r, logger, fieldError(nonFieldErrors, "Only bearer tokens can be revoked."), "logout")
			return
		}
		if err := svc.logout(accountFromContext(r.Context()), token); err != nil {
			encodeError(w, r, logger, err, "logout")
			return
		}
		respond(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
	}
}
