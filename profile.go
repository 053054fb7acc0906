// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

type profileResponse struct {
	Message string   `json:"message"`
	Profile *Profile `json:"profile"`
}

type profilePatch struct {
	Document optional[string] `json:"document" validate:"omitempty,max=255"`
}

func addProfileRoutes(router *mux.Router, logger log.Logger, auth *authenticator, svc *accountService) {
	router.Methods("GET").Path("/user/profile/").HandlerFunc(auth.required(getProfileRoute(logger, svc)))
	router.Methods("PATCH").Path("/user/profile/modify/{id:[0-9]+}/").HandlerFunc(auth.required(modifyProfileRoute(logger, svc)))
}

func getProfileRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.profile(r.Context(), accountFromContext(r.Context()))
		if err != nil {
			encodeError(w, r, logger, err, "profile")
			return
		}
		respond(w, http.StatusOK, profileResponse{
			Message: "Profile retrieved successfully",
			Profile: p,
		})
	}
}

// modifyProfileRoute patches the profile addressed in the path, it's not
// limited to the caller's own profile.
func modifyProfileRoute(logger log.Logger, svc *accountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := mux.Vars(r)["id"]
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			encodeError(w, r, logger, notFoundError(fmt.Sprintf(msgProfileNotFound, raw)), "profile")
			return
		}

		var req profilePatch
		if err := decodeRequest(r, &req); err != nil {
			encodeError(w, r, logger, err, "profile")
			return
		}

		p, err := svc.modifyProfile(r.Context(), uint(id), func(p *Profile) {
			if req.Document.Set {
				p.Document = req.Document.Value
			}
		})
		if err != nil {
			encodeError(w, r, logger, err, "profile")
			return
		}
		respond(w, http.StatusOK, profileResponse{
			Message: "Profile updated successfully",
			Profile: p,
		})
	}
}
