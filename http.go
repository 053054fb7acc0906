// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	// maxReadBytes is the number of bytes to read
	// from a request body. It's intended to be used
	// with an io.LimitReader
	maxReadBytes = 1 * 1024 * 1024

	requestIDHeader = "X-Request-ID"
)

type requestIDKey struct{}

// read consumes an io.Reader (wrapping with io.LimitReader)
// and returns either the resulting bytes or a non-nil error.
func read(r io.Reader) ([]byte, error) {
	r = io.LimitReader(r, maxReadBytes)
	return io.ReadAll(r)
}

// respond JSON encodes body with the given HTTP status.
func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Message string      `json:"message"`
	Kind    errorKind   `json:"kind"`
	Errors  fieldErrors `json:"errors,omitempty"`
}

// encodeError JSON encodes the supplied error.
//
// An *apiError is written with the status of its kind, anything
// else is logged and answered with "500 Internal Server Error".
func encodeError(w http.ResponseWriter, r *http.Request, logger log.Logger, err error, component string) {
	if err == nil {
		return
	}
	var aerr *apiError
	if !errors.As(err, &aerr) {
		internalError(w, r, logger, err, component)
		return
	}
	respond(w, aerr.status(), errorResponse{
		Message: aerr.Message,
		Kind:    aerr.Kind,
		Errors:  aerr.Fields,
	})
}

func internalError(w http.ResponseWriter, r *http.Request, logger log.Logger, err error, component string) {
	internalServerErrors.Add(1)
	logger.Log(component, err, "requestID", requestID(r))
	respond(w, http.StatusInternalServerError, errorResponse{
		Message: "A server error occurred.",
		Kind:    kindInternal,
	})
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	if v, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// withRequestLogging assigns every request an ID (keeping one the caller
// sent) and logs it once it has been served.
func withRequestLogging(logger log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Log("method", r.Method, "path", r.URL.Path, "status", rec.status,
			"took", time.Since(start), "requestID", id)
	})
}

// newRouter registers every API route. Unknown paths and methods are
// answered with the same JSON error body as everything else.
func newRouter(logger log.Logger, auth *authenticator, svc *accountService) *mux.Router {
	router := mux.NewRouter()
	addRegisterRoutes(router, logger, svc)
	addVerifyRoutes(router, logger, svc)
	addUserRoutes(router, logger, auth, svc)
	addProfileRoutes(router, logger, auth, svc)
	addLoginRoutes(router, logger, svc)
	addLogoutRoutes(router, logger, auth, svc)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encodeError(w, r, logger, notFoundError("Not found."), "http")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encodeError(w, r, logger, methodNotAllowedError(r.Method), "http")
	})
	return router
}
