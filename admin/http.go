// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer returns an admin Server listening on addr once Listen is called.
func NewServer(addr string) *Server {
	timeout, _ := time.ParseDuration("45s")
	s := &Server{
		router:     mux.NewRouter(),
		liveChecks: make(map[string]func() error),
	}
	s.svc = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		IdleTimeout:  timeout,
	}

	s.router.Methods("GET").Path("/metrics").Handler(promhttp.Handler())
	s.router.Methods("GET").Path("/live").HandlerFunc(s.liveHandler)
	addPprofRoutes(s.router)
	return s
}

// Server represents a holder around a net/http Server which
// is used for admin endpoints. (i.e. metrics, healthcheck)
type Server struct {
	svc    *http.Server
	router *mux.Router

	mu         sync.RWMutex
	liveChecks map[string]func() error
}

// BindAddress returns the address the server listens on.
func (s *Server) BindAddress() string {
	if s == nil || s.svc == nil {
		return ""
	}
	return s.svc.Addr
}

// AddLivenessCheck registers a named check run on every GET /live. The
// server answers 503 when any check returns an error.
func (s *Server) AddLivenessCheck(name string, check func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveChecks[name] = check
}

func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	results := make(map[string]string, len(s.liveChecks))
	healthy := true
	for name, check := range s.liveChecks {
		if err := check(); err != nil {
			results[name] = err.Error()
			healthy = false
		} else {
			results[name] = "good"
		}
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(results)
}

// Handler returns the admin router, mostly useful in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen brings up the admin HTTP service. This call blocks.
func (s *Server) Listen() error {
	if s == nil || s.svc == nil {
		return nil
	}
	return s.svc.ListenAndServe()
}

// Serve is Listen on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	return s.svc.Serve(l)
}

// Shutdown unbinds the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.svc == nil {
		return nil
	}
	return s.svc.Shutdown(ctx)
}
