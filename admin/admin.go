// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// Package admin serves the forge operator endpoints: Prometheus metrics,
// liveness checks and pprof profiles. It's meant to listen on a port
// separate from the public API.
package admin

import (
	"runtime"
)

// Init is the entrypoint into the admin package. It will
// configure the runtime.
func Init() {
	if pprofProfileEnabled("block", true) {
		runtime.SetBlockProfileRate(1)
	}
	if pprofProfileEnabled("mutex", true) {
		runtime.SetMutexProfileFraction(1)
	}
}
