package httpserver

import "sync/atomic"

// draining gates /health during graceful shutdown: main.go flips it on
// right after catching SIGINT/SIGTERM, just before calling Shutdown, so
// /health reports draining while in-flight requests finish. main.go does
// not pause between the two calls.
var draining atomic.Bool
var drainingEnabled atomic.Bool

func EnableDrainFlag(on bool) { drainingEnabled.Store(on) }

func SetDraining(on bool) {
	if drainingEnabled.Load() {
		draining.Store(on)
	}
}

func IsDraining() bool { return drainingEnabled.Load() && draining.Load() }
