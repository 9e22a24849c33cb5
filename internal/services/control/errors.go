package control

import "errors"

var (
	// ErrSensorUnavailable: no reading arrived within the request timeout.
	// Recovered locally by falling back to the last-known value; it only
	// escalates once the failure persists across consecutive polls.
	ErrSensorUnavailable = errors.New("sensor reading unavailable")

	// ErrDurationExceeded: the session ran past max_duration without
	// reaching its target.
	ErrDurationExceeded = errors.New("max irrigation duration exceeded")
)
