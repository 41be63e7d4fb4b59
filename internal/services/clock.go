package services

import "time"

// Clock returns the current time. Services take one so tests can pin dates.
type Clock func() time.Time

// SystemClock reports wall-clock UTC time.
func SystemClock() time.Time {
	return time.Now().UTC()
}
