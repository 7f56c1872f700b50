package service

import "time"

// Clock supplies the current time for token stamping, TTL arithmetic and
// history timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
