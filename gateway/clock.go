package gateway

import "time"

// Clock is the injected leaf utility (C1) the core uses for all
// wall-clock reads, so tests can advance time deterministically instead of
// sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real-time Clock used in production.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// IDGen is the injected leaf utility (C1) for request/deployment ids.
type IDGen interface {
	NewID() string
}
