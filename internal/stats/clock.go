package stats

import "time"

// Clock abstracts wall time so freshness checks can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
