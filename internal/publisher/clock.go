package publisher

import "time"

// Clock abstracts wall time so the scheduler and coordinator can be driven
// with a fixed time in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
