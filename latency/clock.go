package latency

import "time"

// A Clock tells the current time on a monotonic scale, in nanoseconds.
type Clock interface {
	NowNs() uint64
}

type monotonicClock struct {
	base time.Time
}

// NewMonotonicClock returns a Clock backed by the runtime's monotonic clock.
// Readings start near zero when the clock is created.
func NewMonotonicClock() Clock {
	return &monotonicClock{base: time.Now()}
}

func (c *monotonicClock) NowNs() uint64 {
	return uint64(time.Since(c.base))
}
