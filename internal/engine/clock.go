package engine

import "sync/atomic"

// Clock numbers the results Generate yields. The zero value is ready and
// issues 1 first.
//
// Numbers are strictly increasing, never wall-clock based, so a recorded
// run lists its schedules in the order they were found. Passing one Clock
// to several Generate calls numbers their results as one sequence; Next is
// safe to call from multiple goroutines.
type Clock struct {
	last atomic.Int64
}

// Next issues the following number.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Current is the last number issued, 0 before the first Next.
func (c *Clock) Current() int64 {
	return c.last.Load()
}
