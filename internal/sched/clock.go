package sched

import "time"

// ManualClock is a settable time source for driving a Scheduler in tests and replays.
type ManualClock struct{ t time.Time }

func NewManualClock(start time.Time) *ManualClock { return &ManualClock{t: start} }

func (c *ManualClock) Now() time.Time { return c.t }

func (c *ManualClock) Set(t time.Time) { c.t = t }

// Advance moves the clock forward by d, firing every job of s that comes due
// along the way at its own due time.
func (c *ManualClock) Advance(s *Scheduler, d time.Duration) {
	end := c.t.Add(d)
	for {
		next, ok := s.NextDue()
		if !ok || next.After(end) {
			break
		}
		if next.After(c.t) {
			c.t = next
		}
		s.RunDue()
	}
	c.t = end
}
