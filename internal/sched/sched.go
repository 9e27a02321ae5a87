// Package sched is a single-goroutine timer table.
//
// Callbacks never run concurrently: the owner calls RunDue from its own loop
// (see Wait) and every job fires on that goroutine. Handles are explicit
// cancellation tokens, so a cancelled job can never fire again.
package sched

import (
	"time"
)

// Handle identifies a scheduled job. The zero Handle is never issued.
type Handle struct{ id uint64 }

// Valid reports whether the handle was issued by a scheduler.
func (h Handle) Valid() bool { return h.id != 0 }

// Stats counts job lifecycle transitions.
type Stats struct {
	Started   uint64
	Cancelled uint64
	Expired   uint64
	Fired     uint64
}

type job struct {
	id     uint64
	due    time.Time
	period time.Duration
	fn     func(now time.Time)
}

type Scheduler struct {
	now    func() time.Time
	jobs   map[uint64]*job
	nextID uint64
	stats  Stats
}

// New returns a scheduler reading time from now (time.Now when nil).
func New(now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{now: now, jobs: map[uint64]*job{}}
}

func (s *Scheduler) Now() time.Time { return s.now() }

// Every runs fn each period, first one period from now.
func (s *Scheduler) Every(period time.Duration, fn func(now time.Time)) Handle {
	if period <= 0 {
		period = time.Millisecond
	}
	return s.add(period, period, fn)
}

// After runs fn once after d.
func (s *Scheduler) After(d time.Duration, fn func(now time.Time)) Handle {
	if d < 0 {
		d = 0
	}
	return s.add(d, 0, fn)
}

func (s *Scheduler) add(delay, period time.Duration, fn func(time.Time)) Handle {
	s.nextID++
	j := &job{id: s.nextID, due: s.now().Add(delay), period: period, fn: fn}
	s.jobs[j.id] = j
	s.stats.Started++
	return Handle{id: j.id}
}

// Cancel revokes h. It returns false when h is unknown, already cancelled or a
// one-shot that already fired.
func (s *Scheduler) Cancel(h Handle) bool {
	if !h.Valid() {
		return false
	}
	if _, ok := s.jobs[h.id]; !ok {
		return false
	}
	delete(s.jobs, h.id)
	s.stats.Cancelled++
	return true
}

// CancelAll revokes every live job and returns how many were revoked.
func (s *Scheduler) CancelAll() int {
	n := len(s.jobs)
	for id := range s.jobs {
		delete(s.jobs, id)
	}
	s.stats.Cancelled += uint64(n)
	return n
}

// Pending reports whether h is still scheduled.
func (s *Scheduler) Pending(h Handle) bool {
	_, ok := s.jobs[h.id]
	return ok
}

// Active returns the number of live jobs.
func (s *Scheduler) Active() int { return len(s.jobs) }

func (s *Scheduler) Stats() Stats { return s.stats }

// NextDue returns the earliest due time among live jobs.
func (s *Scheduler) NextDue() (time.Time, bool) {
	var (
		best  time.Time
		found bool
	)
	for _, j := range s.jobs {
		if !found || j.due.Before(best) {
			best = j.due
			found = true
		}
	}
	return best, found
}

// RunDue fires every job due at the current time, earliest first. Each job
// fires at most once per call; periodic jobs that fell behind skip the missed
// periods instead of bursting.
func (s *Scheduler) RunDue() int {
	now := s.now()
	fired := map[uint64]struct{}{}
	n := 0
	for {
		j := s.earliestDue(now, fired)
		if j == nil {
			return n
		}
		fired[j.id] = struct{}{}
		if j.period > 0 {
			j.due = j.due.Add(j.period)
			if !j.due.After(now) {
				j.due = now.Add(j.period)
			}
		} else {
			delete(s.jobs, j.id)
			s.stats.Expired++
		}
		s.stats.Fired++
		n++
		j.fn(now)
	}
}

func (s *Scheduler) earliestDue(now time.Time, skip map[uint64]struct{}) *job {
	var best *job
	for _, j := range s.jobs {
		if _, done := skip[j.id]; done {
			continue
		}
		if j.due.After(now) {
			continue
		}
		if best == nil || j.due.Before(best.due) || (j.due.Equal(best.due) && j.id < best.id) {
			best = j
		}
	}
	return best
}

// Wait returns a channel that fires when the next job is due, or nil when no
// job is scheduled. The returned stop func releases the timer.
func (s *Scheduler) Wait() (<-chan time.Time, func()) {
	next, ok := s.NextDue()
	if !ok {
		return nil, func() {}
	}
	d := next.Sub(s.now())
	if d < 0 {
		d = 0
	}
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}
