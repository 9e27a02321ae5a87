// Package tracking decides whom the camera observes.
//
// The Selector polls the roster on a fixed period and owns the tracking State.
// It is the only component that starts or stops the follow and showcase
// loops, which keeps the two modes mutually exclusive.
package tracking

import (
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"voxelcam.ai/internal/sched"
	"voxelcam.ai/internal/worldstate"
)

// Follower drives the camera toward one subject.
type Follower interface {
	Start(subject worldstate.Subject)
	Stop()
}

// Showcase runs the scripted tour.
type Showcase interface {
	Activate()
	Deactivate()
	Active() bool
}

// Recorder receives every transition. Implementations must not block.
type Recorder interface {
	RecordMode(from, to Mode, at time.Time)
	RecordSwitch(prev *worldstate.Subject, next worldstate.Subject, reason Reason, at time.Time)
}

type Options struct {
	CheckInterval  time.Duration
	SwitchInterval time.Duration
}

func DefaultOptions() Options {
	return Options{CheckInterval: 5 * time.Second, SwitchInterval: 30 * time.Second}
}

type Selector struct {
	opts     Options
	state    *State
	roster   worldstate.Roster
	follower Follower
	showcase Showcase
	recorder Recorder
	sched    *sched.Scheduler
	log      *log.Logger

	handle sched.Handle
}

type Deps struct {
	State    *State
	Roster   worldstate.Roster
	Follower Follower
	Showcase Showcase
	Recorder Recorder
	Sched    *sched.Scheduler
	Logger   *log.Logger
}

func NewSelector(opts Options, deps Deps) *Selector {
	d := DefaultOptions()
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = d.CheckInterval
	}
	if opts.SwitchInterval <= 0 {
		opts.SwitchInterval = d.SwitchInterval
	}
	if deps.State == nil {
		deps.State = NewState()
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Selector{
		opts:     opts,
		state:    deps.State,
		roster:   deps.Roster,
		follower: deps.Follower,
		showcase: deps.Showcase,
		recorder: deps.Recorder,
		sched:    deps.Sched,
		log:      deps.Logger,
	}
}

func (s *Selector) State() *State { return s.state }

// Arm evaluates immediately and then every check interval.
func (s *Selector) Arm() {
	s.Disarm()
	s.handle = s.sched.Every(s.opts.CheckInterval, s.Tick)
	s.Tick(s.sched.Now())
}

func (s *Selector) Disarm() {
	if s.handle.Valid() {
		s.sched.Cancel(s.handle)
		s.handle = sched.Handle{}
	}
}

// Tick runs one decision. Calls closer together than the check interval,
// less a tenth for timer jitter, are ignored.
func (s *Selector) Tick(now time.Time) {
	st := s.state
	minGap := s.opts.CheckInterval - s.opts.CheckInterval/10
	if !st.lastDecision.IsZero() && now.Sub(st.lastDecision) < minGap {
		return
	}
	st.lastDecision = now

	subjects := s.online()
	if sig := Signature(subjects); sig != st.Signature {
		if sig == "" {
			s.log.Info("no players online")
		} else {
			s.log.Info("online players changed", "players", sig, "count", len(subjects))
		}
		st.Signature = sig
	}

	if len(subjects) == 0 {
		if st.Mode != ModeShowcase {
			s.enterShowcase(now)
		}
		return
	}

	if st.Mode == ModeShowcase {
		s.exitShowcase(now)
	}

	reason, ok := s.switchReason(subjects, now)
	if !ok {
		return
	}
	s.switchTo(subjects, reason, now)
}

// online returns the connected subjects minus the observer, sorted by name.
func (s *Selector) online() []worldstate.Subject {
	all := s.roster.Subjects()
	selfID := ""
	if self, ok := s.roster.Self(); ok {
		selfID = self.ID
	}
	out := make([]worldstate.Subject, 0, len(all))
	for _, subj := range all {
		if subj.ID == selfID {
			continue
		}
		out = append(out, subj)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Selector) switchReason(subjects []worldstate.Subject, now time.Time) (Reason, bool) {
	cur := s.state.Current
	if cur == nil {
		return ReasonNoSubject, true
	}
	if !containsID(subjects, cur.ID) {
		return ReasonSubjectLeft, true
	}
	if len(subjects) > 1 && now.Sub(s.state.LastSwitch) >= s.opts.SwitchInterval {
		return ReasonRotation, true
	}
	return "", false
}

func (s *Selector) switchTo(subjects []worldstate.Subject, reason Reason, now time.Time) {
	st := s.state
	n := len(subjects)
	idx := (st.RotationIndex + 1) % n
	if idx < 0 {
		idx = 0
	}
	if reason == ReasonRotation && subjects[idx].ID == st.CurrentID() {
		idx = (idx + 1) % n
	}
	next := subjects[idx]
	prev := st.Current

	st.RotationIndex = idx
	st.Current = &next
	st.LastSwitch = now

	if prev == nil {
		s.log.Info("following player", "player", next.Name, "reason", reason)
	} else {
		s.log.Info("switching player", "from", prev.Name, "to", next.Name, "reason", reason)
	}
	if s.recorder != nil {
		s.recorder.RecordSwitch(prev, next, reason, now)
	}
	s.setMode(ModeFollowing, now)
	s.follower.Start(next)
}

func (s *Selector) enterShowcase(now time.Time) {
	if s.state.Current != nil {
		s.log.Info("lost all players", "last", s.state.Current.Name)
	}
	s.state.Current = nil
	s.follower.Stop()
	s.setMode(ModeShowcase, now)
	s.showcase.Activate()
}

func (s *Selector) exitShowcase(now time.Time) {
	s.showcase.Deactivate()
	s.setMode(ModeFollowing, now)
}

func (s *Selector) setMode(m Mode, now time.Time) {
	if s.state.Mode == m {
		return
	}
	from := s.state.Mode
	s.state.Mode = m
	s.log.Info("camera mode", "from", from, "to", m)
	if s.recorder != nil {
		s.recorder.RecordMode(from, m, now)
	}
}

func containsID(subjects []worldstate.Subject, id string) bool {
	for _, s := range subjects {
		if s.ID == id {
			return true
		}
	}
	return false
}
