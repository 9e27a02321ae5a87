// Package showcase tours fixed camera positions while nobody is online.
package showcase

import (
	"time"

	"github.com/charmbracelet/log"

	"voxelcam.ai/internal/sched"
	"voxelcam.ai/internal/worldstate"
)

// Location is one stop of the tour. Dwell <= 0 uses the controller default.
type Location struct {
	Position    worldstate.Vec3
	Yaw         float64
	Pitch       float64
	Description string
	Dwell       time.Duration
}

func (l Location) Transform() worldstate.Transform {
	return worldstate.Transform{Position: l.Position, Yaw: l.Yaw, Pitch: l.Pitch}
}

type Options struct {
	Locations    []Location
	DefaultDwell time.Duration
	// Fallback is held when Locations is empty.
	Fallback Location
}

func DefaultOptions() Options {
	return Options{
		DefaultDwell: 15 * time.Second,
		Fallback: Location{
			Position:    worldstate.Vec3{0, 100, 0},
			Pitch:       30,
			Description: "Spawn",
		},
	}
}

// StatusSink is told which stop is on screen.
type StatusSink interface {
	SetShowcase(description string)
}

type Deps struct {
	Mover  worldstate.Mover
	Sched  *sched.Scheduler
	Status StatusSink
	Logger *log.Logger
}

type Controller struct {
	opts   Options
	mover  worldstate.Mover
	sched  *sched.Scheduler
	status StatusSink
	log    *log.Logger

	active bool
	cursor int
	handle sched.Handle
}

func New(opts Options, deps Deps) *Controller {
	if opts.DefaultDwell <= 0 {
		opts.DefaultDwell = DefaultOptions().DefaultDwell
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	opts.Locations = append([]Location(nil), opts.Locations...)
	return &Controller{
		opts:   opts,
		mover:  deps.Mover,
		sched:  deps.Sched,
		status: deps.Status,
		log:    deps.Logger,
	}
}

func (c *Controller) Active() bool { return c.active }

// Cursor is the index of the stop on screen.
func (c *Controller) Cursor() int { return c.cursor }

// Scheduled reports whether the dwell timer is armed.
func (c *Controller) Scheduled() bool {
	return c.handle.Valid() && c.sched.Pending(c.handle)
}

// Activate starts the tour at the first stop. It is a no-op while active.
func (c *Controller) Activate() {
	if c.active {
		return
	}
	c.active = true
	c.cursor = 0
	if len(c.opts.Locations) == 0 {
		c.log.Info("showcase: no locations configured, holding default position")
		c.visit(c.opts.Fallback)
		return
	}
	c.log.Info("showcase started", "locations", len(c.opts.Locations))
	c.visit(c.opts.Locations[0])
	c.arm()
}

// Deactivate stops the tour and cancels its timer.
func (c *Controller) Deactivate() {
	if !c.active {
		return
	}
	if c.handle.Valid() {
		c.sched.Cancel(c.handle)
		c.handle = sched.Handle{}
	}
	c.active = false
	c.log.Info("showcase stopped")
}

func (c *Controller) arm() {
	c.handle = c.sched.After(c.dwell(c.opts.Locations[c.cursor]), c.advance)
}

func (c *Controller) advance(time.Time) {
	c.handle = sched.Handle{}
	if !c.active || len(c.opts.Locations) == 0 {
		return
	}
	c.cursor = (c.cursor + 1) % len(c.opts.Locations)
	c.visit(c.opts.Locations[c.cursor])
	c.arm()
}

func (c *Controller) dwell(l Location) time.Duration {
	if l.Dwell > 0 {
		return l.Dwell
	}
	return c.opts.DefaultDwell
}

func (c *Controller) visit(l Location) {
	c.log.Info("showcase location", "index", c.cursor, "description", l.Description, "pos", l.Position)
	if err := c.mover.SetTransform(l.Transform()); err != nil {
		c.log.Warn("showcase move failed", "description", l.Description, "err", err)
	}
	if c.status != nil {
		c.status.SetShowcase(l.Description)
	}
}
