// Package follow keeps the camera on the selected subject.
package follow

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"voxelcam.ai/internal/camera"
	"voxelcam.ai/internal/sched"
	"voxelcam.ai/internal/worldstate"
)

type Mode string

const (
	ModeThirdPerson Mode = "third-person"
	ModeSpectate    Mode = "spectate"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeThirdPerson, "":
		return ModeThirdPerson, nil
	case ModeSpectate:
		return ModeSpectate, nil
	default:
		return "", fmt.Errorf("camera mode: unsupported value %q", s)
	}
}

type Options struct {
	Mode              Mode
	UpdateInterval    time.Duration
	MinCommandSpacing time.Duration
	RecenterInterval  time.Duration
	// YawDamping in [0, 1): 0 tracks the subject's yaw exactly, higher values lag behind it.
	YawDamping float64
}

func DefaultOptions() Options {
	return Options{
		Mode:              ModeThirdPerson,
		UpdateInterval:    500 * time.Millisecond,
		MinCommandSpacing: 100 * time.Millisecond,
		RecenterInterval:  2 * time.Second,
	}
}

// StatusSink is told the name of the subject on screen.
type StatusSink interface {
	SetSubject(name string)
}

// Focuser is implemented by adapters that stream geometry around a subject.
type Focuser interface {
	Focus(subjectID string) error
}

// CurrentSource reports which subject the selector currently wants.
type CurrentSource interface {
	CurrentID() string
}

type Deps struct {
	World   worldstate.Adapter
	Sampler *camera.Sampler
	Solver  camera.Solver
	Sched   *sched.Scheduler
	Current CurrentSource
	Status  StatusSink
	Logger  *log.Logger
}

type Driver struct {
	opts    Options
	world   worldstate.Adapter
	sampler *camera.Sampler
	solver  camera.Solver
	sched   *sched.Scheduler
	current CurrentSource
	status  StatusSink
	log     *log.Logger
	limiter *Limiter

	target       worldstate.Subject
	handle       sched.Handle
	lastKnown    worldstate.Vec3
	lastRecenter time.Time
	outOfRange   bool
	anchorYaw    float64
	haveAnchor   bool
	lastEmitted  worldstate.Transform
	emitted      int
	attached     bool
}

func NewDriver(opts Options, deps Deps) *Driver {
	d := DefaultOptions()
	if opts.Mode == "" {
		opts.Mode = d.Mode
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = d.UpdateInterval
	}
	if opts.MinCommandSpacing < 0 {
		opts.MinCommandSpacing = 0
	}
	if opts.RecenterInterval <= 0 {
		opts.RecenterInterval = d.RecenterInterval
	}
	if opts.YawDamping < 0 || opts.YawDamping >= 1 {
		opts.YawDamping = 0
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Driver{
		opts:    opts,
		world:   deps.World,
		sampler: deps.Sampler,
		solver:  deps.Solver,
		sched:   deps.Sched,
		current: deps.Current,
		status:  deps.Status,
		log:     deps.Logger,
		limiter: NewLimiter(opts.MinCommandSpacing),
	}
}

// Start switches the camera to subject. Any loop running for a previous
// subject is revoked before this returns.
func (d *Driver) Start(subject worldstate.Subject) {
	d.cancel()
	d.target = subject
	d.lastKnown = subject.Position
	d.lastRecenter = time.Time{}
	d.outOfRange = false
	d.haveAnchor = false

	if f, ok := d.world.(Focuser); ok {
		if err := f.Focus(subject.ID); err != nil {
			d.log.Debug("focus request failed", "player", subject.Name, "err", err)
		}
	}

	now := d.sched.Now()
	if d.opts.Mode == ModeSpectate {
		d.attach(now)
		return
	}
	d.handle = d.sched.Every(d.opts.UpdateInterval, d.update)
	d.update(now)
}

// Stop revokes the running loop, if any, and releases a spectate attach.
// The detach is sent even inside the command spacing.
func (d *Driver) Stop() {
	d.cancel()
	if !d.attached {
		return
	}
	d.attached = false
	d.limiter.Mark(d.sched.Now())
	if err := d.world.Attach(""); err != nil {
		d.log.Warn("spectate detach failed", "player", d.target.Name, "err", err)
		return
	}
	d.log.Info("stopped spectating", "player", d.target.Name)
}

func (d *Driver) cancel() {
	if d.handle.Valid() {
		d.sched.Cancel(d.handle)
		d.handle = sched.Handle{}
	}
}

// Active reports whether a follow loop or a deferred attach is scheduled.
func (d *Driver) Active() bool {
	return d.handle.Valid() && d.sched.Pending(d.handle)
}

// LastEmitted returns the last transform sent and how many were sent.
func (d *Driver) LastEmitted() (worldstate.Transform, int) { return d.lastEmitted, d.emitted }

func (d *Driver) attach(now time.Time) {
	d.handle = sched.Handle{}
	if d.stale() {
		return
	}
	if !d.limiter.Ready(now) {
		d.handle = d.sched.After(d.limiter.Remaining(now), d.attach)
		return
	}
	d.limiter.Mark(now)
	if err := d.world.Attach(d.target.ID); err != nil {
		d.log.Warn("spectate attach failed", "player", d.target.Name, "err", err)
		return
	}
	d.attached = true
	d.log.Info("spectating player", "player", d.target.Name)
	d.publish()
}

func (d *Driver) update(now time.Time) {
	if d.stale() {
		d.log.Debug("follow loop outlived its subject", "player", d.target.Name)
		d.Stop()
		return
	}

	subj, ok := d.world.Subject(d.target.ID)
	if !ok {
		d.recenter(now)
		return
	}
	if d.outOfRange {
		d.log.Info("player back in range", "player", subj.Name)
		d.outOfRange = false
	}
	d.lastKnown = subj.Position

	if !d.limiter.Ready(now) {
		return
	}
	yaw := d.dampYaw(subj.Yaw)
	t := d.solver.Frame(d.sampler, subj, yaw)
	d.emit(now, t)
}

// recenter parks the camera over the last known position while the subject
// is out of range, at most once per recenter interval.
func (d *Driver) recenter(now time.Time) {
	if !d.outOfRange {
		d.log.Info("player out of range", "player", d.target.Name)
		d.outOfRange = true
	}
	if !d.lastRecenter.IsZero() && now.Sub(d.lastRecenter) < d.opts.RecenterInterval {
		return
	}
	if !d.limiter.Ready(now) {
		return
	}
	d.lastRecenter = now

	ghost := d.target
	ghost.Position = d.lastKnown
	yaw := d.anchorYaw
	if !d.haveAnchor {
		yaw = ghost.Yaw
	}
	t := d.solver.Solve(ghost, yaw, camera.OpenMetrics(d.sampler.Config()))
	d.log.Debug("recentering near last known position", "player", d.target.Name, "pos", d.lastKnown)
	d.emit(now, t)
}

func (d *Driver) emit(now time.Time, t worldstate.Transform) {
	d.limiter.Mark(now)
	if err := d.world.SetTransform(t); err != nil {
		d.log.Warn("camera update failed", "player", d.target.Name, "err", err)
		return
	}
	d.lastEmitted = t
	d.emitted++
	d.publish()
}

func (d *Driver) publish() {
	if d.status != nil {
		d.status.SetSubject(d.target.Name)
	}
}

func (d *Driver) stale() bool {
	return d.current != nil && d.current.CurrentID() != d.target.ID
}

func (d *Driver) dampYaw(yaw float64) float64 {
	if !d.haveAnchor {
		d.anchorYaw = yaw
		d.haveAnchor = true
		return yaw
	}
	d.anchorYaw = camera.NormalizeYaw(d.anchorYaw + (1-d.opts.YawDamping)*camera.YawDelta(d.anchorYaw, yaw))
	return d.anchorYaw
}
