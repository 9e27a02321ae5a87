// Package bot wires the camera loops to a world session and runs the bot
// process around them.
package bot

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"voxelcam.ai/internal/camera"
	"voxelcam.ai/internal/follow"
	"voxelcam.ai/internal/logging"
	"voxelcam.ai/internal/persistence/history"
	"voxelcam.ai/internal/persistence/journal"
	"voxelcam.ai/internal/sched"
	"voxelcam.ai/internal/showcase"
	"voxelcam.ai/internal/status"
	"voxelcam.ai/internal/tracking"
	"voxelcam.ai/internal/worldstate"
)

type Deps struct {
	Sched   *sched.Scheduler
	Status  *status.Board
	Journal *journal.Writer
	History *history.Store
	// NewID names sessions; uuid.NewString when nil.
	NewID  func() string
	Logger *log.Logger
}

// Runtime is the set of loops bound to one established session. It
// implements supervisor.Runtime; all methods run on the supervisor goroutine.
type Runtime struct {
	opts  Options
	sched *sched.Scheduler
	board *status.Board
	jw    *journal.Writer
	hist  *history.Store
	newID func() string
	log   *log.Logger

	sessionID string
	rec       *recorder
	selector  *tracking.Selector
	driver    *follow.Driver
	tour      *showcase.Controller
}

func NewRuntime(opts Options, deps Deps) *Runtime {
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Runtime{
		opts:  opts,
		sched: deps.Sched,
		board: deps.Status,
		jw:    deps.Journal,
		hist:  deps.History,
		newID: deps.NewID,
		log:   deps.Logger,
	}
}

// SessionID is the id of the current or last session.
func (r *Runtime) SessionID() string { return r.sessionID }

// State is the tracking state of the current session, nil before the first.
func (r *Runtime) State() *tracking.State {
	if r.selector == nil {
		return nil
	}
	return r.selector.State()
}

func (r *Runtime) Driver() *follow.Driver         { return r.driver }
func (r *Runtime) Showcase() *showcase.Controller { return r.tour }

// Start builds fresh loops for sess and arms the selector.
func (r *Runtime) Start(sess worldstate.Session) {
	now := r.sched.Now()
	r.sessionID = r.newID()
	observer := ""
	if self, ok := sess.Self(); ok {
		observer = self.Name
	}
	r.log.Info("camera session started", "session", r.sessionID, "observer", observer)

	r.rec = &recorder{
		sessionID: r.sessionID,
		journal:   r.jw,
		history:   r.hist,
		board:     r.board,
		log:       r.log,
	}
	r.rec.sessionStart(observer, now)
	if r.board != nil {
		r.board.SetSession(r.sessionID, true)
	}

	state := tracking.NewState()
	sampler := camera.NewSampler(sess, r.opts.Sampler)
	solver := camera.NewSolver(r.opts.Camera)

	var followStatus follow.StatusSink
	if r.board != nil {
		followStatus = r.board
	}
	r.driver = follow.NewDriver(r.opts.Follow, follow.Deps{
		World:   sess,
		Sampler: sampler,
		Solver:  solver,
		Sched:   r.sched,
		Current: state,
		Status:  followStatus,
		Logger:  logging.Component(r.log, "follow"),
	})
	r.tour = showcase.New(r.opts.Showcase, showcase.Deps{
		Mover:  sess,
		Sched:  r.sched,
		Status: showcaseStatus{board: r.board, rec: r.rec, now: r.sched.Now},
		Logger: logging.Component(r.log, "showcase"),
	})
	r.selector = tracking.NewSelector(r.opts.Tracking, tracking.Deps{
		State:    state,
		Roster:   sess,
		Follower: r.driver,
		Showcase: r.tour,
		Recorder: r.rec,
		Sched:    r.sched,
		Logger:   logging.Component(r.log, "tracking"),
	})
	r.armWhenSynced(sess)
}

// rosterPoll is how often a freshly established session is checked for its
// first roster.
const rosterPoll = 100 * time.Millisecond

// armWhenSynced holds the first decision until the session has delivered a
// roster, so a reconnect does not flash the showcase while subjects are
// online. A session that stays silent for a check interval is armed anyway.
func (r *Runtime) armWhenSynced(sess worldstate.Session) {
	rs, ok := sess.(worldstate.RosterSync)
	if !ok || rs.RosterSynced() {
		r.selector.Arm()
		return
	}
	wait := r.opts.Tracking.CheckInterval
	if wait <= 0 {
		wait = tracking.DefaultOptions().CheckInterval
	}
	deadline := r.sched.Now().Add(wait)
	selector := r.selector
	var h sched.Handle
	h = r.sched.Every(rosterPoll, func(now time.Time) {
		synced := rs.RosterSynced()
		if !synced && now.Before(deadline) {
			return
		}
		r.sched.Cancel(h)
		if !synced {
			r.log.Warn("no roster from server yet, arming anyway", "session", r.sessionID)
		}
		selector.Arm()
	})
}

// Stop records the end of the session. Timers are already cancelled.
func (r *Runtime) Stop(reason string, err error) {
	now := r.sched.Now()
	if r.rec != nil {
		r.rec.sessionEnd(reason, err, now)
	}
	if r.board != nil {
		r.board.SetSession(r.sessionID, false)
		r.board.SetMode("disconnected")
	}
	fields := []any{"session", r.sessionID, "reason", reason}
	if err != nil {
		fields = append(fields, "err", err)
	}
	if st := r.State(); st != nil && !st.LastSwitch.IsZero() {
		fields = append(fields, "since_last_switch", now.Sub(st.LastSwitch).Round(time.Second))
	}
	r.log.Info("camera session stopped", fields...)
}
