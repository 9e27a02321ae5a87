// Package supervisor owns the connection lifecycle: connect, count failures,
// back off, reconnect, and re-arm the camera loops on every new session.
//
// All camera logic runs on the goroutine that calls Run. The session loop
// multiplexes context cancellation, session events and the scheduler's next
// due timer, so callbacks never run concurrently.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"voxelcam.ai/internal/sched"
	"voxelcam.ai/internal/worldstate"
)

// ErrTooManyFailures ends Run when consecutive connection failures reach the
// configured limit.
var ErrTooManyFailures = errors.New("too many consecutive connection failures")

type Options struct {
	Backoff     time.Duration
	MaxFailures int
}

func DefaultOptions() Options {
	return Options{Backoff: 10 * time.Second, MaxFailures: 3}
}

// Runtime is the set of loops bound to one established session.
type Runtime interface {
	// Start arms the loops. The scheduler has no live timers when it is called.
	Start(sess worldstate.Session)
	// Stop runs after every timer has been cancelled.
	Stop(reason string, err error)
}

// Stats counts lifecycle transitions since the supervisor was created.
type Stats struct {
	Attempts        int
	Established     int
	Failures        int
	TimersCancelled int
}

type Supervisor struct {
	opts      Options
	connector worldstate.Connector
	sched     *sched.Scheduler
	runtime   Runtime
	log       *log.Logger

	failures int
	authCode string
	stats    Stats
}

func New(opts Options, connector worldstate.Connector, s *sched.Scheduler, rt Runtime, logger *log.Logger) *Supervisor {
	d := DefaultOptions()
	if opts.Backoff <= 0 {
		opts.Backoff = d.Backoff
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = d.MaxFailures
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Supervisor{opts: opts, connector: connector, sched: s, runtime: rt, log: logger}
}

func (s *Supervisor) Stats() Stats { return s.stats }

type outcome struct {
	established bool
	authPending bool
	shutdown    bool
	reason      string
	err         error
}

// Run connects and keeps reconnecting until ctx is done (nil) or the failure
// limit is reached (ErrTooManyFailures).
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		s.stats.Attempts++
		s.log.Info("connecting", "attempt", s.stats.Attempts)
		sess, err := s.connector.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ferr := s.fail(err); ferr != nil {
				return ferr
			}
			s.log.Warn("connect failed", "err", err, "failures", s.failures, "retry_in", s.opts.Backoff)
		} else {
			out := s.runSession(ctx, sess)
			if out.shutdown {
				return nil
			}
			switch {
			case out.established:
				s.log.Warn("disconnected", "reason", out.reason, "err", out.err, "reconnect_in", s.opts.Backoff)
			case out.authPending:
				s.log.Info("connection closed during sign-in, retrying", "retry_in", s.opts.Backoff)
			default:
				err := out.err
				if err == nil {
					err = fmt.Errorf("session ended before it was established: %s", out.reason)
				}
				if ferr := s.fail(err); ferr != nil {
					return ferr
				}
				s.log.Warn("session failed", "err", err, "failures", s.failures, "retry_in", s.opts.Backoff)
			}
		}

		if !s.sleep(ctx, s.opts.Backoff) {
			return nil
		}
	}
}

func (s *Supervisor) fail(err error) error {
	s.failures++
	s.stats.Failures++
	if s.failures >= s.opts.MaxFailures {
		s.log.Error("giving up", "failures", s.failures, "err", err)
		return fmt.Errorf("%w (%d): %v", ErrTooManyFailures, s.failures, err)
	}
	return nil
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Supervisor) runSession(ctx context.Context, sess worldstate.Session) (out outcome) {
	started := false
	defer func() {
		s.teardown(started, out.reason, out.err)
		_ = sess.Close()
	}()

	events := sess.Events()
	for {
		timerC, stop := s.sched.Wait()
		select {
		case <-ctx.Done():
			stop()
			out.shutdown = true
			out.reason = "shutdown"
			return out

		case <-timerC:
			stop()
			s.sched.RunDue()

		case ev, ok := <-events:
			stop()
			if !ok {
				ev = worldstate.Event{Kind: worldstate.EventEnded, Reason: "event stream closed"}
			}
			switch ev.Kind {
			case worldstate.EventEstablished:
				if out.established {
					continue
				}
				out.established = true
				out.authPending = false
				s.failures = 0
				s.authCode = ""
				s.stats.Established++
				if n := s.sched.CancelAll(); n > 0 {
					s.stats.TimersCancelled += n
					s.log.Warn("cancelled stray timers before arming", "count", n)
				}
				s.log.Info("session established")
				s.runtime.Start(sess)
				started = true

			case worldstate.EventAuthPending:
				if out.established {
					continue
				}
				out.authPending = true
				if ev.Auth != nil && ev.Auth.UserCode != s.authCode {
					s.authCode = ev.Auth.UserCode
					s.log.Warn("sign-in required", "url", ev.Auth.VerificationURI, "code", ev.Auth.UserCode, "message", ev.Auth.Message)
				}

			case worldstate.EventError:
				if out.authPending && !out.established {
					s.log.Debug("error while sign-in is pending", "err", ev.Err)
					continue
				}
				s.log.Warn("session error", "err", ev.Err)
				out.err = ev.Err

			case worldstate.EventEnded:
				out.reason = ev.Reason
				if ev.Err != nil {
					out.err = ev.Err
				}
				return out
			}
		}
	}
}

// teardown cancels every timer, then lets the runtime release its state.
func (s *Supervisor) teardown(started bool, reason string, err error) {
	n := s.sched.CancelAll()
	s.stats.TimersCancelled += n
	s.log.Debug("timers cancelled", "count", n, "reason", reason)
	if started {
		s.runtime.Stop(reason, err)
	}
}
