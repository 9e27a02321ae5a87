package bot

import (
	"time"

	"github.com/charmbracelet/log"

	"voxelcam.ai/internal/persistence/history"
	"voxelcam.ai/internal/persistence/journal"
	"voxelcam.ai/internal/status"
	"voxelcam.ai/internal/tracking"
	"voxelcam.ai/internal/worldstate"
)

// recorder fans selector transitions and showcase stops out to the journal
// and the history store. Either may be nil.
type recorder struct {
	sessionID string
	journal   *journal.Writer
	history   *history.Store
	board     *status.Board
	log       *log.Logger
}

func (r *recorder) write(e journal.Entry) {
	if r.journal == nil {
		return
	}
	e.SessionID = r.sessionID
	if err := r.journal.Write(e); err != nil {
		r.log.Warn("journal write failed", "kind", e.Kind, "err", err)
	}
}

func (r *recorder) sessionStart(observer string, at time.Time) {
	r.write(journal.Entry{Time: at, Kind: journal.KindSessionStart, Subject: observer})
	r.history.StartSession(r.sessionID, observer, at)
}

func (r *recorder) sessionEnd(reason string, err error, at time.Time) {
	e := journal.Entry{Time: at, Kind: journal.KindSessionEnd, Reason: reason}
	if err != nil {
		e.Error = err.Error()
	}
	r.write(e)
	r.history.EndSession(r.sessionID, reason, at)
}

func (r *recorder) RecordMode(from, to tracking.Mode, at time.Time) {
	r.write(journal.Entry{Time: at, Kind: journal.KindMode, From: from.String(), To: to.String()})
	if to == tracking.ModeShowcase {
		r.history.EndObservation(r.sessionID, at)
	}
	if r.board != nil {
		r.board.SetMode(to.String())
	}
}

func (r *recorder) RecordSwitch(prev *worldstate.Subject, next worldstate.Subject, reason tracking.Reason, at time.Time) {
	e := journal.Entry{Time: at, Kind: journal.KindSwitch, Subject: next.Name, SubjectID: next.ID, Reason: string(reason)}
	if prev != nil {
		e.Previous = prev.Name
	}
	r.write(e)
	r.history.BeginObservation(r.sessionID, next.ID, next.Name, string(reason), at)
}

// showcaseStatus mirrors tour stops into the board and the journal.
type showcaseStatus struct {
	board *status.Board
	rec   *recorder
	now   func() time.Time
}

func (s showcaseStatus) SetShowcase(description string) {
	if s.board != nil {
		s.board.SetShowcase(description)
	}
	s.rec.write(journal.Entry{Time: s.now(), Kind: journal.KindShowcase, Location: description})
}
