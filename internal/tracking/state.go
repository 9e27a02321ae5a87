package tracking

import (
	"sort"
	"strings"
	"time"

	"voxelcam.ai/internal/worldstate"
)

type Mode int

const (
	// ModeIdle is the state before the first decision of a session.
	ModeIdle Mode = iota
	ModeFollowing
	ModeShowcase
)

func (m Mode) String() string {
	switch m {
	case ModeFollowing:
		return "following"
	case ModeShowcase:
		return "showcase"
	default:
		return "idle"
	}
}

// Reason explains a subject switch.
type Reason string

const (
	ReasonNoSubject   Reason = "no_subject"
	ReasonSubjectLeft Reason = "subject_left"
	ReasonRotation    Reason = "rotation"
)

// State is the selector's view of what the camera is doing. One per session.
type State struct {
	Current       *worldstate.Subject
	LastSwitch    time.Time
	RotationIndex int
	Signature     string
	Mode          Mode

	lastDecision time.Time
}

func NewState() *State {
	return &State{RotationIndex: -1}
}

// CurrentID returns the id of the observed subject, or "".
func (s *State) CurrentID() string {
	if s == nil || s.Current == nil {
		return ""
	}
	return s.Current.ID
}

// Signature is the sorted, comma-joined list of subject names.
func Signature(subjects []worldstate.Subject) string {
	names := make([]string, 0, len(subjects))
	for _, s := range subjects {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
