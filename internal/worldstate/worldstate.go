// Package worldstate describes the view of the game world the camera bot consumes.
//
// The connection layer owns the data; everything in here is read through the
// Adapter interface and written back only through SetTransform and Attach.
package worldstate

import (
	"context"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 is a world-space point or direction (x east, y up, z south).
type Vec3 = mgl64.Vec3

// EyeHeight is the standing eye height of a subject above its feet.
const EyeHeight = 1.62

// Subject is a trackable participant. Angles are in degrees.
type Subject struct {
	ID       string
	Name     string
	Position Vec3
	Yaw      float64
	Pitch    float64
	Velocity Vec3
}

// Eye returns the subject's eye point.
func (s Subject) Eye() Vec3 {
	return s.Position.Add(Vec3{0, EyeHeight, 0})
}

// Transform is a camera placement applied to the observer. Angles are in degrees.
type Transform struct {
	Position Vec3
	Yaw      float64
	Pitch    float64
}

// Solidity is the answer to a world geometry point query.
type Solidity uint8

const (
	// Unknown means the geometry at the point is not loaded.
	Unknown Solidity = iota
	Empty
	Solid
)

// IsSolid reports whether the point blocks the camera. Unknown is treated as open.
func (s Solidity) IsSolid() bool { return s == Solid }

func (s Solidity) String() string {
	switch s {
	case Empty:
		return "empty"
	case Solid:
		return "solid"
	default:
		return "unknown"
	}
}

// BlockOf returns the integer block coordinates containing p.
func BlockOf(p Vec3) (x, y, z int) {
	return int(math.Floor(p.X())), int(math.Floor(p.Y())), int(math.Floor(p.Z()))
}

// SolidQuery answers point queries against world geometry.
type SolidQuery interface {
	QuerySolid(p Vec3) Solidity
}

// Roster lists the connected participants.
type Roster interface {
	// Self returns the observer's own entity.
	Self() (Subject, bool)
	// Subjects returns every connected participant, the observer included.
	Subjects() []Subject
	// Subject resolves one participant by id; false when it is out of range or gone.
	Subject(id string) (Subject, bool)
}

// RosterSync is implemented by sessions whose roster arrives some time after
// the session is established.
type RosterSync interface {
	RosterSynced() bool
}

// Mover changes the observer's placement. Calls are one-way commands.
type Mover interface {
	SetTransform(t Transform) error
}

// Adapter is the full world view used by the camera loops.
type Adapter interface {
	Roster
	SolidQuery
	Mover
	// Attach asks the server to lock the observer's view to a subject.
	Attach(subjectID string) error
}

// EventKind enumerates session lifecycle events.
type EventKind int

const (
	EventEstablished EventKind = iota + 1
	EventEnded
	EventError
	EventAuthPending
)

func (k EventKind) String() string {
	switch k {
	case EventEstablished:
		return "established"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	case EventAuthPending:
		return "auth_pending"
	default:
		return "unknown"
	}
}

// AuthPrompt carries the out-of-band authentication instructions.
type AuthPrompt struct {
	VerificationURI string
	UserCode        string
	Message         string
}

// Event is a session lifecycle notification.
type Event struct {
	Kind   EventKind
	Err    error
	Reason string
	Auth   *AuthPrompt
}

// Session is one connection to the game server.
type Session interface {
	Adapter
	// Events delivers lifecycle events. The channel is closed after EventEnded.
	Events() <-chan Event
	Close() error
}

// Connector establishes sessions.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}
