// Package camera turns a subject's transform and its surroundings into a
// third-person camera placement.
//
// Angles crossing the package boundary are degrees; the trigonometry inside
// works in radians.
package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"voxelcam.ai/internal/worldstate"
)

// Config holds the framing bounds. Distances and heights are in blocks.
type Config struct {
	BaseDistance float64
	MinDistance  float64
	MaxDistance  float64

	BaseHeight float64
	MinHeight  float64
	MaxHeight  float64

	// AngleOffset rotates the camera around the subject, in degrees.
	AngleOffset float64
	// LookHeight is the point above the subject's feet the camera aims at.
	LookHeight float64
}

func DefaultConfig() Config {
	return Config{
		BaseDistance: 6,
		MinDistance:  2,
		MaxDistance:  10,
		BaseHeight:   3,
		MinHeight:    1,
		MaxHeight:    6,
		AngleOffset:  0,
		LookHeight:   worldstate.EyeHeight,
	}
}

// Enclosure shrinks the distance by up to this fraction.
const maxEnclosureShrink = 0.5

// Solver is pure: equal inputs always produce equal transforms.
type Solver struct {
	cfg Config
}

func NewSolver(cfg Config) Solver { return Solver{cfg: cfg} }

func (s Solver) Config() Config { return s.cfg }

// Distance applies the occlusion cap, the enclosure shrink and the bounds.
func (s Solver) Distance(m Metrics) float64 {
	d := s.cfg.BaseDistance
	if m.ClearDistance < d {
		d = m.ClearDistance
	}
	d *= 1 - maxEnclosureShrink*mgl64.Clamp(m.Enclosure, 0, 1)
	return mgl64.Clamp(d, s.cfg.MinDistance, s.cfg.MaxDistance)
}

// Height caps the base height to the ceiling clearance and applies the bounds.
// Heights are measured from the subject's feet.
func (s Solver) Height(m Metrics) float64 {
	h := s.cfg.BaseHeight
	if ceiling := worldstate.EyeHeight + m.ClearHeight; ceiling < h {
		h = ceiling
	}
	return mgl64.Clamp(h, s.cfg.MinHeight, s.cfg.MaxHeight)
}

// Solve places the camera behind and above subject, facing along yaw (degrees),
// and aims it at the subject's look point.
func (s Solver) Solve(subject worldstate.Subject, yaw float64, m Metrics) worldstate.Transform {
	dist := s.Distance(m)
	height := s.Height(m)

	pos := subject.Position.
		Add(Behind(yaw + s.cfg.AngleOffset).Mul(dist)).
		Add(worldstate.Vec3{0, height, 0})
	target := subject.Position.Add(worldstate.Vec3{0, s.cfg.LookHeight, 0})

	lookYaw, lookPitch := LookAt(pos, target)
	return worldstate.Transform{Position: pos, Yaw: lookYaw, Pitch: lookPitch}
}

// Frame probes the surroundings along the direction the camera will sit in,
// yaw plus the angle offset, and solves the placement from them.
func (s Solver) Frame(sampler *Sampler, subject worldstate.Subject, yaw float64) worldstate.Transform {
	return s.Solve(subject, yaw, sampler.Sample(subject, yaw+s.cfg.AngleOffset))
}

// LookAt returns the yaw and pitch (degrees) that aim from at to. Positive
// pitch looks down.
func LookAt(from, to worldstate.Vec3) (yaw, pitch float64) {
	d := to.Sub(from)
	horiz := math.Hypot(d.X(), d.Z())
	if horiz < 1e-9 && math.Abs(d.Y()) < 1e-9 {
		return 0, 0
	}
	yaw = NormalizeYaw(mgl64.RadToDeg(math.Atan2(-d.X(), d.Z())))
	pitch = mgl64.RadToDeg(-math.Atan2(d.Y(), horiz))
	return yaw, pitch
}

// NormalizeYaw maps a yaw to (-180, 180].
func NormalizeYaw(yaw float64) float64 {
	y := math.Mod(yaw, 360)
	if y <= -180 {
		y += 360
	} else if y > 180 {
		y -= 360
	}
	return y
}

// YawDelta is the signed shortest rotation from a to b, in degrees.
func YawDelta(a, b float64) float64 {
	return NormalizeYaw(b - a)
}
