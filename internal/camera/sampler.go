package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"voxelcam.ai/internal/worldstate"
)

// SamplerConfig bounds the geometry probes around a subject.
type SamplerConfig struct {
	// Step is the spacing of samples along the behind and ceiling rays.
	Step float64
	// MaxDistance is how far behind the subject the behind ray reaches.
	MaxDistance float64
	// MaxHeight is how far above the eye the ceiling ray reaches.
	MaxHeight float64
	// LatticeRadius and LatticeStride shape the enclosure lattice, in blocks.
	LatticeRadius int
	LatticeStride int
}

func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Step:          0.5,
		MaxDistance:   12,
		MaxHeight:     8,
		LatticeRadius: 4,
		LatticeStride: 2,
	}
}

// Metrics summarises the open space around a subject.
type Metrics struct {
	// ClearDistance is the unobstructed distance behind the subject's eye.
	ClearDistance float64
	// ClearHeight is the unobstructed distance above the subject's eye.
	ClearHeight float64
	// Enclosure is the fraction of solid lattice points, in [0, 1].
	Enclosure float64
}

// OpenMetrics is what the sampler reports for a subject in open air.
func OpenMetrics(cfg SamplerConfig) Metrics {
	return Metrics{ClearDistance: cfg.MaxDistance, ClearHeight: cfg.MaxHeight}
}

// Sampler probes world geometry. Unknown samples count as open.
type Sampler struct {
	cfg   SamplerConfig
	world worldstate.SolidQuery
}

func NewSampler(world worldstate.SolidQuery, cfg SamplerConfig) *Sampler {
	d := DefaultSamplerConfig()
	if cfg.Step <= 0 {
		cfg.Step = d.Step
	}
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = d.MaxDistance
	}
	if cfg.MaxHeight <= 0 {
		cfg.MaxHeight = d.MaxHeight
	}
	if cfg.LatticeRadius <= 0 {
		cfg.LatticeRadius = d.LatticeRadius
	}
	if cfg.LatticeStride <= 0 {
		cfg.LatticeStride = d.LatticeStride
	}
	return &Sampler{cfg: cfg, world: world}
}

func (s *Sampler) Config() SamplerConfig { return s.cfg }

// Sample measures the space around subject, looking back along yaw (degrees).
func (s *Sampler) Sample(subject worldstate.Subject, yaw float64) Metrics {
	eye := subject.Eye()
	return Metrics{
		ClearDistance: s.clearAlong(eye, Behind(yaw), s.cfg.MaxDistance),
		ClearHeight:   s.clearAlong(eye, worldstate.Vec3{0, 1, 0}, s.cfg.MaxHeight),
		Enclosure:     s.enclosure(eye),
	}
}

// clearAlong walks from origin along dir and returns the last open distance
// before the first solid sample.
func (s *Sampler) clearAlong(origin, dir worldstate.Vec3, limit float64) float64 {
	step := s.cfg.Step
	for d := step; d <= limit+1e-9; d += step {
		if s.solid(origin.Add(dir.Mul(d))) {
			return math.Max(0, d-step)
		}
	}
	return limit
}

func (s *Sampler) enclosure(center worldstate.Vec3) float64 {
	r, stride := s.cfg.LatticeRadius, s.cfg.LatticeStride
	total, solid := 0, 0
	for dy := -r; dy <= r; dy += stride {
		for dz := -r; dz <= r; dz += stride {
			for dx := -r; dx <= r; dx += stride {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				total++
				if s.solid(center.Add(worldstate.Vec3{float64(dx), float64(dy), float64(dz)})) {
					solid++
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(solid) / float64(total)
}

func (s *Sampler) solid(p worldstate.Vec3) bool {
	if s.world == nil {
		return false
	}
	return s.world.QuerySolid(p).IsSolid()
}

// Behind returns the horizontal unit vector pointing away from where a yaw
// (degrees) faces. Yaw 0 faces +Z, yaw 90 faces -X.
func Behind(yaw float64) worldstate.Vec3 {
	r := mgl64.DegToRad(yaw)
	return worldstate.Vec3{math.Sin(r), 0, -math.Cos(r)}
}
