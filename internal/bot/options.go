package bot

import (
	"math"
	"time"

	"voxelcam.ai/internal/camera"
	"voxelcam.ai/internal/config"
	"voxelcam.ai/internal/follow"
	"voxelcam.ai/internal/showcase"
	"voxelcam.ai/internal/tracking"
	"voxelcam.ai/internal/worldstate"
)

// Options configures the per-session camera loops.
type Options struct {
	Tracking tracking.Options
	Follow   follow.Options
	Camera   camera.Config
	Sampler  camera.SamplerConfig
	Showcase showcase.Options
}

func DefaultOptions() Options {
	return Options{
		Tracking: tracking.DefaultOptions(),
		Follow:   follow.DefaultOptions(),
		Camera:   camera.DefaultConfig(),
		Sampler:  camera.DefaultSamplerConfig(),
		Showcase: showcase.DefaultOptions(),
	}
}

func OptionsFromConfig(cfg config.Config) (Options, error) {
	mode, err := follow.ParseMode(cfg.CameraMode)
	if err != nil {
		return Options{}, err
	}
	o := DefaultOptions()
	o.Tracking = tracking.Options{
		CheckInterval:  cfg.CheckInterval,
		SwitchInterval: cfg.SwitchInterval,
	}
	o.Follow = follow.Options{
		Mode:              mode,
		UpdateInterval:    cfg.UpdateInterval,
		MinCommandSpacing: cfg.MinCommandSpacing,
		RecenterInterval:  cfg.RecenterInterval,
		YawDamping:        cfg.YawDamping,
	}
	o.Camera = camera.Config{
		BaseDistance: cfg.Distance,
		MinDistance:  cfg.MinDistance,
		MaxDistance:  cfg.MaxDistance,
		BaseHeight:   cfg.Height,
		MinHeight:    cfg.MinHeight,
		MaxHeight:    cfg.MaxHeight,
		AngleOffset:  cfg.AngleOffset,
		LookHeight:   cfg.LookHeight,
	}
	// Probes must reach at least as far as the solver may place the camera.
	o.Sampler.MaxDistance = math.Max(o.Sampler.MaxDistance, cfg.MaxDistance)
	o.Sampler.MaxHeight = math.Max(o.Sampler.MaxHeight, cfg.MaxHeight)

	o.Showcase.DefaultDwell = cfg.ShowcaseDuration
	o.Showcase.Fallback.Position = worldstate.Vec3{cfg.ShowcaseDefault[0], cfg.ShowcaseDefault[1], cfg.ShowcaseDefault[2]}
	o.Showcase.Locations = make([]showcase.Location, 0, len(cfg.ShowcaseLocations))
	for _, l := range cfg.ShowcaseLocations {
		o.Showcase.Locations = append(o.Showcase.Locations, showcase.Location{
			Position:    worldstate.Vec3{l.Position[0], l.Position[1], l.Position[2]},
			Yaw:         l.Yaw,
			Pitch:       l.Pitch,
			Description: l.Description,
			Dwell:       time.Duration(l.Duration),
		})
	}
	return o, nil
}
