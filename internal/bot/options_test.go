package bot

import (
	"testing"
	"time"

	"voxelcam.ai/internal/config"
	"voxelcam.ai/internal/follow"
	"voxelcam.ai/internal/worldstate"
)

func testConfig(t *testing.T, kv map[string]string) config.Config {
	t.Helper()
	env := map[string]string{
		"BOT_USERNAME": "CamBot",
		"SERVER_URL":   "ws://127.0.0.1:1/v1/spectate",
		"DATA_DIR":     t.TempDir(),
	}
	for k, v := range kv {
		env[k] = v
	}
	cfg, err := config.FromLookup(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"CAMERA_MODE":               "spectate",
		"CAMERA_PROFILE":            "conservative",
		"CAMERA_MAX_DISTANCE":       "16",
		"CAMERA_YAW_DAMPING":        "0.25",
		"SHOWCASE_DEFAULT_POSITION": "5,80,5",
	})
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Follow.Mode != follow.ModeSpectate || opts.Follow.UpdateInterval != 2*time.Second || opts.Follow.YawDamping != 0.25 {
		t.Fatalf("follow=%+v", opts.Follow)
	}
	if opts.Camera.MaxDistance != 16 || opts.Sampler.MaxDistance < 16 {
		t.Fatalf("camera=%+v sampler=%+v", opts.Camera, opts.Sampler)
	}
	if opts.Showcase.Fallback.Position != (worldstate.Vec3{5, 80, 5}) || len(opts.Showcase.Locations) != 0 {
		t.Fatalf("showcase=%+v", opts.Showcase)
	}
	if opts.Tracking.CheckInterval != 5*time.Second || opts.Tracking.SwitchInterval != 30*time.Second {
		t.Fatalf("tracking=%+v", opts.Tracking)
	}
}
