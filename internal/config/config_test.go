package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func env(kv map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := kv[key]
		return v, ok
	}
}

func base() map[string]string {
	return map[string]string{
		"BOT_USERNAME": "CamBot",
		"SERVER_URL":   "ws://localhost:8080/v1/spectate",
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(env(base()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CheckInterval != 5*time.Second || cfg.SwitchInterval != 30*time.Second {
		t.Fatalf("intervals=%v/%v", cfg.CheckInterval, cfg.SwitchInterval)
	}
	if cfg.UpdateInterval != 500*time.Millisecond || cfg.MinCommandSpacing != 100*time.Millisecond || cfg.RecenterInterval != 2*time.Second {
		t.Fatalf("smooth profile not applied: %+v", cfg)
	}
	if cfg.CameraMode != "third-person" || cfg.MaxConnectFailures != 3 || cfg.ReconnectBackoff != 10*time.Second {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.StatusFile != filepath.Join("data", "current_subject.txt") {
		t.Fatalf("status file=%q", cfg.StatusFile)
	}
}

func TestFromLookup_MissingRequired(t *testing.T) {
	_, err := FromLookup(env(map[string]string{}))
	if !errors.Is(err, ErrMissing) {
		t.Fatalf("err=%v want ErrMissing", err)
	}
	for _, key := range []string{"BOT_USERNAME", "SERVER_URL"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("err=%v does not name %s", err, key)
		}
	}
}

func TestFromLookup_ConservativeProfileWithOverride(t *testing.T) {
	kv := base()
	kv["CAMERA_PROFILE"] = "Conservative"
	kv["CAMERA_RECENTER_INTERVAL"] = "5s"
	cfg, err := FromLookup(env(kv))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.UpdateInterval != 2*time.Second || cfg.MinCommandSpacing != 500*time.Millisecond {
		t.Fatalf("profile timings=%v/%v", cfg.UpdateInterval, cfg.MinCommandSpacing)
	}
	if cfg.RecenterInterval != 5*time.Second {
		t.Fatalf("explicit key should beat profile, got %v", cfg.RecenterInterval)
	}
}

func TestFromLookup_IntervalsAcceptMillisecondsAndDurations(t *testing.T) {
	kv := base()
	kv["CHECK_INTERVAL"] = "2500"
	kv["SWITCH_INTERVAL"] = "1m"
	cfg, err := FromLookup(env(kv))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CheckInterval != 2500*time.Millisecond || cfg.SwitchInterval != time.Minute {
		t.Fatalf("intervals=%v/%v", cfg.CheckInterval, cfg.SwitchInterval)
	}
}

func TestFromLookup_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"CHECK_INTERVAL":       "soon",
		"CAMERA_MODE":          "orbit",
		"CAMERA_PROFILE":       "jittery",
		"CAMERA_DISTANCE":      "20",
		"CAMERA_YAW_DAMPING":   "1",
		"SERVER_URL":           "http://localhost:8080",
		"LOG_FORMAT":           "xml",
		"MAX_CONNECT_FAILURES": "0",
	}
	for key, val := range cases {
		kv := base()
		kv[key] = val
		if _, err := FromLookup(env(kv)); err == nil {
			t.Fatalf("%s=%q accepted", key, val)
		}
	}
}

func TestFromLookup_ShowcaseDefaultPosition(t *testing.T) {
	kv := base()
	kv["SHOWCASE_DEFAULT_POSITION"] = "10, 90.5, -4"
	cfg, err := FromLookup(env(kv))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ShowcaseDefault != [3]float64{10, 90.5, -4} {
		t.Fatalf("default=%v", cfg.ShowcaseDefault)
	}
}

func TestFromLookup_InlineLocationsJSON(t *testing.T) {
	kv := base()
	kv["SHOWCASE_LOCATIONS"] = `[{"position":[0,100,0],"yaw":0,"pitch":30,"description":"Spawn"},{"position":[50,80,-20],"duration":5000}]`
	cfg, err := FromLookup(env(kv))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.ShowcaseLocations) != 2 {
		t.Fatalf("locations=%d", len(cfg.ShowcaseLocations))
	}
	if cfg.ShowcaseLocations[1].Description != "Location 2" {
		t.Fatalf("unnamed location=%q", cfg.ShowcaseLocations[1].Description)
	}
	if time.Duration(cfg.ShowcaseLocations[1].Duration) != 5*time.Second {
		t.Fatalf("duration=%v", time.Duration(cfg.ShowcaseLocations[1].Duration))
	}
}

func TestLoadLocations_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "showcase.yaml")
	doc := `default_duration: 20s
locations:
  - description: Harbor
    position: [12, 70, -40]
    yaw: 90
    pitch: 15
  - description: Peak
    position: [300, 140, 80]
    duration: 8s
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	locs, err := LoadLocations(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(locs) != 2 || locs[0].Description != "Harbor" || locs[0].Position != [3]float64{12, 70, -40} {
		t.Fatalf("locs=%+v", locs)
	}
	if time.Duration(locs[0].Duration) != 20*time.Second || time.Duration(locs[1].Duration) != 8*time.Second {
		t.Fatalf("durations=%v/%v", time.Duration(locs[0].Duration), time.Duration(locs[1].Duration))
	}
}

func TestParseLocations_SchemaRejects(t *testing.T) {
	bad := []string{
		`[{"position":[1,2]}]`,
		`[{"description":"x"}]`,
		`[{"position":[1,2,3],"pitch":120}]`,
		`{"stops":[]}`,
		`[{"position":[1,2,3],"colour":"red"}]`,
	}
	for _, doc := range bad {
		if _, err := ParseLocations([]byte(doc)); err == nil {
			t.Fatalf("accepted %s", doc)
		}
	}
}

func TestFromLookup_LocationsFileKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locs.json")
	if err := os.WriteFile(path, []byte(`{"locations":[{"position":[1,2,3]}]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	kv := base()
	kv["SHOWCASE_LOCATIONS_FILE"] = path
	cfg, err := FromLookup(env(kv))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.ShowcaseLocations) != 1 || cfg.ShowcaseLocations[0].Description != "Location 1" {
		t.Fatalf("locations=%+v", cfg.ShowcaseLocations)
	}

	kv["SHOWCASE_LOCATIONS_FILE"] = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := FromLookup(env(kv)); err == nil {
		t.Fatalf("missing file accepted")
	}
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	body := "BOT_USERNAME=FromFile\nSERVER_URL=ws://file.example:1/v1/spectate\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("BOT_USERNAME", "FromEnv")
	t.Setenv("SERVER_URL", "")
	os.Unsetenv("SERVER_URL")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Username != "FromEnv" {
		t.Fatalf("username=%q want env to win", cfg.Username)
	}
	if cfg.ServerURL != "ws://file.example:1/v1/spectate" {
		t.Fatalf("server url=%q want value from file", cfg.ServerURL)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "nope.env")); err == nil {
		t.Fatalf("explicit missing env file accepted")
	}
}

func TestConfig_EntriesCoverEveryKey(t *testing.T) {
	cfg, err := FromLookup(env(base()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := map[string]string{}
	for _, e := range cfg.Entries() {
		got[e[0]] = e[1]
	}
	if len(got) != 30 {
		t.Fatalf("entries=%d want 30", len(got))
	}
	if got["CHECK_INTERVAL"] != "5s" || got["SHOWCASE_DEFAULT_POSITION"] != "0,100,0" || got["BOT_USERNAME"] != "CamBot" {
		t.Fatalf("entries=%v", got)
	}
}
