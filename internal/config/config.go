// Package config loads the bot's settings from defaults, an optional .env
// file, the process environment and an optional showcase locations file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

// ErrMissing marks a required setting that was not provided.
var ErrMissing = errors.New("missing required setting")

type Config struct {
	Username  string
	ServerURL string

	CheckInterval  time.Duration
	SwitchInterval time.Duration

	CameraMode        string
	CameraProfile     string
	UpdateInterval    time.Duration
	MinCommandSpacing time.Duration
	RecenterInterval  time.Duration

	Distance    float64
	MinDistance float64
	MaxDistance float64
	Height      float64
	MinHeight   float64
	MaxHeight   float64
	AngleOffset float64
	LookHeight  float64
	YawDamping  float64

	ShowcaseDuration      time.Duration
	ShowcaseLocations     []Location
	ShowcaseLocationsFile string
	ShowcaseDefault       [3]float64

	ChunkRadius int

	StatusFile string
	DataDir    string
	HTTPAddr   string

	ReconnectBackoff   time.Duration
	MaxConnectFailures int

	LogLevel  string
	LogFormat string
}

// Profile is a named set of camera timings.
type Profile struct {
	UpdateInterval    time.Duration
	MinCommandSpacing time.Duration
	RecenterInterval  time.Duration
}

var Profiles = map[string]Profile{
	"smooth":       {UpdateInterval: 500 * time.Millisecond, MinCommandSpacing: 100 * time.Millisecond, RecenterInterval: 2 * time.Second},
	"conservative": {UpdateInterval: 2000 * time.Millisecond, MinCommandSpacing: 500 * time.Millisecond, RecenterInterval: 3 * time.Second},
}

func Defaults() Config {
	p := Profiles["smooth"]
	return Config{
		CheckInterval:      5 * time.Second,
		SwitchInterval:     30 * time.Second,
		CameraMode:         "third-person",
		CameraProfile:      "smooth",
		UpdateInterval:     p.UpdateInterval,
		MinCommandSpacing:  p.MinCommandSpacing,
		RecenterInterval:   p.RecenterInterval,
		Distance:           6,
		MinDistance:        2,
		MaxDistance:        10,
		Height:             3,
		MinHeight:          1,
		MaxHeight:          6,
		LookHeight:         1.62,
		ShowcaseDuration:   15 * time.Second,
		ShowcaseDefault:    [3]float64{0, 100, 0},
		ChunkRadius:        4,
		DataDir:            "data",
		HTTPAddr:           ":3000",
		ReconnectBackoff:   10 * time.Second,
		MaxConnectFailures: 3,
		LogLevel:           "info",
		LogFormat:          "auto",
	}
}

// Lookup reads one environment key.
type Lookup func(key string) (string, bool)

// Load reads envFile (".env" when empty; a missing default file is fine)
// without overriding variables already set, then the environment.
func Load(envFile string) (Config, error) {
	path := envFile
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if envFile != "" || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("env file %s: %w", path, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a validated Config from environment-style keys.
func FromLookup(lookup Lookup) (Config, error) {
	cfg := Defaults()
	p := parser{lookup: lookup}

	p.str("BOT_USERNAME", &cfg.Username)
	p.str("SERVER_URL", &cfg.ServerURL)

	p.str("CAMERA_PROFILE", &cfg.CameraProfile)
	cfg.CameraProfile = strings.ToLower(strings.TrimSpace(cfg.CameraProfile))
	if prof, ok := Profiles[cfg.CameraProfile]; ok {
		cfg.UpdateInterval = prof.UpdateInterval
		cfg.MinCommandSpacing = prof.MinCommandSpacing
		cfg.RecenterInterval = prof.RecenterInterval
	} else {
		p.errs = append(p.errs, fmt.Errorf("CAMERA_PROFILE: unknown profile %q", cfg.CameraProfile))
	}

	p.interval("CHECK_INTERVAL", &cfg.CheckInterval)
	p.interval("SWITCH_INTERVAL", &cfg.SwitchInterval)
	p.str("CAMERA_MODE", &cfg.CameraMode)
	p.interval("CAMERA_UPDATE_INTERVAL", &cfg.UpdateInterval)
	p.interval("CAMERA_MIN_COMMAND_SPACING", &cfg.MinCommandSpacing)
	p.interval("CAMERA_RECENTER_INTERVAL", &cfg.RecenterInterval)

	p.float("CAMERA_DISTANCE", &cfg.Distance)
	p.float("CAMERA_MIN_DISTANCE", &cfg.MinDistance)
	p.float("CAMERA_MAX_DISTANCE", &cfg.MaxDistance)
	p.float("CAMERA_HEIGHT", &cfg.Height)
	p.float("CAMERA_MIN_HEIGHT", &cfg.MinHeight)
	p.float("CAMERA_MAX_HEIGHT", &cfg.MaxHeight)
	p.float("CAMERA_ANGLE_OFFSET", &cfg.AngleOffset)
	p.float("CAMERA_LOOK_HEIGHT", &cfg.LookHeight)
	p.float("CAMERA_YAW_DAMPING", &cfg.YawDamping)

	p.interval("SHOWCASE_DURATION", &cfg.ShowcaseDuration)
	p.str("SHOWCASE_LOCATIONS_FILE", &cfg.ShowcaseLocationsFile)
	p.vec3("SHOWCASE_DEFAULT_POSITION", &cfg.ShowcaseDefault)

	p.int("CHUNK_RADIUS", &cfg.ChunkRadius)
	p.str("STATUS_FILE", &cfg.StatusFile)
	p.str("DATA_DIR", &cfg.DataDir)
	p.str("HTTP_ADDR", &cfg.HTTPAddr)
	p.interval("RECONNECT_BACKOFF", &cfg.ReconnectBackoff)
	p.int("MAX_CONNECT_FAILURES", &cfg.MaxConnectFailures)
	p.str("LOG_LEVEL", &cfg.LogLevel)
	p.str("LOG_FORMAT", &cfg.LogFormat)

	if raw, ok := lookup("SHOWCASE_LOCATIONS"); ok && strings.TrimSpace(raw) != "" {
		locs, err := ParseLocations([]byte(raw))
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("SHOWCASE_LOCATIONS: %w", err))
		}
		cfg.ShowcaseLocations = locs
	} else if cfg.ShowcaseLocationsFile != "" {
		locs, err := LoadLocations(cfg.ShowcaseLocationsFile)
		if err != nil {
			p.errs = append(p.errs, err)
		}
		cfg.ShowcaseLocations = locs
	}

	if err := errors.Join(p.errs...); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Username = strings.TrimSpace(c.Username)
	c.ServerURL = strings.TrimSpace(c.ServerURL)
	c.CameraMode = strings.ToLower(strings.TrimSpace(c.CameraMode))
	c.CameraProfile = strings.ToLower(strings.TrimSpace(c.CameraProfile))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.StatusFile == "" {
		c.StatusFile = filepath.Join(c.DataDir, "current_subject.txt")
	}
	for i := range c.ShowcaseLocations {
		if strings.TrimSpace(c.ShowcaseLocations[i].Description) == "" {
			c.ShowcaseLocations[i].Description = fmt.Sprintf("Location %d", i+1)
		}
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Username == "" {
		errs = append(errs, fmt.Errorf("%w: BOT_USERNAME", ErrMissing))
	}
	if c.ServerURL == "" {
		errs = append(errs, fmt.Errorf("%w: SERVER_URL", ErrMissing))
	} else if u, err := url.Parse(c.ServerURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		errs = append(errs, fmt.Errorf("SERVER_URL: want ws:// or wss:// URL, got %q", c.ServerURL))
	}

	switch c.CameraMode {
	case "third-person", "spectate":
	default:
		errs = append(errs, fmt.Errorf("CAMERA_MODE: unsupported value %q", c.CameraMode))
	}

	positive := []struct {
		key string
		d   time.Duration
	}{
		{"CHECK_INTERVAL", c.CheckInterval},
		{"SWITCH_INTERVAL", c.SwitchInterval},
		{"CAMERA_UPDATE_INTERVAL", c.UpdateInterval},
		{"CAMERA_RECENTER_INTERVAL", c.RecenterInterval},
		{"SHOWCASE_DURATION", c.ShowcaseDuration},
		{"RECONNECT_BACKOFF", c.ReconnectBackoff},
	}
	for _, p := range positive {
		if p.d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be > 0", p.key))
		}
	}
	if c.MinCommandSpacing < 0 {
		errs = append(errs, fmt.Errorf("CAMERA_MIN_COMMAND_SPACING: must be >= 0"))
	}

	if !(0 < c.MinDistance && c.MinDistance <= c.Distance && c.Distance <= c.MaxDistance) {
		errs = append(errs, fmt.Errorf("camera distance: want 0 < min (%g) <= base (%g) <= max (%g)", c.MinDistance, c.Distance, c.MaxDistance))
	}
	if !(0 <= c.MinHeight && c.MinHeight <= c.Height && c.Height <= c.MaxHeight) {
		errs = append(errs, fmt.Errorf("camera height: want 0 <= min (%g) <= base (%g) <= max (%g)", c.MinHeight, c.Height, c.MaxHeight))
	}
	if c.YawDamping < 0 || c.YawDamping >= 1 {
		errs = append(errs, fmt.Errorf("CAMERA_YAW_DAMPING: want [0, 1), got %g", c.YawDamping))
	}
	if c.ChunkRadius < 0 || c.ChunkRadius > 32 {
		errs = append(errs, fmt.Errorf("CHUNK_RADIUS: want 0..32, got %d", c.ChunkRadius))
	}
	if c.MaxConnectFailures < 1 {
		errs = append(errs, fmt.Errorf("MAX_CONNECT_FAILURES: must be >= 1"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	switch c.LogFormat {
	case "auto", "text", "logfmt", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT: unsupported value %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// ParseInterval accepts milliseconds ("5000") or a Go duration ("5s").
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

type parser struct {
	lookup Lookup
	errs   []error
}

func (p *parser) raw(key string) (string, bool) {
	v, ok := p.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.raw(key); ok {
		*dst = v
	}
}

func (p *parser) interval(key string, dst *time.Duration) {
	v, ok := p.raw(key)
	if !ok {
		return
	}
	d, err := ParseInterval(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

func (p *parser) float(key string, dst *float64) {
	v, ok := p.raw(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = f
}

func (p *parser) int(key string, dst *int) {
	v, ok := p.raw(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (p *parser) vec3(key string, dst *[3]float64) {
	v, ok := p.raw(key)
	if !ok {
		return
	}
	parts := strings.Split(v, ",")
	if len(parts) != 3 {
		p.errs = append(p.errs, fmt.Errorf("%s: want x,y,z, got %q", key, v))
		return
	}
	var out [3]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		out[i] = f
	}
	*dst = out
}

// Entries lists the effective settings by environment key, in load order.
func (c Config) Entries() [][2]string {
	dur := func(d time.Duration) string { return d.String() }
	num := func(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
	locs := fmt.Sprintf("%d configured", len(c.ShowcaseLocations))
	return [][2]string{
		{"BOT_USERNAME", c.Username},
		{"SERVER_URL", c.ServerURL},
		{"CHECK_INTERVAL", dur(c.CheckInterval)},
		{"SWITCH_INTERVAL", dur(c.SwitchInterval)},
		{"CAMERA_MODE", c.CameraMode},
		{"CAMERA_PROFILE", c.CameraProfile},
		{"CAMERA_UPDATE_INTERVAL", dur(c.UpdateInterval)},
		{"CAMERA_MIN_COMMAND_SPACING", dur(c.MinCommandSpacing)},
		{"CAMERA_RECENTER_INTERVAL", dur(c.RecenterInterval)},
		{"CAMERA_DISTANCE", num(c.Distance)},
		{"CAMERA_MIN_DISTANCE", num(c.MinDistance)},
		{"CAMERA_MAX_DISTANCE", num(c.MaxDistance)},
		{"CAMERA_HEIGHT", num(c.Height)},
		{"CAMERA_MIN_HEIGHT", num(c.MinHeight)},
		{"CAMERA_MAX_HEIGHT", num(c.MaxHeight)},
		{"CAMERA_ANGLE_OFFSET", num(c.AngleOffset)},
		{"CAMERA_LOOK_HEIGHT", num(c.LookHeight)},
		{"CAMERA_YAW_DAMPING", num(c.YawDamping)},
		{"SHOWCASE_DURATION", dur(c.ShowcaseDuration)},
		{"SHOWCASE_LOCATIONS", locs},
		{"SHOWCASE_LOCATIONS_FILE", c.ShowcaseLocationsFile},
		{"SHOWCASE_DEFAULT_POSITION", fmt.Sprintf("%s,%s,%s", num(c.ShowcaseDefault[0]), num(c.ShowcaseDefault[1]), num(c.ShowcaseDefault[2]))},
		{"CHUNK_RADIUS", strconv.Itoa(c.ChunkRadius)},
		{"STATUS_FILE", c.StatusFile},
		{"DATA_DIR", c.DataDir},
		{"HTTP_ADDR", c.HTTPAddr},
		{"RECONNECT_BACKOFF", dur(c.ReconnectBackoff)},
		{"MAX_CONNECT_FAILURES", strconv.Itoa(c.MaxConnectFailures)},
		{"LOG_LEVEL", c.LogLevel},
		{"LOG_FORMAT", c.LogFormat},
	}
}
