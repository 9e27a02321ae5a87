package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxelcam.ai/internal/bot"
	"voxelcam.ai/internal/persistence/history"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// clearEnv unsets keys for the test and restores them afterwards, including
// values a .env file loads into the process.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeEnv(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voxelcam.env")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	return path
}

func TestConfigCommand_PrintsEffectiveSettings(t *testing.T) {
	clearEnv(t, "BOT_USERNAME", "SERVER_URL", "CAMERA_PROFILE", "SHOWCASE_LOCATIONS")
	env := writeEnv(t, "BOT_USERNAME=StreamCam\nSERVER_URL=ws://world.example:8080/v1/spectate\nCAMERA_PROFILE=conservative\n"+
		`SHOWCASE_LOCATIONS=[{"description":"Harbor","position":[1,2,3],"duration":5000}]`+"\n")

	out, err := execute(t, "--env-file", env, "config")
	if err != nil {
		t.Fatalf("config: %v\n%s", err, out)
	}
	for _, want := range []string{"StreamCam", "CAMERA_UPDATE_INTERVAL", "2s", "Harbor", "5s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigCommand_ReportsInvalidConfiguration(t *testing.T) {
	clearEnv(t, "BOT_USERNAME", "SERVER_URL", "CAMERA_PROFILE", "SHOWCASE_LOCATIONS")
	env := writeEnv(t, "BOT_USERNAME=StreamCam\n")

	_, err := execute(t, "--env-file", env, "config")
	if err == nil || !strings.Contains(err.Error(), "SERVER_URL") {
		t.Fatalf("err=%v want missing SERVER_URL", err)
	}
}

func TestHistoryCommand_ListsObservedTime(t *testing.T) {
	dir := t.TempDir()
	store, err := history.Open(bot.HistoryPath(dir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	now := time.Now()
	store.StartSession("0f8e2c1a-aaaa", "CamBot", now.Add(-time.Hour))
	store.BeginObservation("0f8e2c1a-aaaa", "A1", "Alice", "no_subject", now.Add(-time.Hour))
	store.BeginObservation("0f8e2c1a-aaaa", "B2", "Bob", "rotation", now.Add(-40*time.Minute))
	store.EndSession("0f8e2c1a-aaaa", "server closed", now.Add(-30*time.Minute))
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	out, err := execute(t, "history", "--data-dir", dir)
	if err != nil {
		t.Fatalf("history: %v\n%s", err, out)
	}
	for _, want := range []string{"Alice", "20m0s", "Bob", "10m0s", "0f8e2c1a", "server closed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Alice") > strings.Index(out, "Bob") {
		t.Fatalf("longest observed player should be listed first:\n%s", out)
	}
}

func TestHistoryCommand_MissingDatabase(t *testing.T) {
	if _, err := execute(t, "history", "--data-dir", t.TempDir()); err == nil {
		t.Fatalf("expected an error without a history database")
	}
}
