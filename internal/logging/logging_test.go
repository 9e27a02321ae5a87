package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_AutoFallsBackToLogfmtOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "info", Format: "auto", Output: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	Component(l, "tracking").Info("switching", "subject", "Alice")
	out := buf.String()
	if !strings.Contains(out, "msg=switching") || !strings.Contains(out, "subject=Alice") {
		t.Fatalf("out=%q", out)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "warn", Format: "logfmt", Output: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.Info("hidden")
	l.Debug("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("out=%q", buf.String())
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.Info("connected", "attempt", 2)
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("json: %v (%q)", err, buf.String())
	}
	if m["msg"] != "connected" {
		t.Fatalf("m=%v", m)
	}
}

func TestNew_RejectsUnknownOptions(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("bad level accepted")
	}
	if _, err := New(Options{Format: "xml", Output: &bytes.Buffer{}}); err == nil {
		t.Fatalf("bad format accepted")
	}
	if IsTerminal(&bytes.Buffer{}) {
		t.Fatalf("buffer reported as terminal")
	}
}
