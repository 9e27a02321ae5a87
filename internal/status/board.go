// Package status publishes what the camera is showing: a plain text file read
// by the stream overlay and a small HTTP endpoint polled by capture tooling.
package status

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const showcasePrefix = "Showcase: "

// Snapshot is the JSON body of GET /status.
type Snapshot struct {
	Mode        string    `json:"mode"`
	Subject     string    `json:"subject,omitempty"`
	Showcase    string    `json:"showcase,omitempty"`
	Text        string    `json:"text"`
	SessionID   string    `json:"session_id,omitempty"`
	Connected   bool      `json:"connected"`
	StartedAt   time.Time `json:"started_at"`
	UptimeSec   int64     `json:"uptime_sec"`
	Reconnects  int       `json:"reconnects"`
	LastChange  time.Time `json:"last_change,omitempty"`
	WriteErrors int       `json:"write_errors,omitempty"`
}

// Board is safe for concurrent use. Writers are the core loop; readers are
// HTTP handlers.
type Board struct {
	path string
	now  func() time.Time
	log  *log.Logger

	mu         sync.Mutex
	mode       string
	subject    string
	showcase   string
	text       string
	written    string
	sessionID  string
	connected  bool
	startedAt  time.Time
	reconnects int
	lastChange time.Time
	writeErrs  int
}

// NewBoard returns a board that mirrors its text into path. An empty path
// disables the file.
func NewBoard(path string, now func() time.Time, logger *log.Logger) *Board {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Board{path: path, now: now, log: logger, mode: "idle", startedAt: now()}
}

func (b *Board) Path() string { return b.path }

// SetSubject shows name as the observed subject.
func (b *Board) SetSubject(name string) {
	b.mu.Lock()
	b.subject = name
	b.showcase = ""
	b.mode = "following"
	b.mu.Unlock()
	b.setText(name)
}

// SetShowcase shows a tour stop.
func (b *Board) SetShowcase(description string) {
	b.mu.Lock()
	b.subject = ""
	b.showcase = description
	b.mode = "showcase"
	b.mu.Unlock()
	b.setText(showcasePrefix + description)
}

func (b *Board) SetMode(mode string) {
	b.mu.Lock()
	b.mode = mode
	b.mu.Unlock()
}

// SetSession records the session id and whether it is established. Every
// transition to connected after the first counts as a reconnect.
func (b *Board) SetSession(id string, connected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if connected && !b.connected && b.sessionID != "" && b.sessionID != id {
		b.reconnects++
	}
	b.sessionID = id
	b.connected = connected
}

func (b *Board) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Board) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	return Snapshot{
		Mode:        b.mode,
		Subject:     b.subject,
		Showcase:    b.showcase,
		Text:        b.text,
		SessionID:   b.sessionID,
		Connected:   b.connected,
		StartedAt:   b.startedAt,
		UptimeSec:   int64(now.Sub(b.startedAt) / time.Second),
		Reconnects:  b.reconnects,
		LastChange:  b.lastChange,
		WriteErrors: b.writeErrs,
	}
}

func (b *Board) setText(text string) {
	b.mu.Lock()
	if text == b.text && (b.path == "" || text == b.written) {
		b.mu.Unlock()
		return
	}
	b.text = text
	b.lastChange = b.now()
	path := b.path
	b.mu.Unlock()

	if path == "" {
		return
	}
	err := writeFileAtomic(path, []byte(text+"\n"))

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.writeErrs++
		b.log.Warn("status file write failed", "path", path, "err", err)
		return
	}
	b.written = text
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
