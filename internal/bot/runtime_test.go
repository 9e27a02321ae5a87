package bot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"voxelcam.ai/internal/persistence/history"
	"voxelcam.ai/internal/persistence/journal"
	"voxelcam.ai/internal/sched"
	"voxelcam.ai/internal/status"
	"voxelcam.ai/internal/tracking"
	"voxelcam.ai/internal/worldstate"
	"voxelcam.ai/internal/worldtest"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type session struct {
	*worldtest.World
}

func (session) Events() <-chan worldstate.Event { return nil }
func (session) Close() error                    { return nil }

// unsyncedSession has no roster until synced is set.
type unsyncedSession struct {
	session
	synced *bool
}

func (u unsyncedSession) RosterSynced() bool { return *u.synced }

type harness struct {
	dir     string
	world   *worldtest.World
	clk     *sched.ManualClock
	sched   *sched.Scheduler
	board   *status.Board
	journal *journal.Writer
	hist    *history.Store
	rt      *Runtime
	ids     int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	clk := sched.NewManualClock(epoch)
	h := &harness{
		dir:   dir,
		world: worldtest.NewWorld(),
		clk:   clk,
		sched: sched.New(clk.Now),
	}
	h.world.SetSelf(worldstate.Subject{ID: "cam", Name: "CamBot", Position: worldstate.Vec3{0, 100, 0}})
	h.board = status.NewBoard(filepath.Join(dir, "current.txt"), clk.Now, log.New(io.Discard))
	h.journal = journal.NewWriter(JournalDir(dir), clk.Now)
	hist, err := history.Open(HistoryPath(dir))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	h.hist = hist
	t.Cleanup(func() {
		_ = h.journal.Close()
		_ = h.hist.Close()
	})

	opts := DefaultOptions()
	opts.Tracking = tracking.Options{CheckInterval: 5 * time.Second, SwitchInterval: 30 * time.Second}
	h.rt = NewRuntime(opts, Deps{
		Sched:   h.sched,
		Status:  h.board,
		Journal: h.journal,
		History: h.hist,
		NewID: func() string {
			h.ids++
			return fmt.Sprintf("sess-%d", h.ids)
		},
		Logger: log.New(io.Discard),
	})
	return h
}

func (h *harness) start()                  { h.rt.Start(session{h.world}) }
func (h *harness) advance(d time.Duration) { h.clk.Advance(h.sched, d) }

// stop mirrors the supervisor teardown order.
func (h *harness) stop(reason string) {
	h.sched.CancelAll()
	h.rt.Stop(reason, nil)
}

func (h *harness) statusFile(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(h.board.Path())
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	return strings.TrimSuffix(string(b), "\n")
}

func (h *harness) journalEntries(t *testing.T) []journal.Entry {
	t.Helper()
	if err := h.journal.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}
	files, err := journal.Files(JournalDir(h.dir))
	if err != nil {
		t.Fatalf("journal files: %v", err)
	}
	var all []journal.Entry
	for _, f := range files {
		es, err := journal.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		all = append(all, es...)
	}
	return all
}

// Nobody online: the tour runs until a subject joins.
func TestRuntime_ShowcaseThenFollow(t *testing.T) {
	h := newHarness(t)
	h.start()

	if st := h.rt.State(); st.Mode != tracking.ModeShowcase {
		t.Fatalf("mode=%s want showcase", st.Mode)
	}
	if got := h.statusFile(t); got != "Showcase: Spawn" {
		t.Fatalf("status=%q", got)
	}
	if tr := h.world.Transforms(); len(tr) != 1 || tr[0].Position != (worldstate.Vec3{0, 100, 0}) {
		t.Fatalf("transforms=%+v want one move to spawn", tr)
	}

	h.world.SetOnline("Alice")
	h.advance(5 * time.Second)

	st := h.rt.State()
	if st.Mode != tracking.ModeFollowing || st.CurrentID() != "Alice" {
		t.Fatalf("mode=%s current=%q", st.Mode, st.CurrentID())
	}
	if h.rt.Showcase().Active() || !h.rt.Driver().Active() {
		t.Fatalf("showcase=%v follow=%v", h.rt.Showcase().Active(), h.rt.Driver().Active())
	}
	if got := h.statusFile(t); got != "Alice" {
		t.Fatalf("status=%q want Alice", got)
	}

	before := len(h.world.Transforms())
	h.advance(2 * time.Second)
	if after := len(h.world.Transforms()); after-before != 4 {
		t.Fatalf("emitted %d camera updates in 2s want 4", after-before)
	}

	var kinds []string
	for _, e := range h.journalEntries(t) {
		kinds = append(kinds, e.Kind)
		if e.SessionID != "sess-1" {
			t.Fatalf("entry %+v has wrong session", e)
		}
	}
	want := []string{
		journal.KindSessionStart,
		journal.KindMode, // idle -> showcase
		journal.KindShowcase,
		journal.KindMode, // showcase -> following
		journal.KindSwitch,
	}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("journal=%v want %v", kinds, want)
	}
}

// A lone subject is followed for as long as it stays.
func TestRuntime_SingleSubject(t *testing.T) {
	h := newHarness(t)
	h.world.SetOnline("Bob")
	h.start()
	h.advance(3 * time.Minute)

	st := h.rt.State()
	if st.CurrentID() != "Bob" || !st.LastSwitch.Equal(epoch) {
		t.Fatalf("current=%q last switch=%v", st.CurrentID(), st.LastSwitch)
	}
	if got := h.statusFile(t); got != "Bob" {
		t.Fatalf("status=%q", got)
	}
}

// Two subjects alternate every switch interval.
func TestRuntime_Rotation(t *testing.T) {
	h := newHarness(t)
	h.world.SetOnline("Alice", "Bob")
	h.start()

	seen := []string{h.rt.State().CurrentID()}
	for i := 0; i < 2; i++ {
		h.advance(30 * time.Second)
		seen = append(seen, h.rt.State().CurrentID())
	}
	if strings.Join(seen, ",") != "Alice,Bob,Alice" {
		t.Fatalf("sequence=%v", seen)
	}
	if got := h.statusFile(t); got != "Alice" {
		t.Fatalf("status=%q", got)
	}

	h.stop("shutdown")
	_ = h.hist.Close()
	hist, err := history.Open(HistoryPath(h.dir))
	if err != nil {
		t.Fatalf("reopen history: %v", err)
	}
	defer hist.Close()
	obs, err := hist.Observed(context.Background(), epoch, epoch.Add(time.Hour))
	if err != nil {
		t.Fatalf("observed: %v", err)
	}
	if len(obs) != 2 || obs[0].SubjectID != "Alice" || obs[0].Observed != 30*time.Second || obs[1].Observed != 30*time.Second {
		t.Fatalf("observed=%+v", obs)
	}
}

// The tour takes over when the last subject leaves.
func TestRuntime_LastSubjectLeaves(t *testing.T) {
	h := newHarness(t)
	h.world.SetOnline("Alice")
	h.start()
	h.advance(time.Second)

	h.world.SetOnline()
	h.advance(5 * time.Second)

	st := h.rt.State()
	if st.Mode != tracking.ModeShowcase || st.Current != nil {
		t.Fatalf("mode=%s current=%v", st.Mode, st.Current)
	}
	if h.rt.Driver().Active() || !h.rt.Showcase().Active() {
		t.Fatalf("follow=%v showcase=%v", h.rt.Driver().Active(), h.rt.Showcase().Active())
	}
	if got := h.statusFile(t); got != "Showcase: Spawn" {
		t.Fatalf("status=%q", got)
	}
}

func TestRuntime_ReconnectStartsFresh(t *testing.T) {
	h := newHarness(t)
	h.world.SetOnline("Alice", "Bob")
	h.start()
	h.advance(30 * time.Second)
	if h.rt.State().CurrentID() != "Bob" {
		t.Fatalf("current=%q", h.rt.State().CurrentID())
	}

	h.stop("server closed")
	if h.sched.Active() != 0 {
		t.Fatalf("%d timers survived stop", h.sched.Active())
	}
	snap := h.board.Snapshot()
	if snap.Connected || snap.Mode != "disconnected" {
		t.Fatalf("snapshot=%+v", snap)
	}

	h.advance(10 * time.Second)
	h.start()
	st := h.rt.State()
	if h.rt.SessionID() != "sess-2" || st.CurrentID() != "Alice" || st.RotationIndex != 0 {
		t.Fatalf("session=%s current=%q rotation=%d", h.rt.SessionID(), st.CurrentID(), st.RotationIndex)
	}
	if snap := h.board.Snapshot(); !snap.Connected || snap.Reconnects != 1 {
		t.Fatalf("snapshot=%+v", snap)
	}
	// Selector and follow loop only.
	if h.sched.Active() != 2 {
		t.Fatalf("active timers=%d want 2", h.sched.Active())
	}
}

func TestRuntime_ShowcaseTourFromOptions(t *testing.T) {
	h := newHarness(t)
	opts, err := OptionsFromConfig(testConfig(t, map[string]string{
		"SHOWCASE_LOCATIONS": `[{"description":"Harbor","position":[10,70,10],"duration":"10s"},{"description":"Peak","position":[50,120,0]}]`,
		"SHOWCASE_DURATION":  "20s",
	}))
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	h.rt.opts.Showcase = opts.Showcase
	h.start()

	if got := h.statusFile(t); got != "Showcase: Harbor" {
		t.Fatalf("status=%q", got)
	}
	h.advance(10 * time.Second)
	if got := h.statusFile(t); got != "Showcase: Peak" {
		t.Fatalf("status=%q", got)
	}
	h.advance(20 * time.Second)
	if got := h.statusFile(t); got != "Showcase: Harbor" {
		t.Fatalf("status=%q want tour to wrap", got)
	}
}

func TestRuntime_FirstDecisionWaitsForRoster(t *testing.T) {
	h := newHarness(t)
	h.world.SetOnline("Alice")
	synced := false
	h.rt.Start(unsyncedSession{session: session{h.world}, synced: &synced})

	h.advance(300 * time.Millisecond)
	if st := h.rt.State(); st.Mode != tracking.ModeIdle {
		t.Fatalf("mode=%s before the roster arrived", st.Mode)
	}
	if n := len(h.world.Transforms()); n != 0 {
		t.Fatalf("camera moved %d times before the roster arrived", n)
	}
	if _, err := os.Stat(h.board.Path()); !os.IsNotExist(err) {
		t.Fatalf("status file written before the roster arrived: %v", err)
	}

	synced = true
	h.advance(100 * time.Millisecond)
	st := h.rt.State()
	if st.Mode != tracking.ModeFollowing || st.CurrentID() != "Alice" {
		t.Fatalf("mode=%s current=%q", st.Mode, st.CurrentID())
	}
	if got := h.statusFile(t); got != "Alice" {
		t.Fatalf("status=%q", got)
	}
	// Selector and follow loop only; the roster wait is gone.
	if h.sched.Active() != 2 {
		t.Fatalf("active timers=%d want 2", h.sched.Active())
	}

	var kinds []string
	for _, e := range h.journalEntries(t) {
		kinds = append(kinds, e.Kind)
	}
	want := []string{journal.KindSessionStart, journal.KindMode, journal.KindSwitch}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("journal=%v want %v", kinds, want)
	}
}

func TestRuntime_SilentServerArmsAfterCheckInterval(t *testing.T) {
	h := newHarness(t)
	synced := false
	h.rt.Start(unsyncedSession{session: session{h.world}, synced: &synced})

	h.advance(4900 * time.Millisecond)
	if st := h.rt.State(); st.Mode != tracking.ModeIdle {
		t.Fatalf("mode=%s", st.Mode)
	}
	h.advance(100 * time.Millisecond)
	if st := h.rt.State(); st.Mode != tracking.ModeShowcase {
		t.Fatalf("mode=%s want showcase", st.Mode)
	}
	if got := h.statusFile(t); got != "Showcase: Spawn" {
		t.Fatalf("status=%q", got)
	}
}
