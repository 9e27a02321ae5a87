package showcase

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"voxelcam.ai/internal/sched"
	"voxelcam.ai/internal/worldstate"
	"voxelcam.ai/internal/worldtest"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeStatus struct{ descs []string }

func (s *fakeStatus) SetShowcase(d string) { s.descs = append(s.descs, d) }

func tour() []Location {
	return []Location{
		{Position: worldstate.Vec3{0, 80, 0}, Yaw: 0, Pitch: 20, Description: "Spawn"},
		{Position: worldstate.Vec3{100, 90, 0}, Yaw: 90, Pitch: 10, Description: "Harbor", Dwell: 5 * time.Second},
		{Position: worldstate.Vec3{0, 120, 100}, Yaw: 180, Pitch: 45, Description: "Peak"},
	}
}

func newController(locs []Location) (*Controller, *worldtest.World, *sched.ManualClock, *sched.Scheduler, *fakeStatus) {
	clk := sched.NewManualClock(epoch)
	s := sched.New(clk.Now)
	w := worldtest.NewWorld()
	st := &fakeStatus{}
	c := New(Options{Locations: locs, DefaultDwell: 15 * time.Second, Fallback: DefaultOptions().Fallback}, Deps{
		Mover:  w,
		Sched:  s,
		Status: st,
		Logger: log.New(io.Discard),
	})
	return c, w, clk, s, st
}

func TestActivate_MovesToFirstLocationImmediately(t *testing.T) {
	c, w, _, _, st := newController(tour())
	c.Activate()

	trs := w.Transforms()
	if len(trs) != 1 || trs[0].Position != (worldstate.Vec3{0, 80, 0}) || trs[0].Pitch != 20 {
		t.Fatalf("transforms=%+v", trs)
	}
	if c.Cursor() != 0 || !c.Active() || !c.Scheduled() {
		t.Fatalf("cursor=%d active=%v scheduled=%v", c.Cursor(), c.Active(), c.Scheduled())
	}
	if len(st.descs) != 1 || st.descs[0] != "Spawn" {
		t.Fatalf("status=%v", st.descs)
	}
}

func TestAdvance_UsesPerLocationDwellAndWraps(t *testing.T) {
	c, w, clk, s, st := newController(tour())
	c.Activate()

	clk.Advance(s, 15*time.Second) // Spawn uses the default dwell.
	if c.Cursor() != 1 {
		t.Fatalf("cursor=%d want 1", c.Cursor())
	}
	clk.Advance(s, 5*time.Second) // Harbor has its own.
	if c.Cursor() != 2 {
		t.Fatalf("cursor=%d want 2", c.Cursor())
	}
	clk.Advance(s, 15*time.Second)
	if c.Cursor() != 0 {
		t.Fatalf("cursor=%d want 0 after wrap", c.Cursor())
	}
	if n := len(w.Transforms()); n != 4 {
		t.Fatalf("moves=%d want 4", n)
	}
	want := []string{"Spawn", "Harbor", "Peak", "Spawn"}
	for i, d := range want {
		if st.descs[i] != d {
			t.Fatalf("status[%d]=%q want %q", i, st.descs[i], d)
		}
	}
	if s.Active() != 1 {
		t.Fatalf("timers=%d want 1", s.Active())
	}
}

func TestDeactivate_CancelsTimer(t *testing.T) {
	c, w, clk, s, _ := newController(tour())
	c.Activate()
	c.Deactivate()
	if c.Active() || c.Scheduled() || s.Active() != 0 {
		t.Fatalf("active=%v scheduled=%v timers=%d", c.Active(), c.Scheduled(), s.Active())
	}
	clk.Advance(s, time.Minute)
	if n := len(w.Transforms()); n != 1 {
		t.Fatalf("moves=%d want 1", n)
	}
}

func TestReactivate_RestartsAtFirstLocation(t *testing.T) {
	c, w, clk, s, _ := newController(tour())
	c.Activate()
	clk.Advance(s, 20*time.Second)
	c.Deactivate()
	c.Activate()

	trs := w.Transforms()
	if c.Cursor() != 0 || trs[len(trs)-1].Position != (worldstate.Vec3{0, 80, 0}) {
		t.Fatalf("cursor=%d last=%v", c.Cursor(), trs[len(trs)-1])
	}
}

func TestActivate_Idempotent(t *testing.T) {
	c, w, _, s, _ := newController(tour())
	c.Activate()
	c.Activate()
	if n := len(w.Transforms()); n != 1 || s.Active() != 1 {
		t.Fatalf("moves=%d timers=%d", n, s.Active())
	}
}

func TestEmptyTour_HoldsFallbackWithoutTimer(t *testing.T) {
	c, w, clk, s, st := newController(nil)
	c.Activate()
	if s.Active() != 0 || c.Scheduled() {
		t.Fatalf("empty tour scheduled a timer")
	}
	clk.Advance(s, time.Minute)
	trs := w.Transforms()
	if len(trs) != 1 || trs[0].Position != DefaultOptions().Fallback.Position {
		t.Fatalf("transforms=%+v", trs)
	}
	if st.descs[0] != "Spawn" {
		t.Fatalf("status=%v", st.descs)
	}
}
