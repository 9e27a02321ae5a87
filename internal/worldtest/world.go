// Package worldtest provides in-memory and over-the-wire fakes of the world feed
// so components can be driven from tests without a game server.
package worldtest

import (
	"errors"
	"sort"
	"sync"

	"voxelcam.ai/internal/worldstate"
)

// World is an in-memory worldstate.Adapter. Blocks not set explicitly report
// the default solidity.
type World struct {
	mu sync.Mutex

	self     worldstate.Subject
	hasSelf  bool
	subjects map[string]worldstate.Subject
	blocks   map[[3]int]worldstate.Solidity
	dflt     worldstate.Solidity

	transforms []worldstate.Transform
	attached   []string

	// FailMoves makes SetTransform and Attach return an error.
	FailMoves bool
}

func NewWorld() *World {
	return &World{
		subjects: map[string]worldstate.Subject{},
		blocks:   map[[3]int]worldstate.Solidity{},
	}
}

func (w *World) SetSelf(s worldstate.Subject) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.self = s
	w.hasSelf = true
	w.subjects[s.ID] = s
}

// Put adds or updates a subject.
func (w *World) Put(s worldstate.Subject) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subjects[s.ID] = s
}

// Remove drops a subject, as when it leaves or goes out of range.
func (w *World) Remove(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.subjects, id)
}

// SetOnline replaces every subject except self with one per name, id == name.
func (w *World) SetOnline(names ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id := range w.subjects {
		if w.hasSelf && id == w.self.ID {
			continue
		}
		delete(w.subjects, id)
	}
	for i, n := range names {
		w.subjects[n] = worldstate.Subject{ID: n, Name: n, Position: worldstate.Vec3{float64(i * 10), 64, 0}}
	}
}

func (w *World) SetBlock(x, y, z int, s worldstate.Solidity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.blocks[[3]int{x, y, z}] = s
}

// SetDefault sets the solidity of every block not set explicitly.
func (w *World) SetDefault(s worldstate.Solidity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dflt = s
}

func (w *World) Self() (worldstate.Subject, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.self, w.hasSelf
}

func (w *World) Subjects() []worldstate.Subject {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]worldstate.Subject, 0, len(w.subjects))
	for _, s := range w.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) Subject(id string) (worldstate.Subject, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.subjects[id]
	return s, ok
}

func (w *World) QuerySolid(p worldstate.Vec3) worldstate.Solidity {
	x, y, z := worldstate.BlockOf(p)
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.blocks[[3]int{x, y, z}]; ok {
		return s
	}
	return w.dflt
}

var errMoveRejected = errors.New("worldtest: move rejected")

func (w *World) SetTransform(t worldstate.Transform) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.FailMoves {
		return errMoveRejected
	}
	w.transforms = append(w.transforms, t)
	return nil
}

func (w *World) Attach(subjectID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.FailMoves {
		return errMoveRejected
	}
	w.attached = append(w.attached, subjectID)
	return nil
}

// Transforms returns every transform applied so far.
func (w *World) Transforms() []worldstate.Transform {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]worldstate.Transform(nil), w.transforms...)
}

func (w *World) Attached() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.attached...)
}

// Reset forgets recorded transforms and attaches.
func (w *World) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.transforms = nil
	w.attached = nil
}
