package scene

import (
	"sync"

	"github.com/google/uuid"
)

// Scratch is the registry of live staging arenas. Stages never reach a
// visible surface; the registry only tracks which ones are still mounted.
type Scratch struct {
	mu     sync.Mutex
	stages map[string]*Stage
}

// NewScratch returns an empty registry.
func NewScratch() *Scratch {
	return &Scratch{stages: map[string]*Stage{}}
}

// Stage is one off-screen container owned by a single capture.
type Stage struct {
	ID   string
	Root *Element

	scratch *Scratch
	once    sync.Once
}

// Mount registers a new stage whose container is exactly widthPx wide.
func (s *Scratch) Mount(widthPx float64) *Stage {
	id := uuid.NewString()
	st := &Stage{
		ID:      id,
		Root:    &Element{ID: "stage-" + id, Style: Style{WidthPx: widthPx}},
		scratch: s,
	}
	s.mu.Lock()
	s.stages[id] = st
	s.mu.Unlock()
	return st
}

// Len reports the number of mounted stages.
func (s *Scratch) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stages)
}

// Has reports whether the stage id is still mounted.
func (s *Scratch) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.stages[id]
	return ok
}

// Close unmounts the stage and drops its subtree. Safe to call twice.
func (st *Stage) Close() {
	st.once.Do(func() {
		st.scratch.mu.Lock()
		delete(st.scratch.stages, st.ID)
		st.scratch.mu.Unlock()
		st.Root.Children = nil
	})
}
