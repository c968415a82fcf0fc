package viewer

import (
	"image"
	"time"

	"github.com/cwbudde/srviewer/internal/target"
)

// UpdateEvent is passed to BeforeUpdate hooks when a pass starts.
type UpdateEvent struct {
	Epoch     uint64        `json:"epoch"`
	Position  int           `json:"position"`
	FileIndex int           `json:"fileIndex"`
	File      string        `json:"file"`
	Delay     time.Duration `json:"delay"`
}

// PaneEvent is passed to RenderPane hooks whenever a pane gets a new raster.
// Image is nil while the raw raster is still loading.
type PaneEvent struct {
	Epoch  uint64
	Pane   int
	Target *target.Target
	Stage  Stage
	Image  *image.NRGBA
	Err    error
}

// IndexEvent is passed to OnIndexChange hooks.
type IndexEvent struct {
	From int    `json:"from"`
	To   int    `json:"to"`
	File string `json:"file"`
}

type hooks struct {
	before []func(UpdateEvent)
	render []func(PaneEvent)
	index  []func(IndexEvent)
}

// OnBeforeUpdate registers fn to run at the start of every update.
func (s *Session) OnBeforeUpdate(fn func(UpdateEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks.before = append(s.hooks.before, fn)
}

// OnRenderPane registers fn to run after a pane is rendered, raw or
// composited. Hooks run outside the session lock.
func (s *Session) OnRenderPane(fn func(PaneEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks.render = append(s.hooks.render, fn)
}

// OnIndexChange registers fn to run when the position changes.
func (s *Session) OnIndexChange(fn func(IndexEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks.index = append(s.hooks.index, fn)
}
