package ui

import (
	"slices"
	"sync"

	"github.com/austinkregel/local-media/stashd/internal/lyrics"
)

// Surface is the lyric view the sync engine draws into. The engine calls it
// from the player clock goroutine; the model reads a Frame on every tick.
type Surface struct {
	mu       sync.Mutex
	lines    []lyrics.Line
	played   []bool
	center   int
	absent   bool
	revision uint64
}

// Frame is a copy of the surface state taken for rendering
type Frame struct {
	Lines    []lyrics.Line
	Played   []bool
	Center   int
	Absent   bool
	Revision uint64
}

// NewSurface creates an empty surface
func NewSurface() *Surface {
	return &Surface{center: -1}
}

// ShowLines replaces the view with a freshly loaded document
func (s *Surface) ShowLines(lines []lyrics.Line) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = slices.Clone(lines)
	s.played = make([]bool, len(lines))
	s.center = -1
	s.absent = false
	s.revision++
}

// SetPlayed marks a line as reached by the clock
func (s *Surface) SetPlayed(index int, played bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.played) {
		return
	}
	s.played[index] = played
	s.revision++
}

// Center brings a line into the middle of the view
func (s *Surface) Center(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.center = index
	s.revision++
}

// ShowAbsent switches to the "no lyrics" state
func (s *Surface) ShowAbsent() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	s.played = nil
	s.center = -1
	s.absent = true
	s.revision++
}

// Frame returns a copy of the current view
func (s *Surface) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Frame{
		Lines:    slices.Clone(s.lines),
		Played:   slices.Clone(s.played),
		Center:   s.center,
		Absent:   s.absent,
		Revision: s.revision,
	}
}

var _ lyrics.Surface = (*Surface)(nil)
