package lyrics

import (
	"sync"
	"time"
)

// SmoothScrollGrace is how long after a programmatic scroll incoming scroll
// events are attributed to it rather than to the user.
const SmoothScrollGrace = 300 * time.Millisecond

// Surface is the lyric view the engine drives
type Surface interface {
	// ShowLines builds the view for a freshly loaded document
	ShowLines(lines []Line)
	// SetPlayed marks a line as reached (or not) by the clock
	SetPlayed(index int, played bool)
	// Center brings a line into the middle of the view
	Center(index int)
	// ShowAbsent displays the "no lyrics" state
	ShowAbsent()
}

// EngineOptions configures a sync engine
type EngineOptions struct {
	// SmoothScroll widens the programmatic scroll grace window to SmoothScrollGrace
	SmoothScroll bool
	// Now overrides the wall clock, for tests
	Now func() time.Time
}

// TickResult describes the engine state after a clock tick
type TickResult struct {
	Played   []bool
	Latest   int // last played line, -1 when none
	Centered bool
}

// Engine keeps per-line played flags in step with the playback clock.
// Every tick is a full rescan of the document so backward seeks clear stale state.
type Engine struct {
	mu sync.Mutex

	surface Surface
	grace   time.Duration
	now     func() time.Time

	doc        *Document
	loaded     bool
	built      bool
	played     []bool
	latest     int
	autoscroll bool
	scrolledAt time.Time
	generation uint64
}

// NewEngine creates an engine driving the given surface
func NewEngine(surface Surface, opts EngineOptions) *Engine {
	e := &Engine{
		surface:    surface,
		now:        opts.Now,
		latest:     -1,
		autoscroll: true,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if opts.SmoothScroll {
		e.grace = SmoothScrollGrace
	}
	return e
}

// Load binds a document to the engine. A nil document is the "no lyrics" state.
// Loading re-enables autoscroll and drops any programmatic scroll window from the
// previous document. The returned generation identifies this load.
func (e *Engine) Load(doc *Document) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.generation++
	e.doc = doc.Clone()
	e.loaded = true
	e.built = false
	e.played = nil
	e.latest = -1
	e.autoscroll = true
	e.scrolledAt = time.Time{}

	if e.doc == nil {
		e.surface.ShowAbsent()
	} else {
		e.played = make([]bool, len(e.doc.Lines))
	}
	return e.generation
}

// Reset unbinds the current document without touching the surface.
// Used while the next track's lyrics are still loading.
func (e *Engine) Reset() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.generation++
	e.doc = nil
	e.loaded = false
	e.built = false
	e.played = nil
	e.latest = -1
	e.autoscroll = true
	e.scrolledAt = time.Time{}
	return e.generation
}

// Generation returns the identifier of the current load
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// Document returns a copy of the bound document, nil when absent or not loaded
func (e *Engine) Document() *Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.Clone()
}

// Loaded reports whether a load (possibly of an absent document) has happened
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Tick evaluates every line against the clock position in seconds
func (e *Engine) Tick(seconds float64) TickResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.doc == nil {
		return TickResult{Latest: -1}
	}

	first := !e.built
	if first {
		e.surface.ShowLines(e.doc.Clone().Lines)
		e.built = true
	}

	latest := -1
	for i, line := range e.doc.Lines {
		played := seconds >= line.At
		if played {
			latest = i
		}
		if first || played != e.played[i] {
			e.played[i] = played
			e.surface.SetPlayed(i, played)
		}
	}

	result := TickResult{
		Played: append([]bool(nil), e.played...),
		Latest: latest,
	}

	if latest != e.latest {
		e.latest = latest
		if latest >= 0 && e.autoscroll {
			e.surface.Center(latest)
			e.scrolledAt = e.now()
			result.Centered = true
		}
	}
	return result
}

// UserScrolled records a scroll of the lyric view. Scrolls inside the grace
// window of a programmatic scroll are ignored; any other disables autoscroll
// until the next Load.
func (e *Engine) UserScrolled() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.scrolledAt.IsZero() && e.now().Before(e.scrolledAt.Add(e.grace)) {
		return
	}
	e.autoscroll = false
}

// Autoscroll reports whether the engine will keep centring the latest line
func (e *Engine) Autoscroll() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoscroll
}

// Latest returns the index of the most recently played line, -1 when none
func (e *Engine) Latest() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest
}
