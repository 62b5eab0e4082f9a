// Package ui is the terminal front end: a bubbletea program that renders the
// controller status and the lyric surface, and maps keys onto controller calls.
package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/austinkregel/local-media/stashd/internal/player"
)

// PollInterval is how often the model re-reads the controller and surface
const PollInterval = 100 * time.Millisecond

// SeekStep is how far left and right seek
const SeekStep = 5.0

// Controller is the part of the playback controller the UI drives
type Controller interface {
	Status() player.Status
	Toggle(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(seconds float64) error
	EnterEdit()
	LeaveEdit()
	ToggleLine(index int) (bool, error)
	SaveEdits(ctx context.Context) error
	SaveFreeform(ctx context.Context, text string) error
	UserScrolled()
}

type TickMsg time.Time

// EventMsg carries a controller event into the program
type EventMsg struct {
	Event player.Event
}

// actionDoneMsg reports the result of a controller call run off the update loop
type actionDoneMsg struct {
	action string
	err    error
}

// Events buffers controller events for the program. Handler never blocks the
// controller; events are dropped when the buffer is full.
type Events struct {
	ch chan player.Event
}

// NewEvents creates an event feed with room for size pending events
func NewEvents(size int) *Events {
	return &Events{ch: make(chan player.Event, size)}
}

// Handler returns the function to install as the controller's OnEvent
func (e *Events) Handler() player.EventHandler {
	return func(ev player.Event) {
		select {
		case e.ch <- ev:
		default:
		}
	}
}

type Model struct {
	ctrl    Controller
	surface *Surface
	events  *Events

	status player.Status
	frame  Frame

	// scrollTop is the first lyric row shown once the user has scrolled away
	scrollTop int
	// cursor is the selected line in edit mode
	cursor int

	message  string
	err      error
	quitting bool
	width    int
	height   int
}

type ModelConfig struct {
	Controller Controller
	Surface    *Surface
	Events     *Events
}

func NewModel(cfg ModelConfig) Model {
	m := Model{
		ctrl:    cfg.Controller,
		surface: cfg.Surface,
		events:  cfg.Events,
	}
	if m.surface == nil {
		m.surface = NewSurface()
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.listenForEvents())
}

func tickCmd() tea.Cmd {
	return tea.Tick(PollInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) listenForEvents() tea.Cmd {
	if m.events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-m.events.ch
		if !ok {
			return nil
		}
		return EventMsg{Event: ev}
	}
}

// run calls fn on a command goroutine so slow media loads never stall rendering
func (m Model) run(action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return actionDoneMsg{action: action, err: fn(ctx)}
	}
}

func (m *Model) refresh() {
	if m.ctrl != nil {
		m.status = m.ctrl.Status()
	}
	m.frame = m.surface.Frame()
	if n := len(m.frame.Lines); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

// focusLine is the line the lyric window is built around
func (m Model) focusLine() int {
	if m.status.Editing {
		return m.cursor
	}
	if m.frame.Center >= 0 {
		return m.frame.Center
	}
	return 0
}

func (m Model) Width() int            { return m.width }
func (m Model) Height() int           { return m.height }
func (m Model) Status() player.Status { return m.status }
func (m Model) Frame() Frame          { return m.frame }
func (m Model) Cursor() int           { return m.cursor }
func (m Model) Message() string       { return m.message }
func (m Model) Err() error            { return m.err }
func (m Model) IsQuitting() bool      { return m.quitting }
