package ui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/austinkregel/local-media/stashd/internal/lyrics"
	"github.com/austinkregel/local-media/stashd/internal/player"
	"github.com/austinkregel/local-media/stashd/internal/types"
)

type fakeController struct {
	mu       sync.Mutex
	status   player.Status
	calls    []string
	seekTo   float64
	toggled  []int
	freeform string
	failNext error
}

func (f *fakeController) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeController) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (f *fakeController) Status() player.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) Toggle(context.Context) error { f.record("toggle"); return nil }

func (f *fakeController) Next(context.Context) error {
	f.record("next")
	return f.failNext
}

func (f *fakeController) Previous(context.Context) error { f.record("previous"); return nil }

func (f *fakeController) Seek(seconds float64) error {
	f.record("seek")
	f.mu.Lock()
	f.seekTo = seconds
	f.mu.Unlock()
	return nil
}

func (f *fakeController) EnterEdit() {
	f.record("enterEdit")
	f.mu.Lock()
	f.status.Editing = true
	f.mu.Unlock()
}

func (f *fakeController) LeaveEdit() {
	f.record("leaveEdit")
	f.mu.Lock()
	f.status.Editing = false
	f.mu.Unlock()
}

func (f *fakeController) ToggleLine(index int) (bool, error) {
	f.record("toggleLine")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggled = append(f.toggled, index)
	return true, nil
}

func (f *fakeController) SaveEdits(context.Context) error { f.record("save"); return nil }

func (f *fakeController) SaveFreeform(ctx context.Context, text string) error {
	f.record("freeform")
	f.mu.Lock()
	f.freeform = text
	f.mu.Unlock()
	return nil
}

func (f *fakeController) UserScrolled() {
	f.record("scrolled")
	f.mu.Lock()
	f.status.Autoscroll = false
	f.mu.Unlock()
}

func textLines(texts ...string) []lyrics.Line {
	lines := make([]lyrics.Line, len(texts))
	for i, t := range texts {
		lines[i] = lyrics.Line{Text: t, At: float64(i * 5)}
	}
	return lines
}

func newTestModel(t *testing.T) (Model, *fakeController, *Surface) {
	t.Helper()
	ctrl := &fakeController{status: player.Status{
		State:      player.StatePlaying,
		Track:      &types.Track{ID: "a", Name: "Song A", Artist: "Band"},
		Elapsed:    10,
		Duration:   12,
		QueueSize:  3,
		HasLyrics:  true,
		Autoscroll: true,
	}}
	surface := NewSurface()
	surface.ShowLines(textLines("one", "two", "three", "four"))
	surface.SetPlayed(0, true)
	surface.SetPlayed(1, true)
	surface.Center(1)

	m := NewModel(ModelConfig{Controller: ctrl, Surface: surface})
	m.width, m.height = 60, 20
	return m, ctrl, surface
}

func press(t *testing.T, m Model, key string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "right":
		msg = tea.KeyMsg{Type: tea.KeyRight}
	case " ":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestSurfaceFrames(t *testing.T) {
	s := NewSurface()
	if f := s.Frame(); f.Center != -1 || f.Absent || len(f.Lines) != 0 {
		t.Fatalf("Unexpected empty frame: %+v", f)
	}

	s.ShowLines(textLines("a", "b"))
	s.SetPlayed(0, true)
	s.SetPlayed(5, true)
	s.Center(0)

	f := s.Frame()
	if len(f.Lines) != 2 || !f.Played[0] || f.Played[1] || f.Center != 0 {
		t.Errorf("Unexpected frame: %+v", f)
	}

	f.Played[1] = true
	if s.Frame().Played[1] {
		t.Error("Frame shares state with the surface")
	}

	before := s.Frame().Revision
	s.ShowAbsent()
	f = s.Frame()
	if !f.Absent || len(f.Lines) != 0 || f.Center != -1 {
		t.Errorf("Expected absent frame, got %+v", f)
	}
	if f.Revision <= before {
		t.Error("Expected revision to advance")
	}
}

func TestEventsDropWhenFull(t *testing.T) {
	events := NewEvents(1)
	handler := events.Handler()

	handler(player.Event{Kind: player.EventTrackChanged})
	handler(player.Event{Kind: player.EventLyricsLoaded})

	if got := (<-events.ch).Kind; got != player.EventTrackChanged {
		t.Errorf("Expected the first event to be kept, got %s", got)
	}
	select {
	case ev := <-events.ch:
		t.Errorf("Expected overflow to be dropped, got %s", ev.Kind)
	default:
	}
}

func TestKeysRunControllerCalls(t *testing.T) {
	tests := []struct {
		key  string
		call string
	}{
		{" ", "toggle"},
		{"n", "next"},
		{"p", "previous"},
		{"right", "seek"},
	}

	for _, tt := range tests {
		t.Run(tt.call, func(t *testing.T) {
			m, ctrl, _ := newTestModel(t)
			_, cmd := press(t, m, tt.key)
			if cmd == nil {
				t.Fatal("Expected a command")
			}
			if ctrl.called(tt.call) {
				t.Fatal("Controller called before the command ran")
			}
			cmd()
			if !ctrl.called(tt.call) {
				t.Errorf("Expected %s to be called, got %v", tt.call, ctrl.calls)
			}
		})
	}
}

func TestSeekClampsToDuration(t *testing.T) {
	m, ctrl, _ := newTestModel(t)
	_, cmd := press(t, m, "right")
	cmd()
	if ctrl.seekTo != 12 {
		t.Errorf("Expected seek clamped to 12, got %v", ctrl.seekTo)
	}
}

func TestActionErrorIsShown(t *testing.T) {
	m, ctrl, _ := newTestModel(t)
	ctrl.failNext = errors.New("boom")

	m, cmd := press(t, m, "n")
	next, _ := m.Update(cmd())
	m = next.(Model)

	if m.Err() == nil || !strings.Contains(m.Err().Error(), "next: boom") {
		t.Fatalf("Expected next error, got %v", m.Err())
	}
	if !strings.Contains(m.View(), "next: boom") {
		t.Error("Expected error in footer")
	}
}

func TestEditFlow(t *testing.T) {
	m, ctrl, _ := newTestModel(t)

	m, _ = press(t, m, "e")
	if !m.Status().Editing || m.Cursor() != 1 {
		t.Fatalf("Expected edit mode at centred line, got editing=%v cursor=%d", m.Status().Editing, m.Cursor())
	}

	m, _ = press(t, m, "down")
	m, _ = press(t, m, "enter")
	if len(ctrl.toggled) != 1 || ctrl.toggled[0] != 2 {
		t.Errorf("Expected line 2 toggled, got %v", ctrl.toggled)
	}
	if !strings.Contains(m.Message(), "line 3 marked") {
		t.Errorf("Unexpected message %q", m.Message())
	}

	_, cmd := press(t, m, "s")
	if cmd == nil {
		t.Fatal("Expected save command")
	}
	cmd()
	if !ctrl.called("save") {
		t.Error("Expected SaveEdits")
	}

	m, _ = press(t, m, "esc")
	if m.Status().Editing {
		t.Error("Expected esc to leave edit mode")
	}
}

func TestImportSidecarText(t *testing.T) {
	m, ctrl, _ := newTestModel(t)
	dir := t.TempDir()
	audio := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(SidecarPath(audio), []byte("la la\nla"), 0644); err != nil {
		t.Fatalf("Failed to write sidecar: %v", err)
	}
	ctrl.status.Track.Location = audio
	m.refresh()

	m, cmd := press(t, m, "i")
	if cmd == nil {
		t.Fatal("Expected an import command")
	}
	next, _ := m.Update(cmd())
	m = next.(Model)
	if m.Err() != nil {
		t.Fatalf("Import failed: %v", m.Err())
	}
	if ctrl.freeform != "la la\nla" {
		t.Errorf("Expected the sidecar text, got %q", ctrl.freeform)
	}

	ctrl.status.Track.Location = filepath.Join(dir, "other.flac")
	m.refresh()
	m, cmd = press(t, m, "i")
	next, _ = m.Update(cmd())
	if err := next.(Model).Err(); err == nil || !strings.Contains(err.Error(), "import: no lyric text") {
		t.Errorf("Expected a missing sidecar error, got %v", err)
	}
}

func TestSidecarPath(t *testing.T) {
	if got := SidecarPath("/music/a/song.mp3"); got != "/music/a/song.txt" {
		t.Errorf("Unexpected sidecar path %q", got)
	}
	if got := SidecarPath("/music/noext"); got != "/music/noext.txt" {
		t.Errorf("Unexpected sidecar path %q", got)
	}
}

func TestEnterOutsideEditIsIgnored(t *testing.T) {
	m, ctrl, _ := newTestModel(t)
	press(t, m, "enter")
	press(t, m, "s")
	if ctrl.called("toggleLine") || ctrl.called("save") {
		t.Errorf("Unexpected calls %v", ctrl.calls)
	}
}

func TestManualScroll(t *testing.T) {
	m, ctrl, _ := newTestModel(t)

	m, _ = press(t, m, "down")
	if !ctrl.called("scrolled") {
		t.Fatal("Expected UserScrolled")
	}
	if m.Status().Autoscroll {
		t.Error("Expected autoscroll off after a manual scroll")
	}
	if m.scrollTop != 1 {
		t.Errorf("Expected scrollTop 1, got %d", m.scrollTop)
	}

	for i := 0; i < 10; i++ {
		m, _ = press(t, m, "down")
	}
	if m.scrollTop != 3 {
		t.Errorf("Expected scrollTop clamped to 3, got %d", m.scrollTop)
	}
}

func TestEventMessages(t *testing.T) {
	m, _, _ := newTestModel(t)

	next, cmd := m.Update(EventMsg{Event: player.Event{Kind: player.EventPlaybackFailed, Err: errors.New("gone")}})
	m = next.(Model)
	if m.Err() == nil {
		t.Error("Expected playback failure to be shown")
	}
	if cmd != nil {
		t.Error("Expected no listener without an event feed")
	}

	next, _ = m.Update(EventMsg{Event: player.Event{Kind: player.EventTrackChanged}})
	m = next.(Model)
	if m.Err() != nil {
		t.Error("Expected track change to clear the error")
	}

	next, _ = m.Update(EventMsg{Event: player.Event{Kind: player.EventLyricsSaved}})
	if next.(Model).Message() != "lyrics saved" {
		t.Errorf("Unexpected message %q", next.(Model).Message())
	}
}

func TestQueueChangeRefreshesUpNext(t *testing.T) {
	m, ctrl, _ := newTestModel(t)
	if strings.Contains(m.View(), "next:") {
		t.Fatal("Expected nothing up next before the queue changed")
	}

	ctrl.mu.Lock()
	ctrl.status.QueueIndex = 1
	ctrl.status.UpNext = &types.Track{ID: "c", Name: "Song C"}
	ctrl.mu.Unlock()

	next, _ := m.Update(EventMsg{Event: player.Event{Kind: player.EventQueueChanged, Queue: &player.QueueInfo{Index: 1, Size: 3}}})
	view := next.(Model).View()
	if !strings.Contains(view, "2/3") || !strings.Contains(view, "next: Song C") {
		t.Errorf("Expected the new queue position in the header, got %q", view)
	}
}

func TestViewStates(t *testing.T) {
	m := NewModel(ModelConfig{Controller: &fakeController{}})
	if !strings.Contains(m.View(), "nothing playing") {
		t.Error("Expected waiting screen")
	}

	m, _, surface := newTestModel(t)
	view := m.View()
	for _, want := range []string{"Song A", "Band", "playing", "0:10", "0:12", "two", "three"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected %q in view", want)
		}
	}
	if got := strings.Count(view, "\n") + 1; got != 20 {
		t.Errorf("Expected 20 rows, got %d", got)
	}

	surface.ShowAbsent()
	next, _ := m.Update(TickMsg{})
	if !strings.Contains(next.(Model).View(), "no lyrics") {
		t.Error("Expected absent state")
	}
}

func TestQuit(t *testing.T) {
	m, _, _ := newTestModel(t)
	m, cmd := press(t, m, "q")
	if !m.IsQuitting() || cmd == nil {
		t.Fatal("Expected quit")
	}
	if m.View() != "" {
		t.Error("Expected empty view after quitting")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  int
	}{
		{"short", 10, 5},
		{"a much longer line of lyrics", 10, 10},
		{"日本語の歌詞です", 7, 7},
	}

	for _, tt := range tests {
		got := truncate(tt.in, tt.width)
		if w := runewidth.StringWidth(got); w > tt.want {
			t.Errorf("truncate(%q, %d) width %d, want <= %d", tt.in, tt.width, w, tt.want)
		}
	}
}

func TestAccentColor(t *testing.T) {
	if got := accentColor("255,0,16"); string(got) != "#ff0010" {
		t.Errorf("Expected #ff0010, got %s", got)
	}
	if got := accentColor("bogus"); string(got) != defaultAccent {
		t.Errorf("Expected default accent, got %s", got)
	}
}

func TestFormatTime(t *testing.T) {
	tests := map[float64]string{0: "0:00", 65.9: "1:05", -3: "0:00", 600: "10:00"}
	for in, want := range tests {
		if got := formatTime(in); got != want {
			t.Errorf("formatTime(%v) = %q, want %q", in, got, want)
		}
	}
}
