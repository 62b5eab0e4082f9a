package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/austinkregel/local-media/stashd/internal/player"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case EventMsg:
		return m.handleEvent(msg.Event)

	case actionDoneMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("%s: %w", msg.action, msg.err)
		}
		m.refresh()
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.ctrl == nil {
		if s := msg.String(); s == "q" || s == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case " ", "space":
		m.err = nil
		return m, m.run("toggle", m.ctrl.Toggle)

	case "n":
		m.err = nil
		return m, m.run("next", m.ctrl.Next)

	case "p":
		m.err = nil
		return m, m.run("previous", m.ctrl.Previous)

	case "left", "h":
		return m, m.seekBy(-SeekStep)

	case "right", "l":
		return m, m.seekBy(SeekStep)

	case "up", "k":
		m.move(-1)
		return m, nil

	case "down", "j":
		m.move(1)
		return m, nil

	case "e":
		if m.status.Editing {
			m.ctrl.LeaveEdit()
			m.message = ""
		} else {
			m.cursor = m.focusLine()
			m.ctrl.EnterEdit()
			m.message = "edit mode: enter marks a line, s saves, esc leaves"
		}
		m.refresh()
		return m, nil

	case "esc":
		if m.status.Editing {
			m.ctrl.LeaveEdit()
			m.message = ""
			m.refresh()
		}
		return m, nil

	case "enter":
		if !m.status.Editing {
			return m, nil
		}
		marked, err := m.ctrl.ToggleLine(m.cursor)
		if err != nil {
			m.err = err
			return m, nil
		}
		if marked {
			m.message = fmt.Sprintf("line %d marked at %s", m.cursor+1, formatTime(m.status.Elapsed))
		} else {
			m.message = fmt.Sprintf("line %d unmarked", m.cursor+1)
		}
		m.refresh()
		return m, nil

	case "s":
		if !m.status.Editing {
			return m, nil
		}
		m.err = nil
		return m, m.run("save", m.ctrl.SaveEdits)

	case "i":
		if m.status.Track == nil || m.status.Editing {
			return m, nil
		}
		m.err = nil
		return m, m.importText(SidecarPath(m.status.Track.Location))
	}

	return m, nil
}

// SidecarPath is the plain text lyric file kept next to an audio file
func SidecarPath(location string) string {
	return strings.TrimSuffix(location, filepath.Ext(location)) + ".txt"
}

// importText replaces the current lyrics with the untimed lines of path
func (m Model) importText(path string) tea.Cmd {
	return m.run("import", func(ctx context.Context) error {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("no lyric text: %w", err)
		}
		return m.ctrl.SaveFreeform(ctx, string(raw))
	})
}

func (m Model) seekBy(delta float64) tea.Cmd {
	target := min(max(m.status.Elapsed+delta, 0), m.status.Duration)
	return m.run("seek", func(context.Context) error {
		return m.ctrl.Seek(target)
	})
}

// move walks the edit cursor, or scrolls the lyric window by hand
func (m *Model) move(delta int) {
	n := len(m.frame.Lines)
	if n == 0 {
		return
	}
	if m.status.Editing {
		m.cursor = min(max(m.cursor+delta, 0), n-1)
		return
	}
	if m.status.Autoscroll {
		m.scrollTop = m.windowTop(m.lyricRows())
		m.status.Autoscroll = false
	}
	m.scrollTop = min(max(m.scrollTop+delta, 0), n-1)
	m.ctrl.UserScrolled()
}

func (m Model) handleEvent(ev player.Event) (tea.Model, tea.Cmd) {
	switch ev.Kind {
	case player.EventPlaybackFailed, player.EventPersistFailed:
		m.err = ev.Err
	case player.EventTrackChanged:
		m.err = nil
		m.message = ""
		m.scrollTop = 0
		m.cursor = 0
	case player.EventLyricsSaved:
		m.message = "lyrics saved"
	case player.EventQueueFinished:
		m.message = "end of queue"
	}
	m.refresh()
	return m, m.listenForEvents()
}
