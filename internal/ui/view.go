package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/austinkregel/local-media/stashd/internal/lyrics"
	"github.com/austinkregel/local-media/stashd/internal/player"
	"github.com/austinkregel/local-media/stashd/internal/types"
)

const (
	defaultAccent = "#8fbcbb"
	dimColor      = "#6c7086"
	errorColor    = "#f38ba8"

	// header, progress, two spacers and the footer
	chromeRows = 6
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	width, height := m.size()
	accent := accentColor(m.status.Accent)

	if m.status.Track == nil {
		return m.renderWaitingScreen(width, height)
	}

	var lines []string
	lines = append(lines, m.renderHeader(accent, width)...)
	lines = append(lines, m.renderProgress(accent, width), "")
	lines = append(lines, m.renderLyrics(accent, width, m.lyricRows())...)

	for len(lines) < height-1 {
		lines = append(lines, "")
	}
	lines = append(lines, m.renderFooter(width))

	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) size() (int, int) {
	width, height := m.width, m.height
	if width == 0 {
		width = 80
	}
	if height == 0 {
		height = 24
	}
	return width, height
}

// lyricRows is the height of the lyric window
func (m Model) lyricRows() int {
	_, height := m.size()
	return max(height-chromeRows, 1)
}

// windowTop is the first lyric line shown in a window of rows lines
func (m Model) windowTop(rows int) int {
	n := len(m.frame.Lines)
	if !m.status.Editing && !m.status.Autoscroll {
		return min(max(m.scrollTop, 0), max(n-1, 0))
	}
	top := m.focusLine() - rows/2
	return min(max(top, 0), max(n-rows, 0))
}

func (m Model) renderWaitingScreen(width, height int) string {
	lines := make([]string, height)
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(dimColor)).Italic(true)
	lines[height/2] = centerText(style.Render("nothing playing"), runewidth.StringWidth("nothing playing"), width)
	return strings.Join(lines, "\n")
}

func (m Model) renderHeader(accent lipgloss.Color, width int) []string {
	track := m.status.Track
	maxWidth := max(width-4, 10)

	titleStyle := lipgloss.NewStyle().Foreground(accent).Bold(true)
	artistStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(dimColor))

	sub := track.Artist
	if album, ok := track.Metadata[types.MetaAlbum].(string); ok && album != "" {
		if sub != "" {
			sub += " · "
		}
		sub += album
	}

	state := stateLabel(m.status)
	if m.status.QueueSize > 0 {
		state += fmt.Sprintf("  %d/%d", m.status.QueueIndex+1, m.status.QueueSize)
	}
	if m.status.StashID != "" {
		state += "  " + m.status.StashID
	}
	if next := m.status.UpNext; next != nil {
		state += "  next: " + next.Name
	}

	return []string{
		"  " + titleStyle.Render(truncate(track.Name, maxWidth)),
		"  " + artistStyle.Render(truncate(sub, maxWidth)),
		"  " + artistStyle.Render(truncate(state, maxWidth)),
	}
}

func stateLabel(st player.Status) string {
	var label string
	switch st.State {
	case player.StatePlaying:
		label = "▶ playing"
	case player.StatePaused:
		label = "⏸ paused"
	case player.StateEnded:
		label = "■ ended"
	default:
		label = "· " + string(st.State)
	}
	if st.Editing {
		label += fmt.Sprintf("  [edit: %d pending]", len(st.PendingEdits))
	}
	return label
}

func (m Model) renderProgress(accent lipgloss.Color, width int) string {
	barWidth := max(width-20, 10)
	filled := int(float64(barWidth) * m.status.Progress / 100)

	filledStyle := lipgloss.NewStyle().Foreground(accent)
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(dimColor)).Faint(true)
	timeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(dimColor))

	var bar strings.Builder
	for i := 0; i < barWidth; i++ {
		switch {
		case i < filled:
			bar.WriteString(filledStyle.Render("━"))
		case i == filled:
			bar.WriteString(filledStyle.Render("●"))
		default:
			bar.WriteString(emptyStyle.Render("─"))
		}
	}

	return fmt.Sprintf("  %s  %s  %s",
		timeStyle.Render(formatTime(m.status.Elapsed)),
		bar.String(),
		timeStyle.Render(formatTime(m.status.Duration)))
}

func (m Model) renderLyrics(accent lipgloss.Color, width, rows int) []string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color(dimColor))

	if m.frame.Absent || (len(m.frame.Lines) == 0 && !m.status.HasLyrics) {
		out := make([]string, rows)
		out[rows/2] = centerText(dim.Italic(true).Render("no lyrics"), runewidth.StringWidth("no lyrics"), width)
		return out
	}

	playedStyle := lipgloss.NewStyle().Foreground(accent)
	currentStyle := lipgloss.NewStyle().Foreground(accent).Bold(true)
	pendingStyle := lipgloss.NewStyle().Foreground(accent).Underline(true)

	pending := make(map[int]bool, len(m.status.PendingEdits))
	for _, e := range m.status.PendingEdits {
		pending[e.Position] = true
	}

	top := m.windowTop(rows)
	out := make([]string, 0, rows)
	for i := top; i < len(m.frame.Lines) && len(out) < rows; i++ {
		line := m.frame.Lines[i]
		text := lineText(line)

		prefix := "  "
		if m.status.Editing && i == m.cursor {
			prefix = "> "
		}
		text = truncate(text, max(width-4, 4))
		visible := runewidth.StringWidth(prefix + text)

		var rendered string
		switch {
		case pending[i]:
			rendered = pendingStyle.Render(text)
		case i == m.frame.Center:
			rendered = currentStyle.Render(text)
		case i < len(m.frame.Played) && m.frame.Played[i]:
			rendered = playedStyle.Render(text)
		default:
			rendered = dim.Render(text)
		}
		out = append(out, centerText(prefix+rendered, visible, width))
	}
	for len(out) < rows {
		out = append(out, "")
	}
	return out
}

func lineText(line lyrics.Line) string {
	text := line.Text
	if text == "" {
		text = "···"
	}
	if line.Untimed() {
		text = "◦ " + text
	}
	return text
}

func (m Model) renderFooter(width int) string {
	if m.err != nil {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(errorColor))
		return "  " + style.Render(truncate(m.err.Error(), max(width-4, 4)))
	}

	text := m.message
	if text == "" {
		text = "space play/pause · n/p next/prev · ←/→ seek · ↑/↓ scroll · e edit · q quit"
	}
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(dimColor))
	return "  " + style.Render(truncate(text, max(width-4, 4)))
}

// accentColor turns an "r,g,b" accent into a lipgloss colour
func accentColor(accent string) lipgloss.Color {
	rgb, err := lyrics.ParseAccent(accent)
	if err != nil {
		return lipgloss.Color(defaultAccent)
	}
	return lipgloss.Color(rgb.Hex())
}

// truncate shortens s to width display cells
func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// centerText pads a rendered string whose visible width is visible
func centerText(rendered string, visible, width int) string {
	pad := (width - visible) / 2
	if pad <= 0 {
		return rendered
	}
	return strings.Repeat(" ", pad) + rendered
}

func formatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
