package lyrics

import (
	"sort"
	"strings"
)

// Edit is a pending retiming of one line. Position is only used while editing
// and is never written into a document.
type Edit struct {
	Text     string  `json:"text"`
	At       float64 `json:"at"`
	Position int     `json:"position"`
}

// EditSession collects at most one pending edit per line position
type EditSession struct {
	pending map[int]Edit
}

// NewEditSession creates an empty edit session
func NewEditSession() *EditSession {
	return &EditSession{pending: make(map[int]Edit)}
}

// Toggle records an edit anchoring the line at clock, or drops the pending
// edit if the line already has one. It reports whether the line is now pending.
func (s *EditSession) Toggle(index int, clock float64, original Line) bool {
	if _, ok := s.pending[index]; ok {
		delete(s.pending, index)
		return false
	}
	s.pending[index] = Edit{Text: original.Text, At: clock, Position: index}
	return true
}

// Pending returns the pending edit for a line position
func (s *EditSession) Pending(index int) (Edit, bool) {
	e, ok := s.pending[index]
	return e, ok
}

// Edits returns the pending edits ordered by position
func (s *EditSession) Edits() []Edit {
	out := make([]Edit, 0, len(s.pending))
	for _, e := range s.pending {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// Len returns the number of pending edits
func (s *EditSession) Len() int {
	return len(s.pending)
}

// Clear drops every pending edit
func (s *EditSession) Clear() {
	clear(s.pending)
}

// Commit returns a copy of doc with the pending edits applied. Only text and
// anchor of an edited line change; every other field, and every untouched
// line, passes through as it was. Edits past the end of the document are dropped.
func (s *EditSession) Commit(doc *Document) *Document {
	out := doc.Clone()
	if out == nil {
		return nil
	}
	for pos, e := range s.pending {
		if pos < 0 || pos >= len(out.Lines) {
			continue
		}
		out.Lines[pos].Text = e.Text
		out.Lines[pos].At = e.At
	}
	return out
}

// Freeform builds a document from plain text, one line per non-blank row.
// Every line is untimed so nothing is highlighted or scrolled to until retimed.
// Blank rows between lines become IncludeGap on the line that follows them.
func Freeform(songID, text string) *Document {
	doc := &Document{SongID: songID, Lines: []Line{}}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	gap := false
	for _, row := range strings.Split(text, "\n") {
		row = strings.TrimSpace(row)
		if row == "" {
			gap = len(doc.Lines) > 0
			continue
		}
		line := Line{Text: row, At: UntimedAt}
		if gap {
			g := true
			line.IncludeGap = &g
			gap = false
		}
		doc.Lines = append(doc.Lines, line)
	}
	return doc
}
