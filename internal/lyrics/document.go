// Package lyrics holds the time-synchronised lyric model, the sync engine that
// tracks it against the playback clock, and the edit session used to retime it.
package lyrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// UntimedAt is the anchor given to lines that have no real timing yet.
// It is far past the end of any song so such lines never become played.
const UntimedAt = 99999.0

// ErrInvalidAccent is returned for accent colours not in "r,g,b" form
var ErrInvalidAccent = errors.New("lyrics: accent colour must be \"r,g,b\"")

// Line is one lyric line anchored at a playback time in seconds.
// Keys the model does not know about are kept in Extra and written back unchanged.
type Line struct {
	Text       string
	At         float64
	IncludeGap *bool
	Extra      map[string]json.RawMessage
}

// Untimed reports whether the line carries the placeholder anchor
func (l Line) Untimed() bool {
	return l.At >= UntimedAt
}

func (l Line) clone() Line {
	if l.IncludeGap != nil {
		v := *l.IncludeGap
		l.IncludeGap = &v
	}
	if l.Extra != nil {
		l.Extra = maps.Clone(l.Extra)
	}
	return l
}

// MarshalJSON writes the known fields over any preserved unknown ones
func (l Line) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(l.Extra)+3)
	for k, v := range l.Extra {
		out[k] = v
	}
	out["text"] = l.Text
	out["at"] = l.At
	if l.IncludeGap != nil {
		out["includeGap"] = *l.IncludeGap
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the known fields and keeps everything else in Extra
func (l *Line) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*l = Line{}
	if v, ok := raw["text"]; ok {
		if err := json.Unmarshal(v, &l.Text); err != nil {
			return fmt.Errorf("line text: %w", err)
		}
		delete(raw, "text")
	}
	if v, ok := raw["at"]; ok {
		if err := json.Unmarshal(v, &l.At); err != nil {
			return fmt.Errorf("line at: %w", err)
		}
		delete(raw, "at")
	}
	if v, ok := raw["includeGap"]; ok {
		var gap bool
		if err := json.Unmarshal(v, &gap); err != nil {
			return fmt.Errorf("line includeGap: %w", err)
		}
		l.IncludeGap = &gap
		delete(raw, "includeGap")
	}
	if len(raw) > 0 {
		l.Extra = raw
	}
	return nil
}

// Document is the full set of lyric lines and display metadata for one track
type Document struct {
	SongID      string
	AccentColor string
	Lines       []Line
	Extra       map[string]json.RawMessage
}

// Clone returns a deep copy of the document
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		SongID:      d.SongID,
		AccentColor: d.AccentColor,
	}
	if d.Lines != nil {
		out.Lines = make([]Line, len(d.Lines))
		for i, l := range d.Lines {
			out.Lines[i] = l.clone()
		}
	}
	if d.Extra != nil {
		out.Extra = maps.Clone(d.Extra)
	}
	return out
}

// MergeMissing copies forward optional fields that d leaves unset but prev
// had set, so a save never drops metadata the edit did not touch.
func (d *Document) MergeMissing(prev *Document) {
	if d == nil || prev == nil {
		return
	}
	if d.SongID == "" {
		d.SongID = prev.SongID
	}
	if d.AccentColor == "" {
		d.AccentColor = prev.AccentColor
	}
	for k, v := range prev.Extra {
		if _, ok := d.Extra[k]; ok {
			continue
		}
		if d.Extra == nil {
			d.Extra = make(map[string]json.RawMessage)
		}
		d.Extra[k] = v
	}
}

// MarshalJSON writes the document with preserved unknown keys
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+3)
	for k, v := range d.Extra {
		out[k] = v
	}
	out["songId"] = d.SongID
	if d.AccentColor != "" {
		out["accentColor"] = d.AccentColor
	}
	lines := d.Lines
	if lines == nil {
		lines = []Line{}
	}
	out["lines"] = lines
	return json.Marshal(out)
}

// UnmarshalJSON reads a document and keeps unknown keys in Extra
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*d = Document{}
	fields := []struct {
		key string
		dst any
	}{
		{"songId", &d.SongID},
		{"accentColor", &d.AccentColor},
		{"lines", &d.Lines},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return fmt.Errorf("document %s: %w", f.key, err)
		}
		delete(raw, f.key)
	}
	if len(raw) > 0 {
		d.Extra = raw
	}
	return nil
}

// RGB is a display accent colour
type RGB struct {
	R, G, B uint8
}

// ParseAccent parses an "r,g,b" accent colour string
func ParseAccent(s string) (RGB, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return RGB{}, ErrInvalidAccent
	}
	var vals [3]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return RGB{}, fmt.Errorf("%w: %v", ErrInvalidAccent, err)
		}
		vals[i] = uint8(n)
	}
	return RGB{R: vals[0], G: vals[1], B: vals[2]}, nil
}

// String formats the colour as "r,g,b"
func (c RGB) String() string {
	return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B)
}

// Hex formats the colour as "#rrggbb"
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
