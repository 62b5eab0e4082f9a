// Package types provides shared type definitions used across stashd.
package types

import "maps"

// Track is a single playable item in the library
type Track struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Artist   string         `json:"artist"`
	Location string         `json:"location"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy of the track that shares no mutable state with t
func (t Track) Clone() Track {
	if t.Metadata != nil {
		t.Metadata = maps.Clone(t.Metadata)
	}
	return t
}

// Title returns "artist - name", or just the name when the artist is unknown
func (t Track) Title() string {
	if t.Artist == "" {
		return t.Name
	}
	return t.Artist + " - " + t.Name
}

// Well-known metadata keys written by the scanner
const (
	MetaAlbum    = "album"
	MetaDuration = "durationSeconds"
	MetaHasArt   = "hasArtwork"
	MetaArtPath  = "artPath"
	MetaYear     = "year"
	MetaGenres   = "genres"
)

// DurationHint returns the duration recorded in the track metadata, if any
func (t Track) DurationHint() float64 {
	switch v := t.Metadata[MetaDuration].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Stash is a named, ordered list of track ids
type Stash struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Songs       []string `json:"songs"`
}

// MasterStashName is the display name of the synthetic stash holding the whole library
const MasterStashName = "Master Stash"

// NowPlaying is the information pushed to external now-playing surfaces
type NowPlaying struct {
	Name     string  `json:"name"`
	Artist   string  `json:"artist"`
	Duration float64 `json:"durationSeconds"`
	Elapsed  float64 `json:"elapsedSeconds"`
}

// PlaybackSession is the resumable playback snapshot
type PlaybackSession struct {
	StashID  string  `json:"stashId"`
	Track    Track   `json:"track"`
	Elapsed  float64 `json:"elapsedSeconds"`
	Duration float64 `json:"durationSeconds"`
	Queue    []Track `json:"queueSnapshot"`
}
