// Package player holds the playback controller: the state machine tying the
// queue, the media backend, the lyric engine and the edit session together.
package player

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/austinkregel/local-media/stashd/internal/lyrics"
	"github.com/austinkregel/local-media/stashd/internal/types"
)

// State represents the controller state
type State string

const (
	StateIdle    State = "idle"
	StateLoaded  State = "loaded"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
)

var (
	// ErrNoTrack is returned by operations that need a current track
	ErrNoTrack = errors.New("player: no track loaded")
	// ErrNotEditing is returned by edit operations outside edit mode
	ErrNotEditing = errors.New("player: not in edit mode")
	// ErrNoLyrics is returned when editing a track without a lyric document
	ErrNoLyrics = errors.New("player: track has no lyrics")
	// ErrLineOutOfRange is returned for a line index outside the document
	ErrLineOutOfRange = errors.New("player: lyric line out of range")
)

// PlaybackError reports a track the media backend could not load or start
type PlaybackError struct {
	Track types.Track
	Err   error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback of %q failed: %v", e.Track.Title(), e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}

// Media is the audio backend driven by the controller
type Media interface {
	// Load assigns the media source and returns its duration in seconds.
	// It must not disturb whatever is currently playing.
	Load(ctx context.Context, track types.Track) (float64, error)
	// Play starts the loaded source at the given position. The backend
	// reports ticks and the end of this source with token.
	Play(ctx context.Context, token uint64, fromSeconds float64) error
	Pause() error
	Resume() error
	Seek(seconds float64) error
	Stop() error
}

// Store is the part of the library the controller reads and writes
type Store interface {
	FetchLyrics(ctx context.Context, songID string) (*lyrics.Document, error)
	SaveLyrics(ctx context.Context, doc *lyrics.Document) error
	PersistSession(ctx context.Context, session *types.PlaybackSession) error
}

// Notifier receives now-playing updates; nil clears the notification
type Notifier interface {
	NotifyNowPlaying(info *types.NowPlaying) error
}

// ProgressFunc is called with the clock on every tick, before the lyric
// engine runs, and after every seek. It is never called with the controller
// locked.
type ProgressFunc func(elapsed, duration, percent float64)

// AccentFunc derives an "r,g,b" accent colour for a track
type AccentFunc func(track types.Track) (string, error)

// EventKind identifies a controller event
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventTrackChanged
	EventLyricsLoaded
	EventLyricsSaved
	EventEditChanged
	EventPlaybackFailed
	EventPersistFailed
	EventQueueFinished
	EventQueueChanged
)

// String returns the event name
func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "StateChanged"
	case EventTrackChanged:
		return "TrackChanged"
	case EventLyricsLoaded:
		return "LyricsLoaded"
	case EventLyricsSaved:
		return "LyricsSaved"
	case EventEditChanged:
		return "EditChanged"
	case EventPlaybackFailed:
		return "PlaybackFailed"
	case EventPersistFailed:
		return "PersistFailed"
	case EventQueueFinished:
		return "QueueFinished"
	case EventQueueChanged:
		return "QueueChanged"
	default:
		return "Unknown"
	}
}

// Event is emitted to the surface after a controller transition
type Event struct {
	Kind  EventKind
	State State
	Track types.Track
	Err   error
	// Queue is set on QueueChanged
	Queue *QueueInfo
}

// QueueInfo is the queue cursor and its neighbours. Next and Previous are nil
// when the queue holds fewer than two tracks.
type QueueInfo struct {
	Index    int
	Size     int
	Next     *types.Track
	Previous *types.Track
}

// EventHandler receives controller events. It is never called with the controller locked.
type EventHandler func(Event)

// Status is a point-in-time view of the controller
type Status struct {
	State        State         `json:"state"`
	Track        *types.Track  `json:"track,omitempty"`
	StashID      string        `json:"stashId,omitempty"`
	Elapsed      float64       `json:"elapsedSeconds"`
	Duration     float64       `json:"durationSeconds"`
	Progress     float64       `json:"progress"`
	QueueIndex   int           `json:"queueIndex"`
	QueueSize    int           `json:"queueSize"`
	UpNext       *types.Track  `json:"upNext,omitempty"`
	Editing      bool          `json:"editing"`
	PendingEdits []lyrics.Edit `json:"pendingEdits,omitempty"`
	HasLyrics    bool          `json:"hasLyrics"`
	Accent       string        `json:"accent,omitempty"`
	Autoscroll   bool          `json:"autoscroll"`
}

// Progress returns elapsed as a percentage of duration, clamped to [0, 100].
// Unknown or zero durations give 0.
func Progress(elapsed, duration float64) float64 {
	if duration <= 0 || math.IsNaN(duration) || math.IsNaN(elapsed) || math.IsInf(duration, 0) {
		return 0
	}
	p := elapsed / duration * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
