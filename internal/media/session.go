// Package media provides OS-level media session integration.
package media

import (
	"log"
	"sync"
	"time"

	"github.com/austinkregel/local-media/stashd/internal/types"
)

// PlaybackState represents the playback state for media sessions
type PlaybackState int

const (
	StateStopped PlaybackState = iota
	StatePlaying
	StatePaused
)

// String returns the MPRIS name of the state
func (s PlaybackState) String() string {
	switch s {
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

// Metadata contains track metadata for media session display
type Metadata struct {
	Title    string
	Artist   string
	Album    string
	Duration time.Duration
	ArtPath  string
}

// Session is the interface for OS media session integration
type Session interface {
	// UpdateMetadata updates the currently playing track metadata
	UpdateMetadata(metadata Metadata) error

	// UpdatePlaybackState updates the playback state and position
	UpdatePlaybackState(state PlaybackState, position time.Duration) error

	// UpdatePosition records the clock without announcing a state change
	UpdatePosition(position time.Duration) error

	// UpdateNavigation reports whether next and previous are available
	UpdateNavigation(canNext, canPrevious bool) error

	// SetCommandHandler sets the handler for media commands (play, pause, etc.)
	SetCommandHandler(handler CommandHandler)

	// Close releases resources
	Close() error
}

// Command represents a media command from the OS
type Command int

const (
	CmdPlay Command = iota
	CmdPause
	CmdPlayPause
	CmdStop
	CmdNext
	CmdPrevious
	CmdSeek
)

// String returns the command name
func (c Command) String() string {
	switch c {
	case CmdPlay:
		return "Play"
	case CmdPause:
		return "Pause"
	case CmdPlayPause:
		return "PlayPause"
	case CmdStop:
		return "Stop"
	case CmdNext:
		return "Next"
	case CmdPrevious:
		return "Previous"
	case CmdSeek:
		return "Seek"
	default:
		return "Unknown"
	}
}

// CommandHandler handles media commands from the OS
type CommandHandler interface {
	OnCommand(cmd Command, data interface{}) error
}

// CommandHandlerFunc is a function adapter for CommandHandler
type CommandHandlerFunc func(cmd Command, data interface{}) error

func (f CommandHandlerFunc) OnCommand(cmd Command, data interface{}) error {
	return f(cmd, data)
}

// NoOpSession is a session that does nothing
// Used when media session integration is not available
type NoOpSession struct{}

// NewNoOpSession creates a new no-op session
func NewNoOpSession() *NoOpSession {
	return &NoOpSession{}
}

func (s *NoOpSession) UpdateMetadata(metadata Metadata) error {
	return nil
}

func (s *NoOpSession) UpdatePlaybackState(state PlaybackState, position time.Duration) error {
	return nil
}

func (s *NoOpSession) UpdatePosition(position time.Duration) error {
	return nil
}

func (s *NoOpSession) UpdateNavigation(canNext, canPrevious bool) error {
	return nil
}

func (s *NoOpSession) SetCommandHandler(handler CommandHandler) {
}

func (s *NoOpSession) Close() error {
	return nil
}

// NowPlayingNotifier forwards now-playing updates to a Session. A nil update
// means nothing is playing: the track info is cleared and the session is
// reported as paused at the last position, or stopped when nothing is shown.
type NowPlayingNotifier struct {
	session Session

	mu    sync.Mutex
	shown *types.NowPlaying
}

// NewNowPlayingNotifier wraps session
func NewNowPlayingNotifier(session Session) *NowPlayingNotifier {
	return &NowPlayingNotifier{session: session}
}

// NotifyNowPlaying updates the session metadata when the track changes and
// the playback state on every call
func (n *NowPlayingNotifier) NotifyNowPlaying(info *types.NowPlaying) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if info == nil {
		if n.shown == nil {
			return n.session.UpdatePlaybackState(StateStopped, 0)
		}
		position := seconds(n.shown.Elapsed)
		n.shown = nil
		if err := n.session.UpdateMetadata(Metadata{}); err != nil {
			return err
		}
		return n.session.UpdatePlaybackState(StatePaused, position)
	}

	if n.shown == nil || n.shown.Name != info.Name || n.shown.Artist != info.Artist || n.shown.Duration != info.Duration {
		err := n.session.UpdateMetadata(Metadata{
			Title:    info.Name,
			Artist:   info.Artist,
			Duration: seconds(info.Duration),
		})
		if err != nil {
			return err
		}
	}
	shown := *info
	n.shown = &shown
	return n.session.UpdatePlaybackState(StatePlaying, seconds(info.Elapsed))
}

// Progress moves the session position while a track is shown. Its signature
// matches the controller's progress callback.
func (n *NowPlayingNotifier) Progress(elapsed, duration, percent float64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.shown == nil {
		return
	}
	n.shown.Elapsed = elapsed
	if err := n.session.UpdatePosition(seconds(elapsed)); err != nil {
		log.Printf("[MEDIA] Position update failed: %v", err)
	}
}

// Navigation reports which queue directions are available
func (n *NowPlayingNotifier) Navigation(canNext, canPrevious bool) error {
	return n.session.UpdateNavigation(canNext, canPrevious)
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
