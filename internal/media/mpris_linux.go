//go:build linux

package media

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	mprisInterface       = "org.mpris.MediaPlayer2"
	mprisPlayerInterface = "org.mpris.MediaPlayer2.Player"
	mprisBusName         = "org.mpris.MediaPlayer2.stashd"
	mprisObjectPath      = "/org/mpris/MediaPlayer2"
	propertiesInterface  = "org.freedesktop.DBus.Properties"

	mprisIdentity = "stashd"
)

var supportedMimeTypes = []string{"audio/mpeg", "audio/flac", "audio/x-m4a", "audio/ogg", "audio/wav"}

// MPRISSession exposes the player on the session bus. D-Bus method calls
// arrive on the connection's goroutine; the handler is always called without
// the session lock held.
type MPRISSession struct {
	conn *dbus.Conn

	mu       sync.Mutex
	handler  CommandHandler
	metadata Metadata
	state    PlaybackState
	position time.Duration
	trackNum uint64

	canNext     bool
	canPrevious bool
}

// NewSession creates a new MPRIS media session
func NewSession() (Session, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	reply, err := conn.RequestName(mprisBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name %s already taken", mprisBusName)
	}

	session := &MPRISSession{conn: conn, state: StateStopped, canNext: true, canPrevious: true}

	path := dbus.ObjectPath(mprisObjectPath)
	for _, iface := range []string{mprisInterface, mprisPlayerInterface, propertiesInterface} {
		if err := conn.Export(session, path, iface); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to export %s: %w", iface, err)
		}
	}

	log.Printf("[MEDIA] MPRIS session registered as %s", mprisBusName)
	return session, nil
}

// UpdateMetadata updates the track metadata
func (s *MPRISSession) UpdateMetadata(metadata Metadata) error {
	s.mu.Lock()
	s.metadata = metadata
	s.trackNum++
	props := map[string]dbus.Variant{
		"Metadata": dbus.MakeVariant(s.metadataMapLocked()),
	}
	s.mu.Unlock()

	return s.emitPropertiesChanged(props)
}

// UpdatePlaybackState updates the playback state. Clients extrapolate the
// position from the rate, so it is only announced through Seeked.
func (s *MPRISSession) UpdatePlaybackState(state PlaybackState, position time.Duration) error {
	s.mu.Lock()
	started := s.state != state && state == StatePlaying
	s.state = state
	s.position = position
	s.mu.Unlock()

	if started {
		if err := s.emitSeeked(position); err != nil {
			log.Printf("[MEDIA] Failed to emit Seeked: %v", err)
		}
	}
	return s.emitPropertiesChanged(map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant(state.String()),
	})
}

// UpdatePosition stores the clock for Position reads. MPRIS clients are not
// told about ordinary progress.
func (s *MPRISSession) UpdatePosition(position time.Duration) error {
	s.mu.Lock()
	s.position = position
	s.mu.Unlock()
	return nil
}

// UpdateNavigation updates CanGoNext and CanGoPrevious
func (s *MPRISSession) UpdateNavigation(canNext, canPrevious bool) error {
	s.mu.Lock()
	if s.canNext == canNext && s.canPrevious == canPrevious {
		s.mu.Unlock()
		return nil
	}
	s.canNext = canNext
	s.canPrevious = canPrevious
	s.mu.Unlock()

	return s.emitPropertiesChanged(map[string]dbus.Variant{
		"CanGoNext":     dbus.MakeVariant(canNext),
		"CanGoPrevious": dbus.MakeVariant(canPrevious),
	})
}

// SetCommandHandler sets the handler for media commands
func (s *MPRISSession) SetCommandHandler(handler CommandHandler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// Close releases resources
func (s *MPRISSession) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *MPRISSession) emitSeeked(position time.Duration) error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Emit(dbus.ObjectPath(mprisObjectPath), mprisPlayerInterface+".Seeked", position.Microseconds())
}

func (s *MPRISSession) emitPropertiesChanged(props map[string]dbus.Variant) error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Emit(
		dbus.ObjectPath(mprisObjectPath),
		propertiesInterface+".PropertiesChanged",
		mprisPlayerInterface,
		props,
		[]string{},
	)
}

func (s *MPRISSession) dispatch(cmd Command, data interface{}) *dbus.Error {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()

	if handler == nil {
		return nil
	}
	if err := handler.OnCommand(cmd, data); err != nil {
		log.Printf("[MEDIA] %s failed: %v", cmd, err)
		return dbus.MakeFailedError(err)
	}
	return nil
}

// org.mpris.MediaPlayer2

func (s *MPRISSession) Raise() *dbus.Error { return nil }
func (s *MPRISSession) Quit() *dbus.Error  { return nil }

// org.mpris.MediaPlayer2.Player

func (s *MPRISSession) Play() *dbus.Error      { return s.dispatch(CmdPlay, nil) }
func (s *MPRISSession) Pause() *dbus.Error     { return s.dispatch(CmdPause, nil) }
func (s *MPRISSession) PlayPause() *dbus.Error { return s.dispatch(CmdPlayPause, nil) }
func (s *MPRISSession) Stop() *dbus.Error      { return s.dispatch(CmdStop, nil) }
func (s *MPRISSession) Next() *dbus.Error      { return s.dispatch(CmdNext, nil) }
func (s *MPRISSession) Previous() *dbus.Error  { return s.dispatch(CmdPrevious, nil) }

// Seek moves by offset microseconds relative to the last known position
func (s *MPRISSession) Seek(offset int64) *dbus.Error {
	s.mu.Lock()
	pos := s.position + time.Duration(offset)*time.Microsecond
	s.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	return s.dispatch(CmdSeek, pos)
}

// SetPosition seeks to an absolute position in microseconds
func (s *MPRISSession) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	s.mu.Lock()
	current := s.trackIDLocked()
	s.mu.Unlock()
	if trackID != current {
		// stale request for a previous track
		return nil
	}
	return s.dispatch(CmdSeek, time.Duration(position)*time.Microsecond)
}

// org.freedesktop.DBus.Properties

func (s *MPRISSession) Get(iface, prop string) (dbus.Variant, *dbus.Error) {
	props, derr := s.GetAll(iface)
	if derr != nil {
		return dbus.Variant{}, derr
	}
	v, ok := props[prop]
	if !ok {
		return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("unknown property: %s", prop))
	}
	return v, nil
}

func (s *MPRISSession) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	switch iface {
	case mprisInterface:
		return map[string]dbus.Variant{
			"CanQuit":             dbus.MakeVariant(false),
			"CanRaise":            dbus.MakeVariant(false),
			"HasTrackList":        dbus.MakeVariant(false),
			"Identity":            dbus.MakeVariant(mprisIdentity),
			"DesktopEntry":        dbus.MakeVariant(mprisIdentity),
			"SupportedUriSchemes": dbus.MakeVariant([]string{"file"}),
			"SupportedMimeTypes":  dbus.MakeVariant(supportedMimeTypes),
		}, nil
	case mprisPlayerInterface:
		s.mu.Lock()
		defer s.mu.Unlock()
		return map[string]dbus.Variant{
			"PlaybackStatus": dbus.MakeVariant(s.state.String()),
			"Metadata":       dbus.MakeVariant(s.metadataMapLocked()),
			"Position":       dbus.MakeVariant(s.position.Microseconds()),
			"Rate":           dbus.MakeVariant(1.0),
			"MinimumRate":    dbus.MakeVariant(1.0),
			"MaximumRate":    dbus.MakeVariant(1.0),
			"Volume":         dbus.MakeVariant(1.0),
			"CanGoNext":      dbus.MakeVariant(s.canNext),
			"CanGoPrevious":  dbus.MakeVariant(s.canPrevious),
			"CanPlay":        dbus.MakeVariant(true),
			"CanPause":       dbus.MakeVariant(true),
			"CanSeek":        dbus.MakeVariant(true),
			"CanControl":     dbus.MakeVariant(true),
		}, nil
	}
	return nil, dbus.MakeFailedError(fmt.Errorf("unknown interface: %s", iface))
}

// Set accepts no writable properties
func (s *MPRISSession) Set(iface, prop string, value dbus.Variant) *dbus.Error {
	return nil
}

func (s *MPRISSession) trackIDLocked() dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("/org/stashd/track/%d", s.trackNum))
}

func (s *MPRISSession) metadataMapLocked() map[string]dbus.Variant {
	m := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(s.trackIDLocked()),
	}
	if s.metadata.Title != "" {
		m["xesam:title"] = dbus.MakeVariant(s.metadata.Title)
	}
	if s.metadata.Artist != "" {
		m["xesam:artist"] = dbus.MakeVariant([]string{s.metadata.Artist})
	}
	if s.metadata.Album != "" {
		m["xesam:album"] = dbus.MakeVariant(s.metadata.Album)
	}
	if s.metadata.Duration > 0 {
		m["mpris:length"] = dbus.MakeVariant(s.metadata.Duration.Microseconds())
	}
	if s.metadata.ArtPath != "" {
		m["mpris:artUrl"] = dbus.MakeVariant("file://" + s.metadata.ArtPath)
	}
	return m
}
