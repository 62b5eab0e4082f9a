//go:build linux

package media

import (
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

func TestMPRISPlayerProperties(t *testing.T) {
	s := &MPRISSession{state: StatePaused, position: 2 * time.Second}
	s.metadata = Metadata{Title: "Song", Artist: "Band", Duration: time.Minute}

	props, derr := s.GetAll(mprisPlayerInterface)
	if derr != nil {
		t.Fatalf("GetAll failed: %v", derr)
	}
	if got := props["PlaybackStatus"].Value(); got != "Paused" {
		t.Errorf("Expected Paused, got %v", got)
	}
	if got := props["Position"].Value(); got != int64(2000000) {
		t.Errorf("Expected position in microseconds, got %v", got)
	}

	meta := props["Metadata"].Value().(map[string]dbus.Variant)
	if meta["xesam:title"].Value() != "Song" {
		t.Errorf("Unexpected title: %v", meta["xesam:title"])
	}
	if _, ok := meta["xesam:album"]; ok {
		t.Error("Empty album should be omitted")
	}

	if _, derr := s.Get(mprisInterface, "Identity"); derr != nil {
		t.Errorf("Get Identity failed: %v", derr)
	}
	if _, derr := s.Get(mprisPlayerInterface, "Shuffle"); derr == nil {
		t.Error("Expected unknown property error")
	}
	if _, derr := s.GetAll("org.example.Nope"); derr == nil {
		t.Error("Expected unknown interface error")
	}
}

func TestMPRISDispatch(t *testing.T) {
	s := &MPRISSession{position: 10 * time.Second}
	var got []Command
	var seekTo time.Duration
	s.SetCommandHandler(CommandHandlerFunc(func(cmd Command, data interface{}) error {
		got = append(got, cmd)
		if d, ok := data.(time.Duration); ok {
			seekTo = d
		}
		return nil
	}))

	s.PlayPause()
	s.Next()
	s.Seek(-int64(15 * time.Second / time.Microsecond))

	if len(got) != 3 || got[0] != CmdPlayPause || got[1] != CmdNext || got[2] != CmdSeek {
		t.Errorf("Unexpected commands: %v", got)
	}
	if seekTo != 0 {
		t.Errorf("Expected seek clamped to 0, got %v", seekTo)
	}

	s.SetPosition("/org/stashd/track/42", 5000000)
	if len(got) != 3 {
		t.Error("SetPosition for another track should be ignored")
	}
	s.SetPosition(s.trackIDLocked(), 5000000)
	if seekTo != 5*time.Second {
		t.Errorf("Expected seek to 5s, got %v", seekTo)
	}
}

func TestMPRISPositionAndNavigation(t *testing.T) {
	s := &MPRISSession{state: StatePlaying}

	s.UpdatePosition(7 * time.Second)
	if err := s.UpdateNavigation(true, false); err != nil {
		t.Fatalf("UpdateNavigation failed: %v", err)
	}

	props, derr := s.GetAll(mprisPlayerInterface)
	if derr != nil {
		t.Fatalf("GetAll failed: %v", derr)
	}
	if got := props["Position"].Value(); got != int64(7000000) {
		t.Errorf("Expected position 7s in microseconds, got %v", got)
	}
	if props["CanGoNext"].Value() != true || props["CanGoPrevious"].Value() != false {
		t.Errorf("Unexpected navigation: next %v previous %v", props["CanGoNext"], props["CanGoPrevious"])
	}
}
