package library

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/austinkregel/local-media/stashd/internal/lyrics"
	"github.com/austinkregel/local-media/stashd/internal/types"
)

func newTestJSONStore(t *testing.T) *JSONStore {
	t.Helper()
	store, err := NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONStore failed: %v", err)
	}
	return store
}

func TestJSONStoreEmpty(t *testing.T) {
	ctx := context.Background()
	store := newTestJSONStore(t)

	tracks, err := store.FetchAllTracks(ctx)
	if err != nil {
		t.Fatalf("FetchAllTracks failed: %v", err)
	}
	if len(tracks) != 0 {
		t.Errorf("Expected no tracks, got %d", len(tracks))
	}

	if _, err := store.FetchTrack(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FetchTrack: expected ErrNotFound, got %v", err)
	}
	if _, err := store.FetchLyrics(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FetchLyrics: expected ErrNotFound, got %v", err)
	}
	if _, err := store.LoadSession(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadSession: expected ErrNotFound, got %v", err)
	}
}

func TestJSONStoreTracks(t *testing.T) {
	ctx := context.Background()
	store := newTestJSONStore(t)

	in := sampleTracks()
	in[0].Metadata = map[string]any{types.MetaAlbum: "Stripes"}
	if err := store.SaveTracks(ctx, in); err != nil {
		t.Fatalf("SaveTracks failed: %v", err)
	}
	if err := store.SaveTracks(ctx, []types.Track{{ID: "3", Name: "Mango Live", Artist: "alpha"}}); err != nil {
		t.Fatalf("SaveTracks failed: %v", err)
	}

	tracks, err := store.FetchAllTracks(ctx)
	if err != nil {
		t.Fatalf("FetchAllTracks failed: %v", err)
	}
	if len(tracks) != 3 {
		t.Fatalf("Expected 3 tracks, got %d", len(tracks))
	}
	if tracks[2].Name != "Mango Live" {
		t.Errorf("Expected track 3 to be replaced in place, got %q", tracks[2].Name)
	}

	got, err := store.FetchTrack(ctx, "1")
	if err != nil {
		t.Fatalf("FetchTrack failed: %v", err)
	}
	if got.Metadata[types.MetaAlbum] != "Stripes" {
		t.Errorf("Expected album metadata, got %v", got.Metadata)
	}

	if err := store.SaveTracks(ctx, []types.Track{{Name: "no id"}}); err == nil {
		t.Error("Expected error for a track without id")
	}
}

func TestJSONStoreLyricsPreserveUnknownKeys(t *testing.T) {
	ctx := context.Background()
	store := newTestJSONStore(t)

	raw := `{"songId":"abc","source":"import","lines":[{"text":"hi","at":1,"customField":true}]}`
	if err := os.WriteFile(store.lyricsPath("abc"), []byte(raw), 0644); err != nil {
		t.Fatalf("Failed to write lyrics: %v", err)
	}

	doc, err := store.FetchLyrics(ctx, "abc")
	if err != nil {
		t.Fatalf("FetchLyrics failed: %v", err)
	}
	doc.Lines[0].At = 2
	if err := store.SaveLyrics(ctx, doc); err != nil {
		t.Fatalf("SaveLyrics failed: %v", err)
	}

	data, err := os.ReadFile(store.lyricsPath("abc"))
	if err != nil {
		t.Fatalf("Failed to read lyrics: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Saved lyrics are not JSON: %v", err)
	}
	if back["source"] != "import" {
		t.Errorf("Expected source to survive, got %v", back["source"])
	}
	line := back["lines"].([]any)[0].(map[string]any)
	if line["customField"] != true || line["at"] != float64(2) {
		t.Errorf("Unexpected saved line: %v", line)
	}
}

func TestJSONStoreLyricsRejectsBadIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestJSONStore(t)

	for _, id := range []string{"", "..", "../escape", `a\b`} {
		if err := store.SaveLyrics(ctx, &lyrics.Document{SongID: id}); err == nil {
			t.Errorf("SaveLyrics(%q) should fail", id)
		}
	}
}

func TestJSONStoreSession(t *testing.T) {
	ctx := context.Background()
	store := newTestJSONStore(t)

	session := &types.PlaybackSession{
		StashID:  "road",
		Track:    types.Track{ID: "2", Name: "Apple"},
		Elapsed:  42.5,
		Duration: 180,
		Queue:    sampleTracks(),
	}
	if err := store.PersistSession(ctx, session); err != nil {
		t.Fatalf("PersistSession failed: %v", err)
	}

	got, err := store.LoadSession(ctx)
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if got.Track.ID != "2" || got.Elapsed != 42.5 || len(got.Queue) != 3 || got.StashID != "road" {
		t.Errorf("Unexpected session: %+v", got)
	}

	entries, _ := os.ReadDir(store.Dir())
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" && !e.IsDir() {
			t.Errorf("Leftover temp file: %s", e.Name())
		}
	}
}

func TestJSONStoreStashes(t *testing.T) {
	ctx := context.Background()
	store := newTestJSONStore(t)

	store.SaveStash(ctx, types.Stash{ID: "a", Name: "A", Songs: []string{"1"}})
	store.SaveStash(ctx, types.Stash{ID: "b", Name: "B"})
	store.SaveStash(ctx, types.Stash{ID: "a", Name: "A2", Songs: []string{"1", "2"}})

	stashes, err := store.FetchStashes(ctx)
	if err != nil {
		t.Fatalf("FetchStashes failed: %v", err)
	}
	if len(stashes) != 2 {
		t.Fatalf("Expected 2 stashes, got %d", len(stashes))
	}
	if stashes[0].Name != "A2" || len(stashes[0].Songs) != 2 {
		t.Errorf("Expected stash a replaced, got %+v", stashes[0])
	}
}

func TestSongIDForEvent(t *testing.T) {
	store := newTestJSONStore(t)
	dir := filepath.Join(store.Dir(), lyricsDir)

	if id, ok := store.songIDForEvent(filepath.Join(dir, "abc.json")); !ok || id != "abc" {
		t.Errorf("Expected abc, got %q (ok=%v)", id, ok)
	}
	if _, ok := store.songIDForEvent(filepath.Join(dir, ".abc.json.123")); ok {
		t.Error("Temp files should be ignored")
	}
	if _, ok := store.songIDForEvent(filepath.Join(dir, "notes.txt")); ok {
		t.Error("Non-json files should be ignored")
	}

	store.ownWrites["mine"] = time.Now()
	if _, ok := store.songIDForEvent(filepath.Join(dir, "mine.json")); ok {
		t.Error("Own writes should be ignored")
	}

	store.ownWrites["old"] = time.Now().Add(-time.Minute)
	if _, ok := store.songIDForEvent(filepath.Join(dir, "old.json")); !ok {
		t.Error("Writes outside the window should be reported")
	}
}

func TestWatchReportsExternalChanges(t *testing.T) {
	store := newTestJSONStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 8)
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(ctx, func(id string) { changed <- id })
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(store.lyricsPath("ext"), []byte(`{"lines":[]}`), 0644); err != nil {
		t.Fatalf("Failed to write lyrics: %v", err)
	}

	select {
	case id := <-changed:
		if id != "ext" {
			t.Errorf("Expected ext, got %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for change notification")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}
