package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/austinkregel/local-media/stashd/internal/lyrics"
	"github.com/austinkregel/local-media/stashd/internal/types"
)

const (
	songsFile   = "songs.json"
	stashesFile = "stashes.json"
	sessionFile = "session.json"
	lyricsDir   = "lyrics"
)

// JSONStore keeps the library as plain JSON files under a data directory:
//
//	songs.json, stashes.json, session.json, lyrics/<songId>.json
type JSONStore struct {
	dir string

	mu sync.Mutex
	// lyric files written by this process, so the watcher can skip its own writes
	ownWrites map[string]time.Time
}

// NewJSONStore creates a JSON store rooted at dir
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, lyricsDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create library directory: %w", err)
	}
	return &JSONStore{dir: dir, ownWrites: make(map[string]time.Time)}, nil
}

// Dir returns the data directory
func (s *JSONStore) Dir() string {
	return s.dir
}

func (s *JSONStore) lyricsPath(songID string) string {
	return filepath.Join(s.dir, lyricsDir, songID+".json")
}

// readJSON decodes path into v, reporting ErrNotFound for a missing file
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeJSON replaces path atomically so readers never see a partial file
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *JSONStore) loadTracks() ([]types.Track, error) {
	var tracks []types.Track
	if err := readJSON(filepath.Join(s.dir, songsFile), &tracks); err != nil {
		if errors.Is(err, ErrNotFound) {
			return []types.Track{}, nil
		}
		return nil, err
	}
	return tracks, nil
}

// FetchAllTracks returns every track in library order
func (s *JSONStore) FetchAllTracks(ctx context.Context) ([]types.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadTracks()
}

// FetchTrack returns a single track by id
func (s *JSONStore) FetchTrack(ctx context.Context, id string) (types.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracks, err := s.loadTracks()
	if err != nil {
		return types.Track{}, err
	}
	for _, t := range tracks {
		if t.ID == id {
			return t, nil
		}
	}
	return types.Track{}, fmt.Errorf("track %s: %w", id, ErrNotFound)
}

// SaveTracks merges tracks into songs.json
func (s *JSONStore) SaveTracks(ctx context.Context, tracks []types.Track) error {
	for _, t := range tracks {
		if t.ID == "" {
			return errors.New("track without id")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.loadTracks()
	if err != nil {
		return err
	}
	return writeJSON(filepath.Join(s.dir, songsFile), mergeTracks(existing, tracks))
}

func (s *JSONStore) loadStashes() ([]types.Stash, error) {
	var stashes []types.Stash
	if err := readJSON(filepath.Join(s.dir, stashesFile), &stashes); err != nil {
		if errors.Is(err, ErrNotFound) {
			return []types.Stash{}, nil
		}
		return nil, err
	}
	return stashes, nil
}

// FetchStashes returns the user's stashes
func (s *JSONStore) FetchStashes(ctx context.Context) ([]types.Stash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadStashes()
}

// SaveStash inserts or replaces a stash by id
func (s *JSONStore) SaveStash(ctx context.Context, stash types.Stash) error {
	if err := validID(stash.ID); err != nil {
		return fmt.Errorf("stash: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stashes, err := s.loadStashes()
	if err != nil {
		return err
	}
	replaced := false
	for i := range stashes {
		if stashes[i].ID == stash.ID {
			stashes[i] = stash
			replaced = true
			break
		}
	}
	if !replaced {
		stashes = append(stashes, stash)
	}
	return writeJSON(filepath.Join(s.dir, stashesFile), stashes)
}

// FetchLyrics reads lyrics/<songId>.json
func (s *JSONStore) FetchLyrics(ctx context.Context, songID string) (*lyrics.Document, error) {
	if err := validID(songID); err != nil {
		return nil, fmt.Errorf("lyrics: %w", err)
	}

	var doc lyrics.Document
	if err := readJSON(s.lyricsPath(songID), &doc); err != nil {
		return nil, err
	}
	if doc.SongID == "" {
		doc.SongID = songID
	}
	return &doc, nil
}

// SaveLyrics replaces the document for doc.SongID
func (s *JSONStore) SaveLyrics(ctx context.Context, doc *lyrics.Document) error {
	if doc == nil {
		return errors.New("nil lyric document")
	}
	if err := validID(doc.SongID); err != nil {
		return fmt.Errorf("lyrics: %w", err)
	}

	s.mu.Lock()
	s.ownWrites[doc.SongID] = time.Now()
	s.mu.Unlock()

	if err := writeJSON(s.lyricsPath(doc.SongID), doc); err != nil {
		return err
	}
	log.Printf("[LIBRARY] Saved lyrics for %s (%d lines)", doc.SongID, len(doc.Lines))
	return nil
}

// PersistSession writes session.json
func (s *JSONStore) PersistSession(ctx context.Context, session *types.PlaybackSession) error {
	if session == nil {
		return errors.New("nil session")
	}
	return writeJSON(filepath.Join(s.dir, sessionFile), session)
}

// LoadSession reads session.json
func (s *JSONStore) LoadSession(ctx context.Context) (*types.PlaybackSession, error) {
	var session types.PlaybackSession
	if err := readJSON(filepath.Join(s.dir, sessionFile), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Close is a no-op for the JSON store
func (s *JSONStore) Close() error {
	return nil
}
