package library

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ownWriteWindow is how long after SaveLyrics events for the same file are ignored
const ownWriteWindow = 2 * time.Second

// Watch reports lyric documents changed on disk by other programs.
// It blocks until ctx is cancelled.
func (s *JSONStore) Watch(ctx context.Context, changed func(songID string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Join(s.dir, lyricsDir)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			songID, ok := s.songIDForEvent(event.Name)
			if !ok {
				continue
			}
			log.Printf("[LIBRARY] Lyrics changed on disk: %s", songID)
			changed(songID)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[LIBRARY] Watch error: %v", err)
		}
	}
}

// songIDForEvent maps a lyric file path to its song id, skipping temp files
// and files this store just wrote
func (s *JSONStore) songIDForEvent(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || filepath.Ext(base) != ".json" {
		return "", false
	}
	songID := strings.TrimSuffix(base, ".json")

	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := s.ownWrites[songID]; ok {
		if time.Since(at) < ownWriteWindow {
			return "", false
		}
		delete(s.ownWrites, songID)
	}
	return songID, true
}
