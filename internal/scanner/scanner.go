// Package scanner walks library paths, reads audio tags and merges the
// result into the track list.
package scanner

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dhowden/tag"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/austinkregel/local-media/stashd/internal/types"
)

// SupportedExtensions are the audio file extensions we recognize
var SupportedExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".wav":  true,
	".wma":  true,
	".alac": true,
	".opus": true,
}

// DefaultWorkers is the number of files read in parallel
const DefaultWorkers = 4

// Prober measures track durations; ffprobe in production
type Prober interface {
	Duration(path string) (time.Duration, error)
}

// Result is the outcome of a scan
type Result struct {
	Tracks []types.Track
	// Errors holds one message per library path or file that could not be read
	Errors []string
	Took   time.Duration
}

// Scanner reads tracks from library directories
type Scanner struct {
	prober  Prober
	workers int
	newID   func() string
}

// New creates a scanner. prober may be nil, in which case durations are left unknown.
func New(prober Prober) *Scanner {
	return &Scanner{
		prober:  prober,
		workers: DefaultWorkers,
		newID:   uuid.NewString,
	}
}

// Scan walks every path and reads the tags of each audio file found. Tracks
// come back in walk order with fresh ids; use Merge to keep existing ids.
func (s *Scanner) Scan(ctx context.Context, paths []string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	var files []string
	for _, root := range paths {
		found, err := walk(ctx, root)
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if err != nil {
			log.Printf("[SCANNER] Skipping %s: %v", root, err)
			result.Errors = append(result.Errors, root+": "+err.Error())
			continue
		}
		log.Printf("[SCANNER] Discovered %d audio files in %s", len(found), root)
		files = append(files, found...)
	}

	tracks, errs := s.readAll(ctx, files)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.Tracks = tracks
	result.Errors = append(result.Errors, errs...)
	result.Took = time.Since(start)

	log.Printf("[SCANNER] Scanned %d files in %dms", len(tracks), result.Took.Milliseconds())
	return result, nil
}

// walk lists the audio files under root, skipping hidden directories
func walk(ctx context.Context, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("path is not a directory")
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// unreadable entries are skipped
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if SupportedExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

type indexedTrack struct {
	index int
	track types.Track
	err   error
}

// readAll reads files with a small worker pool and keeps their order
func (s *Scanner) readAll(ctx context.Context, files []string) ([]types.Track, []string) {
	jobs := make(chan int, len(files))
	results := make(chan indexedTrack, len(files))
	dirs := newDirCache()

	var processed int64
	lastLogged := int64(-5)

	var wg sync.WaitGroup
	for w := 0; w < max(s.workers, 1); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				track, err := s.readTrack(files[i], dirs)
				results <- indexedTrack{index: i, track: track, err: err}

				count := atomic.AddInt64(&processed, 1)
				percent := count * 100 / int64(len(files))
				if last := atomic.LoadInt64(&lastLogged); percent >= last+5 && atomic.CompareAndSwapInt64(&lastLogged, last, percent) {
					log.Printf("[SCANNER] Reading tags: %d%% (%d/%d files)", percent, count, len(files))
				}
			}
		}()
	}

	for i := range files {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	read := make([]*indexedTrack, len(files))
	for r := range results {
		read[r.index] = &r
	}

	var tracks []types.Track
	var errs []string
	for i, r := range read {
		switch {
		case r == nil:
		case r.err != nil:
			errs = append(errs, files[i]+": "+r.err.Error())
		default:
			tracks = append(tracks, r.track)
		}
	}
	return tracks, errs
}

// readTrack builds a track from the file's tags. Files without readable tags
// still become tracks named after the file.
func (s *Scanner) readTrack(path string, dirs *dirCache) (types.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Track{}, err
	}
	defer f.Close()

	track := types.Track{
		ID:       s.newID(),
		Location: path,
		Metadata: map[string]any{},
	}

	if m, err := tag.ReadFrom(f); err == nil {
		track.Name = strings.TrimSpace(m.Title())
		track.Artist = strings.TrimSpace(m.Artist())
		if track.Artist == "" {
			track.Artist = strings.TrimSpace(m.AlbumArtist())
		}
		if album := strings.TrimSpace(m.Album()); album != "" {
			track.Metadata[types.MetaAlbum] = album
		}
		if year := m.Year(); year > 0 {
			track.Metadata[types.MetaYear] = year
		}
		if pic := m.Picture(); pic != nil && len(pic.Data) > 0 {
			track.Metadata[types.MetaHasArt] = true
		}
	}

	dir := dirs.lookup(path)
	if dir.album != nil {
		if _, ok := track.Metadata[types.MetaAlbum]; !ok && dir.album.Title != "" {
			track.Metadata[types.MetaAlbum] = dir.album.Title
		}
		if track.Artist == "" {
			track.Artist = dir.album.Artist
		}
		if _, ok := track.Metadata[types.MetaYear]; !ok && dir.album.Year > 0 {
			track.Metadata[types.MetaYear] = dir.album.Year
		}
		if len(dir.album.Genre) > 0 {
			track.Metadata[types.MetaGenres] = dir.album.Genre
		}
	}
	if dir.art != "" {
		track.Metadata[types.MetaArtPath] = dir.art
	}

	if track.Name == "" {
		base := filepath.Base(path)
		track.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if s.prober != nil {
		if d, err := s.prober.Duration(path); err == nil && d > 0 {
			track.Metadata[types.MetaDuration] = d.Seconds()
		}
	}
	return track, nil
}

// Merge folds scanned tracks into existing ones. A scanned track at a known
// location keeps the existing id and position; tags and metadata are
// refreshed. New locations are appended in scan order. Existing tracks not
// found by the scan are kept.
func Merge(existing, scanned []types.Track) ([]types.Track, int) {
	byLocation := lo.KeyBy(scanned, func(t types.Track) string { return t.Location })

	merged := make([]types.Track, 0, len(existing)+len(scanned))
	seen := make(map[string]bool, len(existing))
	for _, old := range existing {
		seen[old.Location] = true
		fresh, ok := byLocation[old.Location]
		if !ok {
			merged = append(merged, old.Clone())
			continue
		}
		fresh = fresh.Clone()
		fresh.ID = old.ID
		merged = append(merged, fresh)
	}

	added := 0
	for _, t := range scanned {
		if seen[t.Location] {
			continue
		}
		seen[t.Location] = true
		merged = append(merged, t.Clone())
		added++
	}
	return merged, added
}
