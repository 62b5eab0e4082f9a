// Package library stores tracks, stashes, lyric documents and the playback session.
package library

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/austinkregel/local-media/stashd/internal/lyrics"
	"github.com/austinkregel/local-media/stashd/internal/types"
)

// ErrNotFound is the soft "absent" result for tracks, lyrics and sessions
var ErrNotFound = errors.New("library: not found")

// Backend names accepted by Open
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Library is the persistent store behind the player
type Library interface {
	FetchAllTracks(ctx context.Context) ([]types.Track, error)
	FetchTrack(ctx context.Context, id string) (types.Track, error)
	// SaveTracks inserts new tracks and replaces existing ones with the same id
	SaveTracks(ctx context.Context, tracks []types.Track) error

	FetchStashes(ctx context.Context) ([]types.Stash, error)
	SaveStash(ctx context.Context, stash types.Stash) error

	// FetchLyrics returns ErrNotFound when the track has no lyric document
	FetchLyrics(ctx context.Context, songID string) (*lyrics.Document, error)
	// SaveLyrics replaces the whole document for doc.SongID
	SaveLyrics(ctx context.Context, doc *lyrics.Document) error

	PersistSession(ctx context.Context, session *types.PlaybackSession) error
	// LoadSession returns ErrNotFound when nothing was persisted yet
	LoadSession(ctx context.Context) (*types.PlaybackSession, error)

	Close() error
}

// Open creates the library for the configured backend under dataDir
func Open(backend, dataDir string) (Library, error) {
	switch backend {
	case "", BackendJSON:
		return NewJSONStore(dataDir)
	case BackendSQLite:
		return NewSQLStore(dataDir)
	default:
		return nil, fmt.Errorf("unknown library backend %q", backend)
	}
}

// MasterStash builds the synthetic stash holding every track, ordered by artist then name
func MasterStash(all []types.Track) types.Stash {
	sorted := slices.Clone(all)
	slices.SortStableFunc(sorted, func(a, b types.Track) int {
		return cmp.Or(
			cmp.Compare(strings.ToLower(a.Artist), strings.ToLower(b.Artist)),
			cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)),
		)
	})
	return types.Stash{
		Name:        types.MasterStashName,
		Description: "Every track in the library",
		Songs:       lo.Map(sorted, func(t types.Track, _ int) string { return t.ID }),
	}
}

// MapStash resolves a stash's track ids against the library.
// Ids missing from the library are skipped; order is kept.
func MapStash(stash types.Stash, all []types.Track) []types.Track {
	byID := lo.KeyBy(all, func(t types.Track) string { return t.ID })
	return lo.FilterMap(stash.Songs, func(id string, _ int) (types.Track, bool) {
		t, ok := byID[id]
		return t, ok
	})
}

// ResolveStash finds a stash by id or name (case-insensitive) and maps its tracks.
// An empty reference or the master stash name selects the whole library.
func ResolveStash(ctx context.Context, lib Library, ref string) (types.Stash, []types.Track, error) {
	all, err := lib.FetchAllTracks(ctx)
	if err != nil {
		return types.Stash{}, nil, fmt.Errorf("failed to fetch tracks: %w", err)
	}

	if ref == "" || strings.EqualFold(ref, types.MasterStashName) {
		master := MasterStash(all)
		return master, MapStash(master, all), nil
	}

	stashes, err := lib.FetchStashes(ctx)
	if err != nil {
		return types.Stash{}, nil, fmt.Errorf("failed to fetch stashes: %w", err)
	}
	stash, ok := lo.Find(stashes, func(s types.Stash) bool {
		return s.ID == ref || strings.EqualFold(s.Name, ref)
	})
	if !ok {
		return types.Stash{}, nil, fmt.Errorf("stash %q: %w", ref, ErrNotFound)
	}
	return stash, MapStash(stash, all), nil
}

// mergeTracks replaces tracks with matching ids in place and appends new ones
func mergeTracks(existing, incoming []types.Track) []types.Track {
	index := make(map[string]int, len(existing))
	out := make([]types.Track, len(existing), len(existing)+len(incoming))
	for i, t := range existing {
		out[i] = t
		index[t.ID] = i
	}
	for _, t := range incoming {
		if i, ok := index[t.ID]; ok {
			out[i] = t.Clone()
			continue
		}
		index[t.ID] = len(out)
		out = append(out, t.Clone())
	}
	return out
}

func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}
