// Package queue manages the playback queue.
package queue

import (
	"errors"
	"sync"

	"github.com/austinkregel/local-media/stashd/internal/types"
)

// ErrOutOfRange is returned when navigating an empty queue
var ErrOutOfRange = errors.New("queue: position out of range")

// ChangeCallback is called when the queue state changes
type ChangeCallback func()

// Queue is an ordered, circularly navigable list of tracks with a cursor.
// The size is always len(tracks); there is no separate counter.
type Queue struct {
	mu       sync.RWMutex
	tracks   []types.Track
	index    int
	onChange ChangeCallback
}

// New creates an empty queue
func New() *Queue {
	return &Queue{
		tracks: make([]types.Track, 0),
	}
}

// SetOnChange sets a callback to be called when the queue state changes
func (q *Queue) SetOnChange(callback ChangeCallback) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = callback
}

// notifyChange calls the onChange callback if set (must be called without lock held)
func (q *Queue) notifyChange() {
	q.mu.RLock()
	callback := q.onChange
	q.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

// Import replaces the queue contents and resets the cursor to the first track
func (q *Queue) Import(tracks []types.Track) {
	q.mu.Lock()

	q.tracks = make([]types.Track, 0, len(tracks))
	for _, t := range tracks {
		q.tracks = append(q.tracks, t.Clone())
	}
	q.index = 0

	q.mu.Unlock()
	q.notifyChange()
}

// Export returns a copy of the queued tracks
func (q *Queue) Export() []types.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	tracks := make([]types.Track, len(q.tracks))
	for i, t := range q.tracks {
		tracks[i] = t.Clone()
	}
	return tracks
}

// Add appends a track without moving the cursor
func (q *Queue) Add(track types.Track) {
	q.mu.Lock()
	q.tracks = append(q.tracks, track.Clone())
	q.mu.Unlock()
	q.notifyChange()
}

// SetPosition moves the cursor to the first track with the same id.
// It reports false and leaves the cursor alone when no track matches.
func (q *Queue) SetPosition(track types.Track) bool {
	return q.SetPositionByID(track.ID)
}

// SetPositionByID moves the cursor to the first track with the given id
func (q *Queue) SetPositionByID(id string) bool {
	q.mu.Lock()

	found := -1
	for i, t := range q.tracks {
		if t.ID == id {
			found = i
			break
		}
	}
	if found < 0 {
		q.mu.Unlock()
		return false
	}

	q.index = found
	q.mu.Unlock()
	q.notifyChange()
	return true
}

// Current returns the track under the cursor
func (q *Queue) Current() (types.Track, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.tracks) == 0 {
		return types.Track{}, ErrOutOfRange
	}
	return q.tracks[q.index].Clone(), nil
}

// PeekNext returns the track after the cursor without moving it
func (q *Queue) PeekNext() (types.Track, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	n := len(q.tracks)
	if n == 0 {
		return types.Track{}, ErrOutOfRange
	}
	return q.tracks[(q.index+1)%n].Clone(), nil
}

// PeekPrevious returns the track before the cursor without moving it
func (q *Queue) PeekPrevious() (types.Track, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	n := len(q.tracks)
	if n == 0 {
		return types.Track{}, ErrOutOfRange
	}
	return q.tracks[(q.index-1+n)%n].Clone(), nil
}

// Next moves the cursor forward one slot, wrapping to the start
func (q *Queue) Next() error {
	return q.step(1)
}

// Previous moves the cursor back one slot, wrapping from the start to the end
func (q *Queue) Previous() error {
	return q.step(-1)
}

func (q *Queue) step(delta int) error {
	q.mu.Lock()

	n := len(q.tracks)
	if n == 0 {
		q.mu.Unlock()
		return ErrOutOfRange
	}
	q.index = ((q.index+delta)%n + n) % n

	q.mu.Unlock()
	q.notifyChange()
	return nil
}

// Rewind moves to the true previous track and returns it.
// It lands on the same slot as Previous, Previous, Next.
func (q *Queue) Rewind() (types.Track, error) {
	if err := q.Previous(); err != nil {
		return types.Track{}, err
	}
	return q.Current()
}

// Advance moves to the next track and returns it
func (q *Queue) Advance() (types.Track, error) {
	if err := q.Next(); err != nil {
		return types.Track{}, err
	}
	return q.Current()
}

// IsFinal reports whether the cursor is on the last track
func (q *Queue) IsFinal() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.index == len(q.tracks)-1
}

// Size returns the number of queued tracks
func (q *Queue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tracks)
}

// Position returns the cursor and queue size
func (q *Queue) Position() (int, int) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.index, len(q.tracks)
}
