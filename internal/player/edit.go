package player

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/austinkregel/local-media/stashd/internal/lyrics"
	"github.com/austinkregel/local-media/stashd/internal/types"
)

// EnterEdit switches the lyric view into retiming mode
func (c *Controller) EnterEdit() {
	c.mu.Lock()
	defer c.unlock()
	c.setEditingLocked(true)
}

// LeaveEdit drops any pending edits and returns to the normal lyric view
func (c *Controller) LeaveEdit() {
	c.mu.Lock()
	defer c.unlock()
	c.setEditingLocked(false)
}

// Editing reports whether edit mode is on
func (c *Controller) Editing() bool {
	c.mu.Lock()
	defer c.unlock()
	return c.editing
}

// setEditingLocked rebuilds the view for the current document so scroll
// state from the other mode does not carry over
func (c *Controller) setEditingLocked(on bool) {
	if c.editing == on {
		return
	}
	c.editing = on
	c.edits.Clear()
	if c.engine.Loaded() {
		c.engine.Load(c.engine.Document())
		c.engine.Tick(c.elapsed)
	}
	log.Printf("[LYRICS] Edit mode: %v", on)
	c.emit(Event{Kind: EventEditChanged, Track: c.currentTrackLocked()})
}

// ToggleLine marks a line to be re-anchored at the current clock, or unmarks
// it. It reports whether the line is now pending.
func (c *Controller) ToggleLine(index int) (bool, error) {
	c.mu.Lock()
	defer c.unlock()

	if !c.editing {
		return false, ErrNotEditing
	}
	doc := c.engine.Document()
	if doc == nil {
		return false, ErrNoLyrics
	}
	if index < 0 || index >= len(doc.Lines) {
		return false, fmt.Errorf("%w: %d", ErrLineOutOfRange, index)
	}

	pending := c.edits.Toggle(index, c.elapsed, doc.Lines[index])
	c.emit(Event{Kind: EventEditChanged, Track: c.currentTrackLocked()})
	return pending, nil
}

// PendingEdits returns the edits not yet saved, ordered by line
func (c *Controller) PendingEdits() []lyrics.Edit {
	c.mu.Lock()
	defer c.unlock()
	return c.edits.Edits()
}

// SaveEdits merges the pending edits into the current document and saves it
func (c *Controller) SaveEdits(ctx context.Context) error {
	c.mu.Lock()
	if c.current == nil {
		c.unlock()
		return ErrNoTrack
	}
	prev := c.engine.Document()
	if prev == nil {
		c.unlock()
		return ErrNoLyrics
	}
	next := c.edits.Commit(prev)
	gen := c.trackGen
	track := c.current.Clone()
	c.unlock()

	return c.save(ctx, gen, track, prev, next)
}

// SaveFreeform replaces the lyrics of the current track with plain text.
// Every line starts untimed; metadata of an existing document is kept.
func (c *Controller) SaveFreeform(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.current == nil {
		c.unlock()
		return ErrNoTrack
	}
	prev := c.engine.Document()
	gen := c.trackGen
	track := c.current.Clone()
	c.unlock()

	return c.save(ctx, gen, track, prev, lyrics.Freeform(track.ID, text))
}

// save writes next outside the lock, then swaps it in if the track did not change meanwhile
func (c *Controller) save(ctx context.Context, gen uint64, track types.Track, prev, next *lyrics.Document) error {
	if c.store == nil {
		return errors.New("no lyric store")
	}

	next.MergeMissing(prev)
	if next.SongID == "" {
		next.SongID = track.ID
	}
	if next.AccentColor == "" && c.accent != nil {
		if accent, err := c.accent(track); err == nil {
			next.AccentColor = accent
		} else {
			log.Printf("[LYRICS] No accent colour for %s: %v", track.ID, err)
		}
	}

	if err := c.store.SaveLyrics(ctx, next); err != nil {
		log.Printf("[LYRICS] Failed to save lyrics for %s: %v", track.ID, err)
		c.dispatch(Event{Kind: EventPersistFailed, Track: track, Err: err})
		return fmt.Errorf("failed to save lyrics: %w", err)
	}

	c.mu.Lock()
	defer c.unlock()

	if gen != c.trackGen {
		log.Printf("[LYRICS] Saved lyrics for %s after the track changed", track.ID)
		return nil
	}
	c.edits.Clear()
	c.trackGen++
	c.engine.Load(next)
	c.engine.Tick(c.elapsed)
	c.emit(Event{Kind: EventLyricsSaved, Track: track})
	return nil
}
