package player

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/austinkregel/local-media/stashd/internal/library"
	"github.com/austinkregel/local-media/stashd/internal/lyrics"
	"github.com/austinkregel/local-media/stashd/internal/queue"
	"github.com/austinkregel/local-media/stashd/internal/types"
)

// DefaultNotifyEvery is how many ticks pass between now-playing pushes and session snapshots
const DefaultNotifyEvery = 30

// Options configures a controller
type Options struct {
	Store    Store
	Media    Media
	Notifier Notifier
	Surface  lyrics.Surface

	// SmoothScroll widens the programmatic scroll grace window of the lyric engine
	SmoothScroll bool
	// NotifyEvery overrides DefaultNotifyEvery
	NotifyEvery int

	Progress ProgressFunc
	Accent   AccentFunc
	OnEvent  EventHandler

	// Now overrides the wall clock used by the lyric engine
	Now func() time.Time
}

// Controller is the playback state machine. Every transition runs under a
// single lock; library reads and writes happen in the background and never
// hold it.
type Controller struct {
	mu sync.Mutex

	store       Store
	media       Media
	notifier    Notifier
	progress    ProgressFunc
	accent      AccentFunc
	onEvent     EventHandler
	notifyEvery int

	queue  *queue.Queue
	engine *lyrics.Engine
	edits  *lyrics.EditSession

	state    State
	current  *types.Track
	stashID  string
	elapsed  float64
	duration float64
	ticks    int
	editing  bool

	// trackGen identifies the current lyric load; stale fetches compare against it
	trackGen   uint64
	cancelLoad context.CancelFunc
	loads      sync.WaitGroup

	// playToken tags the media source started last; clock and end callbacks
	// carrying any other token belong to a replaced source and are dropped
	playToken uint64

	sessions   *coalescer[*types.PlaybackSession]
	nowPlaying *coalescer[*types.NowPlaying]

	// events raised while locked, dispatched by unlock
	pending []Event

	// queueMoved is set by the queue while locked and reported by unlock
	queueMoved bool
}

// New creates a controller in the Idle state
func New(opts Options) *Controller {
	c := &Controller{
		store:       opts.Store,
		media:       opts.Media,
		notifier:    opts.Notifier,
		progress:    opts.Progress,
		accent:      opts.Accent,
		onEvent:     opts.OnEvent,
		notifyEvery: opts.NotifyEvery,
		queue:       queue.New(),
		edits:       lyrics.NewEditSession(),
		state:       StateIdle,
	}
	if c.notifyEvery <= 0 {
		c.notifyEvery = DefaultNotifyEvery
	}

	surface := opts.Surface
	if surface == nil {
		surface = discardSurface{}
	}
	c.engine = lyrics.NewEngine(surface, lyrics.EngineOptions{SmoothScroll: opts.SmoothScroll, Now: opts.Now})

	c.sessions = newCoalescer(c.writeSession)
	c.nowPlaying = newCoalescer(c.pushNowPlaying)

	// the queue is only mutated with c.mu held
	c.queue.SetOnChange(func() { c.queueMoved = true })
	return c
}

func (c *Controller) emit(ev Event) {
	if ev.State == "" {
		ev.State = c.state
	}
	c.pending = append(c.pending, ev)
}

// unlock releases the lock and then delivers events raised while it was held
func (c *Controller) unlock() {
	if c.queueMoved {
		c.queueMoved = false
		info := c.queueInfoLocked()
		c.emit(Event{Kind: EventQueueChanged, Track: c.currentTrackLocked(), Queue: &info})
	}
	events := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, ev := range events {
		c.dispatch(ev)
	}
}

func (c *Controller) dispatch(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

func (c *Controller) queueInfoLocked() QueueInfo {
	idx, size := c.queue.Position()
	info := QueueInfo{Index: idx, Size: size}
	if size > 1 {
		if next, err := c.queue.PeekNext(); err == nil {
			info.Next = &next
		}
		if prev, err := c.queue.PeekPrevious(); err == nil {
			info.Previous = &prev
		}
	}
	return info
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	log.Printf("[PLAYER] State %s -> %s", c.state, s)
	c.state = s
	c.emit(Event{Kind: EventStateChanged, State: s, Track: c.currentTrackLocked()})
}

func (c *Controller) currentTrackLocked() types.Track {
	if c.current == nil {
		return types.Track{}
	}
	return c.current.Clone()
}

// assignLocked makes track current at clock 0 in the Loaded state and starts
// loading its lyrics. Any pending edits and scroll state belong to the old track
// and are dropped.
func (c *Controller) assignLocked(track types.Track) {
	changed := c.current == nil || c.current.ID != track.ID

	t := track.Clone()
	c.current = &t
	c.elapsed = 0
	c.duration = track.DurationHint()
	c.ticks = 0
	c.edits.Clear()
	c.setStateLocked(StateLoaded)

	if changed {
		log.Printf("[PLAYER] Track: %s", t.Title())
		c.emit(Event{Kind: EventTrackChanged, Track: t.Clone()})
	}
	c.loadLyricsLocked(t)
}

func (c *Controller) loadLyricsLocked(track types.Track) {
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	c.trackGen++
	gen := c.trackGen
	c.engine.Reset()

	if c.store == nil {
		c.engine.Load(nil)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelLoad = cancel
	c.loads.Add(1)
	go func() {
		defer c.loads.Done()
		defer cancel()
		doc, err := c.store.FetchLyrics(ctx, track.ID)
		c.applyLyrics(gen, track, doc, err)
	}()
}

func (c *Controller) applyLyrics(gen uint64, track types.Track, doc *lyrics.Document, err error) {
	c.mu.Lock()
	defer c.unlock()

	if gen != c.trackGen {
		log.Printf("[LYRICS] Dropping stale lyrics for %s", track.ID)
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, library.ErrNotFound):
		doc, err = nil, nil
	default:
		log.Printf("[LYRICS] Failed to load lyrics for %s: %v", track.ID, err)
		doc = nil
	}

	c.engine.Load(doc)
	c.engine.Tick(c.elapsed)
	c.emit(Event{Kind: EventLyricsLoaded, Track: track, Err: err})
}

func (c *Controller) nowPlayingLocked() *types.NowPlaying {
	if c.current == nil {
		return nil
	}
	return &types.NowPlaying{
		Name:     c.current.Name,
		Artist:   c.current.Artist,
		Duration: c.duration,
		Elapsed:  c.elapsed,
	}
}

func (c *Controller) snapshotLocked() *types.PlaybackSession {
	if c.current == nil {
		return nil
	}
	return &types.PlaybackSession{
		StashID:  c.stashID,
		Track:    c.current.Clone(),
		Elapsed:  c.elapsed,
		Duration: c.duration,
		Queue:    c.queue.Export(),
	}
}

func (c *Controller) pushNowPlaying(info *types.NowPlaying) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.NotifyNowPlaying(info); err != nil {
		log.Printf("[MEDIA] Now playing update failed: %v", err)
	}
}

func (c *Controller) writeSession(session *types.PlaybackSession) {
	if c.store == nil || session == nil {
		return
	}
	if err := c.store.PersistSession(context.Background(), session); err != nil {
		log.Printf("[SESSION] Failed to persist session: %v", err)
		c.dispatch(Event{Kind: EventPersistFailed, Track: session.Track, Err: err})
	}
}

func (c *Controller) failLocked(track types.Track, err error) error {
	log.Printf("[PLAYER] Playback failed for %s: %v", track.Title(), err)
	perr := &PlaybackError{Track: track.Clone(), Err: err}
	c.emit(Event{Kind: EventPlaybackFailed, Track: track.Clone(), Err: perr})
	return perr
}

// startLocked hands track to the media backend and starts it under a fresh
// play token. Nothing in the controller changes when this fails.
func (c *Controller) startLocked(ctx context.Context, track types.Track, from float64) (float64, error) {
	if c.media == nil {
		return 0, errors.New("no media backend")
	}
	duration, err := c.media.Load(ctx, track)
	if err != nil {
		return 0, err
	}
	token := c.playToken + 1
	if err := c.media.Play(ctx, token, from); err != nil {
		return 0, err
	}
	c.playToken = token
	return duration, nil
}

// stopMediaLocked halts the media and retires the play token, so callbacks
// already in flight for the old source are ignored
func (c *Controller) stopMediaLocked() {
	c.playToken++
	if c.media == nil || (c.state != StatePlaying && c.state != StatePaused) {
		return
	}
	if err := c.media.Stop(); err != nil {
		log.Printf("[PLAYER] Failed to stop media: %v", err)
	}
}

func (c *Controller) reportProgress(elapsed, duration float64) {
	if c.progress != nil {
		c.progress(elapsed, duration, Progress(elapsed, duration))
	}
}

// Play makes track current and starts it from the beginning. A track missing
// from the queue is appended to it. On failure the state, current track and
// queue position are left as they were.
func (c *Controller) Play(ctx context.Context, track types.Track) error {
	c.mu.Lock()
	defer c.unlock()

	duration, err := c.startLocked(ctx, track, 0)
	if err != nil {
		return c.failLocked(track, err)
	}

	if !c.queue.SetPosition(track) {
		c.queue.Add(track)
		c.queue.SetPosition(track)
	}
	c.assignLocked(track)
	if duration > 0 {
		c.duration = duration
	}
	c.setStateLocked(StatePlaying)
	c.nowPlaying.Submit(c.nowPlayingLocked())
	return nil
}

// PlayCurrent starts the current track: from the restored position when
// Loaded, from the top when Ended or already playing
func (c *Controller) PlayCurrent(ctx context.Context) error {
	c.mu.Lock()
	defer c.unlock()
	return c.playCurrentLocked(ctx)
}

func (c *Controller) playCurrentLocked(ctx context.Context) error {
	if c.current == nil {
		return ErrNoTrack
	}
	track := c.current.Clone()

	from := 0.0
	if c.state == StateLoaded {
		from = c.elapsed
	}

	duration, err := c.startLocked(ctx, track, from)
	if err != nil {
		return c.failLocked(track, err)
	}
	if duration > 0 {
		c.duration = duration
	}
	if from == 0 && c.elapsed != 0 {
		c.elapsed = 0
		c.engine.Tick(0)
	}
	c.setStateLocked(StatePlaying)
	c.nowPlaying.Submit(c.nowPlayingLocked())
	return nil
}

// Pause freezes the clock and clears the external now-playing notification
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.unlock()
	return c.pauseLocked()
}

func (c *Controller) pauseLocked() error {
	if c.state != StatePlaying {
		return nil
	}
	if err := c.media.Pause(); err != nil {
		return c.failLocked(c.currentTrackLocked(), err)
	}
	c.setStateLocked(StatePaused)
	c.nowPlaying.Submit(nil)
	c.sessions.Submit(c.snapshotLocked())
	return nil
}

// Resume continues a paused track, or starts the current one when Loaded or Ended
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.unlock()
	return c.resumeLocked(ctx)
}

func (c *Controller) resumeLocked(ctx context.Context) error {
	switch c.state {
	case StatePlaying:
		return nil
	case StatePaused:
		if err := c.media.Resume(); err != nil {
			return c.failLocked(c.currentTrackLocked(), err)
		}
		c.setStateLocked(StatePlaying)
		c.nowPlaying.Submit(c.nowPlayingLocked())
		return nil
	default:
		return c.playCurrentLocked(ctx)
	}
}

// Toggle pauses when playing and resumes otherwise
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	defer c.unlock()

	if c.state == StatePlaying {
		return c.pauseLocked()
	}
	return c.resumeLocked(ctx)
}

// Stop halts the media and rewinds the current track to the Loaded state
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.unlock()

	if c.current == nil {
		return nil
	}
	c.stopMediaLocked()
	c.elapsed = 0
	c.setStateLocked(StateLoaded)
	c.engine.Tick(0)
	c.nowPlaying.Submit(nil)
	return nil
}

// Tick feeds a clock update for the source started with token. Ticks for any
// other token are dropped. Progress is reported first with the controller
// unlocked, then the lyric engine runs, then every NotifyEvery ticks the
// now-playing info and a session snapshot are handed off in the background.
func (c *Controller) Tick(token uint64, current, duration float64) {
	c.mu.Lock()
	if token != c.playToken || c.state != StatePlaying {
		c.unlock()
		return
	}
	c.elapsed = current
	if duration > 0 {
		c.duration = duration
	}
	elapsed, total := c.elapsed, c.duration
	c.unlock()

	c.reportProgress(elapsed, total)

	c.mu.Lock()
	defer c.unlock()
	if token != c.playToken || c.state != StatePlaying {
		return
	}
	c.engine.Tick(c.elapsed)

	c.ticks++
	if c.ticks%c.notifyEvery == 0 {
		c.nowPlaying.Submit(c.nowPlayingLocked())
		c.sessions.Submit(c.snapshotLocked())
	}
}

// Ended handles the media reaching the end of the source started with token.
// The queue advances and keeps playing unless the track was the final entry,
// in which case the controller stays on it in the Ended state. An end reported
// for a replaced source is ignored.
func (c *Controller) Ended(ctx context.Context, token uint64) error {
	c.mu.Lock()
	defer c.unlock()

	if token != c.playToken {
		log.Printf("[PLAYER] Ignoring end of a replaced source")
		return nil
	}
	if c.state != StatePlaying {
		return nil
	}

	if c.queue.IsFinal() {
		c.elapsed = c.duration
		c.setStateLocked(StateEnded)
		c.nowPlaying.Submit(nil)
		c.sessions.Submit(c.snapshotLocked())
		c.emit(Event{Kind: EventQueueFinished, Track: c.currentTrackLocked()})
		return nil
	}

	if _, err := c.advanceLocked(); err != nil {
		return err
	}
	return c.playCurrentLocked(ctx)
}

// AdvanceToNext moves the queue forward and loads the new track. It reports
// whether the previous position was the final entry so callers can decide
// not to autoplay past the end.
func (c *Controller) AdvanceToNext() (bool, error) {
	c.mu.Lock()
	defer c.unlock()
	return c.advanceLocked()
}

func (c *Controller) advanceLocked() (bool, error) {
	wasFinal := c.queue.IsFinal()
	track, err := c.queue.Advance()
	if err != nil {
		return false, err
	}
	c.stopMediaLocked()
	c.assignLocked(track)
	return wasFinal, nil
}

// SkipPrevious moves the queue back to the track before the current one and loads it
func (c *Controller) SkipPrevious() (types.Track, error) {
	c.mu.Lock()
	defer c.unlock()
	return c.rewindLocked()
}

func (c *Controller) rewindLocked() (types.Track, error) {
	track, err := c.queue.Rewind()
	if err != nil {
		return types.Track{}, err
	}
	c.stopMediaLocked()
	c.assignLocked(track)
	return track, nil
}

// Next advances and keeps playing if something was playing
func (c *Controller) Next(ctx context.Context) error {
	c.mu.Lock()
	defer c.unlock()

	wasPlaying := c.state == StatePlaying
	if _, err := c.advanceLocked(); err != nil {
		return err
	}
	if wasPlaying {
		return c.playCurrentLocked(ctx)
	}
	return nil
}

// Previous rewinds and keeps playing if something was playing
func (c *Controller) Previous(ctx context.Context) error {
	c.mu.Lock()
	defer c.unlock()

	wasPlaying := c.state == StatePlaying
	if _, err := c.rewindLocked(); err != nil {
		return err
	}
	if wasPlaying {
		return c.playCurrentLocked(ctx)
	}
	return nil
}

// Seek moves the clock. The lyric engine is re-evaluated immediately so a
// backward seek un-marks lines right away. Progress is reported once the
// controller is unlocked.
func (c *Controller) Seek(seconds float64) error {
	c.mu.Lock()
	elapsed, duration, err := c.seekLocked(seconds)
	c.unlock()
	if err != nil {
		return err
	}
	c.reportProgress(elapsed, duration)
	return nil
}

func (c *Controller) seekLocked(seconds float64) (float64, float64, error) {
	if c.current == nil {
		return 0, 0, ErrNoTrack
	}
	if seconds < 0 {
		seconds = 0
	}
	if c.duration > 0 && seconds > c.duration {
		seconds = c.duration
	}

	switch c.state {
	case StatePlaying, StatePaused:
		if err := c.media.Seek(seconds); err != nil {
			return 0, 0, c.failLocked(c.currentTrackLocked(), err)
		}
	case StateEnded:
		c.setStateLocked(StateLoaded)
	}

	c.elapsed = seconds
	c.engine.Tick(seconds)
	return c.elapsed, c.duration, nil
}

// LoadQueue replaces the queue with the tracks of a stash and loads the track
// with startID, or the first track when startID is empty or missing
func (c *Controller) LoadQueue(stashID string, tracks []types.Track, startID string) (types.Track, error) {
	c.mu.Lock()
	defer c.unlock()

	c.stopMediaLocked()
	c.queue.Import(tracks)
	c.stashID = stashID
	if startID != "" {
		c.queue.SetPositionByID(startID)
	}

	track, err := c.queue.Current()
	if err != nil {
		c.clearLocked()
		return types.Track{}, err
	}
	c.assignLocked(track)
	log.Printf("[QUEUE] Loaded %d tracks from stash %q", len(tracks), stashID)
	return track, nil
}

func (c *Controller) clearLocked() {
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	c.trackGen++
	c.current = nil
	c.elapsed = 0
	c.duration = 0
	c.edits.Clear()
	c.engine.Reset()
	c.setStateLocked(StateIdle)
	c.nowPlaying.Submit(nil)
}

// Restore rebuilds the queue and current track from a persisted session.
// The controller ends up Loaded at the saved position; PlayCurrent resumes from there.
func (c *Controller) Restore(session *types.PlaybackSession) error {
	if session == nil || session.Track.ID == "" {
		return ErrNoTrack
	}

	c.mu.Lock()
	defer c.unlock()

	c.stopMediaLocked()
	tracks := session.Queue
	if len(tracks) == 0 {
		tracks = []types.Track{session.Track}
	}
	c.queue.Import(tracks)
	if !c.queue.SetPosition(session.Track) {
		c.queue.Add(session.Track)
		c.queue.SetPosition(session.Track)
	}
	c.stashID = session.StashID

	c.assignLocked(session.Track)
	if session.Duration > 0 {
		c.duration = session.Duration
	}
	c.elapsed = session.Elapsed
	if c.elapsed < 0 || (c.duration > 0 && c.elapsed > c.duration) {
		c.elapsed = 0
	}
	log.Printf("[SESSION] Restored %s at %.1fs", session.Track.Title(), c.elapsed)
	return nil
}

// ReloadLyrics refetches the lyrics of songID if it is the current track and
// no edits are pending
func (c *Controller) ReloadLyrics(songID string) {
	c.mu.Lock()
	defer c.unlock()

	if c.current == nil || c.current.ID != songID {
		return
	}
	if c.edits.Len() > 0 {
		log.Printf("[LYRICS] Not reloading %s: edits pending", songID)
		return
	}
	c.loadLyricsLocked(c.current.Clone())
}

// Snapshot returns the resumable session for the current state, nil when Idle
func (c *Controller) Snapshot() *types.PlaybackSession {
	c.mu.Lock()
	defer c.unlock()
	return c.snapshotLocked()
}

// Status returns the current controller state
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.unlock()

	idx, size := c.queue.Position()
	st := Status{
		State:      c.state,
		StashID:    c.stashID,
		Elapsed:    c.elapsed,
		Duration:   c.duration,
		Progress:   Progress(c.elapsed, c.duration),
		QueueIndex: idx,
		QueueSize:  size,
		Editing:    c.editing,
		HasLyrics:  c.engine.Document() != nil,
		Autoscroll: c.engine.Autoscroll(),
	}
	if doc := c.engine.Document(); doc != nil {
		st.Accent = doc.AccentColor
	}
	if c.current != nil {
		t := c.current.Clone()
		st.Track = &t
	}
	if size > 1 {
		if next, err := c.queue.PeekNext(); err == nil {
			st.UpNext = &next
		}
	}
	if c.editing {
		st.PendingEdits = c.edits.Edits()
	}
	return st
}

// UserScrolled forwards a manual scroll of the lyric view to the engine
func (c *Controller) UserScrolled() {
	c.engine.UserScrolled()
}

// Close stops background work and waits for in-flight writes to finish
func (c *Controller) Close() {
	c.mu.Lock()
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	snapshot := c.snapshotLocked()
	c.unlock()

	if snapshot != nil {
		c.sessions.Submit(snapshot)
	}
	c.loads.Wait()
	c.sessions.Wait()
	c.nowPlaying.Wait()
}

type discardSurface struct{}

func (discardSurface) ShowLines([]lyrics.Line) {}
func (discardSurface) SetPlayed(int, bool)     {}
func (discardSurface) Center(int)              {}
func (discardSurface) ShowAbsent()             {}
