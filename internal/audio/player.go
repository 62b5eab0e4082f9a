// Package audio handles audio decoding and playback using FFmpeg and Oto.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/austinkregel/local-media/stashd/internal/types"
)

// ErrNotLoaded is returned by Play before any successful Load
var ErrNotLoaded = errors.New("audio: nothing loaded")

// DefaultTickInterval is how often the clock is reported while playing
const DefaultTickInterval = 250 * time.Millisecond

// Decoder turns a file into PCM written to an Output
type Decoder interface {
	Decode(ctx context.Context, path string, output Output, startMs int64) error
	Duration(path string) (time.Duration, error)
	Close() error
}

// TickFunc receives the playback clock in seconds along with the token the
// running source was started with
type TickFunc func(token uint64, current, duration float64)

// EndedFunc is called when the source started with token plays to its end
type EndedFunc func(token uint64)

type playbackState int

const (
	stateStopped playbackState = iota
	statePlaying
	statePaused
)

type source struct {
	path     string
	duration time.Duration
}

// Player drives one decode session at a time. Load only prepares the next
// source, so a failed load never interrupts what is playing.
type Player struct {
	playbackMu sync.Mutex // serializes session start and stop

	mu      sync.Mutex
	decoder Decoder
	output  Output
	now     func() time.Time

	next    *source
	current *source
	state   playbackState

	// token is the caller's tag for the current source, echoed to callbacks
	token uint64

	// clock: offset at the start of the running segment plus wall time since
	offset    time.Duration
	startedAt time.Time

	sessionID   uint64
	sessionDone chan struct{}
	cancel      context.CancelFunc

	onTick  TickFunc
	onEnded EndedFunc

	tickEvery  time.Duration
	drainSlack time.Duration
	quit       chan struct{}
	closeOnce  sync.Once
}

// Options configures a Player
type Options struct {
	TickInterval time.Duration
	// DrainSlack is extra time allowed for the device to play out its buffer
	DrainSlack time.Duration
	Now        func() time.Time
}

// NewPlayer creates a player over decoder and output and starts its clock
func NewPlayer(decoder Decoder, output Output, opts Options) *Player {
	p := &Player{
		decoder:    decoder,
		output:     output,
		now:        opts.Now,
		tickEvery:  opts.TickInterval,
		drainSlack: opts.DrainSlack,
		quit:       make(chan struct{}),
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.tickEvery <= 0 {
		p.tickEvery = DefaultTickInterval
	}
	go p.clockLoop()
	return p
}

// SetOnTick sets the clock callback. It is never called with the player locked.
func (p *Player) SetOnTick(fn TickFunc) {
	p.mu.Lock()
	p.onTick = fn
	p.mu.Unlock()
}

// SetOnEnded sets the end-of-track callback. It runs on its own goroutine.
func (p *Player) SetOnEnded(fn EndedFunc) {
	p.mu.Lock()
	p.onEnded = fn
	p.mu.Unlock()
}

// Load checks the file and probes its duration in seconds. The current
// playback is left alone until Play.
func (p *Player) Load(ctx context.Context, track types.Track) (float64, error) {
	if track.Location == "" {
		return 0, errors.New("track has no location")
	}
	if _, err := os.Stat(track.Location); err != nil {
		return 0, fmt.Errorf("track file unavailable: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	duration := time.Duration(track.DurationHint() * float64(time.Second))
	if duration <= 0 {
		d, err := p.decoder.Duration(track.Location)
		if err != nil {
			return 0, fmt.Errorf("failed to get duration: %w", err)
		}
		duration = d
	}

	p.mu.Lock()
	p.next = &source{path: track.Location, duration: duration}
	p.mu.Unlock()
	return duration.Seconds(), nil
}

// Play stops whatever is playing and starts the last loaded source at
// fromSeconds. Ticks and the end of the source are reported with token until
// the next Play.
func (p *Player) Play(ctx context.Context, token uint64, fromSeconds float64) error {
	p.playbackMu.Lock()
	defer p.playbackMu.Unlock()

	p.mu.Lock()
	src := p.next
	if src == nil {
		src = p.current
	}
	p.mu.Unlock()
	if src == nil {
		return ErrNotLoaded
	}

	p.stopSession()

	p.mu.Lock()
	p.next = nil
	p.current = src
	p.token = token
	p.startLocked(time.Duration(fromSeconds * float64(time.Second)))
	p.mu.Unlock()

	log.Printf("[PLAYER] Playing %s from %.1fs", src.path, fromSeconds)
	return nil
}

// startLocked launches a decode session for p.current at offset
func (p *Player) startLocked(offset time.Duration) {
	if offset < 0 {
		offset = 0
	}
	if offset > p.current.duration {
		offset = p.current.duration
	}
	p.sessionID++
	session := p.sessionID
	done := make(chan struct{})
	p.sessionDone = done

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.offset = offset
	p.startedAt = p.now()
	p.state = statePlaying

	path := p.current.path
	go func() {
		defer close(done)
		p.decodeLoop(ctx, path, offset, session)
	}()
}

// stopSession cancels the running session and waits for it to exit.
// It must be called with playbackMu held and mu released.
func (p *Player) stopSession() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	done := p.sessionDone
	p.sessionDone = nil
	// invalidate the session so it does not report an end
	p.sessionID++
	p.mu.Unlock()

	p.output.Stop()
	if done != nil {
		<-done
	}
}

func (p *Player) decodeLoop(ctx context.Context, path string, offset time.Duration, session uint64) {
	err := p.decoder.Decode(ctx, path, p.output, offset.Milliseconds())
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Printf("[PLAYER] Decode error: %v", err)
	}

	// wait for the buffered audio to play out, extending the wait across pauses
	for err == nil {
		p.mu.Lock()
		if p.sessionID != session {
			p.mu.Unlock()
			return
		}
		remaining := p.current.duration - p.positionLocked()
		paused := p.state == statePaused
		p.mu.Unlock()

		if !paused && remaining <= 0 {
			break
		}
		wait := remaining
		if paused || wait > p.tickEvery {
			wait = p.tickEvery
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	if err == nil && p.drainSlack > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.drainSlack):
		}
	}

	p.mu.Lock()
	if p.sessionID != session {
		p.mu.Unlock()
		return
	}
	p.offset = p.positionLocked()
	p.state = stateStopped
	p.cancel = nil
	ended := p.onEnded
	token := p.token
	p.mu.Unlock()

	log.Printf("[PLAYER] Track finished: %s", path)
	if ended != nil {
		go ended(token)
	}
}

func (p *Player) positionLocked() time.Duration {
	pos := p.offset
	if p.state == statePlaying {
		pos += p.now().Sub(p.startedAt)
	}
	if p.current != nil && pos > p.current.duration {
		pos = p.current.duration
	}
	return pos
}

// Position returns the clock and duration of the current source in seconds
func (p *Player) Position() (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return 0, 0
	}
	return p.positionLocked().Seconds(), p.current.duration.Seconds()
}

func (p *Player) clockLoop() {
	ticker := time.NewTicker(p.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
			p.mu.Lock()
			if p.state != statePlaying || p.current == nil {
				p.mu.Unlock()
				continue
			}
			current := p.positionLocked().Seconds()
			duration := p.current.duration.Seconds()
			token := p.token
			tick := p.onTick
			p.mu.Unlock()

			if tick != nil {
				tick(token, current, duration)
			}
		}
	}
}

// Pause freezes the clock and the device. Pausing when not playing is a no-op.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != statePlaying {
		return nil
	}
	p.offset = p.positionLocked()
	p.state = statePaused
	p.output.Pause()
	log.Printf("[PLAYER] Paused at %.1fs", p.offset.Seconds())
	return nil
}

// Resume continues after Pause. A seek made while paused starts a new session here.
func (p *Player) Resume() error {
	p.mu.Lock()
	if p.state != statePaused {
		p.mu.Unlock()
		return nil
	}
	if p.cancel == nil {
		// no live session: restart from the paused offset
		offset := p.offset
		p.mu.Unlock()

		p.playbackMu.Lock()
		defer p.playbackMu.Unlock()
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.state != statePaused || p.cancel != nil {
			return nil
		}
		p.output.Resume()
		p.startLocked(offset)
		return nil
	}
	p.startedAt = p.now()
	p.state = statePlaying
	p.output.Resume()
	p.mu.Unlock()
	return nil
}

// Seek restarts decoding at seconds. While paused the new position is kept
// and decoding starts on Resume.
func (p *Player) Seek(seconds float64) error {
	p.playbackMu.Lock()
	defer p.playbackMu.Unlock()

	p.mu.Lock()
	if p.current == nil || p.state == stateStopped {
		p.mu.Unlock()
		return errors.New("not playing")
	}
	wasPaused := p.state == statePaused
	p.mu.Unlock()

	p.stopSession()

	p.mu.Lock()
	defer p.mu.Unlock()
	target := time.Duration(seconds * float64(time.Second))
	if wasPaused {
		p.offset = min(max(target, 0), p.current.duration)
		p.state = statePaused
		return nil
	}
	p.startLocked(target)
	return nil
}

// Stop ends the current session and rewinds the clock
func (p *Player) Stop() error {
	p.playbackMu.Lock()
	defer p.playbackMu.Unlock()

	p.stopSession()

	p.mu.Lock()
	p.state = stateStopped
	p.offset = 0
	p.mu.Unlock()
	return nil
}

// SetVolume sets the output volume (0.0 - 1.0)
func (p *Player) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return errors.New("volume must be between 0.0 and 1.0")
	}
	p.output.SetVolume(volume)
	return nil
}

// Close stops playback and releases the decoder and device
func (p *Player) Close() error {
	p.Stop()
	p.closeOnce.Do(func() { close(p.quit) })

	var errs []error
	if err := p.decoder.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.output.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
