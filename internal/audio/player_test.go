package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/austinkregel/local-media/stashd/internal/types"
)

type fakeDecoder struct {
	mu       sync.Mutex
	decoded  []string
	starts   []int64
	duration time.Duration
	err      error
	block    bool
}

func (d *fakeDecoder) Decode(ctx context.Context, path string, output Output, startMs int64) error {
	d.mu.Lock()
	d.decoded = append(d.decoded, path)
	d.starts = append(d.starts, startMs)
	block := d.block
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (d *fakeDecoder) Duration(path string) (time.Duration, error) {
	if d.err != nil {
		return 0, d.err
	}
	return d.duration, nil
}

func (d *fakeDecoder) Close() error { return nil }

func (d *fakeDecoder) lastStart() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.starts) == 0 {
		return -1
	}
	return d.starts[len(d.starts)-1]
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// waitStart polls until the decoder has been started at want milliseconds
func waitStart(t *testing.T, dec *fakeDecoder, want int64) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if dec.lastStart() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Errorf("Expected decode from %dms, last start %d", want, dec.lastStart())
}

func touch(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func newTestPlayer(t *testing.T, dec *fakeDecoder, clock *fakeClock) *Player {
	t.Helper()
	p := NewPlayer(dec, newOutput(DefaultSampleRate, 2, 0), Options{
		TickInterval: time.Hour,
		Now:          clock.Now,
	})
	t.Cleanup(func() { p.Close() })
	return p
}

func TestLoadMissingFileKeepsPlayback(t *testing.T) {
	ctx := context.Background()
	dec := &fakeDecoder{duration: time.Minute, block: true}
	p := newTestPlayer(t, dec, &fakeClock{t: time.Unix(0, 0)})

	a := touch(t, "a.mp3")
	if _, err := p.Load(ctx, types.Track{ID: "a", Location: a}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	p.Play(ctx, 1, 0)

	if _, err := p.Load(ctx, types.Track{ID: "b", Location: "/nope/b.mp3"}); err == nil {
		t.Fatal("Expected missing file to fail")
	}
	if _, err := p.Load(ctx, types.Track{ID: "c"}); err == nil {
		t.Fatal("Expected track without location to fail")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != statePlaying || p.current.path != a {
		t.Errorf("Failed load disturbed playback: state %v path %s", p.state, p.current.path)
	}
}

func TestLoadUsesDurationHint(t *testing.T) {
	dec := &fakeDecoder{err: errors.New("ffprobe missing")}
	p := newTestPlayer(t, dec, &fakeClock{})

	path := touch(t, "a.mp3")
	d, err := p.Load(context.Background(), types.Track{
		Location: path,
		Metadata: map[string]any{types.MetaDuration: 95.5},
	})
	if err != nil || d != 95.5 {
		t.Errorf("Expected hinted duration 95.5, got %v (%v)", d, err)
	}

	if _, err := p.Load(context.Background(), types.Track{Location: path}); err == nil {
		t.Error("Expected probe error without a hint")
	}
}

func TestPlayWithoutLoad(t *testing.T) {
	p := newTestPlayer(t, &fakeDecoder{}, &fakeClock{})
	if err := p.Play(context.Background(), 1, 0); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Expected ErrNotLoaded, got %v", err)
	}
}

func TestClockPauseResume(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(100, 0)}
	dec := &fakeDecoder{duration: time.Minute, block: true}
	p := newTestPlayer(t, dec, clock)

	p.Load(ctx, types.Track{Location: touch(t, "a.mp3")})
	p.Play(ctx, 1, 10)
	clock.Advance(5 * time.Second)

	if pos, dur := p.Position(); pos != 15 || dur != 60 {
		t.Errorf("Expected 15/60, got %v/%v", pos, dur)
	}

	p.Pause()
	clock.Advance(30 * time.Second)
	if pos, _ := p.Position(); pos != 15 {
		t.Errorf("Clock moved while paused: %v", pos)
	}

	p.Resume()
	clock.Advance(2 * time.Second)
	if pos, _ := p.Position(); pos != 17 {
		t.Errorf("Expected 17 after resume, got %v", pos)
	}
	waitStart(t, dec, 10000)
}

func TestSeekWhilePausedStartsOnResume(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(0, 0)}
	dec := &fakeDecoder{duration: time.Minute, block: true}
	p := newTestPlayer(t, dec, clock)

	p.Load(ctx, types.Track{Location: touch(t, "a.mp3")})
	p.Play(ctx, 1, 0)
	p.Pause()

	if err := p.Seek(42); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if pos, _ := p.Position(); pos != 42 {
		t.Errorf("Expected paused position 42, got %v", pos)
	}
	if got := dec.lastStart(); got != 0 {
		t.Errorf("Seek while paused should not decode yet, last start %d", got)
	}

	p.Resume()
	waitStart(t, dec, 42000)
}

func TestSeekWhilePlaying(t *testing.T) {
	ctx := context.Background()
	dec := &fakeDecoder{duration: time.Minute, block: true}
	p := newTestPlayer(t, dec, &fakeClock{t: time.Unix(0, 0)})

	if err := p.Seek(3); err == nil {
		t.Error("Expected seek with nothing playing to fail")
	}

	p.Load(ctx, types.Track{Location: touch(t, "a.mp3")})
	p.Play(ctx, 1, 0)
	p.Seek(500)

	waitStart(t, dec, 60000)
}

func TestEndedCallback(t *testing.T) {
	ctx := context.Background()
	dec := &fakeDecoder{duration: 20 * time.Millisecond}
	p := NewPlayer(dec, newOutput(DefaultSampleRate, 2, 0), Options{TickInterval: 5 * time.Millisecond})
	defer p.Close()

	ended := make(chan uint64, 1)
	p.SetOnEnded(func(token uint64) { ended <- token })

	p.Load(ctx, types.Track{Location: touch(t, "a.mp3")})
	p.Play(ctx, 7, 0)

	select {
	case token := <-ended:
		if token != 7 {
			t.Errorf("Expected the end reported with token 7, got %d", token)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the ended callback")
	}

	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state != stateStopped {
		t.Errorf("Expected stopped after the end, got %v", state)
	}
}

func TestStopDoesNotReportEnd(t *testing.T) {
	ctx := context.Background()
	dec := &fakeDecoder{duration: 20 * time.Millisecond}
	p := NewPlayer(dec, newOutput(DefaultSampleRate, 2, 0), Options{TickInterval: 5 * time.Millisecond})
	defer p.Close()

	ended := make(chan struct{}, 1)
	p.SetOnEnded(func(uint64) { ended <- struct{}{} })

	p.Load(ctx, types.Track{Location: touch(t, "a.mp3")})
	p.Play(ctx, 1, 0)
	p.Stop()

	select {
	case <-ended:
		t.Error("Stop should not report the track as ended")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTicksCarryPlayToken(t *testing.T) {
	ctx := context.Background()
	dec := &fakeDecoder{duration: time.Minute, block: true}
	p := NewPlayer(dec, newOutput(DefaultSampleRate, 2, 0), Options{TickInterval: 2 * time.Millisecond})
	defer p.Close()

	ticks := make(chan uint64, 64)
	p.SetOnTick(func(token uint64, current, duration float64) {
		select {
		case ticks <- token:
		default:
		}
	})

	waitToken := func(want uint64) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case got := <-ticks:
				if got == want {
					return
				}
			case <-deadline:
				t.Fatalf("Expected a tick with token %d", want)
			}
		}
	}

	p.Load(ctx, types.Track{Location: touch(t, "a.mp3")})
	p.Play(ctx, 3, 0)
	waitToken(3)

	p.Load(ctx, types.Track{Location: touch(t, "b.mp3")})
	p.Play(ctx, 4, 0)
	waitToken(4)

	if err := p.Seek(10); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	p.mu.Lock()
	token := p.token
	p.mu.Unlock()
	if token != 4 {
		t.Errorf("Seek should keep the play token, got %d", token)
	}
}

func TestSetVolumeRange(t *testing.T) {
	p := newTestPlayer(t, &fakeDecoder{}, &fakeClock{})
	if err := p.SetVolume(1.2); err == nil {
		t.Error("Expected out-of-range volume to fail")
	}
	if err := p.SetVolume(0.4); err != nil {
		t.Errorf("SetVolume failed: %v", err)
	}
}
