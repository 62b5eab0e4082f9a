package audio

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hajimehoshi/oto/v2"
)

const (
	DefaultSampleRate = 44100
	defaultChannels   = 2
	bytesPerSample    = 2 // s16le

	// DefaultBufferMs bounds how far decoding may run ahead of what is heard
	DefaultBufferMs = 100
)

// Output is the sink the decoder writes PCM into
type Output interface {
	io.WriteCloser
	SampleRate() int
	Channels() int
	Pause()
	Resume()
	// Stop drops buffered audio so the next track starts clean
	Stop()
	SetVolume(v float64)
}

// OtoOutput plays PCM through an oto player reading from an in-memory buffer
type OtoOutput struct {
	context    *oto.Context
	player     oto.Player
	sampleRate int
	channels   int
	maxBuffer  int

	mu     sync.Mutex
	cond   *sync.Cond // signalled on Resume and Close
	buffer *bytes.Buffer
	volume float64
	paused bool
	closed bool
}

// NewOtoOutput opens the default device at sampleRate in stereo with a bufferMs write-ahead
func NewOtoOutput(sampleRate, bufferMs int) (*OtoOutput, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	ctx, ready, err := oto.NewContext(sampleRate, defaultChannels, bytesPerSample)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	o := newOutput(sampleRate, defaultChannels, bufferMs)
	o.context = ctx
	o.player = ctx.NewPlayer(o)
	return o, nil
}

func newOutput(sampleRate, channels, bufferMs int) *OtoOutput {
	if bufferMs <= 0 {
		bufferMs = DefaultBufferMs
	}
	o := &OtoOutput{
		sampleRate: sampleRate,
		channels:   channels,
		maxBuffer:  sampleRate * channels * bytesPerSample * bufferMs / 1000,
		buffer:     &bytes.Buffer{},
		volume:     1.0,
	}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// Read feeds the oto player. It blocks while paused and plays silence on underrun.
func (o *OtoOutput) Read(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for o.paused && !o.closed {
		o.cond.Wait()
	}
	if o.closed {
		return 0, io.EOF
	}

	if o.buffer.Len() == 0 {
		clear(p)
		return len(p), nil
	}

	n, err := o.buffer.Read(p)
	if err != nil {
		return n, err
	}
	if o.volume < 1.0 {
		applyVolume(p[:n], o.volume)
	}
	return n, nil
}

// applyVolume scales little-endian 16-bit samples in place
func applyVolume(data []byte, vol float64) {
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(data[i]) | int16(data[i+1])<<8
		scaled := int16(float64(sample) * vol)
		data[i] = byte(scaled)
		data[i+1] = byte(scaled >> 8)
	}
}

// SetVolume sets the playback volume, clamped to [0, 1]
func (o *OtoOutput) SetVolume(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = min(max(v, 0), 1)
}

// Volume returns the current volume
func (o *OtoOutput) Volume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// Write queues PCM. It blocks while the buffer is full so the decoder is
// throttled to playback speed.
func (o *OtoOutput) Write(data []byte) (int, error) {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return 0, io.ErrClosedPipe
		}
		if o.buffer.Len() < o.maxBuffer {
			break
		}
		o.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	defer o.mu.Unlock()

	n, err := o.buffer.Write(data)
	if err != nil {
		return n, err
	}
	if o.player != nil && !o.paused && !o.player.IsPlaying() {
		o.player.Play()
	}
	return n, nil
}

// Buffered returns the number of queued bytes
func (o *OtoOutput) Buffered() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buffer.Len()
}

// Pause holds playback; Write keeps buffering but will not restart the player
func (o *OtoOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = true
	if o.player != nil && o.player.IsPlaying() {
		o.player.Pause()
	}
}

// Resume continues playback after Pause
func (o *OtoOutput) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = false
	o.cond.Broadcast()
	if o.player != nil && !o.player.IsPlaying() {
		o.player.Play()
	}
}

// Stop halts the player and drops buffered audio
func (o *OtoOutput) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = false
	o.cond.Broadcast()
	if o.player != nil {
		o.player.Pause()
	}
	o.buffer.Reset()
}

// Close releases the device; blocked readers and writers return
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closed = true
	o.cond.Broadcast()
	if o.player != nil {
		return o.player.Close()
	}
	return nil
}

// SampleRate returns the sample rate
func (o *OtoOutput) SampleRate() int {
	return o.sampleRate
}

// Channels returns the number of channels
func (o *OtoOutput) Channels() int {
	return o.channels
}

var _ io.Reader = (*OtoOutput)(nil)
