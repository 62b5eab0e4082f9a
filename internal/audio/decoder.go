package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileMetadata contains metadata extracted from an audio file
type FileMetadata struct {
	Title    string
	Artist   string
	Album    string
	Duration time.Duration
}

// FFmpegDecoder decodes through an ffmpeg child process and probes with ffprobe
type FFmpegDecoder struct {
	ffmpegPath string
	prober     *Prober
}

// NewFFmpegDecoder finds ffmpeg and ffprobe in PATH
func NewFFmpegDecoder() (*FFmpegDecoder, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	prober, err := NewProber()
	if err != nil {
		return nil, err
	}
	return &FFmpegDecoder{ffmpegPath: ffmpegPath, prober: prober}, nil
}

// decodeArgs builds the ffmpeg arguments for raw s16le PCM starting at startMs
func decodeArgs(path string, startMs int64, channels, sampleRate int) []string {
	var args []string
	if startMs > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", float64(startMs)/1000.0))
	}
	return append(args,
		"-v", "error",
		"-i", path,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(sampleRate),
		"-",
	)
}

// Decode writes PCM for path from startMs into output until EOF or ctx is cancelled
func (d *FFmpegDecoder) Decode(ctx context.Context, path string, output Output, startMs int64) error {
	cmd := exec.CommandContext(ctx, d.ffmpegPath, decodeArgs(path, startMs, output.Channels(), output.SampleRate())...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// kill and reap on every exit path
	defer func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
			cmd.Wait()
		}
	}()

	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := stdout.Read(buf)
		if n > 0 {
			if _, err := output.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write to output: %w", err)
			}
		}
		if readErr != nil {
			break
		}
	}
	return cmd.Wait()
}

// Duration probes the length of path
func (d *FFmpegDecoder) Duration(path string) (time.Duration, error) {
	return d.prober.Duration(path)
}

// Close releases decoder resources
func (d *FFmpegDecoder) Close() error {
	return nil
}

// Prober reads durations and tags with ffprobe
type Prober struct {
	path string
}

// NewProber finds ffprobe in PATH
func NewProber() (*Prober, error) {
	p, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &Prober{path: p}, nil
}

// Duration returns the duration of an audio file
func (p *Prober) Duration(path string) (time.Duration, error) {
	out, err := exec.Command(p.path,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseSeconds(strings.TrimSpace(string(out)))
}

// Metadata extracts tags and duration from an audio file
func (p *Prober) Metadata(path string) (*FileMetadata, error) {
	out, err := exec.Command(p.path, "-v", "quiet", "-print_format", "json", "-show_format", path).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(out, path)
}

func parseSeconds(s string) (time.Duration, error) {
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", s, err)
	}
	if sec < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

// parseProbe reads ffprobe's -show_format JSON. Tag keys are matched
// case-insensitively; the file name stands in for a missing title.
func parseProbe(data []byte, path string) (*FileMetadata, error) {
	var probe struct {
		Format struct {
			Duration string            `json:"duration"`
			Tags     map[string]string `json:"tags"`
		} `json:"format"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	meta := &FileMetadata{}
	var albumArtist string
	for key, value := range probe.Format.Tags {
		switch strings.ToLower(key) {
		case "title":
			meta.Title = value
		case "artist":
			meta.Artist = value
		case "album":
			meta.Album = value
		case "album_artist":
			albumArtist = value
		}
	}
	if meta.Artist == "" {
		meta.Artist = albumArtist
	}
	if probe.Format.Duration != "" {
		if d, err := parseSeconds(probe.Format.Duration); err == nil {
			meta.Duration = d
		}
	}
	if meta.Title == "" {
		base := filepath.Base(path)
		meta.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return meta, nil
}
