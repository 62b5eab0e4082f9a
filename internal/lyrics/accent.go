package lyrics

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/EdlinOrg/prominentcolor"
	"github.com/dhowden/tag"
)

// ErrNoArtwork is returned when a track carries no embedded picture
var ErrNoArtwork = errors.New("lyrics: no embedded artwork")

// DefaultAccent is used when no artwork colour can be extracted
var DefaultAccent = RGB{R: 98, G: 114, B: 164}

// AccentFromImage picks the most vivid mid-brightness colour of an image.
// Dark or washed-out clusters are passed over so the colour stays readable on a dark background.
func AccentFromImage(img image.Image) (RGB, error) {
	if img == nil {
		return DefaultAccent, errors.New("nil image")
	}

	items, err := prominentcolor.KmeansWithAll(5, img, prominentcolor.ArgumentDefault, prominentcolor.DefaultSize, nil)
	if err != nil {
		return DefaultAccent, fmt.Errorf("failed to extract colours: %w", err)
	}

	best := -1.0
	picked := DefaultAccent
	for _, item := range items {
		r := float64(item.Color.R) / 255.0
		g := float64(item.Color.G) / 255.0
		b := float64(item.Color.B) / 255.0

		hi := math.Max(math.Max(r, g), b)
		lo := math.Min(math.Min(r, g), b)
		if hi < 0.3 {
			continue
		}
		sat := (hi - lo) / hi
		if sat < 0.2 {
			continue
		}

		score := sat * (1.0 - math.Abs(hi-0.6))
		if score > best {
			best = score
			picked = RGB{R: uint8(item.Color.R), G: uint8(item.Color.G), B: uint8(item.Color.B)}
		}
	}
	return picked, nil
}

// AccentFromFile reads the embedded cover of an audio file and derives its accent colour
func AccentFromFile(path string) (RGB, error) {
	f, err := os.Open(path)
	if err != nil {
		return DefaultAccent, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return DefaultAccent, fmt.Errorf("failed to read tags: %w", err)
	}
	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return DefaultAccent, ErrNoArtwork
	}

	img, _, err := image.Decode(bytes.NewReader(pic.Data))
	if err != nil {
		return DefaultAccent, fmt.Errorf("failed to decode artwork: %w", err)
	}
	return AccentFromImage(img)
}

// AccentFromImageFile derives the accent colour of a cover image on disk
func AccentFromImageFile(path string) (RGB, error) {
	f, err := os.Open(path)
	if err != nil {
		return DefaultAccent, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return DefaultAccent, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return AccentFromImage(img)
}
