package lyrics

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ParseLRC builds a document from "[mm:ss.xx] text" formatted lyrics.
// Lines without a usable timestamp are skipped, metadata tags like [ar:...] included.
func ParseLRC(songID, raw string) *Document {
	doc := &Document{SongID: songID, Lines: []Line{}}

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		stamps, text := splitLrcLine(trimmed)
		if len(stamps) == 0 || text == "" {
			continue
		}

		for _, stamp := range stamps {
			seconds, err := parseLrcTime(stamp)
			if err != nil {
				continue
			}
			doc.Lines = append(doc.Lines, Line{Text: text, At: seconds})
		}
	}

	// [00:10.00][01:20.00] lines expand out of order; keep file order for equal stamps
	slices.SortStableFunc(doc.Lines, func(a, b Line) int { return cmp.Compare(a.At, b.At) })
	return doc
}

// FormatLRC renders timed lines of a document as LRC. Untimed lines are written without a stamp.
func FormatLRC(doc *Document) string {
	if doc == nil {
		return ""
	}
	var b strings.Builder
	for _, l := range doc.Lines {
		if l.Untimed() {
			b.WriteString(l.Text)
		} else {
			fmt.Fprintf(&b, "[%s] %s", formatLrcTime(l.At), l.Text)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func splitLrcLine(line string) ([]string, string) {
	var stamps []string
	rest := line
	for strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end <= 1 {
			break
		}
		stamps = append(stamps, rest[1:end])
		rest = rest[end+1:]
	}
	return stamps, strings.TrimSpace(rest)
}

func parseLrcTime(raw string) (float64, error) {
	if raw == "" {
		return 0, errors.New("empty time value")
	}

	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time format: %s", raw)
	}

	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse float %q: %w", p, err)
		}
		total = total*60 + v
	}
	if total < 0 {
		return 0, errors.New("negative time not allowed")
	}
	return total, nil
}

func formatLrcTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	cs := int64(math.Round(seconds * 100))
	return fmt.Sprintf("%02d:%02d.%02d", cs/6000, (cs/100)%60, cs%100)
}
