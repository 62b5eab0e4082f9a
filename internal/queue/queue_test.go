package queue

import (
	"errors"
	"testing"

	"github.com/austinkregel/local-media/stashd/internal/types"
)

func tracks(ids ...string) []types.Track {
	out := make([]types.Track, len(ids))
	for i, id := range ids {
		out[i] = types.Track{ID: id, Name: "Song " + id, Location: "/music/" + id + ".mp3"}
	}
	return out
}

func currentID(t *testing.T, q *Queue) string {
	t.Helper()
	track, err := q.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	return track.ID
}

func TestNew(t *testing.T) {
	q := New()

	if q.Size() != 0 {
		t.Errorf("Expected size 0, got %d", q.Size())
	}
	if q.IsFinal() {
		t.Error("Empty queue should not report a final song")
	}
}

func TestImport(t *testing.T) {
	q := New()
	q.Import(tracks("a", "b", "c"))
	q.Next()

	q.Import(tracks("x", "y"))

	idx, size := q.Position()
	if idx != 0 {
		t.Errorf("Expected index 0 after Import, got %d", idx)
	}
	if size != 2 {
		t.Errorf("Expected size 2, got %d", size)
	}
	if id := currentID(t, q); id != "x" {
		t.Errorf("Expected x, got %s", id)
	}

	q.Import(nil)
	if q.Size() != 0 {
		t.Errorf("Expected empty queue after importing nothing, got %d", q.Size())
	}
}

func TestExportIsCopy(t *testing.T) {
	q := New()
	in := tracks("a", "b")
	in[0].Metadata = map[string]any{"album": "One"}
	q.Import(in)

	out := q.Export()
	out[0].Name = "changed"
	out[0].Metadata["album"] = "Two"
	out = append(out, types.Track{ID: "z"})

	if q.Size() != 2 {
		t.Errorf("Export result should not change queue size, got %d", q.Size())
	}
	cur, _ := q.Current()
	if cur.Name != "Song a" {
		t.Errorf("Expected name to be unchanged, got %s", cur.Name)
	}
	if cur.Metadata["album"] != "One" {
		t.Errorf("Expected metadata to be unchanged, got %v", cur.Metadata["album"])
	}
}

func TestAddDoesNotMoveCursor(t *testing.T) {
	q := New()
	q.Import(tracks("a", "b"))
	q.Next()

	q.Add(types.Track{ID: "c"})

	idx, size := q.Position()
	if idx != 1 || size != 3 {
		t.Errorf("Expected (1, 3), got (%d, %d)", idx, size)
	}
}

func TestSetPosition(t *testing.T) {
	q := New()
	q.Import(tracks("a", "b", "c", "b"))

	if !q.SetPosition(types.Track{ID: "b"}) {
		t.Fatal("SetPosition(b) should succeed")
	}
	idx, _ := q.Position()
	if idx != 1 {
		t.Errorf("Expected first match at index 1, got %d", idx)
	}

	if q.SetPosition(types.Track{ID: "missing"}) {
		t.Error("SetPosition(missing) should report false")
	}
	idx, _ = q.Position()
	if idx != 1 {
		t.Errorf("Miss should leave index at 1, got %d", idx)
	}
}

func TestEmptyQueueFailsFast(t *testing.T) {
	q := New()

	if _, err := q.Current(); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Current: expected ErrOutOfRange, got %v", err)
	}
	if _, err := q.PeekNext(); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("PeekNext: expected ErrOutOfRange, got %v", err)
	}
	if _, err := q.PeekPrevious(); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("PeekPrevious: expected ErrOutOfRange, got %v", err)
	}
	if err := q.Next(); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Next: expected ErrOutOfRange, got %v", err)
	}
	if err := q.Previous(); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Previous: expected ErrOutOfRange, got %v", err)
	}
	if _, err := q.Rewind(); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Rewind: expected ErrOutOfRange, got %v", err)
	}
}

func TestNextIsCircular(t *testing.T) {
	for n := 1; n <= 5; n++ {
		ids := make([]string, n)
		for i := range ids {
			ids[i] = string(rune('a' + i))
		}
		q := New()
		q.Import(tracks(ids...))
		q.SetPositionByID(ids[n/2])
		start, _ := q.Position()

		for i := 0; i < n; i++ {
			q.Next()
		}

		idx, _ := q.Position()
		if idx != start {
			t.Errorf("size %d: expected index %d after %d Next calls, got %d", n, start, n, idx)
		}
	}
}

func TestPreviousWrapsFromStart(t *testing.T) {
	q := New()
	q.Import(tracks("a", "b", "c", "d"))

	q.Previous()

	idx, _ := q.Position()
	if idx != 3 {
		t.Errorf("Expected index 3, got %d", idx)
	}
}

func TestPeekNextDoesNotMove(t *testing.T) {
	q := New()
	q.Import(tracks("a", "b", "c"))
	q.Next()
	q.Next()

	for i := 0; i < 4; i++ {
		next, err := q.PeekNext()
		if err != nil {
			t.Fatalf("PeekNext failed: %v", err)
		}
		if next.ID != "a" {
			t.Errorf("Expected lookahead to wrap to a, got %s", next.ID)
		}
	}

	idx, _ := q.Position()
	if idx != 2 {
		t.Errorf("PeekNext moved the cursor to %d", idx)
	}
}

func TestPeekPreviousWraps(t *testing.T) {
	q := New()
	q.Import(tracks("a", "b", "c"))

	prev, err := q.PeekPrevious()
	if err != nil || prev.ID != "c" {
		t.Errorf("Expected lookbehind to wrap to c, got %s (%v)", prev.ID, err)
	}

	q.Next()
	if prev, _ := q.PeekPrevious(); prev.ID != "a" {
		t.Errorf("Expected a before b, got %s", prev.ID)
	}
	if idx, _ := q.Position(); idx != 1 {
		t.Errorf("PeekPrevious moved the cursor to %d", idx)
	}
}

func TestIsFinal(t *testing.T) {
	q := New()
	q.Import(tracks("a", "b", "c"))

	want := []bool{false, false, true, false, false, true}
	for i, w := range want {
		idx, size := q.Position()
		if got := q.IsFinal(); got != w || got != (idx == size-1) {
			t.Errorf("step %d: IsFinal=%v, want %v (index %d)", i, got, w, idx)
		}
		q.Next()
	}
}

func TestSkipPreviousSequence(t *testing.T) {
	q := New()
	q.Import(tracks("A", "B", "C"))

	q.Next()
	if id := currentID(t, q); id != "B" {
		t.Fatalf("Expected B, got %s", id)
	}

	q.Previous()
	q.Previous()
	if id := currentID(t, q); id != "C" {
		t.Errorf("Expected C after two Previous calls, got %s", id)
	}

	q.Next()
	if id := currentID(t, q); id != "A" {
		t.Errorf("Expected A, got %s", id)
	}
}

func TestRewindMatchesDoublePrevious(t *testing.T) {
	a := New()
	b := New()
	for _, q := range []*Queue{a, b} {
		q.Import(tracks("A", "B", "C", "D"))
	}

	for start := 0; start < 4; start++ {
		a.SetPositionByID(string(rune('A' + start)))
		b.SetPositionByID(string(rune('A' + start)))

		a.Previous()
		a.Previous()
		a.Next()
		want := currentID(t, a)

		got, err := b.Rewind()
		if err != nil {
			t.Fatalf("Rewind failed: %v", err)
		}
		if got.ID != want {
			t.Errorf("start %d: Rewind gave %s, double-previous gave %s", start, got.ID, want)
		}
	}
}

func TestOnChange(t *testing.T) {
	q := New()
	calls := 0
	q.SetOnChange(func() { calls++ })

	q.Import(tracks("a", "b"))
	q.Next()
	q.PeekNext()
	q.SetPositionByID("missing")

	if calls != 2 {
		t.Errorf("Expected 2 change notifications, got %d", calls)
	}
}
