package search

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/strata/types"
)

// recorder collects emitted events.
type recorder struct {
	events []types.Event
}

func (r *recorder) Emit(ev types.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) kinds() []types.EventKind {
	out := make([]types.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// writeCorpus writes files into a temp dir and returns corpus entries in order.
func writeCorpus(t *testing.T, files ...[2]string) []types.CorpusEntry {
	t.Helper()
	dir := t.TempDir()
	corpus := make([]types.CorpusEntry, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f[0])
		if err := os.WriteFile(path, []byte(f[1]), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", f[0], err)
		}
		corpus = append(corpus, types.CorpusEntry{Name: f[0], Path: path, Size: int64(len(f[1]))})
	}
	return corpus
}

func TestEngine_QuickScenario(t *testing.T) {
	corpus := writeCorpus(t,
		[2]string{"a.txt", "the quick brown fox"},
		[2]string{"b.txt", "a QUICK fox jumps"},
	)
	rec := &recorder{}

	sum, err := NewEngine(Config{}).Search(t.Context(), rec, "quick", corpus)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	want := []types.Event{
		types.FoundIn("a.txt"),
		types.Found(types.Match{File: "a.txt", Offset: 4, Snippet: "quick brown fox"}),
		types.FoundIn("b.txt"),
		types.Found(types.Match{File: "b.txt", Offset: 2, Snippet: "QUICK fox jumps"}),
	}
	if len(rec.events) != len(want)+1 {
		t.Fatalf("got %d events, want %d: %+v", len(rec.events), len(want)+1, rec.events)
	}
	for i, ev := range want {
		if rec.events[i] != ev {
			t.Errorf("event %d = %+v, want %+v", i, rec.events[i], ev)
		}
	}
	last := rec.events[len(rec.events)-1]
	if last.Kind != types.EventDone || last.Elapsed <= 0 {
		t.Errorf("last event = %+v, want done with positive elapsed", last)
	}

	if sum.FilesScanned != 2 || sum.FilesMatched != 2 || sum.Matches != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.BytesScanned != int64(len("the quick brown fox")+len("a QUICK fox jumps")) {
		t.Errorf("BytesScanned = %d", sum.BytesScanned)
	}
}

func TestEngine_EmptyCorpus(t *testing.T) {
	rec := &recorder{}

	if _, err := NewEngine(Config{}).Search(t.Context(), rec, "anything", nil); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !slices.Equal(rec.kinds(), []types.EventKind{types.EventDone}) {
		t.Errorf("events = %v, want only done", rec.kinds())
	}
}

func TestEngine_EmptyTermMatchesNothing(t *testing.T) {
	corpus := writeCorpus(t, [2]string{"a.txt", "content"})
	rec := &recorder{}

	sum, err := NewEngine(Config{}).Search(t.Context(), rec, "", corpus)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !slices.Equal(rec.kinds(), []types.EventKind{types.EventDone}) {
		t.Errorf("events = %v, want only done", rec.kinds())
	}
	if sum.FilesScanned != 0 {
		t.Errorf("FilesScanned = %d, want 0", sum.FilesScanned)
	}
}

func TestEngine_AnnouncesOncePerFile(t *testing.T) {
	corpus := writeCorpus(t, [2]string{"many.txt", strings.Repeat("ab ", 40)})
	rec := &recorder{}

	_, err := NewEngine(Config{WindowFloor: 8}).Search(t.Context(), rec, "ab", corpus)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	var foundIn, found int
	var offsets []int64
	for _, ev := range rec.events {
		switch ev.Kind {
		case types.EventFoundIn:
			foundIn++
		case types.EventFound:
			found++
			offsets = append(offsets, ev.Match.Offset)
		}
	}
	if foundIn != 1 {
		t.Errorf("found_in count = %d, want 1", foundIn)
	}
	if found != 40 {
		t.Errorf("found count = %d, want 40", found)
	}
	for i, off := range offsets {
		if off != int64(i*3) {
			t.Fatalf("offset %d = %d, want %d", i, off, i*3)
		}
	}
}

func TestEngine_SnippetStripsControlCharacters(t *testing.T) {
	corpus := writeCorpus(t, [2]string{"c.txt", "key\tvalue\nnext"})
	rec := &recorder{}

	if _, err := NewEngine(Config{}).Search(t.Context(), rec, "key", corpus); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if rec.events[1].Match.Snippet != "keyvaluenext" {
		t.Errorf("snippet = %q, want %q", rec.events[1].Match.Snippet, "keyvaluenext")
	}
}

func TestEngine_ProgressMonotonic(t *testing.T) {
	corpus := writeCorpus(t,
		[2]string{"one.txt", strings.Repeat("x", 400)},
		[2]string{"two.txt", strings.Repeat("y", 600)},
	)
	// Each clock read advances past the interval, so every window step reports.
	now := time.Unix(0, 0)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	rec := &recorder{}

	_, err := NewEngine(Config{WindowFloor: 64, ProgressInterval: time.Millisecond, Clock: clock}).
		Search(t.Context(), rec, "z", corpus)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	var last float64
	var updates int
	for _, ev := range rec.events {
		if ev.Kind != types.EventUpdate {
			continue
		}
		updates++
		if ev.Percent < last {
			t.Errorf("progress went backwards: %v after %v", ev.Percent, last)
		}
		if ev.Percent > 100 {
			t.Errorf("progress %v exceeds 100", ev.Percent)
		}
		last = ev.Percent
	}
	if updates == 0 {
		t.Fatal("expected update events")
	}
	if last != 100 {
		t.Errorf("final progress = %v, want 100", last)
	}
}

func TestEngine_SkipsVanishedFile(t *testing.T) {
	corpus := writeCorpus(t, [2]string{"gone.txt", "needle"}, [2]string{"here.txt", "needle"})
	if err := os.Remove(corpus[0].Path); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}

	sum, err := NewEngine(Config{}).Search(t.Context(), rec, "needle", corpus)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if sum.FilesScanned != 1 || rec.events[0].File != "here.txt" {
		t.Errorf("summary = %+v, first event = %+v", sum, rec.events[0])
	}
}

func TestEngine_DoesNotObserveGrowth(t *testing.T) {
	corpus := writeCorpus(t, [2]string{"grow.txt", "aaaa"})
	// Appended after the corpus was built; the recorded size bounds the scan.
	f, err := os.OpenFile(corpus[0].Path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("needle"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	rec := &recorder{}
	sum, err := NewEngine(Config{}).Search(t.Context(), rec, "needle", corpus)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if sum.Matches != 0 {
		t.Errorf("Matches = %d, want 0", sum.Matches)
	}
}

func TestEngine_EmitterErrorAborts(t *testing.T) {
	corpus := writeCorpus(t, [2]string{"a.txt", "needle"}, [2]string{"b.txt", "needle"})
	broken := errors.New("broken pipe")
	calls := 0
	em := EmitterFunc(func(types.Event) error {
		calls++
		return broken
	})

	_, err := NewEngine(Config{}).Search(t.Context(), em, "needle", corpus)
	if !errors.Is(err, broken) {
		t.Fatalf("expected emitter error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("emitter called %d times after failure, want 1", calls)
	}
}

func TestEngine_Cancelled(t *testing.T) {
	corpus := writeCorpus(t, [2]string{"a.txt", "needle"})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := NewEngine(Config{}).Search(ctx, &recorder{}, "needle", corpus)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEngine_WindowSize(t *testing.T) {
	e := NewEngine(Config{WindowFloor: 4})
	if got := e.WindowSize("ab"); got != 4 {
		t.Errorf("WindowSize = %d, want 4", got)
	}
	if got := e.WindowSize("abcdefgh"); got != 8 {
		t.Errorf("WindowSize = %d, want 8", got)
	}
	if got := NewEngine(Config{}).WindowSize("x"); got != DefaultWindowFloor {
		t.Errorf("default WindowSize = %d, want %d", got, DefaultWindowFloor)
	}
}

// foundOffsets runs the engine over data with the given window floor and
// returns the offsets of every found event.
func foundOffsets(t *testing.T, data []byte, term string, floor int) []int64 {
	t.Helper()
	corpus := writeCorpus(t, [2]string{"data.bin", string(data)})
	rec := &recorder{}
	if _, err := NewEngine(Config{WindowFloor: floor}).Search(t.Context(), rec, term, corpus); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	var offsets []int64
	for _, ev := range rec.events {
		if ev.Kind == types.EventFound {
			offsets = append(offsets, ev.Match.Offset)
		}
	}
	return offsets
}

// onePassOffsets finds every occurrence in a single in-memory pass, overlaps included.
func onePassOffsets(data []byte, term string) []int64 {
	lower := []byte(strings.ToLower(string(data)))
	needle := LowerTerm(term)
	var offsets []int64
	for i := 0; i+len(needle) <= len(lower); i++ {
		if string(lower[i:i+len(needle)]) == string(needle) {
			offsets = append(offsets, int64(i))
		}
	}
	return offsets
}

func TestEngine_StraddlingMatch(t *testing.T) {
	term := "needle"
	// W = len(term)+1 and the match starts two bytes before the first boundary.
	got := foundOffsets(t, []byte("xxxxxneedlexxxxxxxxx"), term, len(term)+1)
	if want := []int64{5}; !slices.Equal(got, want) {
		t.Errorf("offsets = %v, want %v", got, want)
	}
}

func TestEngine_MatchesAtEveryPosition(t *testing.T) {
	data := []byte(strings.Repeat("ab", 50))

	got := foundOffsets(t, data, "ab", 2)
	if want := onePassOffsets(data, "ab"); !slices.Equal(got, want) {
		t.Errorf("offsets = %v, want %v", got, want)
	}
}

func TestEngine_WindowedEqualsOnePass(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	alphabet := []byte("abAB")

	for iter := 0; iter < 300; iter++ {
		data := make([]byte, rng.IntN(200))
		for i := range data {
			data[i] = alphabet[rng.IntN(len(alphabet))]
		}
		term := make([]byte, 1+rng.IntN(4))
		for i := range term {
			term[i] = alphabet[rng.IntN(len(alphabet))]
		}
		floor := len(term) + rng.IntN(6)

		got := foundOffsets(t, data, string(term), floor)
		want := onePassOffsets(data, string(term))
		if !slices.Equal(got, want) {
			t.Fatalf("iter %d: data=%q term=%q W=%d: offsets = %v, want %v",
				iter, data, term, floor, got, want)
		}
	}
}
