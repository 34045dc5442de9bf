package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/strata/types"
)

var quickEvents = []types.Event{
	types.FoundIn("a.txt"),
	types.Found(types.Match{File: "a.txt", Offset: 4, Snippet: "quick brown fox"}),
	types.Update(50),
	types.FoundIn("b.txt"),
	types.Found(types.Match{File: "b.txt", Offset: 2, Snippet: "QUICK fox jumps"}),
	types.Update(100),
	types.Done(1500 * time.Microsecond),
}

func TestSearchPrinter_Table(t *testing.T) {
	var out, progress bytes.Buffer
	p := NewSearchPrinter(NewRendererWithWriter(FormatTable, true, &out), &progress)
	for _, ev := range quickEvents {
		if err := p.Observe(ev); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	want := "a.txt\n  4: quick brown fox\nb.txt\n  2: QUICK fox jumps\n2 matches in 2 files (server time 1.5ms)\n"
	if out.String() != want {
		t.Errorf("output = %q\nwant     %q", out.String(), want)
	}
	if !strings.Contains(progress.String(), "50.00%") {
		t.Errorf("progress missing: %q", progress.String())
	}
}

func TestSearchPrinter_JSONLines(t *testing.T) {
	var out bytes.Buffer
	p := NewSearchPrinter(NewRendererWithWriter(FormatJSON, false, &out), nil)
	for _, ev := range quickEvents {
		if err := p.Observe(ev); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != len(quickEvents) {
		t.Fatalf("got %d lines, want %d", len(lines), len(quickEvents))
	}
	var found map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &found); err != nil {
		t.Fatalf("invalid JSON line %q: %v", lines[1], err)
	}
	if found["kind"] != "found" || found["offset"] != float64(4) || found["file"] != "a.txt" {
		t.Errorf("found record = %v", found)
	}
	var done map[string]any
	_ = json.Unmarshal([]byte(lines[len(lines)-1]), &done)
	if done["elapsed_ms"] != 1.5 {
		t.Errorf("done record = %v", done)
	}
}

func TestSearchPrinter_YAMLStream(t *testing.T) {
	var out bytes.Buffer
	p := NewSearchPrinter(NewRendererWithWriter(FormatYAML, false, &out), nil)
	for _, ev := range quickEvents[:2] {
		if err := p.Observe(ev); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "kind: found_in") || !strings.Contains(got, "---") {
		t.Errorf("unexpected YAML stream: %s", got)
	}
}
