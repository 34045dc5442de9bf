package render

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/strata/client"
	"github.com/pithecene-io/strata/types"
)

var (
	fileStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6"))
	offsetStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// eventRecord is the json/yaml shape of one search event.
type eventRecord struct {
	Kind      types.EventKind `json:"kind" yaml:"kind"`
	File      string          `json:"file,omitempty" yaml:"file,omitempty"`
	Offset    *int64          `json:"offset,omitempty" yaml:"offset,omitempty"`
	Snippet   string          `json:"snippet,omitempty" yaml:"snippet,omitempty"`
	Percent   *float64        `json:"percent,omitempty" yaml:"percent,omitempty"`
	ElapsedMs *float64        `json:"elapsed_ms,omitempty" yaml:"elapsed_ms,omitempty"`
}

func toRecord(ev types.Event) eventRecord {
	rec := eventRecord{Kind: ev.Kind, File: ev.File}
	switch ev.Kind {
	case types.EventFound:
		rec.File = ev.Match.File
		rec.Offset = &ev.Match.Offset
		rec.Snippet = ev.Match.Snippet
	case types.EventUpdate:
		rec.Percent = &ev.Percent
	case types.EventDone:
		ms := float64(ev.Elapsed) / float64(time.Millisecond)
		rec.ElapsedMs = &ms
	}
	return rec
}

// SearchPrinter streams search events as they arrive.
//
// Table format prints matches grep-style under each file and a summary line.
// json and yaml emit one record per event (JSON Lines, or a YAML document
// stream). Progress, when a writer is given, goes there as a rewritten line.
type SearchPrinter struct {
	r        *Renderer
	progress io.Writer
	tally    *client.Tally
	yamlEnc  *yaml.Encoder
	pending  bool // a progress line is on screen
}

// NewSearchPrinter returns a printer writing through r. progress may be nil.
func NewSearchPrinter(r *Renderer, progress io.Writer) *SearchPrinter {
	p := &SearchPrinter{r: r, progress: progress, tally: client.NewTally()}
	if r.format == FormatYAML {
		p.yamlEnc = yaml.NewEncoder(r.out)
	}
	return p
}

// Tally returns the accumulated results.
func (p *SearchPrinter) Tally() *client.Tally { return p.tally }

// Observe prints one event. It satisfies client.EventHandler.
func (p *SearchPrinter) Observe(ev types.Event) error {
	_ = p.tally.Observe(ev)

	switch p.r.format {
	case FormatJSON:
		return json.NewEncoder(p.r.out).Encode(toRecord(ev))
	case FormatYAML:
		return p.yamlEnc.Encode(toRecord(ev))
	}

	if ev.Kind == types.EventUpdate {
		if p.progress != nil {
			fmt.Fprintf(p.progress, "\rsearching... %6.2f%%", ev.Percent)
			p.pending = true
		}
		return nil
	}
	p.clearProgress()

	var err error
	switch ev.Kind {
	case types.EventFoundIn:
		_, err = fmt.Fprintln(p.r.out, p.style(fileStyle, ev.File))
	case types.EventFound:
		_, err = fmt.Fprintf(p.r.out, "  %s: %s\n", p.style(offsetStyle, fmt.Sprint(ev.Match.Offset)), ev.Match.Snippet)
	case types.EventDone:
		_, err = fmt.Fprintf(p.r.out, "%d matches in %d files (server time %s)\n",
			p.tally.Matches(), len(p.tally.Files()), ev.Elapsed)
	}
	return err
}

// Close finishes any open output.
func (p *SearchPrinter) Close() error {
	p.clearProgress()
	if p.yamlEnc != nil {
		return p.yamlEnc.Close()
	}
	return nil
}

func (p *SearchPrinter) clearProgress() {
	if p.pending {
		fmt.Fprint(p.progress, "\r\033[K")
		p.pending = false
	}
}

func (p *SearchPrinter) style(s lipgloss.Style, text string) string {
	if p.r.noColor {
		return text
	}
	return s.Render(text)
}
