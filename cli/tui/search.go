package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/strata/client"
	"github.com/pithecene-io/strata/types"
)

// Display limits for the search view.
const (
	maxFilesShown   = 20
	maxMatchesShown = 10
)

// Messages driving the search view.
type (
	eventMsg    types.Event
	finishedMsg struct{ err error }
)

// SearchFunc runs a search, delivering each event to fn.
type SearchFunc func(ctx context.Context, fn client.EventHandler) (time.Duration, error)

// SearchModel shows live progress and per-file results of one search.
type SearchModel struct {
	term     string
	tally    *client.Tally
	bar      progress.Model
	cancel   context.CancelFunc
	expanded bool
	finished bool
	quitting bool
	err      error
}

// NewSearchModel creates a search view. cancel is invoked when the user
// quits before the search completes; it may be nil.
func NewSearchModel(term string, cancel context.CancelFunc) SearchModel {
	return SearchModel{
		term:   term,
		tally:  client.NewTally(),
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		cancel: cancel,
	}
}

// Init implements tea.Model.
func (m SearchModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m SearchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(msg.Width-12, 60))
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case key.Matches(msg, keys.Expand):
			m.expanded = !m.expanded
		}
		return m, nil

	case eventMsg:
		_ = m.tally.Observe(types.Event(msg))
		return m, nil

	case finishedMsg:
		m.finished = true
		m.err = msg.err
		// Final results stay on screen after exit.
		m.expanded = true
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model.
func (m SearchModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Searching for %q", m.term)))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.tally.Progress / 100))
	fmt.Fprintf(&b, " %6.2f%%\n\n", m.tally.Progress)

	ranked := m.tally.Ranked()
	for i, fh := range ranked {
		if i == maxFilesShown {
			b.WriteString(HelpStyle.Render(fmt.Sprintf("... %d more files", len(ranked)-i)))
			b.WriteString("\n")
			break
		}
		fmt.Fprintf(&b, "%s %s\n", FileStyle.Render(fh.Name), CountStyle.Render(plural(len(fh.Matches), "match", "matches")))
		if !m.expanded {
			continue
		}
		for j, match := range fh.Matches {
			if j == maxMatchesShown {
				b.WriteString(OffsetStyle.Render("..."))
				b.WriteString("\n")
				break
			}
			fmt.Fprintf(&b, "%s  %s\n", OffsetStyle.Render(fmt.Sprint(match.Offset)), match.Snippet)
		}
	}

	switch {
	case m.err != nil:
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render("Search failed: " + m.err.Error()))
		b.WriteString("\n")
	case m.finished:
		b.WriteString("\n")
		b.WriteString(SuccessStyle.Render(fmt.Sprintf("%s in %s (server time %s)",
			plural(m.tally.Matches(), "match", "matches"),
			plural(len(ranked), "file", "files"),
			m.tally.Elapsed)))
		b.WriteString("\n")
	case m.quitting:
		b.WriteString("\n")
		b.WriteString(HelpStyle.Render("Search cancelled"))
		b.WriteString("\n")
	default:
		b.WriteString(HelpStyle.Render("e: toggle matches · q: quit"))
		b.WriteString("\n")
	}
	return b.String()
}

// Err returns the search error, if any, once the view has finished.
func (m SearchModel) Err() error { return m.err }

// Tally returns the accumulated results.
func (m SearchModel) Tally() *client.Tally { return m.tally }

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}

// RunSearch runs search under a live view until it completes or the user
// quits. Quitting cancels the search and is not an error.
func RunSearch(ctx context.Context, term string, search SearchFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewSearchModel(term, cancel), tea.WithContext(ctx))
	go func() {
		_, err := search(ctx, func(ev types.Event) error {
			p.Send(eventMsg(ev))
			return nil
		})
		p.Send(finishedMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		if sm, ok := final.(SearchModel); ok && sm.quitting {
			return nil
		}
		return err
	}
	if sm, ok := final.(SearchModel); ok {
		return sm.Err()
	}
	return nil
}
