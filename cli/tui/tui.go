package tui

import (
	"fmt"
	"slices"

	"github.com/pithecene-io/strata/journal"
)

// Views that support --tui. search is run through RunSearch because it
// streams; the rest render a finished payload through Run.
const (
	ViewSearch = "search"
	ViewStats  = "stats"
)

// IsTUISupported reports whether a view has a TUI.
func IsTUISupported(view string) bool {
	return slices.Contains(SupportedTUIViews(), view)
}

// SupportedTUIViews lists the views with a TUI.
func SupportedTUIViews() []string {
	return []string{ViewSearch, ViewStats}
}

// Run shows a finished payload in its view.
func Run(view string, data any) error {
	switch view {
	case ViewStats:
		stats, ok := data.([]journal.CommandStats)
		if !ok {
			return fmt.Errorf("invalid data type %T for %s", data, view)
		}
		return RunStats(stats)
	case ViewSearch:
		return fmt.Errorf("%s streams and must use RunSearch", view)
	default:
		return fmt.Errorf("TUI mode is not supported for %s", view)
	}
}
