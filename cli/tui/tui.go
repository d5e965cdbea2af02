// Package tui provides the Bubble Tea stats view for "radiusd stats
// --tui": a live poll of the admin socket rendered as idle/active/exited
// worker counts, queue depth, input/output PPS, and the blocked-request
// counter.
package tui

import "fmt"

// statsView is the only TUI-supported view; kept as a named constant
// rather than a bare string so IsTUISupported/SupportedTUIViews agree on the name.
const statsView = "stats"

// Run starts the stats TUI, polling fetch on an interval until the user
// quits.
func Run(viewType string, fetch func() (Snapshot, error)) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	return RunStatsTUI(fetch)
}

// IsTUISupported reports whether viewType supports TUI mode. Only the
// stats view does; admin commands that mutate state (hup) are never
// offered a TUI per the CLI's opt-in, read-only TUI rule.
func IsTUISupported(viewType string) bool {
	return viewType == statsView
}

// SupportedTUIViews returns the view types that support TUI mode.
func SupportedTUIViews() []string {
	return []string{statsView}
}
