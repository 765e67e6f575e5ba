package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
)

// View types.
const (
	ViewFetch   = "fetch"
	ViewHistory = "history"
)

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	for _, v := range SupportedTUIViews() {
		if v == viewType {
			return true
		}
	}
	return false
}

// SupportedTUIViews returns the view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewFetch, ViewHistory}
}

// Table is tabular data for the read-only table view.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Run starts the read-only TUI for a view type.
// The fetch view is interactive and started with RunFetch instead.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	switch viewType {
	case ViewHistory:
		t, ok := data.(Table)
		if !ok {
			return fmt.Errorf("history view expects a tui.Table, got %T", data)
		}
		return RunTable(t)
	default:
		return fmt.Errorf("%s view cannot be rendered from static data", viewType)
	}
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
