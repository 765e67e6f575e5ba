package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

const maxColumnWidth = 40

// TableModel is a read-only scrollable table.
type TableModel struct {
	title    string
	table    table.Model
	quitting bool
}

// NewTableModel creates a table model sized to its content.
func NewTableModel(t Table) TableModel {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	cols := make([]table.Column, len(t.Headers))
	for i, h := range t.Headers {
		cols[i] = table.Column{Title: h, Width: min(widths[i], maxColumnWidth)}
	}
	rows := make([]table.Row, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = table.Row(r)
	}

	return TableModel{
		title: t.Title,
		table: table.New(
			table.WithColumns(cols),
			table.WithRows(rows),
			table.WithFocused(true),
			table.WithHeight(min(len(rows)+1, 20)),
		),
	}
}

// Init implements tea.Model.
func (m TableModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m TableModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m TableModel) View() string {
	if m.quitting {
		return ""
	}
	return TitleStyle.Render(m.title) + "\n" +
		BoxStyle.Render(m.table.View()) + "\n" +
		HelpStyle.Render("↑/↓ to scroll, q to quit")
}

// RunTable runs the table TUI.
func RunTable(t Table) error {
	p := tea.NewProgram(NewTableModel(t), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
