package tui

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

// ProgressMsg reports download progress in bytes.
type ProgressMsg struct {
	Downloaded int64
	Total      int64
}

// DoneMsg ends the fetch view.
type DoneMsg struct {
	Summary string
	Err     error
}

// FetchModel is a Bubble Tea model for a running fetch.
type FetchModel struct {
	title      string
	bar        progress.Model
	downloaded int64
	total      int64
	cancel     context.CancelFunc
	canceling  bool
	done       bool
	summary    string
	err        error
}

// NewFetchModel creates a fetch model. cancel is invoked when the user quits.
func NewFetchModel(title string, cancel context.CancelFunc) FetchModel {
	return FetchModel{
		title:  title,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		cancel: cancel,
	}
}

// Init implements tea.Model.
func (m FetchModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m FetchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-4, 10), 60)
		return m, nil

	case ProgressMsg:
		// The signal is monotonic; ignore stale reports.
		if msg.Downloaded >= m.downloaded {
			m.downloaded = msg.Downloaded
		}
		m.total = msg.Total
		return m, nil

	case DoneMsg:
		m.done = true
		m.summary = msg.Summary
		m.err = msg.Err
		return m, tea.Quit

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) && !m.canceling {
			m.canceling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
	}
	return m, nil
}

// Percent returns the completed fraction in [0, 1].
func (m FetchModel) Percent() float64 {
	if m.total <= 0 {
		return 0
	}
	return min(float64(m.downloaded)/float64(m.total), 1)
}

// View implements tea.Model.
func (m FetchModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.title))
	b.WriteString("\n")

	switch {
	case m.done && m.err != nil:
		b.WriteString(ErrorStyle.Render("failed: " + m.err.Error()))
	case m.done:
		b.WriteString(SuccessStyle.Render(m.summary))
	default:
		b.WriteString(m.bar.ViewAs(m.Percent()))
		b.WriteString("  ")
		b.WriteString(LabelStyle.Render(fmt.Sprintf("%s / %s", HumanBytes(m.downloaded), HumanBytes(m.total))))
		if m.canceling {
			b.WriteString("\n" + WarningStyle.Render("canceling..."))
		}
	}

	if !m.done {
		b.WriteString("\n" + HelpStyle.Render("Press q or Ctrl+C to cancel"))
	}
	return b.String() + "\n"
}

// RunFetch runs work while rendering its progress. The view draws on
// stderr so stdout stays free for the result. Quitting cancels work's
// context; RunFetch returns work's error.
func RunFetch(ctx context.Context, title string, work func(ctx context.Context, report func(downloaded, total int64)) (string, error)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewFetchModel(title, cancel), tea.WithOutput(os.Stderr))

	result := make(chan error, 1)
	go func() {
		summary, err := work(ctx, func(downloaded, total int64) {
			p.Send(ProgressMsg{Downloaded: downloaded, Total: total})
		})
		p.Send(DoneMsg{Summary: summary, Err: err})
		result <- err
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-result
		return fmt.Errorf("tui: %w", err)
	}
	return <-result
}

// HumanBytes formats n with binary units.
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
