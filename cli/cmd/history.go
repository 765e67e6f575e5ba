package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/playdl/cli/render"
	"github.com/pithecene-io/playdl/cli/tui"
	"github.com/pithecene-io/playdl/ledger"
)

// HistoryEntry is one ledger record flattened for table output.
type HistoryEntry struct {
	Ts         time.Time `json:"ts"`
	Package    string    `json:"package"`
	Version    string    `json:"version"`
	Outcome    string    `json:"outcome"`
	ErrorClass string    `json:"error_class"`
	Fragments  int       `json:"fragments"`
	Merged     bool      `json:"merged"`
	Size       int64     `json:"size" render:"bytes"`
	DurationMS int64     `json:"duration_ms" render:"ms"`
}

// HistoryCommand returns the history command.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded fetches, newest first",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:    "package",
				Aliases: []string{"p"},
				Usage:   "Only show this package",
			},
			&cli.StringFlag{
				Name:  "outcome",
				Usage: "Only show this outcome: completed, not_found, failed",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of records (0 for all)",
				Value: 50,
			},
		),
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	outcome := ledger.Outcome(c.String("outcome"))
	switch outcome {
	case "", ledger.OutcomeCompleted, ledger.OutcomeNotFound, ledger.OutcomeFailed:
	default:
		return cli.Exit("--outcome must be completed, not_found or failed", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	e, err := newEnv(c, "history")
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	l, err := e.openLedger(c.Context)
	if err != nil {
		return exitError(err)
	}
	if l == nil {
		return cli.Exit("the fetch ledger is disabled (ledger.disabled)", 1)
	}

	records, err := l.History(c.Context, ledger.Query{
		Package: c.String("package"),
		Outcome: outcome,
		Limit:   c.Int("limit"),
	})
	if err != nil {
		return exitError(err)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewHistory, "Fetch history", historyEntries(records))
	}
	if r.Format() == render.FormatTable {
		return r.Render(historyEntries(records))
	}
	return r.Render(records)
}

func historyEntries(records []ledger.Record) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, HistoryEntry{
			Ts:         rec.Ts,
			Package:    rec.Package,
			Version:    rec.Version,
			Outcome:    string(rec.Outcome),
			ErrorClass: rec.ErrorClass,
			Fragments:  rec.Fragments,
			Merged:     rec.Merged,
			Size:       rec.Size,
			DurationMS: rec.DurationMS,
		})
	}
	return entries
}
