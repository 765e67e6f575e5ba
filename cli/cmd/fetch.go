package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/playdl/assemble"
	"github.com/pithecene-io/playdl/cli/tui"
	"github.com/pithecene-io/playdl/resolver"
	"github.com/pithecene-io/playdl/runtime"
)

// FetchCommand returns the fetch command.
func FetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download a package and write it as a single installable file",
		ArgsUsage: "<package>",
		Flags: append(CommonFlags(),
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Destination file or directory (default: ./<package>.apk)",
			},
			&cli.StringFlag{
				Name:  "version",
				Usage: "Expected version name; fails with not found on mismatch",
			},
			SocketFlag,
			TUIFlag,
			&cli.BoolFlag{
				Name:  "keep-artifact",
				Usage: "Copy the written package into the ledger store",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a JSON fetch report to this path (- for stderr)",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
		),
		Action: fetchAction,
	}
}

func fetchAction(c *cli.Context) error {
	pkg := c.Args().First()
	if pkg == "" {
		return cli.Exit("package argument is required", runtime.ExitCodeFatal)
	}

	e, err := newEnv(c, "fetch")
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run := func(ctx context.Context, progress assemble.ProgressFunc) (*runtime.FetchResult, error) {
		orch, err := newFetchOrchestrator(ctx, c, e, pkg, progress)
		if err != nil {
			return nil, err
		}
		return orch.Execute(ctx)
	}

	var result *runtime.FetchResult
	if c.Bool("tui") {
		err = tui.RunFetch(ctx, "Fetching "+pkg, func(ctx context.Context, report func(int64, int64)) (string, error) {
			r, err := run(ctx, report)
			if err != nil {
				return "", err
			}
			result = r
			return fetchSummary(r)
		})
		if result != nil {
			// The outcome carries the exit code; the TUI error only
			// repeats it for display.
			err = nil
		}
	} else {
		result, err = run(ctx, nil)
	}
	if err != nil {
		return exitError(err)
	}

	if path := c.String("report"); path != "" {
		if err := runtime.WriteFetchReport(runtime.BuildFetchReport(result), path); err != nil {
			e.logger.Warn("failed to write report", map[string]any{"error": err.Error()})
		}
	}
	if !c.Bool("quiet") && !c.Bool("tui") {
		printFetchResult(result)
	}

	if result.Outcome.OK() {
		return nil
	}
	return cli.Exit(result.Outcome.Message, result.Outcome.ExitCode)
}

// newFetchOrchestrator wires one fetch from the environment.
func newFetchOrchestrator(ctx context.Context, c *cli.Context, e *env, pkg string, progress assemble.ProgressFunc) (*runtime.FetchOrchestrator, error) {
	provider, err := e.provider(ctx, c.String("socket"))
	if err != nil {
		return nil, err
	}
	catalog, err := e.gplayClient()
	if err != nil {
		return nil, err
	}
	dl, err := e.downloadClient()
	if err != nil {
		return nil, err
	}

	cfg := &runtime.FetchConfig{
		InvocationID: e.invocationID,
		Package:      pkg,
		Version:      c.String("version"),
		Out:          c.String("out"),
		Resolver:     resolver.New(provider, catalog, e.logger),
		Assembler: assemble.New(assemble.Options{
			Fetcher:  &assemble.HTTPFetcher{Client: dl, UserAgent: e.cfg.HTTP.UserAgent},
			Progress: progress,
			Logger:   e.logger,
			Metrics:  e.collector,
		}),
		KeepArtifacts: e.cfg.Ledger.KeepArtifacts || c.Bool("keep-artifact"),
		Collector:     e.collector,
		Logger:        e.logger,
	}

	l, err := e.openLedger(ctx)
	if err != nil {
		return nil, err
	}
	if l != nil {
		cfg.Ledger = l
	}
	a, err := e.openAdapter()
	if err != nil {
		return nil, err
	}
	if a != nil {
		cfg.Adapter = a
	}
	return runtime.NewFetchOrchestrator(cfg)
}

// fetchSummary is the line the progress view ends with.
func fetchSummary(result *runtime.FetchResult) (string, error) {
	if !result.Outcome.OK() {
		return "", fmt.Errorf("%s: %s", result.Outcome.Class, result.Outcome.Message)
	}
	a := result.Assembled
	return fmt.Sprintf("%s (%d bytes, %d fragments)", a.Path, a.Size, a.Fragments), nil
}

func printFetchResult(result *runtime.FetchResult) {
	fmt.Printf("invocation_id=%s, package=%s, outcome=%s, duration=%s\n",
		result.InvocationID,
		result.Package,
		result.Outcome.Status,
		result.Duration.Round(time.Millisecond),
	)
	if a := result.Assembled; a != nil {
		fmt.Printf("\n=== Package ===\n")
		fmt.Printf("Path:         %s\n", a.Path)
		if result.App != nil {
			fmt.Printf("Version:      %s\n", result.App.Version)
		}
		fmt.Printf("Size:         %d\n", a.Size)
		fmt.Printf("SHA-256:      %s\n", a.SHA256)
		fmt.Printf("Fragments:    %d\n", a.Fragments)
		fmt.Printf("Merged:       %v\n", a.Merged)
		if result.ArtifactKey != "" {
			fmt.Printf("Artifact key: %s\n", result.ArtifactKey)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Error:        %s\n", result.Outcome.Message)
}
