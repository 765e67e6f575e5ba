// Package cmd provides CLI commands for the playdl binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags.
var (
	// ConfigFlag points at a playdl.yaml file. When unset, ./playdl.yaml is
	// used if present.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to playdl.yaml config file",
		EnvVars: []string{"PLAYDL_CONFIG"},
	}

	// DebugFlag enables debug logging on stderr.
	DebugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}

	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for fetch and history.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (fetch, history only)",
	}

	// SocketFlag overrides broker.socket from the config.
	SocketFlag = &cli.StringFlag{
		Name:  "socket",
		Usage: "Credential broker socket path",
	}
)

// CommonFlags returns the flags every command that loads config accepts.
func CommonFlags() []cli.Flag {
	return []cli.Flag{ConfigFlag, DebugFlag}
}

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return append(CommonFlags(), FormatFlag, TUIFlag)
}
