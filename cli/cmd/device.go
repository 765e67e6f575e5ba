package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/playdl/cli/render"
	"github.com/pithecene-io/playdl/device"
	"github.com/pithecene-io/playdl/types"
)

// DeviceCommand returns the device command.
// It prints the profile the broker would pair with a credential.
func DeviceCommand() *cli.Command {
	return &cli.Command{
		Name:   "device",
		Usage:  "Show the device profile sent to the service",
		Flags:  ReadOnlyFlags(),
		Action: deviceAction,
	}
}

func deviceAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for device command", 1)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	e, err := newEnv(c, "device")
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	profile, err := device.Build(c.Context, e.deviceSource())
	if err != nil {
		return exitError(err)
	}
	return r.Render(deviceView(r, profile))
}

// deviceView keeps key order for table output and the structured profile
// for json and yaml.
func deviceView(r *render.Renderer, p *types.DeviceProfile) any {
	if r.Format() == render.FormatTable {
		return p.Properties
	}
	return p
}
