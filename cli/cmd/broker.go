package cmd

import (
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/playdl/broker"
)

// BrokerCommand returns the broker command group.
func BrokerCommand() *cli.Command {
	return &cli.Command{
		Name:  "broker",
		Usage: "Credential broker shared by concurrent fetches",
		Subcommands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve credentials on a unix socket until interrupted",
				Flags:  append(CommonFlags(), SocketFlag),
				Action: brokerServeAction,
			},
		},
	}
}

func brokerServeAction(c *cli.Context) error {
	e, err := newEnv(c, "broker")
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	socket := c.String("socket")
	if socket == "" {
		socket = e.cfg.Broker.Socket
	}

	b, err := e.localBroker(nil)
	if err != nil {
		return exitError(err)
	}
	ln, err := broker.Listen(socket)
	if err != nil {
		return exitError(err)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := broker.NewServer(b, e.logger, e.collector)
	if err := srv.Serve(ctx, ln); err != nil {
		return exitError(err)
	}

	snap := e.collector.Snapshot()
	e.logger.Info("broker stopped", map[string]any{
		"requests": snap.BrokerRequests,
		"logins":   b.Logins(),
	})
	return nil
}
