package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/playdl/authflow"
	"github.com/pithecene-io/playdl/broker"
	"github.com/pithecene-io/playdl/cli/render"
	"github.com/pithecene-io/playdl/types"
)

// credentialService is the broker surface login needs. Both the in-process
// broker and the socket client provide it.
type credentialService interface {
	Login(ctx context.Context) error
	RetrieveCredential(ctx context.Context) (*types.Credential, error)
}

// LoginResponse is the output of login and logout.
type LoginResponse struct {
	Status     string                    `json:"status"`
	Credential *types.RedactedCredential `json:"credential,omitempty"`
}

// LoginCommand returns the login command.
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in and store a long-lived credential",
		Description: "Runs the login helper configured under login.helper, or a running broker's login.\n" +
			"With --cookie and --email the captured cookie is exchanged without a helper.",
		Flags: append(CommonFlags(),
			FormatFlag,
			SocketFlag,
			&cli.StringFlag{
				Name:    "cookie",
				Usage:   "OAuth cookie value copied from a browser session",
				EnvVars: []string{"PLAYDL_OAUTH_COOKIE"},
			},
			&cli.StringFlag{
				Name:  "email",
				Usage: "Account email matching --cookie",
			},
		),
		Action: loginAction,
	}
}

func loginAction(c *cli.Context) error {
	cookie, email := c.String("cookie"), c.String("email")
	if (cookie == "") != (email == "") {
		return cli.Exit("--cookie and --email must be given together", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	e, err := newEnv(c, "login")
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := loginService(ctx, e, c.String("socket"), cookie, email)
	if err != nil {
		return exitError(err)
	}
	if err := svc.Login(ctx); err != nil {
		return exitError(err)
	}
	cred, err := svc.RetrieveCredential(ctx)
	if err != nil {
		return exitError(err)
	}
	if cred == nil {
		return exitError(broker.ErrNoCredential)
	}

	redacted := cred.Redacted()
	return r.Render(LoginResponse{Status: "logged_in", Credential: &redacted})
}

// loginService picks where the login runs: in process for a manual
// cookie, else on a listening broker, else in process with the helper.
func loginService(ctx context.Context, e *env, socket, cookie, email string) (credentialService, error) {
	if cookie != "" {
		return e.localBroker(authflow.NewManualSource(email, cookie))
	}
	if socket == "" {
		socket = e.cfg.Broker.Socket
	}
	if _, err := os.Stat(socket); err == nil {
		client, err := broker.Dial(ctx, socket, e.cfg.Broker.ConnectTimeout.Duration, e.collector)
		if err == nil {
			e.closers.Add(client)
			return client, nil
		}
		return nil, err
	}
	return e.localBroker(nil)
}

// LogoutCommand returns the logout command.
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Remove the stored credential",
		Flags:  append(CommonFlags(), FormatFlag),
		Action: logoutAction,
	}
}

func logoutAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	e, err := newEnv(c, "logout")
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	store, err := e.credentialStore()
	if err != nil {
		return exitError(err)
	}
	if err := store.Clear(c.Context); err != nil {
		return exitError(err)
	}
	e.logger.Info("credential cleared", nil)
	return r.Render(LoginResponse{Status: "logged_out"})
}
