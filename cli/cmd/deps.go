package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"golang.org/x/text/language"

	"github.com/pithecene-io/playdl/adapter"
	redisadapter "github.com/pithecene-io/playdl/adapter/redis"
	"github.com/pithecene-io/playdl/adapter/webhook"
	"github.com/pithecene-io/playdl/authflow"
	"github.com/pithecene-io/playdl/broker"
	"github.com/pithecene-io/playdl/cli/config"
	"github.com/pithecene-io/playdl/credstore"
	credredis "github.com/pithecene-io/playdl/credstore/redis"
	"github.com/pithecene-io/playdl/device"
	"github.com/pithecene-io/playdl/gplay"
	"github.com/pithecene-io/playdl/iox"
	"github.com/pithecene-io/playdl/ledger"
	"github.com/pithecene-io/playdl/log"
	"github.com/pithecene-io/playdl/metrics"
	"github.com/pithecene-io/playdl/proxy"
	"github.com/pithecene-io/playdl/runtime"
)

// env holds the per-invocation wiring shared by commands. Handles opened
// through env are released by Close.
type env struct {
	cfg          *config.Config
	invocationID string
	logger       *log.Logger
	collector    *metrics.Collector

	closers iox.Closers

	httpClient *http.Client
	store      credstore.Store
	catalog    *gplay.Client
}

// newEnv loads the config and creates the logger and metrics collector.
func newEnv(c *cli.Context, component string) (*env, error) {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), runtime.ExitCodeFatal)
	}

	id := uuid.NewString()
	lctx := log.Context{Component: component, InvocationID: id}
	logger := log.NewLogger(lctx)
	if c.Bool("debug") {
		logger = log.NewDebugLogger(lctx)
	}

	return &env{
		cfg:          cfg,
		invocationID: id,
		logger:       logger,
		collector:    metrics.NewCollector(credentialBackend(cfg), storageBackend(cfg), id),
	}, nil
}

// Close releases every handle opened through e.
func (e *env) Close() error {
	err := e.closers.Close()
	_ = e.logger.Sync()
	return err
}

func credentialBackend(cfg *config.Config) string {
	if cfg.Credentials.Backend == "" {
		return "file"
	}
	return cfg.Credentials.Backend
}

func storageBackend(cfg *config.Config) string {
	switch {
	case cfg.Ledger.Disabled:
		return "none"
	case cfg.Ledger.Backend == "":
		return "fs"
	default:
		return cfg.Ledger.Backend
	}
}

// credentialStore opens the configured credential store.
func (e *env) credentialStore() (credstore.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	cc := e.cfg.Credentials
	switch credentialBackend(e.cfg) {
	case "redis":
		s, err := credredis.New(credredis.Config{URL: cc.RedisURL, Namespace: cc.Namespace})
		if err != nil {
			return nil, err
		}
		e.closers.Add(s)
		e.store = s
	default:
		s, err := credstore.NewFileStore(cc.Dir, cc.Namespace)
		if err != nil {
			return nil, err
		}
		e.store = s
	}
	return e.store, nil
}

// deviceSource returns the configured device description, or the built-in
// reference device.
func (e *env) deviceSource() device.Source {
	if e.cfg.Device.Profile != "" {
		return device.NewFileSource(e.cfg.Device.Profile)
	}
	return device.Reference()
}

// outbound returns the outbound client shared by the service client, fragment
// downloads and the webhook adapter. A configured proxy pool is applied
// through the transport.
func (e *env) outbound() (*http.Client, error) {
	if e.httpClient != nil {
		return e.httpClient, nil
	}
	client := &http.Client{Timeout: gplay.DefaultTimeout}
	if t := e.cfg.HTTP.Timeout.Duration; t > 0 {
		client.Timeout = t
	}

	if pool := e.cfg.Proxy.Pool; pool != "" {
		selector := proxy.NewSelector(e.logger)
		for _, p := range e.cfg.ProxyPools() {
			if err := selector.RegisterPool(&p); err != nil {
				return nil, fmt.Errorf("proxy pool %q: %w", p.Name, err)
			}
		}
		tr, err := selector.Transport(pool)
		if err != nil {
			return nil, err
		}
		client.Transport = tr
	}
	e.httpClient = client
	return client, nil
}

// downloadClient is the fragment download client. Downloads are bounded by
// the caller's context, not by a whole-request timeout.
func (e *env) downloadClient() (*http.Client, error) {
	hc, err := e.outbound()
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: hc.Transport}, nil
}

// gplayClient returns the remote service client.
func (e *env) gplayClient() (*gplay.Client, error) {
	if e.catalog != nil {
		return e.catalog, nil
	}
	hc, err := e.outbound()
	if err != nil {
		return nil, err
	}
	opts := []gplay.Option{gplay.WithHTTPClient(hc), gplay.WithLogger(e.logger)}
	if loc := e.cfg.Login.Locale; loc != "" {
		tag, err := language.Parse(loc)
		if err != nil {
			return nil, fmt.Errorf("login.locale %q: %w", loc, err)
		}
		opts = append(opts, gplay.WithLocale(tag))
	}
	e.catalog = gplay.NewClient(opts...)
	return e.catalog, nil
}

// loginFunc runs one login through manual, or through the configured
// helper process when manual is nil.
func (e *env) loginFunc(manual authflow.Source) (broker.LoginFunc, error) {
	store, err := e.credentialStore()
	if err != nil {
		return nil, err
	}
	catalog, err := e.gplayClient()
	if err != nil {
		return nil, err
	}
	src := e.deviceSource()
	lc := e.cfg.Login

	return func(ctx context.Context) authflow.Outcome {
		flow := authflow.New(authflow.Config{
			Exchanger: catalog,
			Validator: catalog,
			Store:     store,
			Device:    src,
			Logger:    e.logger,
			Metrics:   e.collector,
		})
		source := manual
		if source == nil {
			if lc.Helper == "" {
				return authflow.Outcome{Code: authflow.ResultFailed, Err: errors.New("no login helper configured (login.helper)")}
			}
			hs, err := authflow.LaunchHelper(ctx, authflow.HelperConfig{
				Path:   lc.Helper,
				Args:   lc.HelperArgs,
				Logger: e.logger,
			})
			if err != nil {
				return authflow.Outcome{Code: authflow.ResultFailed, Err: err}
			}
			defer iox.DiscardClose(hs)
			source = hs
		}
		return flow.Run(ctx, source)
	}, nil
}

// localBroker creates an in-process broker.
func (e *env) localBroker(manual authflow.Source) (*broker.Broker, error) {
	store, err := e.credentialStore()
	if err != nil {
		return nil, err
	}
	login, err := e.loginFunc(manual)
	if err != nil {
		return nil, err
	}
	return broker.New(broker.Config{
		Store:        store,
		Device:       e.deviceSource(),
		Login:        login,
		Reauth:       manual != nil,
		LoginTimeout: e.cfg.Login.Timeout.Duration,
		Logger:       e.logger,
		Metrics:      e.collector,
	}), nil
}

// provider connects to the broker at socket when one is listening there,
// and falls back to an in-process broker otherwise. A connection timeout
// is not retried or masked.
func (e *env) provider(ctx context.Context, socket string) (broker.Provider, error) {
	if socket == "" {
		socket = e.cfg.Broker.Socket
	}
	if _, err := os.Stat(socket); err == nil {
		client, err := broker.Dial(ctx, socket, e.cfg.Broker.ConnectTimeout.Duration, e.collector)
		switch {
		case err == nil:
			e.closers.Add(client)
			e.logger.Debug("using broker", map[string]any{"socket": socket})
			return client, nil
		case errors.Is(err, broker.ErrConnectTimeout):
			return nil, err
		default:
			e.logger.Warn("broker unreachable, using in-process broker", map[string]any{
				"socket": socket,
				"error":  err.Error(),
			})
		}
	}
	return e.localBroker(nil)
}

// openLedger opens the configured fetch ledger, or returns nil when disabled.
func (e *env) openLedger(ctx context.Context) (*ledger.Ledger, error) {
	lc := e.cfg.Ledger
	switch storageBackend(e.cfg) {
	case "none":
		return nil, nil
	case "s3":
		bucket, prefix := ledger.ParseS3Path(lc.Path)
		return ledger.NewS3(ctx, lc.Dataset, ledger.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       lc.Region,
			Endpoint:     lc.Endpoint,
			UsePathStyle: lc.S3PathStyle,
		})
	default:
		return ledger.NewFS(lc.Dataset, lc.Path)
	}
}

// openAdapter creates the configured completion adapter, or returns nil.
func (e *env) openAdapter() (adapter.Adapter, error) {
	ac := e.cfg.Adapter
	if ac.Type == "" {
		return nil, nil
	}

	var a adapter.Adapter
	switch ac.Type {
	case "webhook":
		retries := webhook.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		hc, err := e.outbound()
		if err != nil {
			return nil, err
		}
		wa, err := webhook.New(webhook.Config{
			URL:       ac.URL,
			Headers:   ac.Headers,
			Secret:    ac.Secret,
			Timeout:   ac.Timeout.Duration,
			Retries:   retries,
			Transport: hc.Transport,
		})
		if err != nil {
			return nil, err
		}
		a = wa
	case "redis":
		retries := redisadapter.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		ra, err := redisadapter.New(redisadapter.Config{
			URL:       ac.URL,
			Channel:   ac.Channel,
			LatestKey: ac.LatestKey,
			Timeout:   ac.Timeout.Duration,
			Retries:   retries,
		})
		if err != nil {
			return nil, err
		}
		a = ra
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.Type)
	}
	e.closers.Add(a)
	return a, nil
}

// exitError converts err into a cli exit error with the fetch surface's
// exit code.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return err
	}
	return cli.Exit(err.Error(), runtime.DetermineOutcome(err).ExitCode)
}
