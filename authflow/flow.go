// Package authflow implements interactive login: capture the OAuth cookie
// from an embedded browser session, exchange it for a long-lived token,
// validate the resulting credential and persist it.
//
// The browser is an external collaborator that pushes page-load events
// through a Source. Flow reacts to them on a single goroutine and reports
// exactly one Outcome.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/pithecene-io/playdl/credstore"
	"github.com/pithecene-io/playdl/device"
	"github.com/pithecene-io/playdl/log"
	"github.com/pithecene-io/playdl/metrics"
	"github.com/pithecene-io/playdl/types"
)

// Login page and capture constants.
const (
	SetupURL   = "https://accounts.google.com/EmbeddedSetup"
	CookieName = "oauth_token"
	// IdentityScript returns the signed-in account shown on the page.
	IdentityScript = "(function() { return document.querySelector('[data-profile-identifier]').innerText; })();"
)

var (
	// ErrNoToken is returned when the exchange response lacks a Token.
	ErrNoToken = errors.New("no token returned")
	// ErrValidation is returned when the service rejects the new credential.
	ErrValidation = errors.New("credential validation failed")
)

// State is the flow's position in the login sequence.
type State int

// States in order.
const (
	StateWaiting State = iota
	StateCookieFound
	StateExchanging
	StateValidating
	StateDone
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateCookieFound:
		return "cookie_found"
	case StateExchanging:
		return "exchanging"
	case StateValidating:
		return "validating"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ResultCode is the terminal signal of a flow.
type ResultCode int

// Result codes.
const (
	ResultOK ResultCode = iota
	ResultFailed
	ResultCanceled
)

func (c ResultCode) String() string {
	switch c {
	case ResultOK:
		return "ok"
	case ResultFailed:
		return "failed"
	case ResultCanceled:
		return "canceled"
	}
	return fmt.Sprintf("result(%d)", int(c))
}

// Outcome is the single terminal result of a flow.
type Outcome struct {
	Code ResultCode
	// Credential is set for ResultOK.
	Credential *types.Credential
	// Err carries the failure for ResultFailed, and the cause for
	// ResultCanceled when known.
	Err error
}

// Message returns the failure message, or "".
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Exchanger trades the captured cookie for the long-lived token response.
type Exchanger interface {
	ExchangeToken(ctx context.Context, email, oauthToken string) (map[string]string, error)
}

// Validator checks a session against the service.
type Validator interface {
	Validate(ctx context.Context, s types.Session) error
}

// Config wires a Flow.
type Config struct {
	Exchanger Exchanger
	Validator Validator
	Store     credstore.Store
	Device    device.Source
	Logger    *log.Logger
	Metrics   *metrics.Collector
}

// Flow is one login attempt. A Flow is single use.
type Flow struct {
	cfg    Config
	logger *log.Logger

	mu      sync.Mutex
	state   State
	outcome Outcome

	done chan struct{}
	once sync.Once
}

// New creates a flow in StateWaiting.
func New(cfg Config) *Flow {
	return &Flow{
		cfg:    cfg,
		logger: log.OrNop(cfg.Logger).Named("authflow"),
		done:   make(chan struct{}),
	}
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	f.logger.Debug("login state", map[string]any{"state": s.String()})
}

// Done is closed once the outcome is available.
func (f *Flow) Done() <-chan struct{} { return f.done }

// Outcome returns the terminal outcome. Only valid after Done is closed.
func (f *Flow) Outcome() Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcome
}

// Wait blocks until the flow finishes or ctx ends.
func (f *Flow) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-f.done:
		return f.Outcome(), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// finish records the outcome once. Later calls are ignored.
func (f *Flow) finish(o Outcome) {
	f.once.Do(func() {
		f.mu.Lock()
		f.state = StateDone
		f.outcome = o
		f.mu.Unlock()

		switch o.Code {
		case ResultOK:
			f.cfg.Metrics.IncLoginSucceeded()
			f.logger.Info("login succeeded", map[string]any{"email": o.Credential.Email})
		case ResultFailed:
			f.cfg.Metrics.IncLoginFailed()
			f.logger.Error("login failed", map[string]any{"error": o.Message()})
		case ResultCanceled:
			f.cfg.Metrics.IncLoginCanceled()
			f.logger.Info("login canceled", map[string]any{"reason": o.Message()})
		}
		close(f.done)
	})
}

// Run consumes page events from src until the flow finishes, the source
// closes or ctx ends, and returns the outcome. A source closed before a
// cookie was captured, and a canceled ctx, yield ResultCanceled.
func (f *Flow) Run(ctx context.Context, src Source) Outcome {
	f.cfg.Metrics.IncLoginStarted()
	f.logger.Info("login started", nil)

	for {
		select {
		case <-f.done:
			return f.Outcome()
		default:
		}

		ev, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				f.finish(Outcome{Code: ResultCanceled, Err: ctx.Err()})
			} else if errors.Is(err, ErrSourceClosed) {
				f.finish(Outcome{Code: ResultCanceled, Err: err})
			} else {
				f.finish(Outcome{Code: ResultFailed, Err: fmt.Errorf("login surface: %w", err)})
			}
			return f.Outcome()
		}
		f.OnPageFinished(ctx, ev)
	}
}

// OnPageFinished advances the state machine with one page-load event.
// Events without the OAuth cookie, or with an empty identity, leave the
// flow waiting for the next page load.
func (f *Flow) OnPageFinished(ctx context.Context, ev Event) {
	if f.State() != StateWaiting {
		return
	}
	cookie, ok := oauthCookie(ev.Cookies)
	if !ok {
		return
	}
	email := cleanIdentity(ev.Identity)
	if email == "" {
		f.logger.Debug("cookie found without identity, waiting", map[string]any{"url": ev.URL})
		return
	}
	f.setState(StateCookieFound)

	cred, err := f.exchange(ctx, email, cookie)
	if err == nil {
		err = f.validate(ctx, cred)
	}
	if err != nil {
		if ctx.Err() != nil {
			f.finish(Outcome{Code: ResultCanceled, Err: ctx.Err()})
		} else {
			f.finish(Outcome{Code: ResultFailed, Err: err})
		}
		return
	}

	if err := f.cfg.Store.Write(ctx, cred); err != nil {
		f.finish(Outcome{Code: ResultFailed, Err: fmt.Errorf("store credential: %w", err)})
		return
	}
	f.finish(Outcome{Code: ResultOK, Credential: &cred})
}

func (f *Flow) exchange(ctx context.Context, email, cookie string) (types.Credential, error) {
	f.setState(StateExchanging)
	kv, err := f.cfg.Exchanger.ExchangeToken(ctx, email, cookie)
	if err != nil {
		return types.Credential{}, fmt.Errorf("token exchange: %w", err)
	}
	token := kv["Token"]
	if token == "" {
		return types.Credential{}, ErrNoToken
	}
	return types.Credential{Email: email, Token: token}, nil
}

func (f *Flow) validate(ctx context.Context, cred types.Credential) error {
	f.setState(StateValidating)
	profile, err := device.Build(ctx, f.cfg.Device)
	if err != nil {
		return fmt.Errorf("build device profile: %w", err)
	}
	session, err := types.NewSession(cred, profile)
	if err != nil {
		return err
	}
	if err := f.cfg.Validator.Validate(ctx, session); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

// oauthCookie extracts the OAuth cookie from a Cookie header value.
func oauthCookie(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	cookies, err := http.ParseCookie(header)
	if err != nil {
		// Tolerate malformed neighbours; fall back to a lenient split.
		for part := range strings.SplitSeq(header, ";") {
			name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
			if ok && name == CookieName && value != "" {
				return value, true
			}
		}
		return "", false
	}
	for _, c := range cookies {
		if c.Name == CookieName && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}

// cleanIdentity strips the quotes a script result carries.
func cleanIdentity(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
}
