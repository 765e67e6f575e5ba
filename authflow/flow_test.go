package authflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/playdl/credstore"
	"github.com/pithecene-io/playdl/device"
	"github.com/pithecene-io/playdl/types"
)

type fakeExchanger struct {
	mu     sync.Mutex
	kv     map[string]string
	err    error
	block  bool
	calls  int
	email  string
	cookie string
}

func (f *fakeExchanger) ExchangeToken(ctx context.Context, email, cookie string) (map[string]string, error) {
	f.mu.Lock()
	f.calls++
	f.email, f.cookie = email, cookie
	block := f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.kv, f.err
}

type fakeValidator struct {
	err     error
	session types.Session
}

func (v *fakeValidator) Validate(_ context.Context, s types.Session) error {
	v.session = s
	return v.err
}

func newFlow(ex *fakeExchanger, v *fakeValidator, store *credstore.MemoryStore) *Flow {
	return New(Config{
		Exchanger: ex,
		Validator: v,
		Store:     store,
		Device:    device.Reference(),
	})
}

func TestFlow_Success(t *testing.T) {
	ex := &fakeExchanger{kv: map[string]string{"Auth": "abc", "Token": "aas_et/xyz123"}}
	v := &fakeValidator{}
	store := credstore.NewMemoryStore(nil)
	f := newFlow(ex, v, store)

	src := NewStaticSource(
		Event{URL: SetupURL, Cookies: "NID=1"},
		Event{URL: SetupURL + "#2", Cookies: "NID=1; oauth_token=oauth2_4/cookie", Identity: ""},
		Event{URL: SetupURL + "#3", Cookies: "NID=1; oauth_token=oauth2_4/cookie", Identity: `"user@example.com"`},
	)

	out := f.Run(t.Context(), src)
	if out.Code != ResultOK {
		t.Fatalf("outcome = %v (%v)", out.Code, out.Err)
	}
	if out.Credential == nil || out.Credential.Email != "user@example.com" || out.Credential.Token != "aas_et/xyz123" {
		t.Errorf("credential = %+v", out.Credential)
	}
	if ex.calls != 1 || ex.email != "user@example.com" || ex.cookie != "oauth2_4/cookie" {
		t.Errorf("exchange calls=%d email=%q cookie=%q", ex.calls, ex.email, ex.cookie)
	}
	if v.session.Profile == nil || v.session.Profile.Len() == 0 {
		t.Error("validation session has no device profile")
	}
	stored, _ := store.Read(t.Context())
	if stored == nil || *stored != *out.Credential {
		t.Errorf("stored = %+v", stored)
	}
	if f.State() != StateDone {
		t.Errorf("state = %v", f.State())
	}
	select {
	case <-f.Done():
	default:
		t.Error("Done not closed")
	}
}

func TestFlow_NoToken(t *testing.T) {
	ex := &fakeExchanger{kv: map[string]string{"Auth": "abc"}}
	store := credstore.NewMemoryStore(nil)
	f := newFlow(ex, &fakeValidator{}, store)

	out := f.Run(t.Context(), NewManualSource("user@example.com", "cookie"))
	if out.Code != ResultFailed || !errors.Is(out.Err, ErrNoToken) {
		t.Fatalf("outcome = %v (%v), want failed with ErrNoToken", out.Code, out.Err)
	}
	if out.Message() != "no token returned" {
		t.Errorf("message = %q", out.Message())
	}
	if store.Writes() != 0 {
		t.Error("credential persisted without a token")
	}
}

func TestFlow_ValidationFailureNotPersisted(t *testing.T) {
	ex := &fakeExchanger{kv: map[string]string{"Token": "t"}}
	store := credstore.NewMemoryStore(nil)
	f := newFlow(ex, &fakeValidator{err: errors.New("401")}, store)

	out := f.Run(t.Context(), NewManualSource("user@example.com", "cookie"))
	if out.Code != ResultFailed || !errors.Is(out.Err, ErrValidation) {
		t.Fatalf("outcome = %v (%v), want failed with ErrValidation", out.Code, out.Err)
	}
	if store.Writes() != 0 {
		t.Error("unvalidated credential persisted")
	}
}

func TestFlow_ExchangeError(t *testing.T) {
	ex := &fakeExchanger{err: errors.New("BadAuthentication")}
	f := newFlow(ex, &fakeValidator{}, credstore.NewMemoryStore(nil))

	out := f.Run(t.Context(), NewManualSource("user@example.com", "cookie"))
	if out.Code != ResultFailed || out.Message() != "token exchange: BadAuthentication" {
		t.Fatalf("outcome = %v (%q)", out.Code, out.Message())
	}
}

func TestFlow_SourceClosedIsCanceled(t *testing.T) {
	ex := &fakeExchanger{}
	store := credstore.NewMemoryStore(nil)
	f := newFlow(ex, &fakeValidator{}, store)

	out := f.Run(t.Context(), NewStaticSource(Event{URL: SetupURL, Cookies: "NID=1"}))
	if out.Code != ResultCanceled {
		t.Fatalf("outcome = %v, want canceled", out.Code)
	}
	if ex.calls != 0 || store.Writes() != 0 {
		t.Errorf("exchange calls=%d writes=%d", ex.calls, store.Writes())
	}
}

func TestFlow_ContextCanceledDuringExchange(t *testing.T) {
	ex := &fakeExchanger{block: true}
	store := credstore.NewMemoryStore(nil)
	f := newFlow(ex, &fakeValidator{}, store)

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		for {
			ex.mu.Lock()
			called := ex.calls > 0
			ex.mu.Unlock()
			if called {
				cancel()
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	out := f.Run(ctx, NewManualSource("user@example.com", "cookie"))
	if out.Code != ResultCanceled {
		t.Fatalf("outcome = %v (%v), want canceled", out.Code, out.Err)
	}
	if store.Writes() != 0 {
		t.Error("credential persisted after cancel")
	}
}

func TestFlow_WaitFromOtherGoroutine(t *testing.T) {
	ex := &fakeExchanger{kv: map[string]string{"Token": "t"}}
	f := newFlow(ex, &fakeValidator{}, credstore.NewMemoryStore(nil))

	go f.Run(context.Background(), NewManualSource("user@example.com", "cookie"))

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	out, err := f.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if out.Code != ResultOK {
		t.Errorf("outcome = %v", out.Code)
	}

	// events after completion are ignored
	f.OnPageFinished(t.Context(), Event{Cookies: "oauth_token=other", Identity: "other@example.com"})
	if ex.calls != 1 {
		t.Errorf("exchange calls = %d, want 1", ex.calls)
	}
}

func TestOAuthCookie(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"", "", false},
		{"NID=1", "", false},
		{"oauth_token=abc", "abc", true},
		{"NID=1; oauth_token=oauth2_4/0Ad", "oauth2_4/0Ad", true},
		{"oauth_token=", "", false},
		{`bad"cookie; oauth_token=abc`, "abc", true},
	}
	for _, tc := range tests {
		got, ok := oauthCookie(tc.header)
		if got != tc.want || ok != tc.ok {
			t.Errorf("oauthCookie(%q) = %q, %v; want %q, %v", tc.header, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCleanIdentity(t *testing.T) {
	if got := cleanIdentity(`"user@example.com"`); got != "user@example.com" {
		t.Errorf("cleanIdentity = %q", got)
	}
	if got := cleanIdentity(`""`); got != "" {
		t.Errorf("cleanIdentity = %q", got)
	}
}
