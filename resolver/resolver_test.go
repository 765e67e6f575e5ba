package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pithecene-io/playdl/broker"
	"github.com/pithecene-io/playdl/device"
	"github.com/pithecene-io/playdl/gplay"
	"github.com/pithecene-io/playdl/log"
	"github.com/pithecene-io/playdl/types"
)

type staticProvider struct {
	err error
}

func (p staticProvider) GetCredential(ctx context.Context) (types.Credential, *types.DeviceProfile, error) {
	if p.err != nil {
		return types.Credential{}, nil, p.err
	}
	profile, err := device.Build(ctx, device.Reference())
	if err != nil {
		return types.Credential{}, nil, err
	}
	return types.Credential{Email: "user@example.com", Token: "t"}, profile, nil
}

type fakeCatalog struct {
	meta        *types.PackageMetadata
	detailsErr  error
	purchased   []types.Fragment
	purchaseErr error
	purchases   int
}

func (c *fakeCatalog) Details(_ context.Context, s types.Session, _ string) (*types.PackageMetadata, error) {
	if s.Profile.Len() == 0 {
		return nil, errors.New("no profile")
	}
	return c.meta, c.detailsErr
}

func (c *fakeCatalog) Purchase(_ context.Context, _ types.Session, _ string, vc int64, offer int32) ([]types.Fragment, error) {
	c.purchases++
	if vc != 21 || offer != 1 {
		return nil, errors.New("unexpected version code or offer type")
	}
	return c.purchased, c.purchaseErr
}

func freeMeta(fragments ...types.Fragment) *types.PackageMetadata {
	return &types.PackageMetadata{
		PackageName: "com.example.app",
		VersionName: "2.1",
		VersionCode: 21,
		Free:        true,
		OfferType:   1,
		Fragments:   fragments,
	}
}

var twoSplits = []types.Fragment{
	{Name: "base", URL: "https://dl/base", Size: 1_000_000, Type: types.FragmentSplit},
	{Name: "config.en", URL: "https://dl/en", Size: 500_000, Type: types.FragmentSplit},
}

func TestResolve_UsesPurchaseWhenNoURLs(t *testing.T) {
	cat := &fakeCatalog{
		meta:      freeMeta(types.Fragment{Name: "base", Size: 1_000_000, Type: types.FragmentBase}),
		purchased: append([]types.Fragment{{Name: "blank", Type: types.FragmentSplit}}, twoSplits...),
	}
	r := New(staticProvider{}, cat, nil)

	app, err := r.Resolve(t.Context(), "com.example.app", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if app.Version != "2.1" || len(app.Fragments) != 2 || app.TotalSize() != 1_500_000 {
		t.Errorf("app = %+v", app)
	}
	if cat.purchases != 1 {
		t.Errorf("purchases = %d, want 1", cat.purchases)
	}
}

func TestResolve_SkipsPurchaseWhenURLsPresent(t *testing.T) {
	cat := &fakeCatalog{meta: freeMeta(twoSplits...)}
	r := New(staticProvider{}, cat, nil)

	app, err := r.Resolve(t.Context(), "com.example.app", "2.1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(app.Fragments) != 2 || cat.purchases != 0 {
		t.Errorf("fragments = %d purchases = %d", len(app.Fragments), cat.purchases)
	}
}

func TestResolve_NotFoundCases(t *testing.T) {
	paid := freeMeta(twoSplits...)
	paid.Free = false

	tests := []struct {
		name    string
		cat     *fakeCatalog
		version string
	}{
		{"absent", &fakeCatalog{}, ""},
		{"missing", &fakeCatalog{detailsErr: gplay.ErrNotFound}, ""},
		{"transport", &fakeCatalog{detailsErr: errors.New("connection refused")}, ""},
		{"version mismatch", &fakeCatalog{meta: freeMeta(twoSplits...)}, "2.0"},
		{"paid", &fakeCatalog{meta: paid}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := New(staticProvider{}, tc.cat, nil)
			app, err := r.Resolve(t.Context(), "com.example.app", tc.version)
			if !errors.Is(err, ErrNotFound) || app != nil {
				t.Fatalf("Resolve = %+v, %v; want ErrNotFound", app, err)
			}
			if tc.cat.purchases != 0 {
				t.Error("purchase attempted")
			}
		})
	}
}

func TestResolve_LogsErrorClass(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{gplay.ErrNotFound, ClassNotFound},
		{&gplay.StatusError{Endpoint: "details", Code: 503}, ClassTransport},
	}
	for _, tc := range tests {
		var buf bytes.Buffer
		logger := log.NewLogger(log.Context{}).WithOutput(&buf)
		r := New(staticProvider{}, &fakeCatalog{detailsErr: tc.err}, logger)

		if _, err := r.Resolve(t.Context(), "com.example.app", ""); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v", err)
		}

		var line struct {
			Level  string         `json:"level"`
			Fields map[string]any `json:"fields"`
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line); err != nil {
			t.Fatalf("log line %q: %v", buf.String(), err)
		}
		if line.Level != "warn" || line.Fields["error_class"] != tc.want || line.Fields["package"] != "com.example.app" {
			t.Errorf("log line = %+v, want warn with class %s", line, tc.want)
		}
	}
}

func TestResolve_PurchaseFailureIsFatal(t *testing.T) {
	cat := &fakeCatalog{meta: freeMeta(), purchaseErr: errors.New("purchase rejected")}
	r := New(staticProvider{}, cat, nil)

	_, err := r.Resolve(t.Context(), "com.example.app", "")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want fatal purchase error", err)
	}
}

func TestResolve_ProviderErrorsPropagate(t *testing.T) {
	r := New(staticProvider{err: &broker.AuthError{Message: "bad"}}, &fakeCatalog{}, nil)

	_, err := r.Resolve(t.Context(), "com.example.app", "")
	if !errors.Is(err, broker.ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
}
