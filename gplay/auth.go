package gplay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pithecene-io/playdl/types"
)

// Auth is the short-lived authorization derived from a Session.
type Auth struct {
	// Bearer is the OAuth token for fdfe calls.
	Bearer string
	// DeviceID is the checkin-assigned device id, hex encoded.
	DeviceID string
	// ConfigToken is returned by the device configuration upload.
	ConfigToken string
	// UserAgent is the fdfe user agent derived from the profile.
	UserAgent string
}

func authKey(s types.Session) string {
	return s.Credential.Email + "\x00" + s.Credential.Token
}

// Authorize derives fdfe authorization for s: device checkin, bearer token
// exchange and device configuration upload. Results are cached per
// credential for the life of the client.
func (c *Client) Authorize(ctx context.Context, s types.Session) (*Auth, error) {
	key := authKey(s)
	c.mu.Lock()
	if a, ok := c.auths[key]; ok {
		c.mu.Unlock()
		return a, nil
	}
	c.mu.Unlock()

	deviceID, err := c.checkin(ctx, s)
	if err != nil {
		return nil, err
	}

	bearer, err := c.bearerToken(ctx, s, deviceID)
	if err != nil {
		return nil, err
	}

	a := &Auth{
		Bearer:    bearer,
		DeviceID:  deviceID,
		UserAgent: userAgent(s.Profile),
	}
	token, err := c.uploadDeviceConfig(ctx, s, a)
	if err != nil {
		return nil, err
	}
	a.ConfigToken = token

	c.mu.Lock()
	c.auths[key] = a
	c.mu.Unlock()

	c.logger.Debug("authorized session", map[string]any{
		"email":     s.Credential.Email,
		"device_id": deviceID,
	})
	return a, nil
}

// Forget drops cached authorization for s.
func (c *Client) Forget(s types.Session) {
	c.mu.Lock()
	delete(c.auths, authKey(s))
	c.mu.Unlock()
}

// checkin registers the device and returns its hex id.
func (c *Client) checkin(ctx context.Context, s types.Session) (string, error) {
	lang, _ := LocaleFields(c.locale)
	req := checkinRequest(s.Profile, lang)

	body, err := c.postProto(ctx, c.endpoints.Checkin, "checkin", req, http.Header{
		"User-Agent": {"Android-Checkin/2.0"},
	})
	if err != nil {
		return "", err
	}

	resp, err := decode(body)
	if err != nil {
		return "", fmt.Errorf("gplay: checkin: %w", err)
	}
	id := resp.uint(fieldCheckinAndroidID)
	if id == 0 {
		return "", errors.New("gplay: checkin: no device id returned")
	}
	return strconv.FormatUint(id, 16), nil
}

// bearerToken exchanges the long-lived token for an fdfe OAuth token.
func (c *Client) bearerToken(ctx context.Context, s types.Session, deviceID string) (string, error) {
	lang, country := LocaleFields(c.locale)
	kv, err := c.postForm(ctx, c.endpoints.Auth, []Pair{
		{"androidId", deviceID},
		{"lang", lang},
		{"google_play_services_version", strconv.Itoa(PlayServicesVersion)},
		{"sdk_version", strconv.Itoa(SDKVersion)},
		{"device_country", country},
		{"Email", s.Credential.Email},
		{"service", PlayStoreScope},
		{"app", VendingPackage},
		{"client_sig", CallerSignature},
		{"callerPkg", GMSPackage},
		{"callerSig", CallerSignature},
		{"check_email", "1"},
		{"oauth2_foreground", "1"},
		{"token_request_options", "CAA4AQ=="},
		{"Token", s.Credential.Token},
	}, map[string]string{"app": VendingPackage, "device": deviceID})
	if err != nil {
		return "", err
	}

	auth := kv["Auth"]
	if auth == "" {
		if msg := kv["Error"]; msg != "" {
			return "", fmt.Errorf("gplay: auth: %s", msg)
		}
		return "", errors.New("gplay: auth: no bearer token returned")
	}
	return auth, nil
}

// uploadDeviceConfig sends the device configuration and returns the
// configuration token.
func (c *Client) uploadDeviceConfig(ctx context.Context, s types.Session, a *Auth) (string, error) {
	req := message(nil).embed(1, deviceConfiguration(s.Profile))
	body, err := c.postProto(ctx, c.endpoints.FDFE+"/uploadDeviceConfig", "uploadDeviceConfig", req, c.fdfeHeaders(a))
	if err != nil {
		return "", err
	}

	resp, err := decode(body)
	if err != nil {
		return "", fmt.Errorf("gplay: uploadDeviceConfig: %w", err)
	}
	payload, err := resp.path(fieldWrapperPayload, fieldPayloadUploadDeviceConfig)
	if err != nil {
		return "", fmt.Errorf("gplay: uploadDeviceConfig: %w", err)
	}
	return payload.str(1), nil
}

// fdfeHeaders returns the headers every authorized fdfe call carries.
func (c *Client) fdfeHeaders(a *Auth) http.Header {
	lang, _ := LocaleFields(c.locale)
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.Bearer)
	h.Set("User-Agent", a.UserAgent)
	h.Set("X-DFE-Device-Id", a.DeviceID)
	h.Set("Accept-Language", lang)
	h.Set("X-DFE-Client-Id", "am-android-google")
	h.Set("X-DFE-Network-Type", "4")
	h.Set("X-DFE-Content-Filters", "")
	if a.ConfigToken != "" {
		h.Set("X-DFE-Device-Config-Token", a.ConfigToken)
	}
	return h
}

// userAgent formats the store user agent from profile values.
func userAgent(p *types.DeviceProfile) string {
	abis := strings.ReplaceAll(p.Value("Platforms"), ",", ";")
	return fmt.Sprintf(
		"Android-Finsky/%s (api=3,versionCode=%s,sdk=%s,device=%s,hardware=%s,product=%s,platformVersionRelease=%s,model=%s,buildId=%s,isWideScreen=0,supportedAbis=%s)",
		p.Value("Vending.versionString"),
		p.Value("Vending.version"),
		p.Value("Build.VERSION.SDK_INT"),
		p.Value("Build.DEVICE"),
		p.Value("Build.HARDWARE"),
		p.Value("Build.PRODUCT"),
		p.Value("Build.VERSION.RELEASE"),
		p.Value("Build.MODEL"),
		p.Value("Build.ID"),
		abis,
	)
}

// ExchangeToken trades the one-time OAuth cookie captured at login for the
// long-lived token. It returns every key=value pair of the response; the
// caller decides which are required.
func (c *Client) ExchangeToken(ctx context.Context, email, oauthToken string) (map[string]string, error) {
	lang, country := LocaleFields(c.locale)
	return c.postForm(ctx, c.endpoints.Auth, []Pair{
		{"lang", lang},
		{"google_play_services_version", strconv.Itoa(PlayServicesVersion)},
		{"sdk_version", strconv.Itoa(SDKVersion)},
		{"device_country", country},
		{"Email", email},
		{"service", "ac2dm"},
		{"get_accountid", "1"},
		{"ACCESS_TOKEN", "1"},
		{"callerPkg", GMSPackage},
		{"add_account", "1"},
		{"Token", oauthToken},
		{"callerSig", CallerSignature},
	}, map[string]string{"app": GMSPackage})
}
