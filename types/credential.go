// Package types defines core domain types for playdl.
//
//nolint:revive // types is a common Go package naming convention
package types

import "errors"

// Credential is a long-lived session credential for one account.
// Values are immutable once created; a zero Credential is never persisted.
type Credential struct {
	// Email is the account identifier.
	Email string `msgpack:"email" json:"email" yaml:"email"`
	// Token is the opaque long-lived (AAS) token.
	Token string `msgpack:"aas_token" json:"-" yaml:"aas_token"`
}

// Validate reports whether both fields are present.
func (c Credential) Validate() error {
	if c.Email == "" {
		return errors.New("credential: email is required")
	}
	if c.Token == "" {
		return errors.New("credential: token is required")
	}
	return nil
}

// Redacted returns the credential with the token masked, for output surfaces.
func (c Credential) Redacted() RedactedCredential {
	masked := ""
	if n := len(c.Token); n > 0 {
		if n > 4 {
			masked = "****" + c.Token[n-4:]
		} else {
			masked = "****"
		}
	}
	return RedactedCredential{Email: c.Email, Token: masked}
}

// RedactedCredential is a Credential safe to print.
type RedactedCredential struct {
	Email string `json:"email" yaml:"email"`
	Token string `json:"token" yaml:"token"`
}

// Session is the ephemeral combination of a credential and the device
// profile used to authorize one remote call. It is never persisted.
type Session struct {
	Credential Credential
	Profile    *DeviceProfile
}

// NewSession derives a session. The profile must be non-nil.
func NewSession(cred Credential, profile *DeviceProfile) (Session, error) {
	if err := cred.Validate(); err != nil {
		return Session{}, err
	}
	if profile == nil || profile.Len() == 0 {
		return Session{}, errors.New("session: device profile is required")
	}
	return Session{Credential: cred, Profile: profile}, nil
}
