// Package credstore persists the single long-lived session credential.
//
// A credential is two string entries, the account identity and the token,
// namespaced under a fixed store name. Absence of either entry means there is
// no credential. Writes replace both entries in one step so a reader never
// observes one field of a new credential next to the other field of an old one.
package credstore

import (
	"context"

	"github.com/pithecene-io/playdl/types"
)

// DefaultNamespace is the store name the two entries live under.
const DefaultNamespace = "credentials"

// Entry keys.
const (
	KeyEmail = "email"
	KeyToken = "aas_token"
)

// Store reads and writes the persisted credential.
type Store interface {
	// Read returns the stored credential, or nil when none is stored.
	Read(ctx context.Context) (*types.Credential, error)
	// Write replaces the stored credential. Idempotent.
	Write(ctx context.Context, cred types.Credential) error
	// Clear removes both entries.
	Clear(ctx context.Context) error
}

// fromEntries builds a credential from raw entries, nil when either is absent.
func fromEntries(email, token string) *types.Credential {
	if email == "" || token == "" {
		return nil
	}
	return &types.Credential{Email: email, Token: token}
}
