package model

import (
	"slices"
	"time"
)

type PrincipalKind string

const (
	PrincipalUser    PrincipalKind = "user"
	PrincipalMachine PrincipalKind = "machine"
)

// Scopes understood by the SDK surface.
const (
	ScopeReadBrands  = "read:brands"
	ScopeReadConfigs = "read:configs"
)

// Principal is the already-authenticated caller. Company and identity fields
// are trusted as verified input.
type Principal struct {
	Kind     PrincipalKind `json:"kind"`
	Auth0ID  string        `json:"auth0Id,omitempty"`
	Email    string        `json:"email,omitempty"`
	Name     string        `json:"name,omitempty"`
	ClientID string        `json:"clientId,omitempty"`
	Company  string        `json:"company"`
	Scopes   []string      `json:"scopes,omitempty"`

	// TokenID and ExpiresAt are set for JWT principals so the token can be
	// revoked.
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// UserID is the owning-user key for brands and subscriptions.
func (p *Principal) UserID() string {
	if p.Kind == PrincipalMachine {
		return p.ClientID
	}
	return p.Auth0ID
}

func (p *Principal) IsMachine() bool { return p.Kind == PrincipalMachine }

func (p *Principal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

// APIKey authenticates a machine caller. Only the sha256 of the key is stored.
type APIKey struct {
	ID        string     `db:"id"`
	ClientID  string     `db:"client_id"`
	Company   string     `db:"company"`
	KeyHash   string     `db:"key_hash"`
	Scopes    []string   `db:"scopes"`
	ExpiresAt *time.Time `db:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// Usable reports whether the key may authenticate at now.
func (k *APIKey) Usable(now time.Time) bool {
	if k.RevokedAt != nil {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}
