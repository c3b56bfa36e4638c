package models

import "github.com/golang-jwt/jwt/v5"

// TokenScope distinguishes the chat front-end's service token from tokens
// issued to a single owner.
type TokenScope string

const (
	ScopeService TokenScope = "service"
	ScopeOwner   TokenScope = "owner"
)

// AccessClaims is the JWT payload accepted by the API. For owner tokens the
// subject is the owner id.
type AccessClaims struct {
	Scope TokenScope `json:"scope"`
	jwt.RegisteredClaims
}

// CanAccess reports whether the token may act on ownerID's data.
func (c *AccessClaims) CanAccess(ownerID string) bool {
	if c == nil {
		return false
	}
	if c.Scope == ScopeService {
		return true
	}
	return c.Scope == ScopeOwner && c.Subject != "" && c.Subject == ownerID
}
