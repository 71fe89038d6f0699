// Package common contains shared constants and sentinel errors used across
// authkeeper components.
package common

// RefreshTokenCookieName is the name of the HTTP-only cookie carrying the
// opaque refresh token.
const RefreshTokenCookieName = "refresh_token"

// RefreshTokenCookiePath scopes the refresh cookie to the auth endpoints.
const RefreshTokenCookiePath = "/api/auth"

// DefaultRole is assigned to self-registered accounts.
const DefaultRole = "user"

// TokenSize is the number of random bytes behind every opaque token.
const TokenSize = 32
