// Package auth holds the stateless authentication primitives: access token
// minting and verification, password hashing, and credential checks.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// Claims is the access token payload: the registered claims (sub, iat, exp,
// jti) plus the principal's email and role.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TokenIssuer mints and verifies HS256 access tokens. It holds no mutable
// state and is safe for concurrent use.
type TokenIssuer struct {
	secret   []byte
	validity time.Duration
	clock    timex.Clock
}

// NewTokenIssuer returns an issuer signing with secret. Tokens expire
// validity after minting.
func NewTokenIssuer(secret []byte, validity time.Duration, clock timex.Clock) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token issuer: empty secret")
	}
	if validity <= 0 {
		return nil, fmt.Errorf("token issuer: validity must be positive, got %s", validity)
	}
	if clock == nil {
		clock = timex.SystemClock{}
	}
	return &TokenIssuer{secret: secret, validity: validity, clock: clock}, nil
}

// Mint signs a token for p and returns it with its expiry.
func (i *TokenIssuer) Mint(p *models.Principal) (string, time.Time, error) {
	now := i.clock.Now()
	exp := jwt.NewNumericDate(now.Add(i.validity))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
			ID:        uuid.NewString(),
		},
		Email: p.Email,
		Role:  p.Role,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp.Time, nil
}

// Verify checks signature, algorithm and expiry and returns the principal.
// Expired tokens yield common.ErrTokenExpired; anything else that fails
// yields common.ErrInvalidToken.
func (i *TokenIssuer) Verify(tokenString string) (*models.Principal, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return &models.Principal{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}
