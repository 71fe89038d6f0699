package models

import (
	"errors"
	"time"
)

// RefreshToken is a persisted, revocable, long-lived credential. Token holds
// the plaintext and is only populated on the value returned at issue time;
// the store keeps TokenHash.
type RefreshToken struct {
	ID         string
	UserID     string
	Token      string
	TokenHash  string
	DeviceInfo string
	Expires    time.Time
	Revoked    bool
	CreatedAt  time.Time
}

// NewRefreshToken validates the inputs and returns an unrevoked token.
func NewRefreshToken(id, userID, token, tokenHash, deviceInfo string, now time.Time, validity time.Duration) (*RefreshToken, error) {
	if id == "" || userID == "" {
		return nil, errors.New("refresh token: id and user id are required")
	}
	if token == "" || tokenHash == "" {
		return nil, errors.New("refresh token: token value is required")
	}
	if validity <= 0 {
		return nil, errors.New("refresh token: validity must be positive")
	}
	return &RefreshToken{
		ID:         id,
		UserID:     userID,
		Token:      token,
		TokenHash:  tokenHash,
		DeviceInfo: deviceInfo,
		Expires:    now.Add(validity),
		CreatedAt:  now,
	}, nil
}

// IsActive reports whether the token may still be exchanged at now.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.Revoked && now.Before(t.Expires)
}

// Session projects the token into its user-facing view.
func (t *RefreshToken) Session() Session {
	return Session{ID: t.ID, DeviceInfo: t.DeviceInfo, Expires: t.Expires, Revoked: t.Revoked}
}
