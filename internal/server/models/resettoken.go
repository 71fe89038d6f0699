package models

import (
	"errors"
	"time"
)

// PasswordResetToken authorizes exactly one password change. Token holds the
// plaintext and is only populated at issue time.
type PasswordResetToken struct {
	ID        string
	UserID    string
	Token     string
	TokenHash string
	Expires   time.Time
	Used      bool
	UsedAt    *time.Time
	RequestIP string
	CreatedAt time.Time
}

// NewPasswordResetToken validates the inputs and returns an unused token.
func NewPasswordResetToken(id, userID, token, tokenHash, requestIP string, now time.Time, validity time.Duration) (*PasswordResetToken, error) {
	if id == "" || userID == "" {
		return nil, errors.New("reset token: id and user id are required")
	}
	if token == "" || tokenHash == "" {
		return nil, errors.New("reset token: token value is required")
	}
	if validity <= 0 {
		return nil, errors.New("reset token: validity must be positive")
	}
	return &PasswordResetToken{
		ID:        id,
		UserID:    userID,
		Token:     token,
		TokenHash: tokenHash,
		Expires:   now.Add(validity),
		RequestIP: requestIP,
		CreatedAt: now,
	}, nil
}

// IsActive reports whether the token can still be redeemed at now.
func (t *PasswordResetToken) IsActive(now time.Time) bool {
	return !t.Used && now.Before(t.Expires)
}
