// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking refresh tokens.
// Tokens are looked up by their SHA-256 digest; the plaintext is never stored.
type Repository interface {
	// Create stores a new refresh token. ID, UserID, TokenHash and Expires must be set.
	Create(ctx context.Context, token *models.RefreshToken) error

	// FindByHash returns the token with the given digest or common.ErrorNotFound.
	FindByHash(ctx context.Context, hash string) (*models.RefreshToken, error)

	// FindByID returns the token with the given id or common.ErrorNotFound.
	FindByID(ctx context.Context, id string) (*models.RefreshToken, error)

	// ListByUser returns every token of the user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*models.RefreshToken, error)

	// Revoke marks the token revoked. Revoking a missing or already revoked
	// token is not an error.
	Revoke(ctx context.Context, hash string) error

	// RevokeByID marks the token with the given id revoked.
	RevokeByID(ctx context.Context, id string) error

	// RevokeIfActive revokes the token only if it is unrevoked and not expired
	// at now, and reports whether this call performed the revocation.
	RevokeIfActive(ctx context.Context, hash string, now time.Time) (bool, error)

	// RevokeAllByUser revokes every unrevoked token of the user and returns
	// how many were revoked.
	RevokeAllByUser(ctx context.Context, userID string) (int64, error)
}
