// Package resettokens stores single-use password reset tokens.
package resettokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository defines operations on password reset tokens. Tokens are looked
// up by their SHA-256 digest.
type Repository interface {
	Create(ctx context.Context, token *models.PasswordResetToken) error

	// FindByHash returns the token with the given digest or common.ErrorNotFound.
	FindByHash(ctx context.Context, hash string) (*models.PasswordResetToken, error)

	// LockUser serializes token issuance for userID until the surrounding
	// transaction ends. Must be called on a transactional handle.
	LockUser(ctx context.Context, userID string) error

	// InvalidateActiveByUser marks every unused, unexpired token of the user
	// used at now and returns how many were invalidated.
	InvalidateActiveByUser(ctx context.Context, userID string, now time.Time) (int64, error)

	// MarkUsed marks the token used only if it is still unused and reports
	// whether this call did so.
	MarkUsed(ctx context.Context, id string, now time.Time) (bool, error)

	// DeleteExpired removes tokens with expires_at <= now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
