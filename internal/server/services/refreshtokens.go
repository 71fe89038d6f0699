package services

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// UserResolver loads the owner of a token inside the rotation transaction.
// It fails when the owner may no longer hold a session.
type UserResolver func(ctx context.Context, tx dbx.DBTX, userID string) (*models.User, error)

// RefreshTokenStore issues, validates, rotates and revokes refresh tokens.
type RefreshTokenStore struct {
	db       dbx.Database
	repos    repomanager.RepositoryManager
	validity time.Duration
	clock    timex.Clock
}

func NewRefreshTokenStore(db dbx.Database, repos repomanager.RepositoryManager, validity time.Duration, clock timex.Clock) *RefreshTokenStore {
	return &RefreshTokenStore{db: db, repos: repos, validity: validity, clock: clock}
}

// Create issues a new token for userID through db, which may be a
// transaction. The returned record carries the plaintext in Token.
func (s *RefreshTokenStore) Create(ctx context.Context, db dbx.DBTX, userID, deviceInfo string) (*models.RefreshToken, error) {
	raw, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	token, err := models.NewRefreshToken(raw.id, userID, raw.value, raw.hash, deviceInfo, s.clock.Now(), s.validity)
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_CREATE_FAILED").With("user_id", userID).Wrap(err)
	}
	if err := s.repos.RefreshTokens(db).Create(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// Validate returns the record behind value if it is Active. Unknown values
// fail with ErrInvalidToken, inactive ones with ErrTokenRevoked or
// ErrTokenExpired.
func (s *RefreshTokenStore) Validate(ctx context.Context, value string) (*models.RefreshToken, error) {
	return s.validate(ctx, s.db.Conn(), value, s.clock.Now())
}

func (s *RefreshTokenStore) validate(ctx context.Context, db dbx.DBTX, value string, now time.Time) (*models.RefreshToken, error) {
	if value == "" {
		return nil, common.ErrInvalidToken
	}
	token, err := s.repos.RefreshTokens(db).FindByHash(ctx, common.HashToken(value))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}
	switch {
	case token.Revoked:
		return nil, common.ErrTokenRevoked
	case !now.Before(token.Expires):
		return nil, common.ErrTokenExpired
	}
	return token, nil
}

// Revoke revokes the token behind value. Unknown and already revoked values
// are not an error.
func (s *RefreshTokenStore) Revoke(ctx context.Context, value string) error {
	if value == "" {
		return nil
	}
	return s.repos.RefreshTokens(s.db.Conn()).Revoke(ctx, common.HashToken(value))
}

// RevokeAll revokes every token of userID through db and returns the count.
func (s *RefreshTokenStore) RevokeAll(ctx context.Context, db dbx.DBTX, userID string) (int64, error) {
	return s.repos.RefreshTokens(db).RevokeAllByUser(ctx, userID)
}

// Rotate exchanges value for a new token in one transaction. The old token
// is revoked with a compare-and-swap, so of two concurrent rotations of the
// same token exactly one succeeds and the other fails with ErrTokenRevoked.
// An empty deviceInfo keeps the old token's device.
func (s *RefreshTokenStore) Rotate(ctx context.Context, value, deviceInfo string, resolve UserResolver) (*models.RefreshToken, *models.User, error) {
	var (
		next  *models.RefreshToken
		owner *models.User
	)
	now := s.clock.Now()

	err := s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		old, err := s.validate(ctx, tx, value, now)
		if err != nil {
			return err
		}

		owner, err = resolve(ctx, tx, old.UserID)
		if err != nil {
			return err
		}

		won, err := s.repos.RefreshTokens(tx).RevokeIfActive(ctx, old.TokenHash, now)
		if err != nil {
			return err
		}
		if !won {
			return common.ErrTokenRevoked
		}

		if deviceInfo == "" {
			deviceInfo = old.DeviceInfo
		}
		next, err = s.Create(ctx, tx, old.UserID, deviceInfo)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return next, owner, nil
}
