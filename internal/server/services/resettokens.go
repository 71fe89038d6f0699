package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/oops"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// ResetTokenStore issues and redeems single-use password reset tokens.
// Every failure to redeem is ErrInvalidResetToken; the wrapped message
// names the cause for logs.
type ResetTokenStore struct {
	db       dbx.Database
	repos    repomanager.RepositoryManager
	validity time.Duration
	clock    timex.Clock
}

func NewResetTokenStore(db dbx.Database, repos repomanager.RepositoryManager, validity time.Duration, clock timex.Clock) *ResetTokenStore {
	return &ResetTokenStore{db: db, repos: repos, validity: validity, clock: clock}
}

// Create issues a token for userID and marks every other Active token of
// the user used, leaving at most one Active token per user.
func (s *ResetTokenStore) Create(ctx context.Context, userID, requestIP string) (*models.PasswordResetToken, error) {
	raw, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}

	var token *models.PasswordResetToken
	err = s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.ResetTokens(tx)
		if err := repo.LockUser(ctx, userID); err != nil {
			return err
		}

		now := s.clock.Now()
		if _, err := repo.InvalidateActiveByUser(ctx, userID, now); err != nil {
			return err
		}

		token, err = models.NewPasswordResetToken(raw.id, userID, raw.value, raw.hash, requestIP, now, s.validity)
		if err != nil {
			return oops.Code("RESET_TOKEN_CREATE_FAILED").With("user_id", userID).Wrap(err)
		}
		return repo.Create(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Validate returns the record behind value if it is unused and unexpired.
func (s *ResetTokenStore) Validate(ctx context.Context, value string) (*models.PasswordResetToken, error) {
	return s.validate(ctx, s.db.Conn(), value, s.clock.Now())
}

func (s *ResetTokenStore) validate(ctx context.Context, db dbx.DBTX, value string, now time.Time) (*models.PasswordResetToken, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: empty token", common.ErrInvalidResetToken)
	}
	token, err := s.repos.ResetTokens(db).FindByHash(ctx, common.HashToken(value))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: not found", common.ErrInvalidResetToken)
		}
		return nil, err
	}
	switch {
	case token.Used:
		return nil, fmt.Errorf("%w: already used", common.ErrInvalidResetToken)
	case !now.Before(token.Expires):
		return nil, fmt.Errorf("%w: expired", common.ErrInvalidResetToken)
	}
	return token, nil
}

// MarkUsed consumes token through db. Losing a race against another
// redemption fails with ErrInvalidResetToken.
func (s *ResetTokenStore) MarkUsed(ctx context.Context, db dbx.DBTX, token *models.PasswordResetToken) error {
	ok, err := s.repos.ResetTokens(db).MarkUsed(ctx, token.ID, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: already used", common.ErrInvalidResetToken)
	}
	return nil
}

// DeleteExpired purges tokens past their expiry and returns the count.
func (s *ResetTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	return s.repos.ResetTokens(s.db.Conn()).DeleteExpired(ctx, s.clock.Now())
}
