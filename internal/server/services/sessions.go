package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// SessionRegistry presents a user's refresh tokens as sessions.
type SessionRegistry struct {
	db    dbx.Database
	repos repomanager.RepositoryManager
}

func NewSessionRegistry(db dbx.Database, repos repomanager.RepositoryManager) *SessionRegistry {
	return &SessionRegistry{db: db, repos: repos}
}

// List returns every session of userID, revoked and expired ones included.
func (r *SessionRegistry) List(ctx context.Context, userID string) ([]models.Session, error) {
	tokens, err := r.repos.RefreshTokens(r.db.Conn()).ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sessions := make([]models.Session, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, t.Session())
	}
	return sessions, nil
}

// Revoke revokes session sessionID on behalf of requestingUserID. Unknown
// ids fail with ErrorNotFound, sessions of other users with ErrForbidden.
func (r *SessionRegistry) Revoke(ctx context.Context, sessionID, requestingUserID string) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return common.ErrorNotFound
	}

	repo := r.repos.RefreshTokens(r.db.Conn())
	token, err := repo.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if token.UserID != requestingUserID {
		return common.ErrForbidden
	}
	return repo.RevokeByID(ctx, sessionID)
}

// CurrentID returns the id of the session behind refreshValue when it
// belongs to userID, "" otherwise.
func (r *SessionRegistry) CurrentID(ctx context.Context, userID, refreshValue string) string {
	if refreshValue == "" {
		return ""
	}
	token, err := r.repos.RefreshTokens(r.db.Conn()).FindByHash(ctx, common.HashToken(refreshValue))
	if err != nil || token.UserID != userID {
		return ""
	}
	return token.ID
}
