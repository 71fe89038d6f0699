// Package users declares the user directory contract and its PostgreSQL
// implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository is the user directory. Emails are unique; callers pass them
// already normalized.
type Repository interface {
	// Create inserts user and returns it with ID and CreatedAt filled in.
	// A taken email yields common.ErrAccountAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetUserByEmail returns common.ErrorNotFound when no user has the email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUserByID returns common.ErrorNotFound when the id is unknown.
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// UpdatePasswordHash overwrites the stored hash of user id.
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
}
