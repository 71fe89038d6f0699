package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// Authenticator checks an email/password pair against the user directory.
type Authenticator struct {
	users     users.Repository
	hasher    PasswordHasher
	dummyHash string
}

// NewAuthenticator builds an Authenticator. A throwaway hash is computed up
// front so that unknown emails cost the same as wrong passwords.
func NewAuthenticator(users users.Repository, hasher PasswordHasher) (*Authenticator, error) {
	seed, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, oops.Code("AUTH_INIT_FAILED").Wrap(err)
	}
	dummy, err := hasher.Hash(seed)
	if err != nil {
		return nil, oops.Code("AUTH_INIT_FAILED").Wrap(err)
	}
	return &Authenticator{users: users, hasher: hasher, dummyHash: dummy}, nil
}

// Authenticate returns the principal of the account when the password
// matches. Unknown email, disabled account and wrong password all yield
// common.ErrInvalidCredentials.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (*models.Principal, error) {
	user, err := a.Lookup(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return user.Principal(), nil
}

// Lookup is Authenticate returning the whole user row.
func (a *Authenticator) Lookup(ctx context.Context, email, password string) (*models.User, error) {
	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "get user by email").Wrap(err)
	}

	target := a.dummyHash
	if user != nil {
		target = user.PasswordHash
	}

	ok, verifyErr := a.hasher.Verify(password, target)
	if user == nil {
		return nil, common.ErrInvalidCredentials
	}
	if verifyErr != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID).
			Wrap(verifyErr)
	}
	if !ok || !user.Enabled {
		return nil, common.ErrInvalidCredentials
	}
	return user, nil
}
