package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type userRepo struct {
	s  *Store
	tx bool
}

func (r *userRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	defer r.s.acquire(r.tx)()
	d := &r.s.data

	if _, ok := d.userByEmail[user.Email]; ok {
		return nil, common.ErrAccountAlreadyExists
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = r.s.clock.Now()
	d.users[user.ID] = *user
	d.userByEmail[user.Email] = user.ID
	return user, nil
}

func (r *userRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	defer r.s.acquire(r.tx)()
	d := &r.s.data

	id, ok := d.userByEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u := d.users[id]
	return &u, nil
}

func (r *userRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	defer r.s.acquire(r.tx)()

	u, ok := r.s.data.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *userRepo) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	defer r.s.acquire(r.tx)()
	d := &r.s.data

	u, ok := d.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = hash
	d.users[id] = u
	return nil
}

// SetEnabled toggles a user's enabled flag. Administrative helper; the
// auth flows never disable accounts themselves.
func (s *Store) SetEnabled(id string, enabled bool) error {
	defer s.acquire(false)()

	u, ok := s.data.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.Enabled = enabled
	s.data.users[id] = u
	return nil
}
