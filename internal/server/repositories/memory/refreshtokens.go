package memory

import (
	"context"
	"sort"
	"time"

	"github.com/samber/oops"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type refreshRepo struct {
	s  *Store
	tx bool
}

func (r *refreshRepo) Create(ctx context.Context, t *models.RefreshToken) error {
	defer r.s.acquire(r.tx)()
	d := &r.s.data

	if _, ok := d.refreshByHash[t.TokenHash]; ok {
		return oops.Code("REFRESH_TOKEN_CREATE_FAILED").With("user_id", t.UserID).Errorf("duplicate token")
	}
	if _, ok := d.refresh[t.ID]; ok {
		return oops.Code("REFRESH_TOKEN_CREATE_FAILED").With("user_id", t.UserID).Errorf("duplicate id")
	}
	stored := *t
	stored.Token = ""
	d.refresh[t.ID] = stored
	d.refreshByHash[t.TokenHash] = t.ID
	return nil
}

func (r *refreshRepo) FindByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	defer r.s.acquire(r.tx)()
	d := &r.s.data

	id, ok := d.refreshByHash[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	t := d.refresh[id]
	return &t, nil
}

func (r *refreshRepo) FindByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	defer r.s.acquire(r.tx)()

	t, ok := r.s.data.refresh[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (r *refreshRepo) ListByUser(ctx context.Context, userID string) ([]*models.RefreshToken, error) {
	defer r.s.acquire(r.tx)()

	var result []*models.RefreshToken
	for _, t := range r.s.data.refresh {
		if t.UserID == userID {
			t := t
			result = append(result, &t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *refreshRepo) Revoke(ctx context.Context, hash string) error {
	defer r.s.acquire(r.tx)()
	d := &r.s.data

	if id, ok := d.refreshByHash[hash]; ok {
		t := d.refresh[id]
		t.Revoked = true
		d.refresh[id] = t
	}
	return nil
}

func (r *refreshRepo) RevokeByID(ctx context.Context, id string) error {
	defer r.s.acquire(r.tx)()
	d := &r.s.data

	if t, ok := d.refresh[id]; ok {
		t.Revoked = true
		d.refresh[id] = t
	}
	return nil
}

func (r *refreshRepo) RevokeIfActive(ctx context.Context, hash string, now time.Time) (bool, error) {
	defer r.s.acquire(r.tx)()
	d := &r.s.data

	id, ok := d.refreshByHash[hash]
	if !ok {
		return false, nil
	}
	t := d.refresh[id]
	if !t.IsActive(now) {
		return false, nil
	}
	t.Revoked = true
	d.refresh[id] = t
	return true, nil
}

func (r *refreshRepo) RevokeAllByUser(ctx context.Context, userID string) (int64, error) {
	defer r.s.acquire(r.tx)()
	d := &r.s.data

	var n int64
	for id, t := range d.refresh {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			d.refresh[id] = t
			n++
		}
	}
	return n, nil
}
