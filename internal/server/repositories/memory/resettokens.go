package memory

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type resetRepo struct {
	s  *Store
	tx bool
}

func (r *resetRepo) Create(ctx context.Context, t *models.PasswordResetToken) error {
	defer r.s.acquire(r.tx)()
	d := &r.s.data

	if _, ok := d.resetByHash[t.TokenHash]; ok {
		return oops.Code("RESET_TOKEN_CREATE_FAILED").With("user_id", t.UserID).Errorf("duplicate token")
	}
	stored := *t
	stored.Token = ""
	d.reset[t.ID] = stored
	d.resetByHash[t.TokenHash] = t.ID
	return nil
}

func (r *resetRepo) FindByHash(ctx context.Context, hash string) (*models.PasswordResetToken, error) {
	defer r.s.acquire(r.tx)()
	d := &r.s.data

	id, ok := d.resetByHash[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	t := d.reset[id]
	return &t, nil
}

// LockUser is a no-op: issuance already runs under the store-wide
// transaction lock.
func (r *resetRepo) LockUser(ctx context.Context, userID string) error {
	return nil
}

func (r *resetRepo) InvalidateActiveByUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	defer r.s.acquire(r.tx)()
	d := &r.s.data

	var n int64
	for id, t := range d.reset {
		if t.UserID == userID && t.IsActive(now) {
			at := now
			t.Used, t.UsedAt = true, &at
			d.reset[id] = t
			n++
		}
	}
	return n, nil
}

func (r *resetRepo) MarkUsed(ctx context.Context, id string, now time.Time) (bool, error) {
	defer r.s.acquire(r.tx)()
	d := &r.s.data

	t, ok := d.reset[id]
	if !ok || t.Used {
		return false, nil
	}
	at := now
	t.Used, t.UsedAt = true, &at
	d.reset[id] = t
	return true, nil
}

func (r *resetRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	defer r.s.acquire(r.tx)()
	d := &r.s.data

	var n int64
	for id, t := range d.reset {
		if !t.Expires.After(now) {
			delete(d.reset, id)
			delete(d.resetByHash, t.TokenHash)
			n++
		}
	}
	return n, nil
}
