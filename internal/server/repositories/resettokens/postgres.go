package resettokens

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (id, user_id, token, expires_at, used, used_at, request_ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.TokenHash, t.Expires, t.Used, nullTime(t.UsedAt), t.RequestIP, t.CreatedAt)
	if err != nil {
		return oops.Code("RESET_TOKEN_CREATE_FAILED").With("user_id", t.UserID).Wrapf(err, "db error")
	}
	return nil
}

func (r *PostgresRepository) FindByHash(ctx context.Context, hash string) (*models.PasswordResetToken, error) {
	query := `
		SELECT id, user_id, token, expires_at, used, used_at, request_ip, created_at
		FROM password_reset_tokens
		WHERE token = $1
	`
	t := &models.PasswordResetToken{}
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, hash).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.Expires, &t.Used, &usedAt, &t.RequestIP, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, oops.Code("RESET_TOKEN_FIND_FAILED").Wrapf(err, "db error")
	}
	if usedAt.Valid {
		at := usedAt.Time
		t.UsedAt = &at
	}
	return t, nil
}

func (r *PostgresRepository) LockUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return oops.Code("RESET_TOKEN_LOCK_FAILED").With("user_id", userID).Wrapf(err, "db error")
	}
	return nil
}

func (r *PostgresRepository) InvalidateActiveByUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	query := `
		UPDATE password_reset_tokens SET used = TRUE, used_at = $2
		WHERE user_id = $1 AND used = FALSE AND expires_at > $2
	`
	return r.execCount(ctx, "RESET_TOKEN_INVALIDATE_FAILED", query, userID, now)
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE password_reset_tokens SET used = TRUE, used_at = $2
		WHERE id = $1 AND used = FALSE
	`
	n, err := r.execCount(ctx, "RESET_TOKEN_MARK_USED_FAILED", query, id, now)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM password_reset_tokens
		WHERE expires_at <= $1
	`
	return r.execCount(ctx, "RESET_TOKEN_DELETE_EXPIRED_FAILED", query, now)
}

func (r *PostgresRepository) execCount(ctx context.Context, code, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, oops.Code(code).Wrapf(err, "db error")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, oops.Code(code).Wrapf(err, "db error")
	}
	return n, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
