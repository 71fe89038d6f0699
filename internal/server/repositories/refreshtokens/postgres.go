// Package refreshtokens provides a PostgreSQL-backed repository for managing
// refresh tokens used in the server's authentication flow.
package refreshtokens

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

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token, device_info, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.TokenHash, t.DeviceInfo, t.Expires, t.Revoked, t.CreatedAt)
	if err != nil {
		return oops.Code("REFRESH_TOKEN_CREATE_FAILED").With("user_id", t.UserID).Wrapf(err, "db error")
	}
	return nil
}

func (r *PostgresRepository) FindByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token, device_info, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE token = $1
	`
	return scanToken(r.db.QueryRowContext(ctx, query, hash), "REFRESH_TOKEN_FIND_FAILED")
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token, device_info, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE id = $1
	`
	return scanToken(r.db.QueryRowContext(ctx, query, id), "REFRESH_TOKEN_FIND_FAILED")
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token, device_info, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, oops.Code("REFRESH_TOKEN_LIST_FAILED").With("user_id", userID).Wrapf(err, "db error")
	}
	defer rows.Close()

	var result []*models.RefreshToken
	for rows.Next() {
		t := &models.RefreshToken{}
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.DeviceInfo, &t.Expires, &t.Revoked, &t.CreatedAt); err != nil {
			return nil, oops.Code("REFRESH_TOKEN_LIST_FAILED").With("user_id", userID).Wrapf(err, "scan error")
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("REFRESH_TOKEN_LIST_FAILED").With("user_id", userID).Wrapf(err, "rows error")
	}
	return result, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, hash string) error {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = $1
	`
	if _, err := r.db.ExecContext(ctx, query, hash); err != nil {
		return oops.Code("REFRESH_TOKEN_REVOKE_FAILED").Wrapf(err, "db error")
	}
	return nil
}

func (r *PostgresRepository) RevokeByID(ctx context.Context, id string) error {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return oops.Code("REFRESH_TOKEN_REVOKE_FAILED").With("session_id", id).Wrapf(err, "db error")
	}
	return nil
}

func (r *PostgresRepository) RevokeIfActive(ctx context.Context, hash string, now time.Time) (bool, error) {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = $1 AND revoked = FALSE AND expires_at > $2
	`
	res, err := r.db.ExecContext(ctx, query, hash, now)
	if err != nil {
		return false, oops.Code("REFRESH_TOKEN_REVOKE_FAILED").Wrapf(err, "db error")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, oops.Code("REFRESH_TOKEN_REVOKE_FAILED").Wrapf(err, "db error")
	}
	return n == 1, nil
}

func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE user_id = $1 AND revoked = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_REVOKE_ALL_FAILED").With("user_id", userID).Wrapf(err, "db error")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, oops.Code("REFRESH_TOKEN_REVOKE_ALL_FAILED").With("user_id", userID).Wrapf(err, "db error")
	}
	return n, nil
}

func scanToken(row *sql.Row, code string) (*models.RefreshToken, error) {
	t := &models.RefreshToken{}
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.DeviceInfo, &t.Expires, &t.Revoked, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, oops.Code(code).Wrapf(err, "db error")
	}
	return t, nil
}
