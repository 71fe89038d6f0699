package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

const (
	sqlFindToken  = `^SELECT id, user_id, token, device_info, expires_at, revoked, created_at FROM refresh_tokens WHERE token = \$1$`
	sqlFindUser   = `^SELECT id, email, name, password_hash, role, enabled, created_at FROM users WHERE id = \$1$`
	sqlCASRevoke  = `^UPDATE refresh_tokens SET revoked = TRUE WHERE token = \$1 AND revoked = FALSE AND expires_at > \$2$`
	sqlInsertNext = `^INSERT INTO refresh_tokens \(id, user_id, token, device_info, expires_at, revoked, created_at\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)$`
)

const (
	sqlUserID  = "8d6e3c2a-7f7e-4b53-9a63-1f0c3c8e2b11"
	sqlTokenID = "0f4a9a57-65d5-4a73-9e2c-7e4c35d1c0aa"
)

func newSQLRefreshStore(t *testing.T) (*RefreshTokenStore, repomanager.RepositoryManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repos := repomanager.NewPostgresRepositoryManager()
	store := NewRefreshTokenStore(dbx.NewSQLDatabase(db, nil), repos, refreshTTL, timex.NewManualClock(testStart))
	return store, repos, mock
}

func expectRotationPrefix(mock sqlmock.Sqlmock, hash string) {
	mock.ExpectBegin()
	mock.ExpectQuery(sqlFindToken).
		WithArgs(hash).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "device_info", "expires_at", "revoked", "created_at"}).
			AddRow(sqlTokenID, sqlUserID, hash, "laptop", testStart.Add(time.Hour), false, testStart.Add(-time.Hour)))
	mock.ExpectQuery(sqlFindUser).
		WithArgs(sqlUserID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "role", "enabled", "created_at"}).
			AddRow(sqlUserID, "a@example.com", "A", "$argon2id$x", "user", true, testStart.Add(-24*time.Hour)))
}

func TestRotate_SQL_Success(t *testing.T) {
	store, repos, mock := newSQLRefreshStore(t)
	value := "presented-token"
	hash := common.HashToken(value)

	expectRotationPrefix(mock, hash)
	mock.ExpectExec(sqlCASRevoke).
		WithArgs(hash, testStart).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(sqlInsertNext).
		WithArgs(sqlmock.AnyArg(), sqlUserID, sqlmock.AnyArg(), "laptop", testStart.Add(refreshTTL), false, testStart).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resolve := func(ctx context.Context, tx dbx.DBTX, userID string) (*models.User, error) {
		return repos.Users(tx).GetUserByID(ctx, userID)
	}
	next, owner, err := store.Rotate(context.Background(), value, "", resolve)
	require.NoError(t, err)
	assert.Equal(t, sqlUserID, owner.ID)
	assert.Equal(t, "laptop", next.DeviceInfo)
	assert.NotEqual(t, value, next.Token)
	assert.Equal(t, common.HashToken(next.Token), next.TokenHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A concurrent rotation committed first: the CAS matches no row.
func TestRotate_SQL_LostRace(t *testing.T) {
	store, repos, mock := newSQLRefreshStore(t)
	value := "presented-token"
	hash := common.HashToken(value)

	expectRotationPrefix(mock, hash)
	mock.ExpectExec(sqlCASRevoke).
		WithArgs(hash, testStart).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	resolve := func(ctx context.Context, tx dbx.DBTX, userID string) (*models.User, error) {
		return repos.Users(tx).GetUserByID(ctx, userID)
	}
	_, _, err := store.Rotate(context.Background(), value, "", resolve)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRotate_SQL_UnknownToken(t *testing.T) {
	store, _, mock := newSQLRefreshStore(t)
	value := "presented-token"

	mock.ExpectBegin()
	mock.ExpectQuery(sqlFindToken).
		WithArgs(common.HashToken(value)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "device_info", "expires_at", "revoked", "created_at"}))
	mock.ExpectRollback()

	_, _, err := store.Rotate(context.Background(), value, "", nil)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	require.NoError(t, mock.ExpectationsWereMet())
}
