package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

func TestRegister_Success(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Register(ctx, RegisterInput{Email: "  Alice@Example.com ", Password: "s3cret-pass", Name: " Alice "}, "firefox")
	require.NoError(t, err)

	assert.NotEmpty(t, res.User.ID)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, "Alice", res.User.Name)
	assert.Equal(t, common.DefaultRole, res.User.Role)
	assert.Equal(t, testStart.Add(accessTTL), res.AccessTokenExpires)
	assert.Equal(t, testStart.Add(refreshTTL), res.RefreshTokenExpires)
	assert.Len(t, res.RefreshToken, 2*common.TokenSize)

	p, err := h.issuer.Verify(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, &models.Principal{UserID: res.User.ID, Email: "alice@example.com", Role: common.DefaultRole}, p)

	rt, err := h.refresh.Validate(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "firefox", rt.DeviceInfo)
	assert.Equal(t, res.User.ID, rt.UserID)
	assert.Empty(t, rt.Token, "plaintext is not stored")

	user, err := h.store.Users(h.store.Conn()).GetUserByID(ctx, res.User.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)
	assert.True(t, user.Enabled)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.register(t, "bob@example.com", "password-1", "")

	_, err := h.svc.Register(context.Background(), RegisterInput{Email: "BOB@example.com", Password: "password-2"}, "")
	assert.ErrorIs(t, err, common.ErrAccountAlreadyExists)
}

func TestRegister_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Register(context.Background(), RegisterInput{Email: "", Password: "x"}, "")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = h.svc.Register(context.Background(), RegisterInput{Email: "a@b.c", Password: ""}, "")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg := h.register(t, "carol@example.com", "correct-horse", "laptop")

	res, err := h.svc.Login(ctx, "Carol@Example.com", "correct-horse", "phone")
	require.NoError(t, err)
	assert.Equal(t, reg.User, res.User)
	assert.NotEqual(t, reg.RefreshToken, res.RefreshToken)

	rt, err := h.refresh.Validate(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "phone", rt.DeviceInfo)

	_, err = h.svc.Login(ctx, "carol@example.com", "wrong", "")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	_, err = h.svc.Login(ctx, "nobody@example.com", "correct-horse", "")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	require.NoError(t, h.store.SetEnabled(reg.User.ID, false))
	_, err = h.svc.Login(ctx, "carol@example.com", "correct-horse", "")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestLogin_UpgradesLegacyHash(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("old-password"), bcrypt.MinCost)
	require.NoError(t, err)
	user, err := h.store.Users(h.store.Conn()).Create(ctx, &models.User{
		Email: "legacy@example.com", PasswordHash: string(legacy), Role: "user", Enabled: true,
	})
	require.NoError(t, err)

	_, err = h.svc.Login(ctx, "legacy@example.com", "old-password", "")
	require.NoError(t, err)

	stored, err := h.store.Users(h.store.Conn()).GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))

	_, err = h.svc.Login(ctx, "legacy@example.com", "old-password", "")
	assert.NoError(t, err, "upgraded hash still verifies")
}

// register A -> R1; refresh(R1) -> R2; refresh(R1) again fails.
func TestRefresh_RotationInvalidatesOldToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg := h.register(t, "a@example.com", "password-a", "cli")

	h.clock.Advance(time.Minute)
	res, err := h.svc.Refresh(ctx, reg.RefreshToken, "cli")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", res.UserEmail)
	assert.NotEqual(t, reg.RefreshToken, res.RefreshToken)
	assert.NotEqual(t, reg.AccessToken, res.AccessToken)
	assert.Equal(t, testStart.Add(time.Minute).Add(refreshTTL), res.RefreshTokenExpires)

	_, err = h.refresh.Validate(ctx, reg.RefreshToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)

	_, err = h.refresh.Validate(ctx, res.RefreshToken)
	assert.NoError(t, err)

	_, err = h.svc.Refresh(ctx, reg.RefreshToken, "cli")
	assert.ErrorIs(t, err, common.ErrTokenRevoked)

	p, err := h.issuer.Verify(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, p.UserID)
}

func TestRefresh_WorksAfterAccessTokenExpired(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, "a@example.com", "password-a", "")

	h.clock.Advance(accessTTL + time.Minute)
	_, err := h.issuer.Verify(reg.AccessToken)
	require.ErrorIs(t, err, common.ErrTokenExpired)

	res, err := h.svc.Refresh(context.Background(), reg.RefreshToken, "")
	require.NoError(t, err)
	_, err = h.issuer.Verify(res.AccessToken)
	assert.NoError(t, err)
}

func TestRefresh_ExpiryIsMonotonic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg := h.register(t, "a@example.com", "password-a", "")

	h.clock.Advance(refreshTTL - time.Second)
	_, err := h.refresh.Validate(ctx, reg.RefreshToken)
	require.NoError(t, err)

	h.clock.Advance(time.Second)
	_, err = h.refresh.Validate(ctx, reg.RefreshToken)
	require.ErrorIs(t, err, common.ErrTokenExpired)

	for i := 0; i < 3; i++ {
		h.clock.Advance(time.Hour)
		_, err = h.svc.Refresh(ctx, reg.RefreshToken, "")
		assert.ErrorIs(t, err, common.ErrTokenExpired)
	}
}

func TestRefresh_InvalidTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Refresh(ctx, "", "")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = h.svc.Refresh(ctx, strings.Repeat("ab", common.TokenSize), "")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestRefresh_DisabledOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg := h.register(t, "a@example.com", "password-a", "")

	require.NoError(t, h.store.SetEnabled(reg.User.ID, false))
	_, err := h.svc.Refresh(ctx, reg.RefreshToken, "")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = h.refresh.Validate(ctx, reg.RefreshToken)
	assert.NoError(t, err, "failed rotation leaves the token untouched")
}

func TestRefresh_KeepsDeviceInfoWhenEmpty(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg := h.register(t, "a@example.com", "password-a", "Mozilla/5.0")

	res, err := h.svc.Refresh(ctx, reg.RefreshToken, "")
	require.NoError(t, err)
	rt, err := h.refresh.Validate(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "Mozilla/5.0", rt.DeviceInfo)

	res, err = h.svc.Refresh(ctx, res.RefreshToken, "curl/8")
	require.NoError(t, err)
	rt, err = h.refresh.Validate(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "curl/8", rt.DeviceInfo)
}

func TestRefresh_ConcurrentDoubleSubmit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg := h.register(t, "race@example.com", "password-r", "")

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		revoked int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.svc.Refresh(ctx, reg.RefreshToken, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, common.ErrTokenRevoked):
				revoked++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, revoked)

	sessions, err := h.sessions.List(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 2, "exactly one replacement token was minted")
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg := h.register(t, "a@example.com", "password-a", "")

	require.NoError(t, h.svc.Logout(ctx, reg.RefreshToken))
	_, err := h.refresh.Validate(ctx, reg.RefreshToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)

	assert.NoError(t, h.svc.Logout(ctx, reg.RefreshToken), "idempotent")
	assert.NoError(t, h.svc.Logout(ctx, "unknown"))
	assert.NoError(t, h.svc.Logout(ctx, ""))
}

func TestLogoutAll_OnlyAffectsThatUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a1 := h.register(t, "a@example.com", "password-a", "laptop")
	a2, err := h.svc.Login(ctx, "a@example.com", "password-a", "phone")
	require.NoError(t, err)
	b := h.register(t, "b@example.com", "password-b", "")

	require.NoError(t, h.svc.LogoutAll(ctx, a1.User.ID))

	for _, v := range []string{a1.RefreshToken, a2.RefreshToken} {
		_, err := h.refresh.Validate(ctx, v)
		assert.ErrorIs(t, err, common.ErrTokenRevoked)
	}
	_, err = h.refresh.Validate(ctx, b.RefreshToken)
	assert.NoError(t, err)

	sessions, err := h.sessions.List(ctx, a1.User.ID)
	require.NoError(t, err)
	for _, s := range sessions {
		assert.True(t, s.Revoked)
	}
}

func TestSendResetPasswordLink_UnknownEmailIsSilent(t *testing.T) {
	h := newHarness(t)

	err := h.svc.SendResetPasswordLink(context.Background(), "ghost@example.com", "1.2.3.4")
	require.NoError(t, err)
	assert.Empty(t, h.mailer.messages())
}

func TestSendResetPasswordLink_DisabledUserIsSilent(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, "d@example.com", "password-d", "")
	require.NoError(t, h.store.SetEnabled(reg.User.ID, false))

	require.NoError(t, h.svc.SendResetPasswordLink(context.Background(), "d@example.com", ""))
	assert.Empty(t, h.mailer.messages())
}

func TestSendResetPasswordLink_Sends(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg := h.register(t, "b@example.com", "password-b", "")

	require.NoError(t, h.svc.SendResetPasswordLink(ctx, " B@example.com", "1.2.3.4"))

	msgs := h.mailer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "b@example.com", msgs[0].Email)
	assert.Equal(t, testStart.Add(resetTTL), msgs[0].Expires)
	assert.True(t, strings.HasPrefix(msgs[0].Link, "https://app.example/reset-password?token="))

	token, err := h.reset.Validate(ctx, h.lastResetToken(t))
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, token.UserID)
	assert.Equal(t, "1.2.3.4", token.RequestIP)
}

func TestSendResetPasswordLink_MailFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.register(t, "b@example.com", "password-b", "")
	h.mailer.err = errMailDown

	require.NoError(t, h.svc.SendResetPasswordLink(context.Background(), "b@example.com", ""))
	_, err := h.reset.Validate(context.Background(), h.lastResetToken(t))
	assert.NoError(t, err, "token is issued even if delivery failed")
}

// Reset for B revokes every refresh token previously issued to B.
func TestResetPassword_RevokesAllRefreshTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	b1 := h.register(t, "b@example.com", "old-password", "laptop")
	b2, err := h.svc.Login(ctx, "b@example.com", "old-password", "phone")
	require.NoError(t, err)
	c := h.register(t, "c@example.com", "password-c", "")

	require.NoError(t, h.svc.SendResetPasswordLink(ctx, "b@example.com", ""))
	resetToken := h.lastResetToken(t)

	require.NoError(t, h.svc.ResetPassword(ctx, resetToken, "new-password"))

	for _, v := range []string{b1.RefreshToken, b2.RefreshToken} {
		_, err := h.refresh.Validate(ctx, v)
		assert.ErrorIs(t, err, common.ErrTokenRevoked)
	}
	_, err = h.refresh.Validate(ctx, c.RefreshToken)
	assert.NoError(t, err)

	_, err = h.svc.Login(ctx, "b@example.com", "old-password", "")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	_, err = h.svc.Login(ctx, "b@example.com", "new-password", "")
	assert.NoError(t, err)

	err = h.svc.ResetPassword(ctx, resetToken, "another-password")
	assert.ErrorIs(t, err, common.ErrInvalidResetToken, "reset tokens are single-use")
}

func TestResetPassword_Failures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "b@example.com", "old-password", "")
	require.NoError(t, h.svc.SendResetPasswordLink(ctx, "b@example.com", ""))
	resetToken := h.lastResetToken(t)

	assert.ErrorIs(t, h.svc.ResetPassword(ctx, resetToken, ""), common.ErrValidation)
	assert.ErrorIs(t, h.svc.ResetPassword(ctx, "bogus", "new-password"), common.ErrInvalidResetToken)
	assert.ErrorIs(t, h.svc.ResetPassword(ctx, "", "new-password"), common.ErrInvalidResetToken)

	h.clock.Advance(resetTTL + time.Second)
	err := h.svc.ResetPassword(ctx, resetToken, "new-password")
	assert.ErrorIs(t, err, common.ErrInvalidResetToken)
	assert.ErrorContains(t, err, "expired")

	_, err = h.svc.Login(ctx, "b@example.com", "old-password", "")
	assert.NoError(t, err, "failed reset leaves the password alone")
}

func TestResetPassword_ConcurrentRedemption(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "b@example.com", "old-password", "")
	require.NoError(t, h.svc.SendResetPasswordLink(ctx, "b@example.com", ""))
	resetToken := h.lastResetToken(t)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.svc.ResetPassword(ctx, resetToken, "new-password")
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, common.ErrInvalidResetToken)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestAuthEventsMetrics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "m@example.com", "password-m", "")

	_, _ = h.svc.Login(ctx, "m@example.com", "nope", "")
	_, _ = h.svc.Login(ctx, "m@example.com", "password-m", "")
	_ = h.svc.SendResetPasswordLink(ctx, "ghost@example.com", "")

	reg := h.metrics.Registry()
	n, err := testutil.GatherAndCount(reg, "authkeeper_auth_events_total")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "authkeeper_auth_events_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			var op, result string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "operation":
					op = l.GetValue()
				case "result":
					result = l.GetValue()
				}
			}
			counts[op+"/"+result] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{
		"register/success":          1,
		"login/invalid_credentials": 1,
		"login/success":             1,
		"forgot_password/success":   1,
	}, counts)
}
