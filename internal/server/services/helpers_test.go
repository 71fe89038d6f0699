package services

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/mail"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

const (
	accessTTL  = 15 * time.Minute
	refreshTTL = 7 * 24 * time.Hour
	resetTTL   = 15 * time.Minute
)

var testStart = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.ResetMessage
	err  error
}

func (m *recordingMailer) SendPasswordReset(ctx context.Context, msg mail.ResetMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *recordingMailer) messages() []mail.ResetMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.ResetMessage(nil), m.sent...)
}

type harness struct {
	clock    *timex.ManualClock
	store    *memory.Store
	hasher   *auth.Argon2idHasher
	issuer   *auth.TokenIssuer
	refresh  *RefreshTokenStore
	reset    *ResetTokenStore
	sessions *SessionRegistry
	mailer   *recordingMailer
	metrics  *metrics.Metrics
	svc      *AuthService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := timex.NewManualClock(testStart)
	store := memory.NewStore(clock)
	hasher := auth.NewArgon2idHasher(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32})

	issuer, err := auth.NewTokenIssuer([]byte("test-secret"), accessTTL, clock)
	require.NoError(t, err)
	authn, err := auth.NewAuthenticator(store.Users(store.Conn()), hasher)
	require.NoError(t, err)

	h := &harness{
		clock:    clock,
		store:    store,
		hasher:   hasher,
		issuer:   issuer,
		refresh:  NewRefreshTokenStore(store, store, refreshTTL, clock),
		reset:    NewResetTokenStore(store, store, resetTTL, clock),
		sessions: NewSessionRegistry(store, store),
		mailer:   &recordingMailer{},
		metrics:  metrics.New(),
	}
	h.svc = NewAuthService(AuthServiceDeps{
		DB:               store,
		Repos:            store,
		Authenticator:    authn,
		Issuer:           issuer,
		Hasher:           hasher,
		RefreshTokens:    h.refresh,
		ResetTokens:      h.reset,
		Mailer:           h.mailer,
		ResetLinkBaseURL: "https://app.example/reset-password",
		Clock:            clock,
		Metrics:          h.metrics,
		Logger:           logging.Nop{},
	})
	return h
}

func (h *harness) register(t *testing.T, email, password, device string) *AuthResult {
	t.Helper()
	res, err := h.svc.Register(context.Background(), RegisterInput{Email: email, Password: password, Name: "Test"}, device)
	require.NoError(t, err)
	return res
}

// lastResetToken extracts the token from the most recent reset email.
func (h *harness) lastResetToken(t *testing.T) string {
	t.Helper()
	msgs := h.mailer.messages()
	require.NotEmpty(t, msgs, "no reset email sent")
	u, err := url.Parse(msgs[len(msgs)-1].Link)
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

var errMailDown = errors.New("smtp unavailable")
