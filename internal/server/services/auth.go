package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/mail"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// Operation names used as the "operation" metric label.
const (
	OpRegister       = "register"
	OpLogin          = "login"
	OpRefresh        = "refresh"
	OpLogout         = "logout"
	OpLogoutAll      = "logout_all"
	OpForgotPassword = "forgot_password"
	OpResetPassword  = "reset_password"
)

// RegisterInput is the data a new account is created from.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// AuthResult is returned by Register and Login. RefreshToken is the
// plaintext for the cookie and must not be put in a response body.
type AuthResult struct {
	AccessToken         string
	AccessTokenExpires  time.Time
	RefreshToken        string
	RefreshTokenExpires time.Time
	User                models.UserView
}

// RefreshResult is returned by Refresh.
type RefreshResult struct {
	AccessToken         string
	AccessTokenExpires  time.Time
	UserEmail           string
	RefreshToken        string
	RefreshTokenExpires time.Time
}

// AuthServiceDeps are the collaborators of AuthService.
type AuthServiceDeps struct {
	DB               dbx.Database
	Repos            repomanager.RepositoryManager
	Authenticator    *auth.Authenticator
	Issuer           *auth.TokenIssuer
	Hasher           auth.PasswordHasher
	RefreshTokens    *RefreshTokenStore
	ResetTokens      *ResetTokenStore
	Mailer           mail.Sender
	ResetLinkBaseURL string
	Clock            timex.Clock
	Metrics          *metrics.Metrics
	Logger           logging.Logger
}

// AuthService runs the register, login, refresh, logout and password reset
// flows. Store failures are passed through unchanged except in
// SendResetPasswordLink, which never reveals whether an account exists.
type AuthService struct {
	db       dbx.Database
	repos    repomanager.RepositoryManager
	authn    *auth.Authenticator
	issuer   *auth.TokenIssuer
	hasher   auth.PasswordHasher
	refresh  *RefreshTokenStore
	reset    *ResetTokenStore
	mailer   mail.Sender
	linkBase string
	clock    timex.Clock
	metrics  *metrics.Metrics
	log      logging.Logger
}

func NewAuthService(d AuthServiceDeps) *AuthService {
	log := d.Logger
	if log == nil {
		log = logging.Nop{}
	}
	clock := d.Clock
	if clock == nil {
		clock = timex.SystemClock{}
	}
	return &AuthService{
		db:       d.DB,
		repos:    d.Repos,
		authn:    d.Authenticator,
		issuer:   d.Issuer,
		hasher:   d.Hasher,
		refresh:  d.RefreshTokens,
		reset:    d.ResetTokens,
		mailer:   d.Mailer,
		linkBase: d.ResetLinkBaseURL,
		clock:    clock,
		metrics:  d.Metrics,
		log:      log.With("module", "auth"),
	}
}

// Register creates an account and signs it in on deviceInfo.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, deviceInfo string) (res *AuthResult, err error) {
	defer func() { s.observe(ctx, OpRegister, err) }()

	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", common.ErrValidation)
	}

	_, err = s.repos.Users(s.db.Conn()).GetUserByEmail(ctx, email)
	if err == nil {
		return nil, common.ErrAccountAlreadyExists
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	var (
		user  *models.User
		token *models.RefreshToken
	)
	err = s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = s.repos.Users(tx).Create(ctx, &models.User{
			Email:        email,
			Name:         strings.TrimSpace(in.Name),
			PasswordHash: hash,
			Role:         common.DefaultRole,
			Enabled:      true,
		})
		if err != nil {
			return err
		}
		token, err = s.refresh.Create(ctx, tx, user.ID, deviceInfo)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user registered", "user_id", user.ID)
	return s.signIn(user, token)
}

// Login checks the credentials and signs the user in on deviceInfo.
func (s *AuthService) Login(ctx context.Context, email, password, deviceInfo string) (res *AuthResult, err error) {
	defer func() { s.observe(ctx, OpLogin, err) }()

	user, err := s.authn.Lookup(ctx, normalizeEmail(email), password)
	if err != nil {
		return nil, err
	}

	s.upgradeHash(ctx, user, password)

	token, err := s.refresh.Create(ctx, s.db.Conn(), user.ID, deviceInfo)
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user logged in", "user_id", user.ID)
	return s.signIn(user, token)
}

// Refresh rotates the presented refresh token and mints a new access token
// for its owner. The owner comes from the token record, so an expired
// access token does not matter.
func (s *AuthService) Refresh(ctx context.Context, value, deviceInfo string) (res *RefreshResult, err error) {
	defer func() { s.observe(ctx, OpRefresh, err) }()

	next, user, err := s.refresh.Rotate(ctx, value, deviceInfo, s.resolveOwner)
	if err != nil {
		return nil, err
	}

	access, expires, err := s.issuer.Mint(user.Principal())
	if err != nil {
		return nil, oops.Code("ACCESS_TOKEN_MINT_FAILED").With("user_id", user.ID).Wrap(err)
	}

	return &RefreshResult{
		AccessToken:         access,
		AccessTokenExpires:  expires,
		UserEmail:           user.Email,
		RefreshToken:        next.Token,
		RefreshTokenExpires: next.Expires,
	}, nil
}

// Logout revokes one refresh token. Unknown or revoked tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, value string) (err error) {
	defer func() { s.observe(ctx, OpLogout, err) }()
	return s.refresh.Revoke(ctx, value)
}

// LogoutAll revokes every refresh token of userID.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (err error) {
	defer func() { s.observe(ctx, OpLogoutAll, err) }()

	n, err := s.refresh.RevokeAll(ctx, s.db.Conn(), userID)
	if err != nil {
		return err
	}
	s.log.Info(ctx, "all sessions revoked", "user_id", userID, "count", n)
	return nil
}

// SendResetPasswordLink emails a reset link when email belongs to an enabled
// account. It returns nil for unknown emails and when delivery fails, so
// callers cannot probe for accounts.
func (s *AuthService) SendResetPasswordLink(ctx context.Context, email, requestIP string) (err error) {
	defer func() { s.observe(ctx, OpForgotPassword, err) }()

	user, err := s.repos.Users(s.db.Conn()).GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Debug(ctx, "password reset requested for unknown email")
			return nil
		}
		return err
	}
	if !user.Enabled {
		s.log.Debug(ctx, "password reset requested for disabled user", "user_id", user.ID)
		return nil
	}

	token, err := s.reset.Create(ctx, user.ID, requestIP)
	if err != nil {
		return err
	}

	link, err := mail.ResetLink(s.linkBase, token.Token)
	if err != nil {
		return err
	}

	msg := mail.ResetMessage{Email: user.Email, Link: link, Expires: token.Expires}
	if err := s.mailer.SendPasswordReset(ctx, msg); err != nil {
		s.log.Error(ctx, "password reset email failed",
			append([]any{"user_id", user.ID}, logging.ErrorAttrs(err)...)...)
	}
	return nil
}

// ResetPassword redeems a reset token: the token is consumed, the password
// replaced and every refresh token of the user revoked, all in one
// transaction.
func (s *AuthService) ResetPassword(ctx context.Context, value, newPassword string) (err error) {
	defer func() { s.observe(ctx, OpResetPassword, err) }()

	if newPassword == "" {
		return fmt.Errorf("%w: password is required", common.ErrValidation)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	var (
		userID  string
		revoked int64
	)
	err = s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		token, err := s.reset.validate(ctx, tx, value, s.clock.Now())
		if err != nil {
			return err
		}
		if err := s.reset.MarkUsed(ctx, tx, token); err != nil {
			return err
		}

		if err := s.repos.Users(tx).UpdatePasswordHash(ctx, token.UserID, hash); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return fmt.Errorf("%w: user not found", common.ErrInvalidResetToken)
			}
			return err
		}

		userID = token.UserID
		revoked, err = s.refresh.RevokeAll(ctx, tx, token.UserID)
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info(ctx, "password reset", "user_id", userID, "sessions_revoked", revoked)
	return nil
}

func (s *AuthService) signIn(user *models.User, token *models.RefreshToken) (*AuthResult, error) {
	access, expires, err := s.issuer.Mint(user.Principal())
	if err != nil {
		return nil, oops.Code("ACCESS_TOKEN_MINT_FAILED").With("user_id", user.ID).Wrap(err)
	}
	return &AuthResult{
		AccessToken:         access,
		AccessTokenExpires:  expires,
		RefreshToken:        token.Token,
		RefreshTokenExpires: token.Expires,
		User:                user.View(),
	}, nil
}

// resolveOwner maps a missing or disabled owner to ErrInvalidToken.
func (s *AuthService) resolveOwner(ctx context.Context, tx dbx.DBTX, userID string) (*models.User, error) {
	user, err := s.repos.Users(tx).GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}
	if !user.Enabled {
		return nil, common.ErrInvalidToken
	}
	return user, nil
}

// upgradeHash rehashes a password stored with outdated parameters. Failures
// are logged and do not fail the login.
func (s *AuthService) upgradeHash(ctx context.Context, user *models.User, password string) {
	if !s.hasher.NeedsUpgrade(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.repos.Users(s.db.Conn()).UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		s.log.Warn(ctx, "password hash upgrade failed", append([]any{"user_id", user.ID}, logging.ErrorAttrs(err)...)...)
		return
	}
	user.PasswordHash = hash
}

// observe records the outcome of op. Client errors are logged at debug,
// anything without a known kind at error level.
func (s *AuthService) observe(ctx context.Context, op string, err error) {
	s.metrics.RecordAuthEvent(op, err)
	if err == nil {
		return
	}
	switch common.KindOf(err) {
	case common.KindUnknown, common.KindInternal:
		s.log.Error(ctx, op+" failed", logging.ErrorAttrs(err)...)
	default:
		s.log.Debug(ctx, op+" rejected", "reason", common.KindOf(err).String())
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
