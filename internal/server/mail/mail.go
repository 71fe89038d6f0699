// Package mail delivers the password reset email. Only a logging transport
// ships; real transports implement Sender.
package mail

import (
	"context"
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// ResetMessage is the content of a password reset email.
type ResetMessage struct {
	Email   string
	Link    string
	Expires time.Time
}

// Sender delivers password reset emails.
type Sender interface {
	SendPasswordReset(ctx context.Context, msg ResetMessage) error
}

// ResetLink appends the token to base as the "token" query parameter.
func ResetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", oops.Code("MAIL_BAD_RESET_LINK").With("base", base).Wrap(err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// LogSender "delivers" by logging. The link, which carries the token, is
// only written at debug level.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log.With("module", "mail")}
}

func (s *LogSender) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info(ctx, "password reset email sent", "email", msg.Email, "expires", msg.Expires)
	s.log.Debug(ctx, "password reset link", "email", msg.Email, "link", msg.Link)
	return nil
}
