package common

// Callers should use errors.Is to match these values; they are usually
// wrapped with extra context on the way up.
var (
	// Repository-level errors.
	ErrorNotFound = NewError(KindNotFound, "not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = NewError(KindInternal, "internal error")
	ErrValidation = NewError(KindValidation, "validation error")

	// Credential errors.
	ErrInvalidCredentials   = NewError(KindInvalidCredentials, "invalid credentials")
	ErrAccountAlreadyExists = NewError(KindAccountAlreadyExists, "account already exists")

	// Token lifecycle errors.
	ErrInvalidToken      = NewError(KindInvalidToken, "invalid token")
	ErrTokenExpired      = NewError(KindTokenExpired, "token expired")
	ErrTokenRevoked      = NewError(KindTokenRevoked, "token revoked")
	ErrInvalidResetToken = NewError(KindInvalidResetToken, "invalid or expired reset token")

	// Ownership errors.
	ErrForbidden = NewError(KindForbidden, "forbidden")
)
