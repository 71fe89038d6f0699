package common

import "errors"

// Kind enumerates the failure classes the auth core can report. Callers at
// the transport boundary switch on Kind instead of inspecting error types.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidCredentials
	KindAccountAlreadyExists
	KindInvalidToken
	KindTokenExpired
	KindTokenRevoked
	KindInvalidResetToken
	KindForbidden
	KindNotFound
	KindValidation
	KindInternal
)

var kindNames = map[Kind]string{
	KindUnknown:              "UNKNOWN",
	KindInvalidCredentials:   "INVALID_CREDENTIALS",
	KindAccountAlreadyExists: "ACCOUNT_ALREADY_EXISTS",
	KindInvalidToken:         "INVALID_TOKEN",
	KindTokenExpired:         "TOKEN_EXPIRED",
	KindTokenRevoked:         "TOKEN_REVOKED",
	KindInvalidResetToken:    "INVALID_RESET_TOKEN",
	KindForbidden:            "FORBIDDEN",
	KindNotFound:             "NOT_FOUND",
	KindValidation:           "VALIDATION_ERROR",
	KindInternal:             "INTERNAL_ERROR",
}

// String returns the wire code of the kind, e.g. "TOKEN_REVOKED".
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// Error is a sentinel error tagged with a Kind.
type Error struct {
	kind Kind
	msg  string
}

// NewError creates a sentinel error of the given kind.
func NewError(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind reports the error kind.
func (e *Error) Kind() Kind { return e.kind }

// KindOf returns the kind of the first *Error found in err's chain,
// KindUnknown if there is none.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}
