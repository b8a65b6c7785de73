package apperrors

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrAdapterUnavailable = errors.New("no active database connection")
	ErrUnknownDialect     = errors.New("unsupported database type")
	ErrQueryTimeout       = errors.New("query timed out")
	ErrRetriesExhausted   = errors.New("retry budget exhausted")
	ErrDangerousOperation = errors.New("dangerous operation not permitted")
	ErrValidationFailed   = errors.New("generated SQL failed validation")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrPoolClosed         = errors.New("connection pool closed")
)
