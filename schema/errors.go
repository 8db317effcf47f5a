package schema

import "errors"

var (
	// ErrInvalidConfig indicates a scheduler or server config failed validation.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrOperatorNotFound indicates an unknown operator name.
	ErrOperatorNotFound = errors.New("operator not found")
	// ErrOperatorExists indicates an operator already exists.
	ErrOperatorExists = errors.New("operator already exists")
	// ErrInvalidOperator indicates an invalid operator name.
	ErrInvalidOperator = errors.New("invalid operator name")
	// ErrBadCredentials indicates password or TOTP verification failed.
	ErrBadCredentials = errors.New("bad credentials")
	// ErrServerClosed indicates the server was already stopped.
	ErrServerClosed = errors.New("server closed")
)
