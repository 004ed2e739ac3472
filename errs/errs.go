package errs

import (
	"errors"
)

var (
	// ErrNoAccounts indicates that the configuration lists no accounts to process.
	ErrNoAccounts = errors.New("no accounts configured")
	// ErrInvalidConfig indicates that the configuration failed validation.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrSignRejected indicates that the site answered the sign-in request with a failure.
	ErrSignRejected = errors.New("sign-in rejected")
	// ErrNotifyFailed indicates that a notification could not be delivered.
	ErrNotifyFailed = errors.New("notification failed")
	// ErrUnknownEngine indicates that a script engine name is not supported.
	ErrUnknownEngine = errors.New("unknown script engine")
)
