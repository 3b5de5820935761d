package core

import "errors"

var (
	// ErrMissingCredentials is returned when a mail or registry credential is not configured
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrNotFound is returned when a stored entry does not exist
	ErrNotFound = errors.New("not found")
	// ErrMissingRecipient is returned when a run has nowhere to send its mail
	ErrMissingRecipient = errors.New("missing recipient")
)
