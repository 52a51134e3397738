package gateway

import "errors"

var (
	ErrInvalidSignature    = errors.New("invalid_signature")
	ErrSecretNotConfigured = errors.New("secret_not_configured")
	ErrInvalidPayload      = errors.New("invalid_payload")
	ErrEventIgnored        = errors.New("event_ignored")
)
