package workflows

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input the client can fix; no remote call was made.
	ErrValidation = errors.New("validation failed")

	// ErrForkMissing means the account has no copy of the reference repository.
	ErrForkMissing = errors.New("repository not found")

	// ErrUnverifiedFork means the repository exists but does not descend from upstream.
	ErrUnverifiedFork = errors.New("repository is not a fork of the upstream")

	// ErrNotConfigured means provider credentials are missing from the process config.
	ErrNotConfigured = errors.New("service not configured")
)

// Remote call kinds
const (
	KindVerifier    = "verifier"
	KindCreator     = "creator"
	KindProvisioner = "provisioner"
)

// ClientError is a rejection the caller can correct. Message is safe to show.
type ClientError struct {
	Reason  error
	Message string
}

func (e *ClientError) Error() string {
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Reason
}

// RemoteError is a failed outbound call that aborts the whole request.
type RemoteError struct {
	Kind    string
	Message string
	Detail  json.RawMessage
	Err     error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// ConfigError reports which setting is missing.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

func (e *ConfigError) Unwrap() error {
	return ErrNotConfigured
}

func validationError(message string) error {
	return &ClientError{Reason: ErrValidation, Message: message}
}
