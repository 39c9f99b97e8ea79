package activities

import (
	"encoding/json"

	"github.com/google/go-github/v58/github"

	"github.com/imranansari/fork-deploy/uploads"
)

// ForkVerification is the outcome of looking up <account>/<reference repo>.
// IsFork is only meaningful when Exists is true.
type ForkVerification struct {
	Exists     bool               `json:"exists"`
	IsFork     bool               `json:"fork"`
	Repository *github.Repository `json:"-"`
}

// ProvisionInput describes the service to create for one account
type ProvisionInput struct {
	Account     string            `json:"account"`
	ServiceName string            `json:"service_name"`
	Artifact    *uploads.Artifact `json:"artifact,omitempty"`
}

// ProvisionResult is the provider's answer to a create-service request
type ProvisionResult struct {
	ServiceID string          `json:"service_id"`
	Raw       json.RawMessage `json:"raw"`
}

// LogBatch is the raw outcome of one log poll
type LogBatch struct {
	Logs []json.RawMessage `json:"logs"`
}

// RemoteCallError marks a failure of an outbound call and keeps the provider
// payload for diagnosis.
type RemoteCallError struct {
	Op      string
	Payload json.RawMessage
	Err     error
}

func (e *RemoteCallError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}
