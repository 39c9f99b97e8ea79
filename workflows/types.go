package workflows

import (
	"context"
	"encoding/json"
	"time"

	"github.com/imranansari/fork-deploy/activities"
	"github.com/imranansari/fork-deploy/config"
	"github.com/imranansari/fork-deploy/uploads"
)

// ForkVerifier answers whether an account holds a fork of the upstream
type ForkVerifier interface {
	VerifyFork(ctx context.Context, account string) (*activities.ForkVerification, error)
}

// ForkCreator requests a fork of the upstream for an account
type ForkCreator interface {
	CreateFork(ctx context.Context, account string) error
}

// ServiceProvisioner creates the hosted service
type ServiceProvisioner interface {
	Configured() bool
	ProvisionService(ctx context.Context, input activities.ProvisionInput) (*activities.ProvisionResult, error)
}

// Options are the read-only settings a DeployWorkflow runs with
type Options struct {
	Mode              string
	Upstream          config.UpstreamConfig
	ForkSettleDelay   time.Duration
	ServiceNamePrefix string
	ServiceNameMaxLen int
}

// OptionsFromConfig picks the workflow settings out of the process config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Mode:              cfg.Deploy.Mode,
		Upstream:          cfg.Upstream,
		ForkSettleDelay:   cfg.Deploy.ForkSettleDelay,
		ServiceNamePrefix: cfg.Deploy.ServiceNamePrefix,
		ServiceNameMaxLen: cfg.Deploy.ServiceNameMaxLen,
	}
}

// DeployInput is one deploy request
type DeployInput struct {
	RequestID string            `json:"request_id"`
	Account   string            `json:"account"`
	Artifact  *uploads.Artifact `json:"artifact,omitempty"`
}

// DeployResult is returned once the provider accepted the service
type DeployResult struct {
	ServiceID   string          `json:"service_id"`
	ServiceName string          `json:"service_name"`
	Service     json.RawMessage `json:"service"`
	Forked      bool            `json:"forked"`
}

// CheckResult is the outcome of a fork check, with a message for the user
type CheckResult struct {
	Exists  bool   `json:"exists"`
	Fork    bool   `json:"fork"`
	Message string `json:"message"`
}
