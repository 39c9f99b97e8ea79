package workflows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/imranansari/fork-deploy/activities"
	"github.com/imranansari/fork-deploy/config"
	"github.com/imranansari/fork-deploy/logging"
)

// DeployWorkflow chains fork verification, optional fork creation and
// service provisioning into a single request/response cycle.
type DeployWorkflow struct {
	verifier    ForkVerifier
	creator     ForkCreator
	provisioner ServiceProvisioner
	opts        Options

	sleep func(ctx context.Context, d time.Duration) error
}

// NewDeployWorkflow wires the workflow to its remote activities
func NewDeployWorkflow(verifier ForkVerifier, creator ForkCreator, provisioner ServiceProvisioner, opts Options) *DeployWorkflow {
	if opts.Mode == "" {
		opts.Mode = config.ModeReject
	}
	return &DeployWorkflow{
		verifier:    verifier,
		creator:     creator,
		provisioner: provisioner,
		opts:        opts,
		sleep:       sleepContext,
	}
}

// Mode returns the orchestration mode the workflow was built with
func (w *DeployWorkflow) Mode() string {
	return w.opts.Mode
}

// CheckFork reports whether the account holds a verified fork. A missing
// repository is a normal result, not an error.
func (w *DeployWorkflow) CheckFork(ctx context.Context, requestID, account string) (*CheckResult, error) {
	account, err := normalizeAccount(account)
	if err != nil {
		return nil, err
	}

	logger := logging.WorkflowLogger(requestID, account)

	verification, err := w.verifier.VerifyFork(ctx, account)
	if err != nil {
		logger.Error().Err(err).Msg("Fork check failed")
		return nil, remoteError(KindVerifier, "Server error while checking GitHub.", err)
	}

	result := &CheckResult{
		Exists:  verification.Exists,
		Fork:    verification.Exists && verification.IsFork,
		Message: w.guidance(account, verification),
	}

	logger.Info().
		Bool("exists", result.Exists).
		Bool("fork", result.Fork).
		Msg("Fork check completed")

	return result, nil
}

// Deploy runs verify → (fork + settle delay) → provision.
//
// In autofork mode the settle delay is the only synchronisation with GitHub's
// asynchronous fork: nothing confirms the fork is queryable before the
// provider is asked to build from it.
func (w *DeployWorkflow) Deploy(ctx context.Context, input DeployInput) (*DeployResult, error) {
	account, err := normalizeAccount(input.Account)
	if err != nil {
		return nil, err
	}
	if !w.provisioner.Configured() {
		return nil, &ConfigError{Message: "Render is not configured: set RENDER_API_KEY and RENDER_OWNER_ID."}
	}

	logger := logging.WorkflowLogger(input.RequestID, account)
	startTime := time.Now()

	logger.Info().
		Str("mode", w.opts.Mode).
		Bool("has_artifact", input.Artifact != nil).
		Msg("Starting deploy workflow")

	// 1. Verify the fork
	verification, err := w.verifier.VerifyFork(ctx, account)
	if err != nil {
		logger.Error().Err(err).Msg("Fork verification failed")
		return nil, remoteError(KindVerifier, "Server error while checking GitHub.", err)
	}

	// 2. Branch on the verification outcome
	forked := false
	switch {
	case !verification.Exists && w.opts.Mode == config.ModeAutoFork:
		logger.Info().Msg("Repository absent, requesting fork")
		if err := w.creator.CreateFork(ctx, account); err != nil {
			logger.Error().Err(err).Msg("Fork creation failed")
			return nil, remoteError(KindCreator, "Failed to create fork.", err)
		}
		forked = true

		logger.Info().Dur("settle_delay", w.opts.ForkSettleDelay).Msg("Waiting for fork to settle")
		if err := w.sleep(ctx, w.opts.ForkSettleDelay); err != nil {
			return nil, fmt.Errorf("fork settle wait interrupted: %w", err)
		}

	case !verification.Exists:
		logger.Info().Msg("Repository absent, rejecting deploy")
		return nil, &ClientError{Reason: ErrForkMissing, Message: w.guidance(account, verification)}

	case !verification.IsFork:
		logger.Info().Msg("Repository is not a fork of the upstream, rejecting deploy")
		return nil, &ClientError{Reason: ErrUnverifiedFork, Message: w.guidance(account, verification)}
	}

	// 3. Provision the service
	serviceName := ServiceName(w.opts.ServiceNamePrefix+"-"+account, w.opts.ServiceNameMaxLen)

	provisioned, err := w.provisioner.ProvisionService(ctx, activities.ProvisionInput{
		Account:     account,
		ServiceName: serviceName,
		Artifact:    input.Artifact,
	})
	if err != nil {
		logger.Error().Err(err).Str("service_name", serviceName).Msg("Provisioning failed")
		return nil, remoteError(KindProvisioner, "Failed to start deployment.", err)
	}

	logger.Info().
		Str("service_id", provisioned.ServiceID).
		Str("service_name", serviceName).
		Bool("forked", forked).
		Dur("duration", time.Since(startTime)).
		Msg("Deploy workflow completed")

	return &DeployResult{
		ServiceID:   provisioned.ServiceID,
		ServiceName: serviceName,
		Service:     provisioned.Raw,
		Forked:      forked,
	}, nil
}

// guidance builds the user-facing message for a verification outcome
func (w *DeployWorkflow) guidance(account string, v *activities.ForkVerification) string {
	forkURL := w.opts.Upstream.ForkURL()
	switch {
	case v.Exists && v.IsFork:
		return "Fork confirmed. You may deploy."
	case v.Exists:
		return fmt.Sprintf("Repo found under %s but not recognized as a fork of %s. Fork it here: %s",
			account, w.opts.Upstream.FullName(), forkURL)
	default:
		return fmt.Sprintf("Repo not found under %s. Fork %s here: %s then come back.",
			account, w.opts.Upstream.FullName(), forkURL)
	}
}

// normalizeAccount trims the account and rejects anything that is not a
// GitHub login before it can reach an outbound URL.
func normalizeAccount(raw string) (string, error) {
	account := strings.TrimSpace(raw)
	if account == "" {
		return "", validationError("Username required.")
	}
	if !activities.ValidAccount(account) {
		return "", validationError("Invalid GitHub username.")
	}
	return account, nil
}

// remoteError converts an activity failure into the client-facing shape.
// Missing credentials surface as a configuration error instead.
func remoteError(kind, message string, err error) error {
	if errors.Is(err, activities.ErrNotConfigured) {
		return &ConfigError{Message: fmt.Sprintf("%s %v", message, err)}
	}

	re := &RemoteError{Kind: kind, Message: message, Err: err}
	var callErr *activities.RemoteCallError
	if errors.As(err, &callErr) {
		re.Detail = callErr.Payload
	}
	return re
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
