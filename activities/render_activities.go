package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/imranansari/fork-deploy/config"
	"github.com/imranansari/fork-deploy/render"
)

// Environment entries handed to the provisioned service when a credentials file was uploaded
const (
	EnvCredsFilePath   = "CREDS_FILE_PATH"
	EnvCredsFileName   = "CREDS_FILE_NAME"
	EnvCredsFileSHA256 = "CREDS_FILE_SHA256"
)

// RenderActivities contains Render-related activities
type RenderActivities struct {
	client   *render.Client
	service  config.RenderConfig
	upstream config.UpstreamConfig
	logger   zerolog.Logger
}

// NewRenderActivities creates Render activities. Missing credentials are not
// an error here: the activities report Configured() == false instead.
func NewRenderActivities(cfg config.RenderConfig, upstream config.UpstreamConfig, logger zerolog.Logger) (*RenderActivities, error) {
	a := &RenderActivities{
		service:  cfg,
		upstream: upstream,
		logger:   logger,
	}
	if !cfg.Configured() {
		logger.Warn().Msg("Render API key or owner id missing, deploy and log endpoints are disabled")
		return a, nil
	}

	client, err := render.NewClient(render.Config{
		BaseURL: cfg.APIURL,
		Token:   cfg.APIKey,
		OwnerID: cfg.OwnerID,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Render client: %w", err)
	}
	a.client = client
	return a, nil
}

// Configured reports whether Render calls can be made
func (a *RenderActivities) Configured() bool {
	return a.client != nil
}

// RepoURL is the repository the service is built from
func (a *RenderActivities) RepoURL(account string) string {
	return fmt.Sprintf("https://github.com/%s/%s", url.PathEscape(account), url.PathEscape(a.upstream.Repo))
}

// ProvisionService creates a web service from the account's fork
func (a *RenderActivities) ProvisionService(ctx context.Context, input ProvisionInput) (*ProvisionResult, error) {
	if a.client == nil {
		return nil, fmt.Errorf("RENDER_API_KEY and RENDER_OWNER_ID must be set: %w", ErrNotConfigured)
	}

	logger := a.logger.With().
		Str("account", input.Account).
		Str("service_name", input.ServiceName).
		Logger()

	req := &render.CreateServiceRequest{
		Type:       "web_service",
		Name:       input.ServiceName,
		Repo:       a.RepoURL(input.Account),
		Branch:     a.upstream.Branch,
		AutoDeploy: "yes",
		EnvVars:    artifactEnvVars(input),
		ServiceDetails: render.ServiceDetails{
			Runtime: a.service.Runtime,
			Plan:    a.service.Plan,
			Region:  a.service.Region,
			EnvSpecificDetails: render.EnvSpecificDetails{
				BuildCommand: a.service.BuildCommand,
				StartCommand: a.service.StartCommand,
			},
		},
	}

	logger.Info().Str("repo", req.Repo).Str("branch", req.Branch).Msg("Creating Render service")

	created, err := a.client.Services.Create(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create Render service")
		return nil, &RemoteCallError{
			Op:      "provision service",
			Payload: renderPayload(err),
			Err:     err,
		}
	}

	if created.Service.ID == "" {
		return nil, &RemoteCallError{
			Op:      "provision service",
			Payload: created.Raw,
			Err:     fmt.Errorf("provider response carried no service id"),
		}
	}

	logger.Info().
		Str("service_id", created.Service.ID).
		Str("deploy_id", created.DeployID).
		Msg("Successfully created Render service")

	return &ProvisionResult{
		ServiceID: created.Service.ID,
		Raw:       created.Raw,
	}, nil
}

// FetchLogs reads at most limit recent log entries for a service
func (a *RenderActivities) FetchLogs(ctx context.Context, serviceID string, limit int) (*LogBatch, error) {
	if a.client == nil {
		return nil, fmt.Errorf("RENDER_API_KEY and RENDER_OWNER_ID must be set: %w", ErrNotConfigured)
	}

	page, err := a.client.Logs.List(ctx, serviceID, limit)
	if err != nil {
		return nil, &RemoteCallError{
			Op:      "fetch logs",
			Payload: renderPayload(err),
			Err:     err,
		}
	}
	return &LogBatch{Logs: page.Logs}, nil
}

func artifactEnvVars(input ProvisionInput) []render.EnvVar {
	if input.Artifact == nil {
		return nil
	}
	return []render.EnvVar{
		{Key: EnvCredsFilePath, Value: input.Artifact.Path},
		{Key: EnvCredsFileName, Value: input.Artifact.Filename},
		{Key: EnvCredsFileSHA256, Value: input.Artifact.SHA256},
	}
}

func renderPayload(err error) json.RawMessage {
	var apiErr *render.Error
	if errors.As(err, &apiErr) {
		return apiErr.Payload()
	}
	return quotedError(err)
}
