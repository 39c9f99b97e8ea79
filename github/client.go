package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v58/github"
	"github.com/rs/zerolog"

	"github.com/imranansari/fork-deploy/config"
)

// ClientFactory creates authenticated GitHub clients
type ClientFactory struct {
	config     config.GitHubConfig
	privateKey []byte
	logger     zerolog.Logger
	transport  http.RoundTripper

	// mu is held while the shared client is built, including the
	// installation lookup for app auth, so concurrent first callers wait.
	mu     sync.Mutex
	client *github.Client
	// Cache for installation IDs by account login
	installationCache map[string]int64
}

// NewClientFactory creates a new GitHub client factory
func NewClientFactory(cfg config.GitHubConfig, privateKey []byte, logger zerolog.Logger) *ClientFactory {
	return &ClientFactory{
		config:            cfg,
		privateKey:        privateKey,
		logger:            logger,
		transport:         http.DefaultTransport,
		installationCache: make(map[string]int64),
	}
}

// CreateClient returns the shared client, building it on first use.
// GitHub App credentials win over a personal token; with neither the
// client is anonymous, which is enough for public repository reads.
func (f *ClientFactory) CreateClient(ctx context.Context) (*github.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client != nil {
		return f.client, nil
	}

	var (
		client *github.Client
		err    error
	)
	switch {
	case f.config.AppID != 0:
		client, err = f.createAppClient(ctx)
	case f.config.Token != "":
		client = github.NewClient(&http.Client{Transport: f.transport}).WithAuthToken(f.config.Token)
	default:
		client = github.NewClient(&http.Client{Transport: f.transport})
	}
	if err != nil {
		return nil, err
	}

	if err := f.applyEnterpriseURLs(client); err != nil {
		return nil, err
	}
	if f.config.UserAgent != "" {
		client.UserAgent = f.config.UserAgent
	}

	f.client = client
	return client, nil
}

// HasCredentials reports whether write calls such as forking can be authorized
func (f *ClientFactory) HasCredentials() bool {
	return f.config.AppID != 0 || f.config.Token != ""
}

func (f *ClientFactory) createAppClient(ctx context.Context) (*github.Client, error) {
	installationID := f.config.InstallationID
	if installationID == 0 {
		id, err := f.findInstallation(ctx, f.config.InstallationOwner)
		if err != nil {
			return nil, err
		}
		installationID = id
	}

	itr, err := ghinstallation.New(
		f.transport,
		f.config.AppID,
		installationID,
		f.privateKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create installation transport: %w", err)
	}
	if base := f.apiBaseURL(); base != "" {
		itr.BaseURL = strings.TrimSuffix(base, "/")
	}

	f.logger.Info().
		Int64("app_id", f.config.AppID).
		Int64("installation_id", installationID).
		Bool("using_enterprise", f.config.EnterpriseURL != "").
		Msg("GitHub installation client created successfully")

	return github.NewClient(&http.Client{Transport: itr}), nil
}

// findInstallation looks up the app installation for the given account login
func (f *ClientFactory) findInstallation(ctx context.Context, login string) (int64, error) {
	if login == "" {
		return 0, fmt.Errorf("GITHUB_INSTALLATION_ID or GITHUB_INSTALLATION_OWNER is required with GITHUB_APP_ID")
	}
	if installationID, exists := f.installationCache[login]; exists {
		return installationID, nil
	}

	atr, err := ghinstallation.NewAppsTransport(
		f.transport,
		f.config.AppID,
		f.privateKey,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create app transport: %w", err)
	}
	if base := f.apiBaseURL(); base != "" {
		atr.BaseURL = strings.TrimSuffix(base, "/")
	}

	appClient := github.NewClient(&http.Client{Transport: atr})
	if err := f.applyEnterpriseURLs(appClient); err != nil {
		return 0, err
	}

	installations, _, err := appClient.Apps.ListInstallations(ctx, &github.ListOptions{PerPage: 100})
	if err != nil {
		return 0, fmt.Errorf("failed to list app installations: %w", err)
	}

	for _, installation := range installations {
		if strings.EqualFold(installation.GetAccount().GetLogin(), login) {
			f.installationCache[login] = installation.GetID()

			f.logger.Info().
				Int64("app_id", f.config.AppID).
				Int64("installation_id", installation.GetID()).
				Str("account", login).
				Msg("Found GitHub App installation for account")

			return installation.GetID(), nil
		}
	}

	return 0, fmt.Errorf("no installation found for account '%s'", login)
}

// apiBaseURL returns the Enterprise REST root, or "" for GitHub.com
func (f *ClientFactory) apiBaseURL() string {
	if f.config.EnterpriseURL == "" {
		return ""
	}
	return strings.TrimSuffix(f.config.EnterpriseURL, "/") + "/api/v3/"
}

func (f *ClientFactory) applyEnterpriseURLs(client *github.Client) error {
	if f.config.EnterpriseURL == "" {
		return nil
	}

	baseURL := strings.TrimSuffix(f.config.EnterpriseURL, "/")

	var err error
	client.BaseURL, err = client.BaseURL.Parse(baseURL + "/api/v3/")
	if err != nil {
		return fmt.Errorf("invalid GitHub Enterprise URL %q: %w", f.config.EnterpriseURL, err)
	}
	client.UploadURL, err = client.UploadURL.Parse(baseURL + "/api/uploads/")
	if err != nil {
		return fmt.Errorf("invalid GitHub Enterprise URL %q: %w", f.config.EnterpriseURL, err)
	}
	return nil
}
