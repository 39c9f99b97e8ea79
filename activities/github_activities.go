package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/go-github/v58/github"
	"github.com/rs/zerolog"

	"github.com/imranansari/fork-deploy/config"
	githubClient "github.com/imranansari/fork-deploy/github"
)

var (
	// ErrNotConfigured is returned when a provider call needs credentials that were not supplied
	ErrNotConfigured = errors.New("provider credentials not configured")

	// ErrInvalidAccount is returned for names GitHub would never issue as a login
	ErrInvalidAccount = errors.New("invalid GitHub account name")
)

var loginPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]{0,38}$`)

// ValidAccount reports whether name has the shape of a GitHub login. Names
// that fail it are never placed into an API path.
func ValidAccount(name string) bool {
	return loginPattern.MatchString(name)
}

// GitHubActivities contains GitHub-related activities
type GitHubActivities struct {
	clientFactory   *githubClient.ClientFactory
	upstream        config.UpstreamConfig
	forkIntoAccount bool
	logger          zerolog.Logger
}

// NewGitHubActivities creates a new instance of GitHub activities
func NewGitHubActivities(clientFactory *githubClient.ClientFactory, upstream config.UpstreamConfig, forkIntoAccount bool, logger zerolog.Logger) *GitHubActivities {
	return &GitHubActivities{
		clientFactory:   clientFactory,
		upstream:        upstream,
		forkIntoAccount: forkIntoAccount,
		logger:          logger,
	}
}

// VerifyFork looks up <account>/<reference repo> and checks its parent.
// A 404 is a normal outcome and yields Exists=false with no error.
func (a *GitHubActivities) VerifyFork(ctx context.Context, account string) (*ForkVerification, error) {
	if !ValidAccount(account) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAccount, account)
	}

	logger := a.logger.With().Str("account", account).Str("repo", a.upstream.Repo).Logger()

	client, err := a.clientFactory.CreateClient(ctx)
	if err != nil {
		return nil, &RemoteCallError{Op: "verify fork", Err: fmt.Errorf("failed to create GitHub client: %w", err)}
	}

	repo, resp, err := client.Repositories.Get(ctx, url.PathEscape(account), url.PathEscape(a.upstream.Repo))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			logger.Info().Msg("Repository not found under account")
			return &ForkVerification{Exists: false, IsFork: false}, nil
		}
		logger.Error().Err(err).Msg("Failed to look up repository")
		return nil, &RemoteCallError{
			Op:      "verify fork",
			Payload: githubPayload(err),
			Err:     fmt.Errorf("failed to get repository: %w", err),
		}
	}

	result := &ForkVerification{
		Exists:     true,
		IsFork:     isForkOf(repo, a.upstream.FullName()),
		Repository: repo,
	}

	logger.Info().
		Bool("fork", repo.GetFork()).
		Str("parent", repo.GetParent().GetFullName()).
		Bool("verified", result.IsFork).
		Msg("Repository found under account")

	return result, nil
}

// CreateFork asks GitHub to fork the upstream repository. GitHub performs the
// fork asynchronously and answers 202, which is treated as success as long as
// the announced fork lands under account.
func (a *GitHubActivities) CreateFork(ctx context.Context, account string) error {
	if !ValidAccount(account) {
		return fmt.Errorf("%w: %q", ErrInvalidAccount, account)
	}
	if !a.clientFactory.HasCredentials() {
		return fmt.Errorf("GitHub credentials are required to create forks: %w", ErrNotConfigured)
	}

	client, err := a.clientFactory.CreateClient(ctx)
	if err != nil {
		return &RemoteCallError{Op: "create fork", Err: fmt.Errorf("failed to create GitHub client: %w", err)}
	}

	opts := &github.RepositoryCreateForkOptions{}
	if a.forkIntoAccount {
		opts.Organization = account
	}

	fork, _, err := client.Repositories.CreateFork(ctx, url.PathEscape(a.upstream.Owner), url.PathEscape(a.upstream.Repo), opts)
	var accepted *github.AcceptedError
	if err != nil && !errors.As(err, &accepted) {
		a.logger.Error().Err(err).Str("account", account).Msg("Failed to create fork")
		return &RemoteCallError{
			Op:      "create fork",
			Payload: githubPayload(err),
			Err:     fmt.Errorf("failed to create fork: %w", err),
		}
	}

	// Without an organization GitHub forks into the token owner's namespace
	owner := fork.GetOwner().GetLogin()
	if !strings.EqualFold(owner, account) {
		a.logger.Error().
			Str("account", account).
			Str("fork", fork.GetFullName()).
			Msg("Fork created outside the requesting account")
		var payload json.RawMessage
		if accepted != nil && json.Valid(accepted.Raw) {
			payload = accepted.Raw
		} else if data, mErr := json.Marshal(fork); mErr == nil {
			payload = data
		}
		return &RemoteCallError{
			Op:      "create fork",
			Payload: payload,
			Err:     fmt.Errorf("fork was created as %q, not under %s", fork.GetFullName(), account),
		}
	}

	a.logger.Info().
		Str("account", account).
		Str("upstream", a.upstream.FullName()).
		Str("fork", fork.GetFullName()).
		Msg("Fork requested")

	return nil
}

func isForkOf(repo *github.Repository, upstreamFullName string) bool {
	if !repo.GetFork() {
		return false
	}
	parent := repo.GetParent()
	if parent == nil || parent.GetFullName() == "" {
		return false
	}
	return strings.EqualFold(parent.GetFullName(), upstreamFullName)
}

// githubPayload extracts the API error body for diagnostics
func githubPayload(err error) json.RawMessage {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) {
		if data, mErr := json.Marshal(errResp); mErr == nil {
			return data
		}
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		if data, mErr := json.Marshal(rateErr); mErr == nil {
			return data
		}
	}
	return quotedError(err)
}

func quotedError(err error) json.RawMessage {
	data, _ := json.Marshal(err.Error())
	return data
}
