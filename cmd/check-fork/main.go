package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/imranansari/fork-deploy/activities"
	"github.com/imranansari/fork-deploy/config"
	githubClient "github.com/imranansari/fork-deploy/github"
	"github.com/imranansari/fork-deploy/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFiles []string
		username string
		timeout  time.Duration
		asJSON   bool
	)

	flagSet := pflag.NewFlagSet("check-fork", pflag.ContinueOnError)
	flagSet.StringSliceVar(&envFiles, "env-file", nil, "load environment from these .env files (default: ./.env if present)")
	flagSet.StringVarP(&username, "username", "u", "", "GitHub account expected to hold the fork")
	flagSet.DurationVar(&timeout, "timeout", 15*time.Second, "overall request timeout")
	flagSet.BoolVar(&asJSON, "json", false, "print the verification as JSON")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if username == "" && flagSet.NArg() > 0 {
		username = flagSet.Arg(0)
	}
	if username == "" {
		return fmt.Errorf("username is required: pass --username or a positional argument")
	}

	cfg, err := config.Load(envFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.InitLogger(cfg.App.LogLevel, "console")

	factory := githubClient.NewClientFactory(cfg.GitHub, cfg.Secrets.GitHubPrivateKey, logging.GitHubLogger())
	verifier := activities.NewGitHubActivities(factory, cfg.Upstream, cfg.GitHub.ForkIntoAccount, logging.GitHubLogger())

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fmt.Printf("Checking %s/%s for a fork of %s...\n", username, cfg.Upstream.Repo, cfg.Upstream.FullName())

	result, err := verifier.VerifyFork(ctx, username)
	if err != nil {
		var callErr *activities.RemoteCallError
		if errors.As(err, &callErr) && len(callErr.Payload) > 0 {
			fmt.Fprintf(os.Stderr, "GitHub response: %s\n", callErr.Payload)
		}
		return fmt.Errorf("failed to verify fork: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	switch {
	case result.Exists && result.IsFork:
		fmt.Printf("✓ Fork confirmed: %s\n", result.Repository.GetHTMLURL())
	case result.Exists:
		fmt.Printf("✗ %s/%s exists but is not a fork of %s\n", username, cfg.Upstream.Repo, cfg.Upstream.FullName())
		fmt.Printf("  Fork it here: %s\n", cfg.Upstream.ForkURL())
	default:
		fmt.Printf("✗ Repository not found under %s\n", username)
		fmt.Printf("  Fork it here: %s\n", cfg.Upstream.ForkURL())
	}
	return nil
}
