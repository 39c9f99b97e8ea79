package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/imranansari/fork-deploy/activities"
	"github.com/imranansari/fork-deploy/config"
	githubClient "github.com/imranansari/fork-deploy/github"
	"github.com/imranansari/fork-deploy/logging"
	"github.com/imranansari/fork-deploy/relay"
	"github.com/imranansari/fork-deploy/server"
	"github.com/imranansari/fork-deploy/uploads"
	"github.com/imranansari/fork-deploy/workflows"
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
		port     int
		mode     string
	)

	flagSet := pflag.NewFlagSet("fork-deploy", pflag.ContinueOnError)
	flagSet.StringSliceVar(&envFiles, "env-file", nil, "load environment from these .env files (default: ./.env if present)")
	flagSet.IntVar(&port, "port", 0, "listen port (overrides PORT)")
	flagSet.StringVar(&mode, "mode", "", "deploy mode: reject or autofork (overrides DEPLOY_MODE)")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// Load configuration
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if flagSet.Changed("port") {
		cfg.Server.Port = port
	}
	if flagSet.Changed("mode") {
		cfg.Deploy.Mode = strings.ToLower(mode)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize logger
	logging.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	logger := logging.HTTPLogger()

	logger.Info().
		Str("environment", cfg.App.Environment).
		Str("mode", cfg.Deploy.Mode).
		Str("upstream", cfg.Upstream.FullName()).
		Str("github_enterprise_url", cfg.GitHub.EnterpriseURL).
		Bool("using_enterprise", cfg.GitHub.EnterpriseURL != "").
		Bool("render_configured", cfg.Render.Configured()).
		Msg("Starting fork-deploy")

	// Create GitHub client factory
	githubFactory := githubClient.NewClientFactory(cfg.GitHub, cfg.Secrets.GitHubPrivateKey, logging.GitHubLogger())
	if !githubFactory.HasCredentials() {
		logger.Warn().Msg("No GitHub credentials configured, using unauthenticated API access; autofork will be refused")
	}

	// Create activities
	githubActivities := activities.NewGitHubActivities(githubFactory, cfg.Upstream, cfg.GitHub.ForkIntoAccount, logging.GitHubLogger())
	renderActivities, err := activities.NewRenderActivities(cfg.Render, cfg.Upstream, logging.RenderLogger())
	if err != nil {
		return err
	}

	store, err := uploads.NewStore(cfg.Deploy.UploadDir, cfg.Deploy.MaxUploadBytes)
	if err != nil {
		return err
	}
	logger.Info().Str("upload_dir", store.Dir()).Msg("Upload store ready")

	workflow := workflows.NewDeployWorkflow(githubActivities, githubActivities, renderActivities, workflows.OptionsFromConfig(cfg))
	logRelay := relay.New(renderActivities, cfg.Logs.PollInterval, cfg.Logs.Limit)

	srv := server.New(workflow, logRelay, store, server.OptionsFromConfig(cfg), logger)

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: srv.Handler(),
	}

	// Handle graceful shutdown
	errChan := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received termination signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Log streams never finish on their own
	httpServer.RegisterOnShutdown(srv.CloseStreams)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Graceful shutdown timed out, closing connections")
		_ = httpServer.Close()
	}

	logger.Info().Msg("Server stopped gracefully")
	return nil
}
