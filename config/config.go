package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/golang-jwt/jwt/v4"
	"github.com/joho/godotenv"

	"github.com/imranansari/fork-deploy/secrets"
)

// Config holds all configuration for the application
type Config struct {
	// Application Configuration
	App AppConfig `envPrefix:"APP_"`

	// HTTP Server Configuration
	Server ServerConfig

	// Reference repository users are expected to fork
	Upstream UpstreamConfig `envPrefix:"UPSTREAM_"`

	// GitHub Configuration
	GitHub GitHubConfig `envPrefix:"GITHUB_"`

	// Render Configuration
	Render RenderConfig `envPrefix:"RENDER_"`

	// Deployment orchestration
	Deploy DeployConfig `envPrefix:"DEPLOY_"`

	// Log relay
	Logs LogsConfig `envPrefix:"LOGS_"`

	// Secrets (loaded from files)
	Secrets SecretsConfig
}

type AppConfig struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
}

type ServerConfig struct {
	Port            int           `env:"PORT" envDefault:"3000"`
	StaticDir       string        `env:"SERVER_STATIC_DIR"`
	AllowedOrigins  []string      `env:"SERVER_ALLOWED_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type UpstreamConfig struct {
	Owner  string `env:"OWNER" envDefault:"iconic05"`
	Repo   string `env:"REPO" envDefault:"Space-XMD"`
	Branch string `env:"BRANCH" envDefault:"main"`
}

// FullName returns owner/repo as GitHub reports it in parent.full_name.
func (u UpstreamConfig) FullName() string {
	return u.Owner + "/" + u.Repo
}

// ForkURL is the page users are sent to when they still need to fork.
func (u UpstreamConfig) ForkURL() string {
	return fmt.Sprintf("https://github.com/%s/%s/fork", u.Owner, u.Repo)
}

type GitHubConfig struct {
	// Personal access token; optional for reads, needed for forking
	Token string `env:"TOKEN"`

	// GitHub App credentials. When AppID is set they take precedence over Token.
	AppID             int64  `env:"APP_ID"`
	InstallationID    int64  `env:"INSTALLATION_ID"`
	InstallationOwner string `env:"INSTALLATION_OWNER"`
	PrivateKeyPath    string `env:"PRIVATE_KEY_PATH"`

	// Set GITHUB_ENTERPRISE_URL to use Enterprise GitHub
	EnterpriseURL string `env:"ENTERPRISE_URL"`

	UserAgent string `env:"USER_AGENT" envDefault:"Space-XMD-Deployer"`

	// Fork into the requesting account as an organization instead of the
	// authenticated identity's own namespace.
	ForkIntoAccount bool `env:"FORK_INTO_ACCOUNT" envDefault:"false"`
}

type RenderConfig struct {
	APIKey       string        `env:"API_KEY"`
	APIKeyFile   string        `env:"API_KEY_FILE"`
	APIURL       string        `env:"API_URL" envDefault:"https://api.render.com/v1"`
	OwnerID      string        `env:"OWNER_ID"`
	Runtime      string        `env:"RUNTIME" envDefault:"node"`
	Plan         string        `env:"PLAN" envDefault:"free"`
	Region       string        `env:"REGION" envDefault:"oregon"`
	BuildCommand string        `env:"BUILD_COMMAND" envDefault:"npm install"`
	StartCommand string        `env:"START_COMMAND" envDefault:"node server.js"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// Configured reports whether provider calls can be attempted at all.
func (r RenderConfig) Configured() bool {
	return r.APIKey != "" && r.OwnerID != ""
}

type DeployConfig struct {
	Mode              string        `env:"MODE" envDefault:"reject"`
	ForkSettleDelay   time.Duration `env:"FORK_SETTLE_DELAY" envDefault:"5s"`
	ServiceNamePrefix string        `env:"SERVICE_NAME_PREFIX" envDefault:"bot"`
	ServiceNameMaxLen int           `env:"SERVICE_NAME_MAX_LEN" envDefault:"40"`
	UploadDir         string        `env:"UPLOAD_DIR"`
	MaxUploadBytes    int64         `env:"MAX_UPLOAD_BYTES" envDefault:"1048576"`
	RequireCreds      bool          `env:"REQUIRE_CREDS" envDefault:"false"`
}

type LogsConfig struct {
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"2.5s"`
	Limit        int           `env:"LIMIT" envDefault:"100"`
}

type SecretsConfig struct {
	GitHubPrivateKey []byte
}

// Load loads configuration from .env files, environment variables and secret files.
// With no explicit files, a .env in the working directory is used if present.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env files: %w", err)
		}
	} else {
		// Ignore error, use environment variables if no .env file
		_ = godotenv.Load()
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if cfg.Deploy.UploadDir == "" {
		cfg.Deploy.UploadDir = filepath.Join(os.TempDir(), "fork-deploy-uploads")
	}
	cfg.Deploy.Mode = strings.ToLower(strings.TrimSpace(cfg.Deploy.Mode))

	if err := loadSecrets(cfg); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadSecrets loads secrets from files
func loadSecrets(cfg *Config) error {
	if cfg.GitHub.PrivateKeyPath != "" {
		privateKey, err := secrets.LoadFromFile(cfg.GitHub.PrivateKeyPath)
		if err != nil {
			return fmt.Errorf("failed to load GitHub App private key: %w", err)
		}
		cfg.Secrets.GitHubPrivateKey = privateKey
	}

	apiKey, err := secrets.Resolve(cfg.Render.APIKey, cfg.Render.APIKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load Render API key: %w", err)
	}
	cfg.Render.APIKey = apiKey

	return nil
}

// Validate re-checks the configuration, e.g. after command-line overrides.
func (c *Config) Validate() error {
	return validateConfig(c)
}

func validateConfig(cfg *Config) error {
	if !IsValidEnvironment(cfg.App.Environment) {
		return fmt.Errorf("unknown environment %q", cfg.App.Environment)
	}
	if !IsValidMode(cfg.Deploy.Mode) {
		return fmt.Errorf("deploy mode must be one of %v, got %q", ValidModes(), cfg.Deploy.Mode)
	}
	if cfg.Upstream.Owner == "" || cfg.Upstream.Repo == "" {
		return fmt.Errorf("upstream owner and repository are required")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Server.Port)
	}
	if cfg.GitHub.AppID != 0 {
		if len(cfg.Secrets.GitHubPrivateKey) == 0 {
			return fmt.Errorf("GitHub App private key is required when GITHUB_APP_ID is set")
		}
		// ghinstallation only parses the key on the first API call
		if _, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.Secrets.GitHubPrivateKey); err != nil {
			return fmt.Errorf("invalid GitHub App private key: %w", err)
		}
	}
	if cfg.Deploy.ForkSettleDelay < 0 {
		return fmt.Errorf("fork settle delay must not be negative")
	}
	if cfg.Deploy.ServiceNameMaxLen <= 0 {
		return fmt.Errorf("service name max length must be positive")
	}
	if cfg.Deploy.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	if cfg.Logs.PollInterval <= 0 {
		return fmt.Errorf("log poll interval must be positive")
	}
	if cfg.Logs.Limit <= 0 {
		return fmt.Errorf("log limit must be positive")
	}
	return nil
}
