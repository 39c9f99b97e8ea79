package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes zerolog with the specified configuration
func InitLogger(level string, format string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		// JSON format (default)
		log.Logger = zerolog.New(os.Stdout).With().
			Timestamp().
			Caller().
			Logger()
	}

	log.Logger = log.With().
		Str("service", "fork-deploy").
		Logger()
}

// HTTPLogger creates the base logger for the HTTP server
func HTTPLogger() zerolog.Logger {
	return log.With().
		Str("component", "http").
		Logger()
}

// WorkflowLogger creates a logger for one deploy or check-fork run
func WorkflowLogger(requestID string, account string) zerolog.Logger {
	return log.With().
		Str("request_id", requestID).
		Str("account", account).
		Str("component", "workflow").
		Logger()
}

// RelayLogger creates a logger for one log stream connection
func RelayLogger(serviceID string) zerolog.Logger {
	return log.With().
		Str("service_id", serviceID).
		Str("component", "relay").
		Logger()
}

// GitHubLogger creates a logger for GitHub API operations
func GitHubLogger() zerolog.Logger {
	return log.With().
		Str("component", "github").
		Logger()
}

// RenderLogger creates a logger for Render API operations
func RenderLogger() zerolog.Logger {
	return log.With().
		Str("component", "render").
		Logger()
}
