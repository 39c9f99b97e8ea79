package config

// Deployment environments as constants to prevent typos
const (
	// EnvironmentProduction represents the production environment
	EnvironmentProduction = "production"

	// EnvironmentStaging represents the staging environment
	EnvironmentStaging = "staging"

	// EnvironmentDevelopment represents the development environment
	EnvironmentDevelopment = "development"

	// EnvironmentTesting represents testing environments
	EnvironmentTesting = "testing"
)

// Orchestration modes for POST /deploy
const (
	// ModeReject refuses to provision unless a confirmed fork already exists
	ModeReject = "reject"

	// ModeAutoFork requests a fork when the repository is absent, then provisions
	ModeAutoFork = "autofork"
)

// ValidEnvironments returns a list of all valid environment names
func ValidEnvironments() []string {
	return []string{
		EnvironmentProduction,
		EnvironmentStaging,
		EnvironmentDevelopment,
		EnvironmentTesting,
	}
}

// IsValidEnvironment checks if the given environment name is valid
func IsValidEnvironment(env string) bool {
	return contains(ValidEnvironments(), env)
}

// ValidModes returns every accepted DEPLOY_MODE value
func ValidModes() []string {
	return []string{ModeReject, ModeAutoFork}
}

// IsValidMode checks if the given orchestration mode is supported
func IsValidMode(mode string) bool {
	return contains(ValidModes(), mode)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
