// Package gemini adapts the Gemini streaming speech model to core.SpeechSource.
package gemini

import (
	"errors"
	"os"
)

// Credential methods reported by Status.
const (
	MethodAPIKey         = "api_key"
	MethodServiceAccount = "service_account"
)

// Environment variables consulted when the configuration carries no credentials.
const (
	EnvAPIKey          = "GEMINI_API_KEY"
	EnvCredentialsPath = "GOOGLE_APPLICATION_CREDENTIALS"
	EnvProjectID       = "GCP_PROJECT_ID"
	DefaultLocation    = "us-central1"
)

// ErrNoCredentials is returned when neither an API key nor a service account is available.
//
//nolint:staticcheck // capitalized message is the documented client-facing text
var ErrNoCredentials = errors.New("No valid credentials found. Set GEMINI_API_KEY or GOOGLE_APPLICATION_CREDENTIALS")

// Settings are the configured credential values. Empty fields fall back to the environment.
type Settings struct {
	APIKey    string
	ProjectID string
	Location  string
}

// Credentials are the resolved values used to open a client.
type Credentials struct {
	Method   string
	APIKey   string
	Project  string
	Location string
}

// Status is the credential report served to clients.
type Status struct {
	Valid  bool   `json:"valid"`
	Method string `json:"method,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ResolveCredentials prefers an API key and falls back to a service account,
// which needs both a credentials file and a project id.
func ResolveCredentials(settings Settings) (Credentials, error) {
	return resolve(settings, os.Getenv)
}

func resolve(settings Settings, getenv func(string) string) (Credentials, error) {
	apiKey := firstNonEmpty(settings.APIKey, getenv(EnvAPIKey))
	if apiKey != "" {
		return Credentials{Method: MethodAPIKey, APIKey: apiKey}, nil
	}

	project := firstNonEmpty(settings.ProjectID, getenv(EnvProjectID))
	if getenv(EnvCredentialsPath) == "" || project == "" {
		return Credentials{}, ErrNoCredentials
	}

	return Credentials{
		Method:   MethodServiceAccount,
		Project:  project,
		Location: firstNonEmpty(settings.Location, DefaultLocation),
	}, nil
}

// CheckCredentials reports whether credentials can be resolved and by which method.
func CheckCredentials(settings Settings) Status {
	credentials, err := ResolveCredentials(settings)
	if err != nil {
		return Status{Valid: false, Error: err.Error()}
	}

	return Status{Valid: true, Method: credentials.Method}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}
