package common

import (
	"encoding/json"
	"fmt"
	"os"
)

// Defaults for the spec.md §6 environment variables.
const (
	DefaultAPIServer  = "https://cloudcli.cloudwm.com"
	DefaultRKE2Version = "v1.28.5+rke2r1"
	DefaultLogLevel   = "info"
)

// Env is the process configuration spec.md §6 describes: provider
// credentials, the Celery-compatible broker/result-backend URLs, the
// RKE2 version new nodes install, log verbosity, and an optional
// default server sizing document merged beneath per-request configs.
type Env struct {
	APIServer           string
	APIClientID         string
	APISecret           string
	CeleryBroker        string
	CeleryResultBackend string
	RKE2Version         string
	LogLevel            string
	DefaultServerConfig map[string]interface{}
}

// LoadEnv reads the spec.md §6 environment variables, having first
// called LoadSavedConfig so a saved ~/.sloth-kubernetes/config file can
// supply anything the process environment doesn't already set.
func LoadEnv() (Env, error) {
	if err := LoadSavedConfig(); err != nil {
		return Env{}, err
	}

	env := Env{
		APIServer:           getEnvOrDefault("KAMATERA_API_SERVER", DefaultAPIServer),
		APIClientID:         os.Getenv("KAMATERA_API_CLIENT_ID"),
		APISecret:           os.Getenv("KAMATERA_API_SECRET"),
		CeleryBroker:        os.Getenv("CELERY_BROKER"),
		CeleryResultBackend: os.Getenv("CELERY_RESULT_BACKEND"),
		RKE2Version:         getEnvOrDefault("RKE2_VERSION", DefaultRKE2Version),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", DefaultLogLevel),
	}

	if raw := os.Getenv("DEFAULT_SERVER_CONFIG"); raw != "" {
		var doc map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return Env{}, fmt.Errorf("failed to parse DEFAULT_SERVER_CONFIG: %w", err)
		}
		env.DefaultServerConfig = doc
	}

	return env, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
