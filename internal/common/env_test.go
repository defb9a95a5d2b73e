package common

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"KAMATERA_API_SERVER", "KAMATERA_API_CLIENT_ID", "KAMATERA_API_SECRET",
		"CELERY_BROKER", "CELERY_RESULT_BACKEND", "RKE2_VERSION", "LOG_LEVEL",
		"DEFAULT_SERVER_CONFIG", "HOME",
	}
	for _, k := range keys {
		original, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func(k string, had bool, original string) func() {
			return func() {
				if had {
					os.Setenv(k, original)
				} else {
					os.Unsetenv(k)
				}
			}
		}(k, had, original))
	}
}

func TestLoadEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIServer, env.APIServer)
	assert.Equal(t, DefaultRKE2Version, env.RKE2Version)
	assert.Equal(t, DefaultLogLevel, env.LogLevel)
	assert.Empty(t, env.APIClientID)
	assert.Nil(t, env.DefaultServerConfig)
}

func TestLoadEnvReadsOverridesAndJSON(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KAMATERA_API_SERVER", "https://example.invalid")
	t.Setenv("KAMATERA_API_CLIENT_ID", "abc")
	t.Setenv("KAMATERA_API_SECRET", "xyz")
	t.Setenv("RKE2_VERSION", "v1.30.0+rke2r1")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEFAULT_SERVER_CONFIG", `{"cpu":"2B","ram":"4096"}`)

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://example.invalid", env.APIServer)
	assert.Equal(t, "abc", env.APIClientID)
	assert.Equal(t, "xyz", env.APISecret)
	assert.Equal(t, "v1.30.0+rke2r1", env.RKE2Version)
	assert.Equal(t, "debug", env.LogLevel)
	require.NotNil(t, env.DefaultServerConfig)
	assert.Equal(t, "2B", env.DefaultServerConfig["cpu"])
}

func TestLoadEnvRejectsInvalidJSON(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DEFAULT_SERVER_CONFIG", "not-json")

	_, err := LoadEnv()
	require.Error(t, err)
}
