package k8srelay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsWithNoOverrides(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_EnvOverridesTakePrecedence(t *testing.T) {
	t.Setenv("K8SRELAY_MAX_WAITING_PODS", "42")
	t.Setenv("K8SRELAY_LISTEN_ADDRESS", "127.0.0.1:9999")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.MaxWaitingPods)
	assert.Equal(t, "127.0.0.1:9999", cfg.ListenAddress)
	assert.Equal(t, DefaultMaxDeletedOwners, cfg.MaxDeletedOwners)
}

func TestLoadConfig_MissingConfigFileReturnsRelayError(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/does-not-exist.yaml")
	require.Error(t, err)

	var relayErr *RelayError
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, ErrorKindMalformed, relayErr.Kind)
}

func TestDefaultConfig_MatchesCorrelatorSafetyBounds(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultMaxWaitingPods, cfg.MaxWaitingPods)
	assert.Equal(t, DefaultMaxDeletedOwners, cfg.MaxDeletedOwners)
}
