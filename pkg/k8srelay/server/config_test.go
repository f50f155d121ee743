package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapio/k8s-relay/pkg/k8srelay"
)

func TestDefaultConfig_DelegatesCoreTunablesToK8srelay(t *testing.T) {
	core := k8srelay.DefaultConfig()
	cfg := DefaultConfig()

	assert.Equal(t, core.ListenAddress, cfg.ListenAddress)
	assert.Equal(t, core.CollectBufferSize, cfg.CollectBufferSize)
	assert.Equal(t, core.MaxWaitingPods, cfg.Correlator.MaxWaitingPods)
	assert.Equal(t, core.MaxDeletedOwners, cfg.Correlator.MaxDeletedOwners)
}

func TestLoadConfig_EnvOverrideFlowsThroughCoreConfig(t *testing.T) {
	t.Setenv("K8SRELAY_MAX_WAITING_PODS", "7")
	t.Setenv("K8SRELAY_LISTEN_ADDRESS", "127.0.0.1:9100")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Correlator.MaxWaitingPods)
	assert.Equal(t, "127.0.0.1:9100", cfg.ListenAddress)
	assert.Equal(t, k8srelay.DefaultMaxDeletedOwners, cfg.Correlator.MaxDeletedOwners)
}

func TestLoadConfig_TransportOnlyEnvOverride(t *testing.T) {
	t.Setenv("K8SRELAY_SINK_ADDRESS", "/tmp/custom-reducer.sock")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom-reducer.sock", cfg.SinkAddress)
	assert.Equal(t, k8srelay.DefaultConfig().MaxWaitingPods, cfg.Correlator.MaxWaitingPods)
}
