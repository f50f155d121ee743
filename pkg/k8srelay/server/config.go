package server

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/tapio/k8s-relay/pkg/k8srelay"
)

// LoadConfig reads server tunables from environment variables (prefixed
// K8SRELAY_) and, if configPath is non-empty, from a config file. The core
// tunables (listen address, collect buffer size, correlator bounds) are
// delegated to k8srelay.LoadConfig, which owns their defaults and viper
// keys; this function only adds the transport-only keys (keepalive limits,
// sink address, metrics address, OTLP endpoint) on top of the same config
// file/environment.
func LoadConfig(configPath string) (Config, error) {
	core, err := k8srelay.LoadConfig(configPath)
	if err != nil {
		return Config{}, fmt.Errorf("loading core config: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("K8SRELAY")
	v.AutomaticEnv()

	defaults := DefaultConfig()
	v.SetDefault("max_concurrent_streams", defaults.MaxConcurrentStreams)
	v.SetDefault("max_connection_age", defaults.MaxConnectionAge.String())
	v.SetDefault("keep_alive_time", defaults.KeepAliveTime.String())
	v.SetDefault("keep_alive_timeout", defaults.KeepAliveTimeout.String())
	v.SetDefault("max_connection_idle", defaults.MaxConnectionIdle.String())
	v.SetDefault("sink_network", defaults.SinkNetwork)
	v.SetDefault("sink_address", defaults.SinkAddress)
	v.SetDefault("metrics_address", defaults.MetricsAddress)
	v.SetDefault("otlp_endpoint", defaults.OTLPEndpoint)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	maxConnectionAge, err := time.ParseDuration(v.GetString("max_connection_age"))
	if err != nil {
		return Config{}, fmt.Errorf("parsing max_connection_age: %w", err)
	}
	keepAliveTime, err := time.ParseDuration(v.GetString("keep_alive_time"))
	if err != nil {
		return Config{}, fmt.Errorf("parsing keep_alive_time: %w", err)
	}
	keepAliveTimeout, err := time.ParseDuration(v.GetString("keep_alive_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("parsing keep_alive_timeout: %w", err)
	}
	maxConnectionIdle, err := time.ParseDuration(v.GetString("max_connection_idle"))
	if err != nil {
		return Config{}, fmt.Errorf("parsing max_connection_idle: %w", err)
	}

	return Config{
		ListenAddress:        core.ListenAddress,
		MaxConcurrentStreams: uint32(v.GetUint("max_concurrent_streams")),
		CollectBufferSize:    core.CollectBufferSize,
		MaxConnectionAge:     maxConnectionAge,
		KeepAliveTime:        keepAliveTime,
		KeepAliveTimeout:     keepAliveTimeout,
		MaxConnectionIdle:    maxConnectionIdle,
		SinkNetwork:          v.GetString("sink_network"),
		SinkAddress:          v.GetString("sink_address"),
		MetricsAddress:       v.GetString("metrics_address"),
		OTLPEndpoint:         v.GetString("otlp_endpoint"),
		Correlator: k8srelay.CorrelatorConfig{
			MaxWaitingPods:   core.MaxWaitingPods,
			MaxDeletedOwners: core.MaxDeletedOwners,
		},
	}, nil
}
