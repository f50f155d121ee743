package k8srelay

import (
	"github.com/spf13/viper"
)

// Config carries the only tunables the core exposes: the two safety bounds
// and the per-session collect buffer size, plus the ambient listen address
// the gRPC server needs to be runnable at all (SPEC_FULL.md §6). Grounded
// on the SetDefault/GetX viper wiring used in cmd/tapio-server/main.go.
type Config struct {
	MaxWaitingPods    int
	MaxDeletedOwners  int
	CollectBufferSize int
	ListenAddress     string
}

// DefaultConfig returns production defaults, mirroring pkg/relay.DefaultConfig.
func DefaultConfig() Config {
	return Config{
		MaxWaitingPods:    DefaultMaxWaitingPods,
		MaxDeletedOwners:  DefaultMaxDeletedOwners,
		CollectBufferSize: 64 * 1024,
		ListenAddress:     "0.0.0.0:9096",
	}
}

// LoadConfig reads k8srelay tunables from environment variables (prefixed
// K8SRELAY_) and, if configPath is non-empty, from a config file, falling
// back to DefaultConfig for anything unset.
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("K8SRELAY")
	v.AutomaticEnv()

	defaults := DefaultConfig()
	v.SetDefault("max_waiting_pods", defaults.MaxWaitingPods)
	v.SetDefault("max_deleted_owners", defaults.MaxDeletedOwners)
	v.SetDefault("collect_buffer_size", defaults.CollectBufferSize)
	v.SetDefault("listen_address", defaults.ListenAddress)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, newRelayError(ErrorKindMalformed, "reading config file", err)
		}
	}

	return Config{
		MaxWaitingPods:    v.GetInt("max_waiting_pods"),
		MaxDeletedOwners:  v.GetInt("max_deleted_owners"),
		CollectBufferSize: v.GetInt("collect_buffer_size"),
		ListenAddress:     v.GetString("listen_address"),
	}, nil
}
