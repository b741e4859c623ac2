package config

import (
	"github.com/spf13/viper"

	"gitdeck.dev/gitdeck/internal/dispatch"
	"gitdeck.dev/gitdeck/internal/remote"
	"gitdeck.dev/gitdeck/internal/watcher"
)

// CredentialMethods lists the accepted credential method names in default order
var CredentialMethods = []string{"ssh-agent", "ssh-key", "password"}

const (
	// DefaultMessageLengthLimit truncates commit subjects in log views
	DefaultMessageLengthLimit = 80
	// DefaultLogLimit caps the commit log
	DefaultLogLimit = 200
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.workers", 0)
	v.SetDefault("engine.queue_size", dispatch.DefaultQueueSize)
	v.SetDefault("engine.mutating_queue_size", dispatch.DefaultQueueSize)
	v.SetDefault("engine.progress_interval", remote.DefaultProgressInterval)

	v.SetDefault("watcher.enabled", true)
	v.SetDefault("watcher.debounce", watcher.DefaultDebounce)
	v.SetDefault("watcher.tick_interval", watcher.DefaultTickInterval)

	v.SetDefault("log.message_length_limit", DefaultMessageLengthLimit)
	v.SetDefault("log.limit", DefaultLogLimit)

	v.SetDefault("credentials.methods", CredentialMethods)
	v.SetDefault("credentials.ssh_user", "")
	v.SetDefault("credentials.ssh_key_path", "")

	v.SetDefault("metrics.addr", "")
}

// Default returns the built-in configuration
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks()))
	return &cfg
}
