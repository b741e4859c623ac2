package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the effective gitdeck configuration
type Config struct {
	Engine      EngineConfig      `mapstructure:"engine" yaml:"engine"`
	Watcher     WatcherConfig     `mapstructure:"watcher" yaml:"watcher"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

// EngineConfig sizes the dispatcher. Zero sizes pick the built-in defaults.
type EngineConfig struct {
	Workers           int           `mapstructure:"workers" validate:"gte=0,lte=64" yaml:"workers"`
	QueueSize         int           `mapstructure:"queue_size" validate:"gte=0" yaml:"queue_size"`
	MutatingQueueSize int           `mapstructure:"mutating_queue_size" validate:"gte=0" yaml:"mutating_queue_size"`
	ProgressInterval  time.Duration `mapstructure:"progress_interval" validate:"gte=0" yaml:"progress_interval"`
}

// WatcherConfig selects file notifications or periodic refresh
type WatcherConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Debounce     time.Duration `mapstructure:"debounce" validate:"gt=0" yaml:"debounce"`
	TickInterval time.Duration `mapstructure:"tick_interval" validate:"gt=0" yaml:"tick_interval"`
}

// LogConfig shapes the commit log views
type LogConfig struct {
	MessageLengthLimit int `mapstructure:"message_length_limit" validate:"gt=0" yaml:"message_length_limit"`
	Limit              int `mapstructure:"limit" validate:"gte=0" yaml:"limit"`
}

// CredentialsConfig orders the credential methods tried for remote operations
type CredentialsConfig struct {
	Methods    []string `mapstructure:"methods" validate:"dive,oneof=ssh-agent ssh-key password" yaml:"methods"`
	SSHUser    string   `mapstructure:"ssh_user" yaml:"ssh_user,omitempty"`
	SSHKeyPath string   `mapstructure:"ssh_key_path" yaml:"ssh_key_path,omitempty"`
}

// MetricsConfig enables the prometheus endpoint when Addr is set
type MetricsConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,listen_addr" yaml:"addr,omitempty"`
}

// LoadOptions locates the configuration sources
type LoadOptions struct {
	// Path overrides the user config file location
	Path string
	// GitDir enables the repository override file when set
	GitDir string
	// Flags are bound by name through FlagKeys
	Flags *pflag.FlagSet
}

// FlagKeys maps command line flag names to configuration keys
var FlagKeys = map[string]string{
	"watcher":       "watcher.enabled",
	"workers":       "engine.workers",
	"metrics-addr":  "metrics.addr",
	"message-limit": "log.message_length_limit",
}

// Load builds the effective configuration
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	setupViper(v, opts.Path)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	if opts.GitDir != "" {
		repo, err := GetRepoConfig(opts.GitDir)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(repo.settings()); err != nil {
			return nil, fmt.Errorf("failed to apply repository config: %w", err)
		}
	}

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("GITDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(ConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		trimSliceHook(),
	)
}

// trimSliceHook drops blanks around list items given as "a, b"
func trimSliceHook() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf([]string(nil)) {
			return data, nil
		}
		items, ok := data.([]string)
		if !ok {
			return data, nil
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// Port 0 picks a free port, which hostname_port rejects.
	_ = v.RegisterValidation("listen_addr", func(fl validator.FieldLevel) bool {
		_, port, err := net.SplitHostPort(fl.Field().String())
		if err != nil {
			return false
		}
		n, err := strconv.Atoi(port)
		return err == nil && n >= 0 && n <= 65535
	})
	return v
}

// Validate checks value ranges and enumerations
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s (got %v)", field, fe.Tag(), fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Write encodes cfg as YAML
func Write(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return enc.Close()
}

// Save writes cfg to path, creating its directory
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ConfigDir returns the gitdeck directory under the user config home
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gitdeck")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "gitdeck")
}

// DefaultPath is the user config file location
func DefaultPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
