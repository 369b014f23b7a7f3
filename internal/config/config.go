package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. JSBRIDGE_LOG_LEVEL or
// JSBRIDGE_WASM_MEMORY_PAGES.
const EnvPrefix = "JSBRIDGE"

type Config struct {
	AppPaths []string   `mapstructure:"app_paths"`
	LogLevel string     `mapstructure:"log_level"`
	Wasm     WasmConfig `mapstructure:"wasm"`
	Host     HostConfig `mapstructure:"host"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Enable debug logging of boundary calls.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory. Empty keeps the cache in memory.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrent instances.
	MaxInstances int `mapstructure:"max_instances"`
	// Upper bound for one guest export call.
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout"`
}

// HostConfig holds script host configuration.
type HostConfig struct {
	// Scripts evaluated in every engine before the guest starts.
	Preload []string `mapstructure:"preload"`
	// Event loop budget per run. Zero is unlimited.
	MaxEvents int `mapstructure:"max_events"`
	// Stop the loop when the next timer is further away than this.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_paths", []string{"./apps"})
	v.SetDefault("log_level", "info")

	// Wasm defaults
	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "")
	v.SetDefault("wasm.max_instances", 100)
	v.SetDefault("wasm.execution_timeout", 30*time.Second)

	// Host defaults
	v.SetDefault("host.preload", []string{})
	v.SetDefault("host.max_events", 0)
	v.SetDefault("host.idle_timeout", time.Duration(0))
}

// Load reads configuration from defaults, an optional YAML file, the
// environment and flags, in increasing precedence. Flags are bound by
// name with dashes mapped to underscores, so --log-level sets log_level
// and --wasm.memory-pages sets wasm.memory_pages. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if bindErr != nil || f.Name == "config" || f.Name == "help" {
				return
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges viper cannot express.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (must be one of: debug, info, warn, error)", c.LogLevel)
	}
	if c.Wasm.MaxInstances < 0 {
		return fmt.Errorf("invalid wasm.max_instances %d", c.Wasm.MaxInstances)
	}
	if c.Host.MaxEvents < 0 {
		return fmt.Errorf("invalid host.max_events %d", c.Host.MaxEvents)
	}
	return nil
}
