// ABOUTME: Application configuration loaded from YAML with env overrides
// ABOUTME: Defaults work out of the box against a local synthesis backend
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type SynthesisConfig struct {
	Enabled           bool   `yaml:"enabled"`
	BaseURL           string `yaml:"base_url"`
	Discover          bool   `yaml:"discover"` // find the backend via mDNS when base_url is empty
	GenerateEndpoint  string `yaml:"generate_endpoint"`
	DefaultVoice      string `yaml:"default_voice"`
	CallTimeoutMS     int    `yaml:"call_timeout_ms"`
	RequestDeadlineMS int    `yaml:"request_deadline_ms"`
	MaxRetries        int    `yaml:"max_retries"`
}

// CallTimeout returns the per-exchange timeout as a duration
func (c SynthesisConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMS) * time.Millisecond
}

// RequestDeadline returns the per-session deadline as a duration
func (c SynthesisConfig) RequestDeadline() time.Duration {
	return time.Duration(c.RequestDeadlineMS) * time.Millisecond
}

type CacheConfig struct {
	MaxBytes  int64  `yaml:"max_bytes"`
	MaxAgeMin int    `yaml:"max_age_minutes"`
	Dir       string `yaml:"dir"`
}

// MaxAge returns the entry TTL as a duration
func (c CacheConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeMin) * time.Minute
}

type MixerConfig struct {
	MaxHandlesPerBus int     `yaml:"max_handles_per_bus"`
	MasterGain       float64 `yaml:"master_gain"`
}

type RouterConfig struct {
	Backend           string `yaml:"backend"` // malgo, oto, memory
	RefreshIntervalMS int    `yaml:"refresh_interval_ms"`
}

// RefreshInterval returns the device re-enumeration period
func (c RouterConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMS) * time.Millisecond
}

type LibraryConfig struct {
	DatabasePath string `yaml:"database_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type Config struct {
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Cache     CacheConfig     `yaml:"cache"`
	Mixer     MixerConfig     `yaml:"mixer"`
	Router    RouterConfig    `yaml:"router"`
	Library   LibraryConfig   `yaml:"library"`
	Logging   LoggingConfig   `yaml:"logging"`
}

func Default() Config {
	return Config{
		Synthesis: SynthesisConfig{
			Enabled:           true,
			BaseURL:           "http://localhost:7860",
			Discover:          false,
			GenerateEndpoint:  "",
			DefaultVoice:      "Default",
			CallTimeoutMS:     30_000,
			RequestDeadlineMS: 60_000,
			MaxRetries:        3,
		},
		Cache: CacheConfig{
			MaxBytes:  64 << 20,
			MaxAgeMin: 24 * 60,
			Dir:       "./data/tts-cache",
		},
		Mixer: MixerConfig{
			MaxHandlesPerBus: 16,
			MasterGain:       1.0,
		},
		Router: RouterConfig{
			Backend:           "malgo",
			RefreshIntervalMS: 2000,
		},
		Library: LibraryConfig{
			DatabasePath: "./data/clips.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// VOICEDECK_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideBool(&cfg.Synthesis.Enabled, "VOICEDECK_SYNTHESIS_ENABLED")
	overrideString(&cfg.Synthesis.BaseURL, "VOICEDECK_SYNTHESIS_BASE_URL")
	overrideBool(&cfg.Synthesis.Discover, "VOICEDECK_SYNTHESIS_DISCOVER")
	overrideString(&cfg.Synthesis.GenerateEndpoint, "VOICEDECK_SYNTHESIS_GENERATE_ENDPOINT")
	overrideString(&cfg.Synthesis.DefaultVoice, "VOICEDECK_SYNTHESIS_DEFAULT_VOICE")
	overrideInt64(&cfg.Cache.MaxBytes, "VOICEDECK_CACHE_MAX_BYTES")
	overrideString(&cfg.Cache.Dir, "VOICEDECK_CACHE_DIR")
	overrideInt(&cfg.Mixer.MaxHandlesPerBus, "VOICEDECK_MIXER_MAX_HANDLES")
	overrideString(&cfg.Router.Backend, "VOICEDECK_ROUTER_BACKEND")
	overrideString(&cfg.Library.DatabasePath, "VOICEDECK_LIBRARY_DATABASE_PATH")
	overrideString(&cfg.Logging.Level, "VOICEDECK_LOG_LEVEL")
	overrideString(&cfg.Logging.Format, "VOICEDECK_LOG_FORMAT")
}

func validate(cfg Config) error {
	switch cfg.Router.Backend {
	case "malgo", "oto", "memory":
	default:
		return fmt.Errorf("unknown router backend %q", cfg.Router.Backend)
	}
	if cfg.Mixer.MaxHandlesPerBus <= 0 {
		return fmt.Errorf("mixer max_handles_per_bus must be positive")
	}
	if cfg.Mixer.MasterGain < 0 {
		return fmt.Errorf("mixer master_gain must not be negative")
	}
	if cfg.Synthesis.Enabled && cfg.Synthesis.BaseURL == "" && !cfg.Synthesis.Discover {
		return fmt.Errorf("synthesis needs base_url or discover enabled")
	}
	return nil
}

func overrideString(target *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*target = v
	}
}

func overrideInt(target *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func overrideInt64(target *int64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}

func overrideBool(target *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}
