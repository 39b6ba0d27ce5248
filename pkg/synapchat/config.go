package synapchat

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Agent       AgentConfig      `mapstructure:"agent"`
	Provider    VendorConfig     `mapstructure:"provider"`
	Audio       AudioConfig      `mapstructure:"audio"`
	Permission  PermissionConfig `mapstructure:"permission"`
	Web         WebConfig        `mapstructure:"web"`
	Journal     JournalConfig    `mapstructure:"journal"`
	Notifiers   []VendorConfig   `mapstructure:"notifiers"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
	Privacy     PrivacyConfig    `mapstructure:"privacy"`
	Banner      bool             `mapstructure:"banner"`
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	LogFormat   string           `mapstructure:"log_format"`
}

// VendorConfig names a registered implementation and its free-form settings.
type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type AgentConfig struct {
	// ID is passed to the provider untouched. An empty or unknown agent
	// surfaces as a start failure, not a config error.
	ID string `mapstructure:"id"`
}

type AudioConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	SampleRate int  `mapstructure:"sample_rate"`
}

type PermissionConfig struct {
	// Mode is "device" (probe the default input) or "static".
	Mode  string `mapstructure:"mode"`
	Grant bool   `mapstructure:"grant"`
}

type WebConfig struct {
	Addr          string        `mapstructure:"addr"`
	Title         string        `mapstructure:"title"`
	ActionTimeout time.Duration `mapstructure:"action_timeout"`
}

type JournalConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Dir      string `mapstructure:"dir"`
	InMemory bool   `mapstructure:"in_memory"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Buffer  int  `mapstructure:"buffer"`
	// TimelineDir, when set, receives one JSONL event trace per session.
	TimelineDir   string `mapstructure:"timeline_dir"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

const (
	PermissionDevice = "device"
	PermissionStatic = "static"
)

// LoadConfig reads path (optional) on top of defaults. Every scalar key can be
// overridden with a SYNAPCHAT_ prefixed env var, e.g. SYNAPCHAT_WEB_ADDR.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SYNAPCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("agent.id", "SYNAPCHAT_AGENT_ID", "ELEVENLABS_AGENT_ID"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.id", "")
	v.SetDefault("provider.provider", "elevenlabs")
	v.SetDefault("audio.enabled", false)
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("permission.mode", PermissionStatic)
	v.SetDefault("permission.grant", true)
	v.SetDefault("web.addr", ":8080")
	v.SetDefault("web.title", "SynapChat")
	v.SetDefault("web.action_timeout", "30s")
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.dir", "data/journal")
	v.SetDefault("journal.in_memory", false)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.buffer", 1024)
	v.SetDefault("metrics.timeline_dir", "")
	v.SetDefault("metrics.retention_days", 0)
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("banner", true)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Provider.Provider) == "" {
		return fmt.Errorf("provider.provider is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Permission.Mode)) {
	case PermissionDevice, PermissionStatic:
	default:
		return fmt.Errorf("permission.mode must be %q or %q, got %q", PermissionDevice, PermissionStatic, c.Permission.Mode)
	}
	if c.Journal.Enabled && !c.Journal.InMemory && strings.TrimSpace(c.Journal.Dir) == "" {
		return fmt.Errorf("journal.dir is required when the journal is on disk")
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	for i, n := range c.Notifiers {
		if strings.TrimSpace(n.Provider) == "" {
			return fmt.Errorf("notifiers[%d].provider is required", i)
		}
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Provider.Settings = expandSettings(cfg.Provider.Settings)
	for i := range cfg.Notifiers {
		cfg.Notifiers[i].Settings = expandSettings(cfg.Notifiers[i].Settings)
	}
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
