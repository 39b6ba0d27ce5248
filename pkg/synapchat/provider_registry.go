package synapchat

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/harunnryd/synapchat/pkg/audio"
	"github.com/harunnryd/synapchat/pkg/configutil"
	"github.com/harunnryd/synapchat/pkg/logging"
	"github.com/harunnryd/synapchat/pkg/notify"
	"github.com/harunnryd/synapchat/pkg/providers/elevenlabs"
	"github.com/harunnryd/synapchat/pkg/providers/mock"
	"github.com/harunnryd/synapchat/pkg/redact"
	"github.com/harunnryd/synapchat/pkg/voice"
)

// Devices are the optional local audio endpoints handed to a session client.
type Devices struct {
	Source audio.Source
	Sink   audio.Sink
}

type ClientBuilder func(cfg Config, devices Devices, log *slog.Logger) (voice.ClientFactory, error)
type NotifierBuilder func(settings map[string]any, log *slog.Logger) (notify.Notifier, error)

type ProviderRegistry struct {
	clients   map[string]ClientBuilder
	notifiers map[string]NotifierBuilder
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		clients:   make(map[string]ClientBuilder),
		notifiers: make(map[string]NotifierBuilder),
	}
}

// DefaultProviderRegistry knows the built-in session clients and notifiers.
func DefaultProviderRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	r.RegisterClient("elevenlabs", buildElevenLabs)
	r.RegisterClient("mock", buildMock)
	r.RegisterNotifier("log", func(_ map[string]any, log *slog.Logger) (notify.Notifier, error) {
		return notify.NewLog(log), nil
	})
	r.RegisterNotifier("twilio", func(settings map[string]any, log *slog.Logger) (notify.Notifier, error) {
		n, err := notify.NewTwilioFromSettings(settings)
		if err != nil {
			return nil, err
		}
		logging.NewComponentLogger(log, "notify.twilio").Info("notifier_configured", slog.Any("twilio", n))
		return n, nil
	})
	return r
}

func (r *ProviderRegistry) RegisterClient(name string, builder ClientBuilder) {
	r.clients[normalizeName(name)] = builder
}

func (r *ProviderRegistry) RegisterNotifier(name string, builder NotifierBuilder) {
	r.notifiers[normalizeName(name)] = builder
}

func (r *ProviderRegistry) BuildClient(provider string, cfg Config, devices Devices, log *slog.Logger) (voice.ClientFactory, error) {
	fn := r.clients[normalizeName(provider)]
	if fn == nil {
		return nil, fmt.Errorf("session provider not registered: %s", provider)
	}
	return fn(cfg, devices, log)
}

func (r *ProviderRegistry) BuildNotifier(provider string, settings map[string]any, log *slog.Logger) (notify.Notifier, error) {
	fn := r.notifiers[normalizeName(provider)]
	if fn == nil {
		return nil, fmt.Errorf("notifier not registered: %s", provider)
	}
	return fn(settings, log)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type elevenLabsSettings struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	QuietPeriod time.Duration `mapstructure:"quiet_period"`
}

var elevenLabsSchema = configutil.Schema{
	Optional: []string{"api_key", "base_url", "dial_timeout", "read_timeout", "quiet_period"},
}

func buildElevenLabs(cfg Config, devices Devices, log *slog.Logger) (voice.ClientFactory, error) {
	var s elevenLabsSettings
	if err := configutil.Decode(cfg.Provider.Settings, elevenLabsSchema, &s); err != nil {
		return nil, fmt.Errorf("elevenlabs settings: %w", err)
	}
	apiKey := configutil.FirstNonEmpty(s.APIKey, os.Getenv("ELEVENLABS_API_KEY"))
	logging.NewComponentLogger(log, "provider.elevenlabs").Info("provider_configured",
		slog.String("api_key", redact.Secret(apiKey)),
		slog.String("base_url", s.BaseURL))
	return elevenlabs.Factory(elevenlabs.Config{
		APIKey:      apiKey,
		BaseURL:     s.BaseURL,
		DialTimeout: s.DialTimeout,
		ReadTimeout: s.ReadTimeout,
		QuietPeriod: s.QuietPeriod,
		Source:      devices.Source,
		Sink:        devices.Sink,
		Logger:      log,
	}), nil
}

type mockSettings struct {
	AutoConnect    bool   `mapstructure:"auto_connect"`
	AutoDisconnect bool   `mapstructure:"auto_disconnect"`
	Greeting       string `mapstructure:"greeting"`
}

var mockSchema = configutil.Schema{
	Optional: []string{"auto_connect", "auto_disconnect", "greeting"},
}

func buildMock(cfg Config, _ Devices, _ *slog.Logger) (voice.ClientFactory, error) {
	s := mockSettings{AutoConnect: true, AutoDisconnect: true}
	if err := configutil.Decode(cfg.Provider.Settings, mockSchema, &s); err != nil {
		return nil, fmt.Errorf("mock settings: %w", err)
	}
	return mock.Factory(mock.SessionConfig{
		AutoConnect:    s.AutoConnect,
		AutoDisconnect: s.AutoDisconnect,
		Greeting:       s.Greeting,
	}), nil
}
