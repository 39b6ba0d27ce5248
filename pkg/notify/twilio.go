package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/synapchat/pkg/configutil"
	"github.com/harunnryd/synapchat/pkg/errorsx"
	"github.com/harunnryd/synapchat/pkg/redact"
	"github.com/harunnryd/synapchat/pkg/resilience"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSettings configures the SMS notifier. Decoded from the free-form
// notifier settings map.
type TwilioSettings struct {
	AccountSID string        `mapstructure:"account_sid"`
	AuthToken  string        `mapstructure:"auth_token"`
	From       string        `mapstructure:"from"`
	To         []string      `mapstructure:"to"`
	MinLevel   string        `mapstructure:"min_level"`
	Retries    int           `mapstructure:"retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
}

var twilioSchema = configutil.Schema{
	Required: []string{"account_sid", "auth_token", "from", "to"},
	Optional: []string{"min_level", "retries", "backoff"},
}

type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// Twilio sends notifications as SMS to operators.
type Twilio struct {
	cfg    TwilioSettings
	client messageCreator
	retry  resilience.RetryPolicy
}

// NewTwilioFromSettings validates and decodes settings into a Twilio notifier.
func NewTwilioFromSettings(settings map[string]any) (*Twilio, error) {
	var cfg TwilioSettings
	if err := configutil.Decode(settings, twilioSchema, &cfg); err != nil {
		return nil, fmt.Errorf("twilio notifier settings: %w", err)
	}
	return NewTwilio(cfg), nil
}

func NewTwilio(cfg TwilioSettings) *Twilio {
	if cfg.MinLevel == "" {
		cfg.MinLevel = string(LevelWarning)
	}
	return &Twilio{
		cfg:   cfg,
		retry: resilience.NewRetryPolicy(cfg.Retries, cfg.Backoff),
	}
}

// LogValue implements slog.LogValuer with credentials masked.
func (t *Twilio) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("account_sid", redact.Secret(t.cfg.AccountSID)),
		slog.String("auth_token", redact.Secret(t.cfg.AuthToken)),
		slog.String("from", t.cfg.From),
		slog.Int("recipients", len(t.cfg.To)),
		slog.String("min_level", t.cfg.MinLevel),
	)
}

func (t *Twilio) Notify(ctx context.Context, n Notification) error {
	if levelRank(n.Level) < levelRank(Level(t.cfg.MinLevel)) {
		return nil
	}
	if t.cfg.AccountSID == "" || t.cfg.AuthToken == "" {
		return errorsx.Wrap(errors.New("missing twilio credentials"), errorsx.ReasonNotifySend)
	}
	client := t.client
	if client == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: t.cfg.AccountSID,
			Password: t.cfg.AuthToken,
		})
		client = rest.Api
	}

	body := n.Message
	if n.Title != "" {
		body = n.Title + ": " + body
	}
	var errs []error
	for _, to := range t.cfg.To {
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		params := &api.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(t.cfg.From)
		params.SetBody(body)
		err := t.retry.Do(ctx, func() error {
			resp, err := client.CreateMessage(params)
			if err != nil {
				return err
			}
			if resp == nil || resp.Sid == nil {
				return errors.New("missing message sid")
			}
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("sms to %s: %w", to, err))
		}
	}
	return errorsx.Wrap(errors.Join(errs...), errorsx.ReasonNotifySend)
}

func levelRank(l Level) int {
	switch l {
	case LevelError:
		return 2
	case LevelWarning:
		return 1
	default:
		return 0
	}
}
