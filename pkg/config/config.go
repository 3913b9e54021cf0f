// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	ModeText  = "text"
	ModeImage = "image"
	ModeRelay = "relay"

	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	minPostInterval = 90 * time.Minute
	maxPostInterval = 8 * time.Hour
)

type Config struct {
	Mode         string        `env:"BOT_MODE" envDefault:"relay"`
	PostInterval time.Duration `env:"POST_INTERVAL" envDefault:"4h"`
	PostCron     string        `env:"POST_CRON"`
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"1m"`
	RunOnStart   bool          `env:"RUN_ON_START" envDefault:"false"`
	MaxPostLen   int           `env:"MAX_POST_LENGTH" envDefault:"280"`

	LLM       LLMConfig
	Twitter   TwitterConfig
	Telegram  TelegramConfig
	Discord   DiscordConfig
	Relay     RelayConfig
	Server    ServerConfig
	KeepAlive KeepAliveConfig
	Slack     SlackConfig
	Log       LogConfig
}

type LLMConfig struct {
	Provider       string        `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIKey      string        `env:"OPENAI_API_KEY"`
	OpenAIModel    string        `env:"OPENAI_MODEL" envDefault:"gpt-4"`
	OpenAIBaseURL  string        `env:"OPENAI_BASE_URL"`
	AnthropicKey   string        `env:"ANTHROPIC_API_KEY"`
	AnthropicModel string        `env:"ANTHROPIC_MODEL" envDefault:"claude-sonnet-4-5"`
	ImageModel     string        `env:"OPENAI_IMAGE_MODEL" envDefault:"dall-e-3"`
	MaxTokens      int64         `env:"LLM_MAX_TOKENS" envDefault:"280"`
	Temperature    float64       `env:"LLM_TEMPERATURE" envDefault:"0.85"`
	RequestTimeout time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
}

type TwitterConfig struct {
	ConsumerKey       string        `env:"TWITTER_CONSUMER_KEY,required,notEmpty"`
	ConsumerSecret    string        `env:"TWITTER_CONSUMER_SECRET,required,notEmpty"`
	AccessToken       string        `env:"TWITTER_ACCESS_TOKEN,required,notEmpty"`
	AccessTokenSecret string        `env:"TWITTER_ACCESS_TOKEN_SECRET,required,notEmpty"`
	MinInterval       time.Duration `env:"PUBLISH_MIN_INTERVAL" envDefault:"1m"`
}

type TelegramConfig struct {
	Token  string `env:"TELEGRAM_BOT_TOKEN"`
	ChatID string `env:"TELEGRAM_CHAT_ID"`
}

// Enabled reports whether the Telegram mirror is configured.
func (c TelegramConfig) Enabled() bool {
	return c.Token != "" && c.ChatID != ""
}

type DiscordConfig struct {
	Token         string `env:"DISCORD_TOKEN"`
	ChannelID     string `env:"DISCORD_CHANNEL_ID"`
	RelayBotID    string `env:"DISCORD_RELAY_BOT_ID"`
	CommandPrefix string `env:"DISCORD_COMMAND_PREFIX" envDefault:"/imagine prompt:"`
	// ImageSuffix is appended to relay image prompts, e.g. "--ar 16:9 --v 6".
	ImageSuffix string   `env:"DISCORD_IMAGE_SUFFIX"`
	AllowFrom   []string `env:"DISCORD_ALLOW_FROM" envSeparator:","`
}

type RelayConfig struct {
	WaitBudget   time.Duration `env:"RELAY_WAIT_BUDGET" envDefault:"3m"`
	PollInterval time.Duration `env:"RELAY_POLL_INTERVAL" envDefault:"10s"`
}

type ServerConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`
}

type KeepAliveConfig struct {
	PublicURL string        `env:"PUBLIC_URL"`
	Interval  time.Duration `env:"KEEPALIVE_INTERVAL" envDefault:"10m"`
}

type SlackConfig struct {
	WebhookURL string `env:"SLACK_WEBHOOK_URL"`
}

type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Environment string `env:"APP_ENV" envDefault:"production"`
}

// Load reads an optional .env file and then parses the environment.
// Missing required credentials are reported as an error; callers treat it as fatal.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is normal in hosted deployments.
	_ = godotenv.Load(envFiles...)

	return Parse(env.Options{})
}

// Parse builds a Config from the given env options. Tests pass an explicit
// Environment map to avoid touching the process environment.
func Parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces mode-specific requirements that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.Mode {
	case ModeText, ModeImage, ModeRelay:
	default:
		errs = append(errs, fmt.Errorf("unknown BOT_MODE %q", c.Mode))
	}

	if c.PostCron != "" {
		if !gronx.IsValid(c.PostCron) {
			errs = append(errs, fmt.Errorf("invalid POST_CRON expression %q", c.PostCron))
		}
	} else if c.PostInterval < minPostInterval || c.PostInterval > maxPostInterval {
		errs = append(errs, fmt.Errorf("POST_INTERVAL %s outside %s..%s", c.PostInterval, minPostInterval, maxPostInterval))
	}

	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("TICK_INTERVAL must be positive"))
	}
	if c.MaxPostLen <= 0 {
		errs = append(errs, errors.New("MAX_POST_LENGTH must be positive"))
	}

	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.OpenAIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	case ProviderAnthropic:
		if c.LLM.AnthropicKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider))
	}

	if c.Mode == ModeImage && c.LLM.OpenAIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required for image mode"))
	}

	if c.Mode == ModeRelay {
		if c.Discord.Token == "" {
			errs = append(errs, errors.New("DISCORD_TOKEN is required for relay mode"))
		}
		if c.Discord.ChannelID == "" {
			errs = append(errs, errors.New("DISCORD_CHANNEL_ID is required for relay mode"))
		}
		if c.Discord.RelayBotID == "" {
			errs = append(errs, errors.New("DISCORD_RELAY_BOT_ID is required for relay mode"))
		}
		if c.Relay.PollInterval <= 0 || c.Relay.WaitBudget < c.Relay.PollInterval {
			errs = append(errs, errors.New("RELAY_WAIT_BUDGET must be at least one RELAY_POLL_INTERVAL"))
		}
	}

	return errors.Join(errs...)
}

// RelayAllowList returns the Discord senders whose messages reach the bus.
// The relay bot is always allowed.
func (c *Config) RelayAllowList() []string {
	allow := make([]string, 0, len(c.Discord.AllowFrom)+1)
	allow = append(allow, c.Discord.RelayBotID)
	for _, id := range c.Discord.AllowFrom {
		if id != "" && id != c.Discord.RelayBotID {
			allow = append(allow, id)
		}
	}
	return allow
}
