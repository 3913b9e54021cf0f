package main

import (
	"context"
	"fmt"

	"github.com/sipeed/picopost/pkg/bus"
	"github.com/sipeed/picopost/pkg/channels"
	"github.com/sipeed/picopost/pkg/composer"
	"github.com/sipeed/picopost/pkg/config"
	"github.com/sipeed/picopost/pkg/formatter"
	"github.com/sipeed/picopost/pkg/health"
	"github.com/sipeed/picopost/pkg/keepalive"
	"github.com/sipeed/picopost/pkg/metrics"
	"github.com/sipeed/picopost/pkg/notify"
	"github.com/sipeed/picopost/pkg/orchestrator"
	"github.com/sipeed/picopost/pkg/pipeline"
	"github.com/sipeed/picopost/pkg/providers"
	"github.com/sipeed/picopost/pkg/publisher"
	"github.com/sipeed/picopost/pkg/scheduler"
)

type cycleRunner interface {
	RunCycle(ctx context.Context) pipeline.Outcome
}

type app struct {
	cfg      *config.Config
	cycle    cycleRunner
	composer *composer.Composer
	health   *health.Server
	sched    *scheduler.Scheduler

	// set in relay mode only
	bus   *bus.MessageBus
	relay channels.Channel
	orch  *orchestrator.Orchestrator
}

func wireApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	generator, err := wireGenerator(cfg.LLM)
	if err != nil {
		return nil, err
	}
	opts := composer.Options{
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}
	if cfg.Mode == config.ModeRelay {
		opts.ImageSuffix = cfg.Discord.ImageSuffix
	}
	comp := composer.New(opts)
	a.composer = comp
	fmtr := formatter.New()

	pub, err := wirePublisher(cfg)
	if err != nil {
		return nil, err
	}

	a.health = health.NewServer(cfg.Server.Addr, cfg.Mode)
	reporters := pipeline.Reporters{metrics.Reporter{}, a.health}
	if cfg.Slack.WebhookURL != "" {
		reporters = append(reporters, notify.NewSlack(cfg.Slack.WebhookURL, nil))
	}

	switch cfg.Mode {
	case config.ModeRelay:
		a.bus = bus.NewMessageBus()
		dc, err := channels.NewDiscordChannel(cfg.Discord, a.bus, cfg.RelayAllowList())
		if err != nil {
			return nil, err
		}
		a.relay = dc
		a.orch, err = orchestrator.New(orchestrator.Options{
			Composer:      comp,
			Generator:     generator,
			Formatter:     fmtr,
			Publisher:     pub,
			Relay:         dc,
			Reporter:      reporters,
			RelayIdentity: cfg.Discord.RelayBotID,
			Channel:       dc.Name(),
			ChatID:        cfg.Discord.ChannelID,
			WaitBudget:    cfg.Relay.WaitBudget,
			PollInterval:  cfg.Relay.PollInterval,
			MaxLength:     cfg.MaxPostLen,
		})
		if err != nil {
			return nil, fmt.Errorf("wire orchestrator: %w", err)
		}
		a.cycle = a.orch

	default:
		var images pipeline.ImageGenerator
		if cfg.Mode == config.ModeImage {
			images = openAI(cfg.LLM)
		}
		direct, err := pipeline.NewDirect(pipeline.DirectOptions{
			Mode:      cfg.Mode,
			Composer:  comp,
			Generator: generator,
			Images:    images,
			Formatter: fmtr,
			Publisher: pub,
			Reporter:  reporters,
			MaxLength: cfg.MaxPostLen,
		})
		if err != nil {
			return nil, fmt.Errorf("wire pipeline: %w", err)
		}
		a.cycle = direct
	}

	a.sched = scheduler.New(cfg.TickInterval, cfg.RunOnStart)
	if err := a.sched.Add(scheduler.Job{
		Name:     "post",
		Interval: cfg.PostInterval,
		Expr:     cfg.PostCron,
		Action: func(ctx context.Context) {
			a.cycle.RunCycle(ctx)
		},
	}); err != nil {
		return nil, err
	}
	if cfg.KeepAlive.PublicURL != "" {
		pinger := keepalive.New(cfg.KeepAlive.PublicURL, cfg.KeepAlive.Interval, nil)
		if err := a.sched.Add(pinger.Job()); err != nil {
			return nil, err
		}
	}

	return a, nil
}

func openAI(cfg config.LLMConfig) *providers.OpenAIProvider {
	return providers.NewOpenAIProvider(providers.OpenAIConfig{
		APIKey:     cfg.OpenAIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.OpenAIModel,
		ImageModel: cfg.ImageModel,
		Timeout:    cfg.RequestTimeout,
	})
}

func wireGenerator(cfg config.LLMConfig) (pipeline.Generator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openAI(cfg), nil
	case config.ProviderAnthropic:
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:  cfg.AnthropicKey,
			Model:   cfg.AnthropicModel,
			Timeout: cfg.RequestTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

func wirePublisher(cfg *config.Config) (*publisher.Multi, error) {
	twitter := publisher.NewTwitter(publisher.TwitterConfig{
		ConsumerKey:       cfg.Twitter.ConsumerKey,
		ConsumerSecret:    cfg.Twitter.ConsumerSecret,
		AccessToken:       cfg.Twitter.AccessToken,
		AccessTokenSecret: cfg.Twitter.AccessTokenSecret,
		MinInterval:       cfg.Twitter.MinInterval,
	})

	var mirrors []publisher.Target
	if cfg.Telegram.Enabled() {
		tg, err := publisher.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return nil, fmt.Errorf("wire telegram mirror: %w", err)
		}
		mirrors = append(mirrors, tg)
	}
	return publisher.NewMulti(twitter, mirrors...), nil
}

// startRelay connects the Discord session and feeds its events to the
// orchestrator until ctx is done. It is a no-op outside relay mode.
func (a *app) startRelay(ctx context.Context) (stop func(), err error) {
	if a.relay == nil {
		return func() {}, nil
	}
	if err := a.relay.Start(ctx); err != nil {
		return nil, err
	}

	dispatchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.bus.Dispatch(dispatchCtx, a.orch.HandleInbound)
	}()

	return func() {
		_ = a.relay.Stop(context.Background())
		cancel()
		<-done
		a.bus.Close()
	}, nil
}
