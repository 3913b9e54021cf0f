// Package keepalive pings the bot's own public URL so hosting platforms that
// idle quiet services keep it awake.
package keepalive

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/sipeed/picopost/pkg/logger"
	"github.com/sipeed/picopost/pkg/metrics"
	"github.com/sipeed/picopost/pkg/scheduler"
)

const (
	DefaultInterval = 10 * time.Minute

	pingTimeout = 15 * time.Second
	pingRetries = 2
)

type Pinger struct {
	client    *resty.Client
	url       string
	interval  time.Duration
	retryWait time.Duration
}

func New(url string, interval time.Duration, hc *http.Client) *Pinger {
	client := &http.Client{}
	if hc != nil {
		// copy so SetTimeout below stays local to the pinger
		client.Transport = hc.Transport
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Pinger{
		client:    resty.NewWithClient(client).SetTimeout(pingTimeout),
		url:       url,
		interval:  interval,
		retryWait: 2 * time.Second,
	}
}

// Ping requests the public URL, retrying briefly on failure.
func (p *Pinger) Ping(ctx context.Context) error {
	op := func() error {
		resp, err := p.client.R().SetContext(ctx).Get(p.url)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("self-ping returned %d", resp.StatusCode())
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.retryWait), pingRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		metrics.KeepAlivePings.WithLabelValues("error").Inc()
		logger.WarnCF("keepalive", "Self-ping failed", map[string]any{
			"url":   p.url,
			"error": err.Error(),
		})
		return err
	}

	metrics.KeepAlivePings.WithLabelValues("ok").Inc()
	logger.DebugCF("keepalive", "Self-ping ok", map[string]any{"url": p.url})
	return nil
}

// Job wraps Ping for the scheduler. Failures are logged only.
func (p *Pinger) Job() scheduler.Job {
	return scheduler.Job{
		Name:     "keepalive",
		Interval: p.interval,
		Action: func(ctx context.Context) {
			_ = p.Ping(ctx)
		},
	}
}
