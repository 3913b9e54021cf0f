// Package notify posts cycle summaries to a Slack incoming webhook.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sipeed/picopost/pkg/logger"
	"github.com/sipeed/picopost/pkg/pipeline"
	"github.com/sipeed/picopost/pkg/utils"
	"github.com/slack-go/slack"
)

const webhookTimeout = 10 * time.Second

type Slack struct {
	webhookURL string
	client     *http.Client
}

func NewSlack(webhookURL string, hc *http.Client) *Slack {
	if hc == nil {
		hc = &http.Client{Timeout: webhookTimeout}
	}
	return &Slack{webhookURL: webhookURL, client: hc}
}

// Report sends one message per finished cycle. Skipped cycles are not sent.
// Delivery failures are logged and never affect the cycle.
func (s *Slack) Report(ctx context.Context, o pipeline.Outcome) {
	if o.Status == pipeline.StatusSkipped {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), webhookTimeout)
	defer cancel()

	msg := &slack.WebhookMessage{Text: Summary(o)}
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.client, msg); err != nil {
		logger.WarnCF("notify", "Slack webhook failed", map[string]any{
			"request_id": o.RequestID,
			"error":      err.Error(),
		})
	}
}

// Summary renders an outcome as a short Slack message.
func Summary(o pipeline.Outcome) string {
	var b strings.Builder
	switch o.Status {
	case pipeline.StatusPublished:
		b.WriteString(":white_check_mark: posted")
	case pipeline.StatusTimedOut:
		b.WriteString(":hourglass: relay timed out")
	default:
		b.WriteString(":x: cycle failed")
	}
	fmt.Fprintf(&b, " [%s] in %s", o.Mode, o.Duration.Round(time.Second))
	if o.Checks > 0 {
		fmt.Fprintf(&b, " after %d checks", o.Checks)
	}
	if o.Err != nil {
		fmt.Fprintf(&b, "\n%s: %s", o.Kind(), utils.Truncate(o.Err.Error(), 300))
	}
	if o.Text != "" && o.Status == pipeline.StatusPublished {
		fmt.Fprintf(&b, "\n> %s", utils.Truncate(strings.ReplaceAll(o.Text, "\n\n", " / "), 200))
	}
	return b.String()
}
