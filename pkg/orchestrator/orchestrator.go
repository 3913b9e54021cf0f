// Package orchestrator runs the relay-and-wait cycle: it asks an external
// bot for an image through the relay channel, waits a bounded time for the
// reply, and publishes the generated post with the returned attachment.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sipeed/picopost/pkg/bus"
	"github.com/sipeed/picopost/pkg/logger"
	"github.com/sipeed/picopost/pkg/metrics"
	"github.com/sipeed/picopost/pkg/pipeline"
)

const (
	DefaultWaitBudget   = 3 * time.Minute
	DefaultPollInterval = 10 * time.Second

	mode = "relay"
)

// Relay sends commands to the image bot.
type Relay interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
	Command(prompt string) string
}

type Options struct {
	Composer  pipeline.Composer
	Generator pipeline.Generator
	Formatter pipeline.Formatter
	Publisher pipeline.Publisher
	Relay     Relay
	Reporter  pipeline.Reporter

	// RelayIdentity is the sender id whose replies complete a request.
	RelayIdentity string
	// Channel and ChatID address the outbound command.
	Channel string
	ChatID  string

	WaitBudget   time.Duration
	PollInterval time.Duration
	MaxLength    int
}

type Orchestrator struct {
	composer  pipeline.Composer
	generator pipeline.Generator
	formatter pipeline.Formatter
	publisher pipeline.Publisher
	relay     Relay
	reporter  pipeline.Reporter

	relayID   string
	channel   string
	chatID    string
	budget    time.Duration
	poll      time.Duration
	maxLength int

	mu      sync.Mutex
	pending *PendingRequest
	now     func() time.Time
	ticker  func(time.Duration) (<-chan time.Time, func())
}

func newTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Composer == nil || opts.Generator == nil || opts.Formatter == nil ||
		opts.Publisher == nil || opts.Relay == nil {
		return nil, errors.New("orchestrator requires composer, generator, formatter, publisher and relay")
	}
	if opts.RelayIdentity == "" {
		return nil, errors.New("orchestrator requires a relay identity")
	}
	if opts.WaitBudget <= 0 {
		opts.WaitBudget = DefaultWaitBudget
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.PollInterval > opts.WaitBudget {
		return nil, fmt.Errorf("poll interval %s exceeds wait budget %s", opts.PollInterval, opts.WaitBudget)
	}
	if opts.Channel == "" {
		opts.Channel = "discord"
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = 280
	}

	return &Orchestrator{
		composer:  opts.Composer,
		generator: opts.Generator,
		formatter: opts.Formatter,
		publisher: opts.Publisher,
		relay:     opts.Relay,
		reporter:  opts.Reporter,
		relayID:   opts.RelayIdentity,
		channel:   opts.Channel,
		chatID:    opts.ChatID,
		budget:    opts.WaitBudget,
		poll:      opts.PollInterval,
		maxLength: opts.MaxLength,
		now:       time.Now,
		ticker:    newTicker,
	}, nil
}

// MaxChecks is the number of polling checks one wait performs before giving up.
func (o *Orchestrator) MaxChecks() int {
	n := int(o.budget / o.poll)
	if o.budget%o.poll != 0 {
		n++
	}
	return n
}

// State reports where the orchestrator is in its cycle.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return StateIdle
	}
	switch o.pending.Status {
	case RequestFulfilled:
		return StateFulfilled
	case RequestTimedOut:
		return StateTimedOut
	default:
		return StateAwaiting
	}
}

// Pending returns a copy of the outstanding request, if any.
func (o *Orchestrator) Pending() (PendingRequest, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return PendingRequest{}, false
	}
	return o.pending.snapshot(), true
}

// RunCycle performs one relay cycle. It never returns an error; failures are
// recorded on the Outcome, logged and reported.
func (o *Orchestrator) RunCycle(ctx context.Context) (out pipeline.Outcome) {
	out = pipeline.Outcome{Mode: mode, StartedAt: o.now()}

	req, err := o.begin()
	if err != nil {
		out.Status = pipeline.StatusSkipped
		out.Err = err
		o.finish(ctx, &out)
		return out
	}
	out.RequestID = req.ID
	metrics.Awaiting.Set(1)

	defer func() {
		if r := recover(); r != nil {
			out.Status = pipeline.StatusFailed
			out.Err = fmt.Errorf("cycle panicked: %v", r)
		}
		o.reset(req)
		metrics.Awaiting.Set(0)
		o.finish(ctx, &out)
	}()

	payload := o.composer.Compose()

	command := o.relay.Command(payload.ImagePrompt)
	logger.InfoCF("orchestrator", "Dispatching relay request", map[string]any{
		"request_id": req.ID,
		"kind":       string(payload.Kind),
	})
	if err := o.relay.Send(ctx, bus.OutboundMessage{
		Channel:   o.channel,
		ChatID:    o.chatID,
		Content:   command,
		RequestID: req.ID,
	}); err != nil {
		return failed(out, pipeline.EnsureKind(err, pipeline.TransportError, "relay dispatch"))
	}

	raw, err := o.generator.Generate(ctx, payload)
	if err != nil {
		return failed(out, pipeline.EnsureKind(err, pipeline.GenerationError, "generate text"))
	}
	content := o.formatter.Format(raw, o.maxLength)
	if content.Text == "" {
		return failed(out, pipeline.GenerationError("format", errors.New("generated text is empty")))
	}
	out.Text = content.Text

	ref, checks, err := o.await(ctx, req)
	out.Checks = checks
	if err != nil {
		if pipeline.KindOf(err) == pipeline.KindTimeout {
			out.Status = pipeline.StatusTimedOut
			out.Err = err
			return out
		}
		return failed(out, err)
	}
	out.MediaRef = ref

	if err := o.publisher.Publish(ctx, content, ref); err != nil {
		return failed(out, pipeline.EnsureKind(err, pipeline.PublishError, "publish"))
	}

	out.Status = pipeline.StatusPublished
	return out
}

func (o *Orchestrator) finish(ctx context.Context, out *pipeline.Outcome) {
	out.Duration = o.now().Sub(out.StartedAt)
	pipeline.LogOutcome("orchestrator", *out)
	if o.reporter != nil {
		o.reporter.Report(ctx, *out)
	}
}

func (o *Orchestrator) begin() (*PendingRequest, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending != nil {
		return nil, pipeline.ErrCycleInProgress
	}
	o.pending = &PendingRequest{
		ID:           uuid.NewString(),
		DispatchedAt: o.now(),
		Status:       RequestPending,
		done:         make(chan struct{}),
	}
	return o.pending, nil
}

func (o *Orchestrator) reset(req *PendingRequest) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == req {
		o.pending = nil
	}
}

// await blocks until req is fulfilled or the wait budget runs out. The
// returned count is the number of polling checks performed.
func (o *Orchestrator) await(ctx context.Context, req *PendingRequest) (string, int, error) {
	maxChecks := o.MaxChecks()

	// Hard ceiling in case ticks are delayed or dropped.
	waitCtx, cancel := context.WithTimeout(ctx, o.poll*time.Duration(maxChecks)+o.poll/2)
	defer cancel()

	tick, stop := o.ticker(o.poll)
	defer stop()

	checks := 0
	for {
		select {
		case <-req.done:
			return o.attachment(req), checks, nil

		case <-tick:
			checks++
			if ref, ok := o.check(req); ok {
				return ref, checks, nil
			}
			if checks >= maxChecks {
				if ref, ok := o.expire(req); ok {
					return ref, checks, nil
				}
				return "", checks, pipeline.TimeoutError("await reply",
					fmt.Errorf("no reply after %d checks", checks))
			}
			logger.DebugCF("orchestrator", "Still waiting for relay reply", map[string]any{
				"request_id": req.ID,
				"check":      checks,
				"max_checks": maxChecks,
			})

		case <-waitCtx.Done():
			if ref, ok := o.expire(req); ok {
				return ref, checks, nil
			}
			return "", checks, pipeline.TimeoutError("await reply", waitCtx.Err())
		}
	}
}

func (o *Orchestrator) attachment(req *PendingRequest) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return req.AttachmentRef
}

func (o *Orchestrator) check(req *PendingRequest) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if req.Status == RequestFulfilled {
		return req.AttachmentRef, true
	}
	return "", false
}

// expire marks req timed out unless a reply won the race.
func (o *Orchestrator) expire(req *PendingRequest) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if req.Status == RequestFulfilled {
		return req.AttachmentRef, true
	}
	req.Status = RequestTimedOut
	return "", false
}

// Deliver offers a reply event to the outstanding request. It returns true
// when the event fulfilled the request.
func (o *Orchestrator) Deliver(ev ReplyEvent) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	req := o.pending
	reason := ""
	switch {
	case req == nil:
		reason = "idle"
	case req.Status != RequestPending:
		reason = "request " + req.Status.String()
	case ev.SenderID != o.relayID:
		reason = "foreign sender"
	case ev.AttachmentRef == "":
		reason = "no attachment"
	case !ev.ReceivedAt.IsZero() && ev.ReceivedAt.Before(req.DispatchedAt):
		reason = "stale"
	}
	if reason != "" {
		metrics.RelayEvents.WithLabelValues("ignored").Inc()
		logger.DebugCF("orchestrator", "Ignoring relay event", map[string]any{
			"sender_id": ev.SenderID,
			"reason":    reason,
		})
		return false
	}

	req.Status = RequestFulfilled
	req.AttachmentRef = ev.AttachmentRef
	close(req.done)

	metrics.RelayEvents.WithLabelValues("accepted").Inc()
	logger.InfoCF("orchestrator", "Relay reply received", map[string]any{
		"request_id": req.ID,
		"media":      ev.AttachmentRef,
		"latency":    ev.ReceivedAt.Sub(req.DispatchedAt).String(),
	})
	return true
}

// HandleInbound adapts bus messages to Deliver. It satisfies bus.MessageHandler.
func (o *Orchestrator) HandleInbound(msg bus.InboundMessage) error {
	ev, ok := EventFromMessage(msg)
	if !ok {
		metrics.RelayEvents.WithLabelValues("ignored").Inc()
		return nil
	}
	o.Deliver(ev)
	return nil
}

func failed(out pipeline.Outcome, err error) pipeline.Outcome {
	out.Status = pipeline.StatusFailed
	out.Err = err
	return out
}
