package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sipeed/picopost/pkg/logger"
)

// Direct runs the text and image cycles, where every collaborator answers
// synchronously.
type Direct struct {
	mode      string
	composer  Composer
	generator Generator
	images    ImageGenerator
	formatter Formatter
	publisher Publisher
	reporter  Reporter
	maxLength int

	mu      sync.Mutex
	running bool
}

type DirectOptions struct {
	// Mode is reported on outcomes; "image" needs Images.
	Mode      string
	Composer  Composer
	Generator Generator
	Images    ImageGenerator
	Formatter Formatter
	Publisher Publisher
	Reporter  Reporter
	MaxLength int
}

func NewDirect(opts DirectOptions) (*Direct, error) {
	if opts.Composer == nil || opts.Generator == nil || opts.Formatter == nil || opts.Publisher == nil {
		return nil, errors.New("direct pipeline requires composer, generator, formatter and publisher")
	}
	if opts.Mode == "" {
		opts.Mode = "text"
	}
	if opts.Mode == "image" && opts.Images == nil {
		return nil, errors.New("image mode requires an image generator")
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = 280
	}
	return &Direct{
		mode:      opts.Mode,
		composer:  opts.Composer,
		generator: opts.Generator,
		images:    opts.Images,
		formatter: opts.Formatter,
		publisher: opts.Publisher,
		reporter:  opts.Reporter,
		maxLength: opts.MaxLength,
	}, nil
}

// RunCycle composes, generates, formats and publishes one post. Failures are
// captured in the returned Outcome and never panic or propagate.
func (d *Direct) RunCycle(ctx context.Context) (out Outcome) {
	out = Outcome{
		RequestID: uuid.NewString(),
		Mode:      d.mode,
		StartedAt: time.Now(),
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		out.Status = StatusSkipped
		out.Err = ErrCycleInProgress
		return out
	}
	d.running = true
	d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Err = fmt.Errorf("cycle panicked: %v", r)
		}
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()

		out.Duration = time.Since(out.StartedAt)
		LogOutcome("pipeline", out)
		if d.reporter != nil {
			d.reporter.Report(ctx, out)
		}
	}()

	payload := d.composer.Compose()

	raw, err := d.generator.Generate(ctx, payload)
	if err != nil {
		return failed(out, EnsureKind(err, GenerationError, "generate text"))
	}

	content := d.formatter.Format(raw, d.maxLength)
	if content.Text == "" {
		return failed(out, GenerationError("format", errors.New("generated text is empty")))
	}
	out.Text = content.Text

	if d.mode == "image" {
		ref, err := d.images.GenerateImage(ctx, payload.ImagePrompt)
		if err != nil {
			return failed(out, EnsureKind(err, GenerationError, "generate image"))
		}
		out.MediaRef = ref
	}

	if err := d.publisher.Publish(ctx, content, out.MediaRef); err != nil {
		return failed(out, EnsureKind(err, PublishError, "publish"))
	}

	out.Status = StatusPublished
	return out
}

func failed(out Outcome, err error) Outcome {
	out.Status = StatusFailed
	out.Err = err
	return out
}

// EnsureKind keeps an existing classification and otherwise applies wrap.
func EnsureKind(err error, wrap func(string, error) error, op string) error {
	if KindOf(err) != KindNone {
		return err
	}
	return wrap(op, err)
}

// LogOutcome writes the standard cycle summary line.
func LogOutcome(component string, out Outcome) {
	fields := map[string]any{
		"request_id": out.RequestID,
		"mode":       out.Mode,
		"status":     string(out.Status),
		"duration":   out.Duration.String(),
	}
	if out.MediaRef != "" {
		fields["media"] = out.MediaRef
	}
	if out.Checks > 0 {
		fields["checks"] = out.Checks
	}
	if out.Err != nil {
		fields["error"] = out.Err.Error()
		fields["kind"] = out.Kind().String()
	}

	switch out.Status {
	case StatusPublished:
		logger.InfoCF(component, "Cycle published", fields)
	case StatusSkipped:
		logger.WarnCF(component, "Cycle skipped", fields)
	case StatusTimedOut:
		logger.WarnCF(component, "Cycle timed out", fields)
	default:
		logger.ErrorCF(component, "Cycle failed", fields)
	}
}
