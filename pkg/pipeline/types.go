package pipeline

import (
	"context"
	"time"
)

// PromptKind names the template family a payload was composed from.
type PromptKind string

const (
	PromptInsight  PromptKind = "insight"
	PromptTeaching PromptKind = "teaching"
	PromptFuture   PromptKind = "future"
)

// Payload is one composed generation request.
type Payload struct {
	Kind        PromptKind
	System      string
	Prompt      string
	ImagePrompt string
	MaxTokens   int64
	Temperature float64
}

// RawOutput is unformatted text returned by a generation service.
type RawOutput struct {
	Text  string
	Model string
}

// Content is post text fitted to a platform budget.
type Content struct {
	Text      string
	Truncated bool
}

type Status string

const (
	StatusPublished Status = "published"
	StatusTimedOut  Status = "timed_out"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Outcome summarises one cycle.
type Outcome struct {
	RequestID string
	Mode      string
	Status    Status
	Err       error
	Checks    int
	MediaRef  string
	Text      string
	StartedAt time.Time
	Duration  time.Duration
}

func (o Outcome) Kind() Kind {
	return KindOf(o.Err)
}

func (o Outcome) Published() bool {
	return o.Status == StatusPublished
}

type Composer interface {
	Compose() Payload
}

type Generator interface {
	Generate(ctx context.Context, p Payload) (RawOutput, error)
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

type Formatter interface {
	Format(raw RawOutput, maxLength int) Content
}

type Publisher interface {
	Publish(ctx context.Context, content Content, mediaRef string) error
}

// Reporter observes finished cycles.
type Reporter interface {
	Report(ctx context.Context, o Outcome)
}

// Reporters fans an outcome out to every non-nil reporter.
type Reporters []Reporter

func (rs Reporters) Report(ctx context.Context, o Outcome) {
	for _, r := range rs {
		if r != nil {
			r.Report(ctx, o)
		}
	}
}
