// Package composer builds generation requests from weighted random templates.
package composer

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/picopost/pkg/pipeline"
)

// Randomizer is the subset of *rand.Rand the composer draws from.
type Randomizer interface {
	Float64() float64
	IntN(n int) int
}

type Options struct {
	MaxTokens   int64
	Temperature float64
	// ImageSuffix is appended to image prompts, e.g. relay parameters.
	ImageSuffix string
}

// Composer is safe for concurrent use.
type Composer struct {
	mu   sync.Mutex
	rnd  Randomizer
	opts Options
}

func New(opts Options) *Composer {
	seed := uint64(time.Now().UnixNano())
	return NewWithRand(opts, rand.New(rand.NewPCG(seed, seed>>1)))
}

func NewWithRand(opts Options, rnd Randomizer) *Composer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 280
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.85
	}
	return &Composer{rnd: rnd, opts: opts}
}

// Compose picks a prompt family (insight 40%, teaching 30%, future 30%) and
// fills it with random fragments.
func (c *Composer) Compose() pipeline.Payload {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		kind    pipeline.PromptKind
		prompt  string
		subject string
	)

	roll := c.rnd.Float64()
	switch {
	case roll < 0.4:
		focus := c.pick(techFocus)
		theme := c.pick(themes)
		kind = pipeline.PromptInsight
		prompt = fmt.Sprintf(insightTemplate, focus, theme)
		subject = focus + " shaping " + theme
	case roll < 0.7:
		impact := c.pick(impactLevels)
		domain := c.pick(domains)
		kind = pipeline.PromptTeaching
		prompt = fmt.Sprintf(teachingTemplate, domain, impact)
		subject = impact + " breakthroughs in " + domain
	default:
		topic := c.pick(cognitiveTopics)
		angle := c.pick(angles)
		kind = pipeline.PromptFuture
		prompt = fmt.Sprintf(futureTemplate, topic, angle)
		subject = "the future of " + topic
	}

	return pipeline.Payload{
		Kind:        kind,
		System:      systemPrompt,
		Prompt:      prompt + requirements,
		ImagePrompt: c.imagePrompt(subject),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	}
}

func (c *Composer) imagePrompt(subject string) string {
	parts := []string{subject, c.pick(imageStyles)}
	if s := strings.TrimSpace(c.opts.ImageSuffix); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

func (c *Composer) pick(items []string) string {
	return items[c.rnd.IntN(len(items))]
}
