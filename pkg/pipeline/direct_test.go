package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubComposer struct{}

func (stubComposer) Compose() Payload {
	return Payload{Kind: PromptInsight, Prompt: "p", ImagePrompt: "neon city"}
}

type stubGenerator struct {
	text string
	err  error
}

func (g stubGenerator) Generate(context.Context, Payload) (RawOutput, error) {
	return RawOutput{Text: g.text}, g.err
}

type stubImages struct {
	ref string
	err error
}

func (i stubImages) GenerateImage(context.Context, string) (string, error) {
	return i.ref, i.err
}

type passFormatter struct{}

func (passFormatter) Format(raw RawOutput, _ int) Content {
	return Content{Text: raw.Text}
}

type recordingPublisher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, c Content, media string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c.Text+"|"+media)
	return p.err
}

type recordingReporter struct {
	outcomes []Outcome
}

func (r *recordingReporter) Report(_ context.Context, o Outcome) {
	r.outcomes = append(r.outcomes, o)
}

func newDirect(t *testing.T, opts DirectOptions) *Direct {
	t.Helper()
	if opts.Composer == nil {
		opts.Composer = stubComposer{}
	}
	if opts.Formatter == nil {
		opts.Formatter = passFormatter{}
	}
	d, err := NewDirect(opts)
	require.NoError(t, err)
	return d
}

func TestDirectTextCyclePublishes(t *testing.T) {
	pub := &recordingPublisher{}
	rep := &recordingReporter{}
	d := newDirect(t, DirectOptions{Generator: stubGenerator{text: "hello"}, Publisher: pub, Reporter: rep})

	out := d.RunCycle(context.Background())
	assert.Equal(t, StatusPublished, out.Status)
	require.NoError(t, out.Err)
	assert.NotEmpty(t, out.RequestID)
	assert.Equal(t, []string{"hello|"}, pub.calls)
	require.Len(t, rep.outcomes, 1)
	assert.Equal(t, out.RequestID, rep.outcomes[0].RequestID)
}

func TestDirectImageCycleAttachesMedia(t *testing.T) {
	pub := &recordingPublisher{}
	d := newDirect(t, DirectOptions{
		Mode:      "image",
		Generator: stubGenerator{text: "hello"},
		Images:    stubImages{ref: "https://img/1.png"},
		Publisher: pub,
	})

	out := d.RunCycle(context.Background())
	assert.Equal(t, StatusPublished, out.Status)
	assert.Equal(t, []string{"hello|https://img/1.png"}, pub.calls)
}

func TestDirectFailuresAreClassified(t *testing.T) {
	tests := []struct {
		name string
		opts DirectOptions
		kind Kind
	}{
		{
			name: "generation",
			opts: DirectOptions{Generator: stubGenerator{err: errors.New("500")}},
			kind: KindGeneration,
		},
		{
			name: "empty text",
			opts: DirectOptions{Generator: stubGenerator{text: ""}},
			kind: KindGeneration,
		},
		{
			name: "image",
			opts: DirectOptions{Mode: "image", Generator: stubGenerator{text: "x"}, Images: stubImages{err: errors.New("policy")}},
			kind: KindGeneration,
		},
		{
			name: "publish",
			opts: DirectOptions{Generator: stubGenerator{text: "x"}},
			kind: KindPublish,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			if tt.kind == KindPublish {
				pub.err = errors.New("403")
			}
			tt.opts.Publisher = pub
			d := newDirect(t, tt.opts)

			out := d.RunCycle(context.Background())
			assert.Equal(t, StatusFailed, out.Status)
			assert.Equal(t, tt.kind, out.Kind())

			// the next cycle is not blocked by the failure
			next := d.RunCycle(context.Background())
			assert.NotEqual(t, StatusSkipped, next.Status)
		})
	}
}

func TestNewDirectValidatesCollaborators(t *testing.T) {
	_, err := NewDirect(DirectOptions{})
	assert.Error(t, err)

	_, err = NewDirect(DirectOptions{
		Mode:      "image",
		Composer:  stubComposer{},
		Generator: stubGenerator{},
		Formatter: passFormatter{},
		Publisher: &recordingPublisher{},
	})
	assert.Error(t, err)
}
