package publisher

import (
	"context"
	"errors"

	"github.com/sipeed/picopost/pkg/logger"
	"github.com/sipeed/picopost/pkg/pipeline"
)

// Target is a publisher with a name for logging.
type Target interface {
	pipeline.Publisher
	Name() string
}

// Multi publishes to a primary target and then mirrors the post. Only the
// primary decides the cycle result; mirror failures are logged.
type Multi struct {
	primary Target
	mirrors []Target
}

func NewMulti(primary Target, mirrors ...Target) *Multi {
	return &Multi{primary: primary, mirrors: mirrors}
}

func (m *Multi) Publish(ctx context.Context, content pipeline.Content, mediaRef string) error {
	if m.primary == nil {
		return pipeline.PublishError("publish", errors.New("no primary publisher configured"))
	}
	if err := m.primary.Publish(ctx, content, mediaRef); err != nil {
		return pipeline.EnsureKind(err, pipeline.PublishError, m.primary.Name())
	}

	for _, mirror := range m.mirrors {
		if err := mirror.Publish(ctx, content, mediaRef); err != nil {
			logger.WarnCF("publisher", "Mirror publish failed", map[string]any{
				"target": mirror.Name(),
				"error":  err.Error(),
			})
		}
	}
	return nil
}
