package channels

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sipeed/picopost/pkg/bus"
	"github.com/sipeed/picopost/pkg/logger"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowList map[string]struct{}
	running   atomic.Bool
	now       func() time.Time
}

func NewBaseChannel(name string, msgBus *bus.MessageBus, allowList []string) *BaseChannel {
	allowed := make(map[string]struct{}, len(allowList))
	for _, id := range allowList {
		if id != "" {
			allowed[id] = struct{}{}
		}
	}
	return &BaseChannel{
		name:      name,
		bus:       msgBus,
		allowList: allowed,
		now:       time.Now,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}

// IsAllowed reports whether senderID may reach the bus. An empty allow list
// admits everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	_, ok := c.allowList[senderID]
	return ok
}

// HandleMessage publishes an inbound message on the bus.
func (c *BaseChannel) HandleMessage(senderID, chatID, content string, media []string, metadata map[string]string) {
	if !c.IsAllowed(senderID) {
		return
	}

	msg := bus.InboundMessage{
		Channel:    c.name,
		SenderID:   senderID,
		ChatID:     chatID,
		Content:    content,
		Media:      media,
		ReceivedAt: c.now(),
		Metadata:   metadata,
	}

	if !c.bus.PublishInbound(msg) {
		logger.WarnCF(c.name, "Inbound message not delivered to bus", map[string]any{
			"sender_id": senderID,
		})
	}
}
