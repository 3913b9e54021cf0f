package bus

import (
	"context"
	"sync"

	"github.com/sipeed/picopost/pkg/logger"
)

const defaultBufferSize = 64

// MessageBus carries inbound channel events to a single consumer.
type MessageBus struct {
	inbound chan InboundMessage
	mu      sync.RWMutex
	closed  bool
}

func NewMessageBus() *MessageBus {
	return NewMessageBusSize(defaultBufferSize)
}

func NewMessageBusSize(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &MessageBus{inbound: make(chan InboundMessage, size)}
}

// PublishInbound enqueues msg without blocking. It returns false when the bus
// is closed or the buffer is full; the message is dropped in both cases.
func (b *MessageBus) PublishInbound(msg InboundMessage) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}

	select {
	case b.inbound <- msg:
		return true
	default:
		logger.WarnCF("bus", "Inbound buffer full, dropping message", map[string]any{
			"channel":   msg.Channel,
			"sender_id": msg.SenderID,
		})
		return false
	}
}

// ConsumeInbound blocks until a message is available, the bus is closed, or
// ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg, ok := <-b.inbound:
		return msg, ok
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// Dispatch feeds every inbound message to handler until ctx is done or the
// bus is closed. Handler errors are logged and do not stop the loop.
func (b *MessageBus) Dispatch(ctx context.Context, handler MessageHandler) {
	for {
		msg, ok := b.ConsumeInbound(ctx)
		if !ok {
			return
		}
		if err := handler(msg); err != nil {
			logger.DebugCF("bus", "Inbound handler returned error", map[string]any{
				"channel": msg.Channel,
				"error":   err.Error(),
			})
		}
	}
}

func (b *MessageBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.inbound)
}
