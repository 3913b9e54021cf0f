package orchestrator

import (
	"time"

	"github.com/sipeed/picopost/pkg/bus"
)

type State int

const (
	StateIdle State = iota
	StateAwaiting
	StateFulfilled
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateAwaiting:
		return "awaiting"
	case StateFulfilled:
		return "fulfilled"
	case StateTimedOut:
		return "timed_out"
	default:
		return "idle"
	}
}

type RequestStatus int

const (
	RequestPending RequestStatus = iota
	RequestFulfilled
	RequestTimedOut
)

func (s RequestStatus) String() string {
	switch s {
	case RequestFulfilled:
		return "fulfilled"
	case RequestTimedOut:
		return "timed_out"
	default:
		return "pending"
	}
}

// PendingRequest is the single outstanding relay request.
type PendingRequest struct {
	ID            string
	DispatchedAt  time.Time
	Status        RequestStatus
	AttachmentRef string

	// closed once, when the request is fulfilled
	done chan struct{}
}

func (r *PendingRequest) snapshot() PendingRequest {
	return PendingRequest{
		ID:            r.ID,
		DispatchedAt:  r.DispatchedAt,
		Status:        r.Status,
		AttachmentRef: r.AttachmentRef,
	}
}

// ReplyEvent is a message from the relay channel that may answer a request.
type ReplyEvent struct {
	SenderID      string
	AttachmentRef string
	ReceivedAt    time.Time
}

// EventFromMessage builds a ReplyEvent from the first media reference of msg.
func EventFromMessage(msg bus.InboundMessage) (ReplyEvent, bool) {
	if len(msg.Media) == 0 || msg.Media[0] == "" {
		return ReplyEvent{}, false
	}
	return ReplyEvent{
		SenderID:      msg.SenderID,
		AttachmentRef: msg.Media[0],
		ReceivedAt:    msg.ReceivedAt,
	}, true
}
