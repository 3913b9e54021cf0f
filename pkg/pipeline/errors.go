package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a cycle failure by the boundary it happened on.
type Kind int

const (
	KindNone Kind = iota
	KindGeneration
	KindPublish
	KindTimeout
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindGeneration:
		return "generation"
	case KindPublish:
		return "publish"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	default:
		return "none"
	}
}

// Error is a failure on one external boundary of a cycle.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrWaitBudgetExhausted is wrapped by every timeout error.
var ErrWaitBudgetExhausted = errors.New("wait budget exhausted")

// ErrCycleInProgress is returned when a cycle is requested while another is outstanding.
var ErrCycleInProgress = errors.New("cycle already in progress")

func GenerationError(op string, err error) error {
	return &Error{Op: op, Kind: KindGeneration, Err: err}
}

func PublishError(op string, err error) error {
	return &Error{Op: op, Kind: KindPublish, Err: err}
}

func TimeoutError(op string, err error) error {
	if err == nil {
		err = ErrWaitBudgetExhausted
	} else if !errors.Is(err, ErrWaitBudgetExhausted) {
		err = fmt.Errorf("%w: %w", ErrWaitBudgetExhausted, err)
	}
	return &Error{Op: op, Kind: KindTimeout, Err: err}
}

func TransportError(op string, err error) error {
	return &Error{Op: op, Kind: KindTransport, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindNone when err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}
