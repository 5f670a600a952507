package publisher

import (
	"context"
	"errors"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/session"
)

var (
	ErrTopicUnavailable = errors.New("topic unavailable")
	ErrPublishTimeout   = errors.New("publish timeout")
	ErrPublishRejected  = errors.New("publish rejected")
	ErrPayloadTooLarge  = errors.New("payload too large")
)

type PublishError struct {
	Topic string
	QoS   mqttsn.QoS
	Kind  error
	Err   error
}

func (e *PublishError) Error() string {
	msg := fmt.Sprintf("publish %q (qos %d): %v", e.Topic, e.QoS, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PublishError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func classify(err error) error {
	switch {
	case errors.Is(err, session.ErrAckTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrPublishTimeout
	case errors.Is(err, session.ErrNotConnected):
		return session.ErrNotConnected
	case errors.Is(err, session.ErrIO):
		return session.ErrIO
	}
	return err
}
