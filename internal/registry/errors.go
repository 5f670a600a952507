package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/session"
)

var (
	ErrRegistryFull         = errors.New("topic registry full")
	ErrRegistrationTimeout  = errors.New("registration timeout")
	ErrRegistrationRejected = errors.New("registration rejected")
	ErrInvalidTopic         = errors.New("invalid topic name")
)

type RegistrationError struct {
	Topic string
	Kind  error
	Err   error
}

func (e *RegistrationError) Error() string {
	msg := fmt.Sprintf("register %q: %v", e.Topic, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RegistrationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// classify maps a request failure to its registration error kind.
func classify(err error) error {
	switch {
	case errors.Is(err, session.ErrAckTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrRegistrationTimeout
	case errors.Is(err, session.ErrNotConnected):
		return session.ErrNotConnected
	case errors.Is(err, session.ErrIO):
		return session.ErrIO
	}
	return err
}
