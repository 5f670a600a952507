package session

import (
	"errors"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/transport"
)

// Error kinds. Operation errors wrap one of these together with the cause,
// so callers can use errors.Is on either.
var (
	ErrInvalidAddress      = transport.ErrInvalidAddress
	ErrIO                  = transport.ErrIO
	ErrGatewayUnreachable  = errors.New("gateway unreachable")
	ErrConnectionRejected  = errors.New("connection rejected")
	ErrInvalidWill         = errors.New("invalid will")
	ErrNotConnected        = errors.New("not connected")
	ErrGatewayDisconnected = errors.New("disconnected by gateway")

	// ErrAckTimeout is returned by Request when the acknowledgment did not
	// arrive in time. Registry and publisher translate it into their own
	// timeout kinds.
	ErrAckTimeout = errors.New("acknowledgment timeout")
)

type ConnectError struct {
	Gateway    string
	Kind       error
	ReturnCode mqttsn.ReturnCode // meaningful for ErrConnectionRejected
	Err        error
}

func (e *ConnectError) Error() string {
	msg := "connect"
	if e.Gateway != "" {
		msg += " to " + e.Gateway
	}
	msg += ": " + e.Kind.Error()
	if errors.Is(e.Kind, ErrConnectionRejected) {
		msg += " (" + e.ReturnCode.String() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// asIOError makes sure a send failure matches ErrIO.
func asIOError(err error) error {
	if errors.Is(err, ErrIO) {
		return err
	}
	return errors.Join(ErrIO, err)
}
