package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/event"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/subscription"
)

type Option func(*options)

type options struct {
	clientID        string
	keepAlive       time.Duration
	cleanSession    bool
	retryTimeout    time.Duration
	connectAttempts int
	requestTimeout  time.Duration
	pollInterval    time.Duration
	reporter        *event.Reporter
	slots           *subscription.Table
	onMessage       MessageHandler
}

func defaultOptions() options {
	return options{
		clientID:        "mqttsn-" + uuid.NewString()[:8],
		cleanSession:    true,
		retryTimeout:    15 * time.Second,
		connectAttempts: 3,
		requestTimeout:  15 * time.Second,
		pollInterval:    250 * time.Millisecond,
		reporter:        event.NewReporter(event.LogSink{}),
		slots:           subscription.NewTable(16),
	}
}

// WithClientID sets the CONNECT client identifier (1 to 23 bytes). By
// default a random "mqttsn-xxxxxxxx" id is used.
func WithClientID(id string) Option {
	return func(o *options) {
		o.clientID = id
	}
}

// WithKeepAlive sets the duration announced in CONNECT. The client does
// not ping; zero announces no keep-alive.
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) {
		o.keepAlive = d
	}
}

func WithCleanSession(clean bool) Option {
	return func(o *options) {
		o.cleanSession = clean
	}
}

// WithRetry bounds Connect: CONNECT is sent at most attempts times, each
// attempt waiting timeout for CONNACK.
func WithRetry(timeout time.Duration, attempts int) Option {
	return func(o *options) {
		if timeout > 0 {
			o.retryTimeout = timeout
		}
		if attempts > 0 {
			o.connectAttempts = attempts
		}
	}
}

// WithRequestTimeout bounds each REGISTER, PUBLISH and DISCONNECT wait.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithPollInterval sets how often the runtime loop wakes up to check for
// shutdown while no datagram arrives.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

func WithReporter(r *event.Reporter) Option {
	return func(o *options) {
		o.reporter = r
	}
}

// WithSubscriptions hands the manager the slot table incoming PUBLISH
// messages are dispatched through.
func WithSubscriptions(t *subscription.Table) Option {
	return func(o *options) {
		if t != nil {
			o.slots = t
		}
	}
}
