// Package event carries protocol outcome events to their sinks and runs
// shutdown hooks.
package event

import (
	"context"
	"sync"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/logger"
)

type Kind string

const (
	KindConnect    Kind = "connect"
	KindDisconnect Kind = "disconnect"
	KindRegister   Kind = "register"
	KindPublish    Kind = "publish"
)

// Outcome is the result of one protocol operation. Err is nil on success
// and ErrorKind names the failure class in that case.
type Outcome struct {
	Time        time.Time
	Kind        Kind
	SessionID   string
	ClientID    string
	Gateway     string
	Topic       string
	TopicID     uint16
	MsgID       uint16
	QoS         int
	PayloadSize int
	Latency     time.Duration
	ErrorKind   string
	Err         error
}

func (o Outcome) Success() bool {
	return o.Err == nil
}

type Sink interface {
	Record(ctx context.Context, o Outcome) error
}

// Reporter fans outcomes out to its sinks. A failing sink is logged and
// never affects the operation being reported.
type Reporter struct {
	mu      sync.RWMutex
	sinks   []Sink
	timeout time.Duration
}

func NewReporter(sinks ...Sink) *Reporter {
	return &Reporter{sinks: sinks, timeout: 2 * time.Second}
}

func (r *Reporter) Add(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

func (r *Reporter) Report(o Outcome) {
	if r == nil {
		return
	}
	if o.Time.IsZero() {
		o.Time = time.Now()
	}
	r.mu.RLock()
	sinks := r.sinks
	r.mu.RUnlock()

	for _, s := range sinks {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := s.Record(ctx, o); err != nil {
			logger.WarnF("Outcome sink %T failed: %v", s, err)
		}
		cancel()
	}
}

// LogSink writes outcomes to the process log.
type LogSink struct{}

func (LogSink) Record(_ context.Context, o Outcome) error {
	attrs := []any{"kind", string(o.Kind)}
	if o.Gateway != "" {
		attrs = append(attrs, "gateway", o.Gateway)
	}
	if o.Topic != "" {
		attrs = append(attrs, "topic", o.Topic)
	}
	if o.TopicID != 0 {
		attrs = append(attrs, "topic_id", o.TopicID)
	}
	if o.Kind == KindPublish {
		attrs = append(attrs, "qos", o.QoS, "bytes", datasize.ByteSize(o.PayloadSize).HumanReadable())
	}
	if o.MsgID != 0 {
		attrs = append(attrs, "msg_id", o.MsgID)
	}
	attrs = append(attrs, "latency", o.Latency)

	if o.Success() {
		logger.Info(string(o.Kind)+" succeeded", attrs...)
		return nil
	}
	attrs = append(attrs, "error_kind", o.ErrorKind, "error", o.Err)
	logger.Error(string(o.Kind)+" failed", attrs...)
	return nil
}
