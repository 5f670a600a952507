// Package registry maps topic names to the ids the gateway assigned to them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/event"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/logger"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/packet"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/session"
)

// Requester is the part of the session the registry needs.
type Requester interface {
	SessionID() string
	NextMsgID() uint16
	Request(ctx context.Context, kind session.AckKind, msgID uint16, data []byte, timeout time.Duration) (*mqttsn.Packet, error)
}

type Registration struct {
	Name       string
	TopicID    uint16
	Registered time.Time
}

type Option func(*Registry)

func WithMaxTopicLength(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxTopicLength = n
		}
	}
}

func WithReporter(reporter *event.Reporter) Option {
	return func(r *Registry) {
		r.reporter = reporter
	}
}

// Registry is a fixed-capacity table. Entries belong to one gateway
// session and are dropped when the session id changes.
type Registry struct {
	requester      Requester
	maxTopicLength int
	reporter       *event.Reporter

	mu      sync.Mutex
	slots   []Registration
	session string
}

func New(requester Requester, capacity int, opts ...Option) *Registry {
	if capacity < 0 {
		capacity = 0
	}
	r := &Registry{
		requester:      requester,
		maxTopicLength: 64,
		slots:          make([]Registration, capacity),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) validate(name string) error {
	if name == "" || len(name) > r.maxTopicLength {
		return fmt.Errorf("%w: length %d not in 1..%d", ErrInvalidTopic, len(name), r.maxTopicLength)
	}
	if strings.ContainsAny(name, "#+") {
		return fmt.Errorf("%w: wildcards cannot be registered", ErrInvalidTopic)
	}
	return nil
}

// Resolve returns the topic id for name, registering it with the gateway on
// first use. A failed registration leaves the table unchanged.
func (r *Registry) Resolve(ctx context.Context, name string) (uint16, error) {
	if err := r.validate(name); err != nil {
		return 0, &RegistrationError{Topic: name, Kind: ErrInvalidTopic, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncSession()

	free := -1
	for i, s := range r.slots {
		if s.TopicID != 0 && s.Name == name {
			return s.TopicID, nil
		}
		if s.TopicID == 0 && free < 0 {
			free = i
		}
	}
	if free < 0 {
		logger.Warn("Topic registry full", "topic", name, "capacity", len(r.slots))
		return 0, &RegistrationError{Topic: name, Kind: ErrRegistryFull}
	}

	start := time.Now()
	msgID := r.requester.NextMsgID()
	topicID, err := r.register(ctx, name, msgID)
	outcome := event.Outcome{
		Kind:      event.KindRegister,
		SessionID: r.requester.SessionID(),
		Topic:     name,
		TopicID:   topicID,
		MsgID:     msgID,
		Latency:   time.Since(start),
	}
	if err != nil {
		outcome.Err = err
		var rerr *RegistrationError
		if errors.As(err, &rerr) {
			outcome.ErrorKind = rerr.Kind.Error()
		}
		r.reporter.Report(outcome)
		return 0, err
	}

	r.slots[free] = Registration{Name: name, TopicID: topicID, Registered: time.Now()}
	r.reporter.Report(outcome)
	return topicID, nil
}

func (r *Registry) register(ctx context.Context, name string, msgID uint16) (uint16, error) {
	data, err := packet.NewRegisterPacket(msgID, name)
	if err != nil {
		return 0, &RegistrationError{Topic: name, Kind: ErrInvalidTopic, Err: err}
	}
	pkt, err := r.requester.Request(ctx, session.KindRegister, msgID, data, 0)
	if err != nil {
		return 0, &RegistrationError{Topic: name, Kind: classify(err), Err: err}
	}
	ack, err := packet.ParseRegAckPacket(pkt)
	if err != nil {
		return 0, &RegistrationError{Topic: name, Kind: ErrRegistrationRejected, Err: err}
	}
	if ack.ReturnCode != mqttsn.Accepted {
		return 0, &RegistrationError{Topic: name, Kind: ErrRegistrationRejected, Err: fmt.Errorf("return code %s", ack.ReturnCode)}
	}
	if ack.TopicID == 0 {
		return 0, &RegistrationError{Topic: name, Kind: ErrRegistrationRejected, Err: errors.New("gateway assigned topic id 0")}
	}
	return ack.TopicID, nil
}

// syncSession drops every entry when the gateway session changed. Caller
// holds r.mu.
func (r *Registry) syncSession() {
	id := r.requester.SessionID()
	if id == r.session {
		return
	}
	if r.session != "" {
		logger.Debug("Gateway session changed, clearing topic registry", "entries", r.len())
	}
	clear(r.slots)
	r.session = id
}

func (r *Registry) Lookup(name string) (uint16, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncSession()
	for _, s := range r.slots {
		if s.TopicID != 0 && s.Name == name {
			return s.TopicID, true
		}
	}
	return 0, false
}

// Forget releases the slot of name so the next Resolve registers it again.
func (r *Registry) Forget(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.slots {
		if s.TopicID != 0 && s.Name == name {
			r.slots[i] = Registration{}
			return true
		}
	}
	return false
}

func (r *Registry) Registrations() []Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Registration
	for _, s := range r.slots {
		if s.TopicID != 0 {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.len()
}

func (r *Registry) len() int {
	n := 0
	for _, s := range r.slots {
		if s.TopicID != 0 {
			n++
		}
	}
	return n
}

func (r *Registry) Capacity() int {
	return len(r.slots)
}
