// Package app wires the client from configuration and runs the periodic
// publish loop.
package app

import (
	"context"
	"errors"
	"time"

	c "github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/config"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/event"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/logger"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/publisher"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/registry"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/session"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/subscription"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/transport"
)

// Producer supplies the payload of each periodic publish.
type Producer interface {
	Payload() ([]byte, error)
}

type App struct {
	config    *c.Config
	session   *session.Manager
	registry  *registry.Registry
	publisher *publisher.Publisher
	slots     *subscription.Table
	producer  Producer
	will      *session.Will

	lastConnectErr error
}

func New(config *c.Config, t transport.Transport, reporter *event.Reporter, producer Producer) (*App, error) {
	slots := subscription.NewTable(config.Subscriptions.Slots)
	manager, err := session.New(t,
		session.WithClientID(config.Client.ID),
		session.WithKeepAlive(config.KeepAlive()),
		session.WithCleanSession(config.Client.CleanSession),
		session.WithRetry(config.RetryTimeout(), config.Client.ConnectAttempts),
		session.WithRequestTimeout(config.RequestTimeout()),
		session.WithReporter(reporter),
		session.WithSubscriptions(slots),
	)
	if err != nil {
		return nil, err
	}
	reg := registry.New(manager, config.Registry.Capacity,
		registry.WithMaxTopicLength(config.Registry.MaxTopicLength),
		registry.WithReporter(reporter),
	)
	pub := publisher.New(manager, reg,
		publisher.WithMaxPayload(config.MaxPayload()),
		publisher.WithReporter(reporter),
	)

	a := &App{
		config:    config,
		session:   manager,
		registry:  reg,
		publisher: pub,
		slots:     slots,
		producer:  producer,
	}
	if w := config.Client.Will; w.Topic != "" {
		a.will = &session.Will{
			Topic:   w.Topic,
			Message: []byte(w.Message),
			QoS:     mqttsn.QoSFromInt(w.QoS),
			Retain:  w.Retain,
		}
	}
	return a, nil
}

func (a *App) Session() *session.Manager {
	return a.session
}

func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Connect connects to the configured gateway and remembers the result for
// the reconnect decision in Run.
func (a *App) Connect(ctx context.Context) error {
	a.lastConnectErr = a.session.Connect(ctx, a.config.Gateway.Address, a.config.Gateway.Port, a.will)
	return a.lastConnectErr
}

// PublishOnce produces one payload and publishes it to the configured topic,
// reconnecting first when the session was lost.
func (a *App) PublishOnce(ctx context.Context) (publisher.Ack, error) {
	if !a.session.IsConnected() && !errors.Is(a.lastConnectErr, session.ErrInvalidAddress) {
		logger.Info("Not connected, reconnecting", "gateway", a.config.Gateway.Address)
		if err := a.Connect(ctx); err != nil {
			logger.ErrorF("Reconnect failed: %v", err)
		}
	}
	payload, err := a.producer.Payload()
	if err != nil {
		return publisher.Ack{}, err
	}
	return a.publisher.Publish(ctx, a.config.Publish.Topic, payload, a.config.Publish.QoS)
}

// Run starts the runtime loop, connects once, and publishes every interval
// until ctx is canceled. The loop outlives ctx so that the session's shutdown
// hook can still complete the DISCONNECT exchange; it ends in Invoke.
func (a *App) Run(ctx context.Context) error {
	a.session.Start(context.Background())
	if err := a.Connect(ctx); err != nil {
		logger.ErrorF("Unable to connect to gateway: %v", err)
	}

	interval := a.config.PublishInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.InfoF("Publishing to %q every %s at QoS %d", a.config.Publish.Topic, interval, a.config.Publish.QoS)

	for {
		if ack, err := a.PublishOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.WarnF("Publish failed: %v", err)
		} else {
			logger.Debug("Published", "topic", ack.Topic, "topic_id", ack.TopicID, "bytes", ack.PayloadSize)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
