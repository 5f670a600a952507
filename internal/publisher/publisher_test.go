package publisher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/registry"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/session"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/transport/transporttest"
)

const requestTimeout = 60 * time.Millisecond

type fixture struct {
	gateway  *transporttest.Gateway
	session  *session.Manager
	registry *registry.Registry
	pub      *Publisher
}

func newFixture(t *testing.T, connect bool) *fixture {
	t.Helper()
	g := transporttest.New()
	m, err := session.New(g,
		session.WithClientID("gertrud"),
		session.WithRetry(50*time.Millisecond, 1),
		session.WithRequestTimeout(requestTimeout),
		session.WithPollInterval(5*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	m.Start(context.Background())
	t.Cleanup(func() {
		m.Stop()
		_ = g.Close()
	})
	if connect {
		if err := m.Connect(context.Background(), "2001:db8::1", 1883, nil); err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}
	r := registry.New(m, 16)
	return &fixture{gateway: g, session: m, registry: r, pub: New(m, r)}
}

func TestPublishNotConnected(t *testing.T) {
	f := newFixture(t, false)

	for _, qos := range []int{0, 1, 2} {
		_, err := f.pub.Publish(context.Background(), "sensor/values", []byte("x"), qos)
		if !errors.Is(err, session.ErrNotConnected) {
			t.Errorf("qos %d: expected ErrNotConnected, got %v", qos, err)
		}
	}
	if n := f.gateway.Sends(); n != 0 {
		t.Errorf("expected zero sends, got %d", n)
	}
}

func TestPublishScenario(t *testing.T) {
	f := newFixture(t, false)
	if err := f.session.Connect(context.Background(), "[2001:db8::1]", 1883, nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if ep, _ := f.session.Endpoint(); ep != transporttest.DefaultEndpoint {
		t.Fatalf("connected to %s", ep)
	}
	payload := []byte(`{"temperature":"5"}`)

	ack, err := f.pub.Publish(context.Background(), "sensor/values", payload, 0)
	if err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	if ack.TopicID != 1 {
		t.Errorf("expected topic id 1, got %d", ack.TopicID)
	}
	if n := f.gateway.Count(mqttsn.REGISTER); n != 1 {
		t.Errorf("expected one REGISTER, got %d", n)
	}
	sends := f.gateway.Sends()

	ack, err = f.pub.Publish(context.Background(), "sensor/values", payload, 0)
	if err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	if ack.TopicID != 1 {
		t.Errorf("second publish used topic id %d", ack.TopicID)
	}
	if n := f.gateway.Count(mqttsn.REGISTER); n != 1 {
		t.Errorf("second publish re-registered, %d REGISTER", n)
	}
	if n := f.gateway.Sends() - sends; n != 1 {
		t.Errorf("second publish sent %d datagrams, want 1", n)
	}

	published := f.gateway.Published()
	if len(published) != 2 {
		t.Fatalf("gateway received %d PUBLISH", len(published))
	}
	for i, p := range published {
		if string(p.Data) != string(payload) || p.TopicID != 1 || p.MsgID != 0 || p.PacketFlag.QoS != mqttsn.AtMostOnce {
			t.Errorf("publish %d: unexpected %+v", i, p)
		}
	}
}

func TestPublishQoS0DoesNotWait(t *testing.T) {
	f := newFixture(t, true)
	if _, err := f.registry.Resolve(context.Background(), "sensor/values"); err != nil {
		t.Fatal(err)
	}
	f.gateway.SetSilent(true)

	start := time.Now()
	if _, err := f.pub.Publish(context.Background(), "sensor/values", []byte("x"), 0); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= requestTimeout {
		t.Errorf("QoS 0 publish blocked for %s", elapsed)
	}
}

func TestPublishQoS1(t *testing.T) {
	f := newFixture(t, true)

	ack, err := f.pub.Publish(context.Background(), "sensor/values", []byte("x"), 1)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ack.MsgID == 0 || ack.QoS != mqttsn.AtLeastOnce {
		t.Errorf("unexpected ack %+v", ack)
	}
	if p := f.gateway.Published()[0]; p.MsgID != ack.MsgID || p.PacketFlag.QoS != mqttsn.AtLeastOnce {
		t.Errorf("gateway saw %+v", p)
	}
}

func TestPublishQoS2(t *testing.T) {
	f := newFixture(t, true)

	ack, err := f.pub.Publish(context.Background(), "sensor/values", []byte("x"), 2)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ack.QoS != mqttsn.ExactlyOnce {
		t.Errorf("unexpected ack %+v", ack)
	}
	if n := f.gateway.Count(mqttsn.PUBREL); n != 1 {
		t.Errorf("expected one PUBREL, got %d", n)
	}
}

func TestPublishTimeout(t *testing.T) {
	tests := []struct {
		qos  int
		drop mqttsn.MsgType
	}{
		{qos: 1, drop: mqttsn.PUBLISH},
		{qos: 2, drop: mqttsn.PUBLISH},
		{qos: 2, drop: mqttsn.PUBREL},
	}
	for _, tt := range tests {
		f := newFixture(t, true)
		if _, err := f.registry.Resolve(context.Background(), "sensor/values"); err != nil {
			t.Fatal(err)
		}
		f.gateway.SetDrop(tt.drop, true)

		start := time.Now()
		_, err := f.pub.Publish(context.Background(), "sensor/values", []byte("x"), tt.qos)
		if !errors.Is(err, ErrPublishTimeout) {
			t.Errorf("qos %d, dropped %s: expected ErrPublishTimeout, got %v", tt.qos, tt.drop, err)
		}
		if elapsed := time.Since(start); elapsed < requestTimeout {
			t.Errorf("qos %d: returned after %s", tt.qos, elapsed)
		}
	}
}

func TestPublishOutOfRangeQoS(t *testing.T) {
	f := newFixture(t, true)

	ack, err := f.pub.Publish(context.Background(), "sensor/values", []byte("x"), 5)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ack.QoS != mqttsn.AtMostOnce || ack.MsgID != 0 {
		t.Errorf("expected QoS 0 semantics, got %+v", ack)
	}
	if p := f.gateway.Published()[0]; p.PacketFlag.QoS != mqttsn.AtMostOnce {
		t.Errorf("gateway saw qos %d", p.PacketFlag.QoS)
	}
}

func TestPublishPayloadTooLarge(t *testing.T) {
	f := newFixture(t, true)
	sends := f.gateway.Sends()

	_, err := f.pub.Publish(context.Background(), "sensor/values", []byte(strings.Repeat("x", 129)), 0)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if f.gateway.Sends() != sends {
		t.Error("oversized payload produced traffic")
	}
}

func TestPublishTopicUnavailable(t *testing.T) {
	f := newFixture(t, true)
	f.gateway.SetRegAck(mqttsn.RejectedNotSupported)

	_, err := f.pub.Publish(context.Background(), "sensor/values", []byte("x"), 0)
	if !errors.Is(err, ErrTopicUnavailable) || !errors.Is(err, registry.ErrRegistrationRejected) {
		t.Fatalf("expected ErrTopicUnavailable wrapping the rejection, got %v", err)
	}
	if len(f.gateway.Published()) != 0 {
		t.Error("PUBLISH sent without a topic id")
	}
}

func TestPublishRejected(t *testing.T) {
	f := newFixture(t, true)
	f.gateway.SetPubAck(mqttsn.RejectedCongestion)

	for _, qos := range []int{1, 2} {
		_, err := f.pub.Publish(context.Background(), "sensor/values", []byte("x"), qos)
		if !errors.Is(err, ErrPublishRejected) {
			t.Errorf("qos %d: expected ErrPublishRejected, got %v", qos, err)
		}
	}
	if _, ok := f.registry.Lookup("sensor/values"); !ok {
		t.Error("congestion must not drop the registration")
	}
}

func TestPublishInvalidTopicIDForgetsRegistration(t *testing.T) {
	f := newFixture(t, true)
	f.gateway.SetPubAck(mqttsn.RejectedInvalidTopicID)

	_, err := f.pub.Publish(context.Background(), "sensor/values", []byte("x"), 1)
	if !errors.Is(err, ErrPublishRejected) {
		t.Fatalf("expected ErrPublishRejected, got %v", err)
	}
	if _, ok := f.registry.Lookup("sensor/values"); ok {
		t.Fatal("registration kept after invalid topic id")
	}

	f.gateway.SetPubAck(mqttsn.Accepted)
	if _, err := f.pub.Publish(context.Background(), "sensor/values", []byte("x"), 1); err != nil {
		t.Fatalf("Publish after re-registration: %v", err)
	}
	if n := f.gateway.Count(mqttsn.REGISTER); n != 2 {
		t.Errorf("expected 2 REGISTER, got %d", n)
	}
}
