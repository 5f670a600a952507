package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	c "github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/config"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/database"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/event"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/sensor"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/session"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/transport/transporttest"
)

func testConfig() *c.Config {
	cfg := c.Default()
	cfg.Client.RetryTimeout = "30ms"
	cfg.Client.ConnectAttempts = 1
	cfg.Client.RequestTimeout = "50ms"
	cfg.Publish.Interval = "10ms"
	return cfg
}

func runFor(t *testing.T, a *App, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.Run(ctx); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	wg.Wait()
	a.Session().Stop()
}

func TestRunPublishesSensorValues(t *testing.T) {
	g := transporttest.New()
	journal := database.NewMemoryStore(0)
	a, err := New(testConfig(), g, event.NewReporter(journal), sensor.NewGenerator("1", 1))
	if err != nil {
		t.Fatal(err)
	}
	runFor(t, a, 150*time.Millisecond)

	published := g.Published()
	if len(published) < 3 {
		t.Fatalf("expected several publishes, got %d", len(published))
	}
	for _, p := range published {
		if p.TopicID != 1 || p.PacketFlag.QoS != mqttsn.AtMostOnce {
			t.Errorf("unexpected publish %+v", p)
		}
	}
	if n := g.Count(mqttsn.REGISTER); n != 1 {
		t.Errorf("expected one REGISTER, got %d", n)
	}
	if id, _ := g.TopicID("sensor/values"); id != 1 {
		t.Errorf("gateway assigned %d", id)
	}
	if n := len(journal.Filter(event.KindConnect)); n != 1 {
		t.Errorf("expected one connect outcome, got %d", n)
	}
	if n := len(journal.Filter(event.KindPublish)); n < len(published) {
		t.Errorf("journal holds %d publish outcomes for %d publishes", n, len(published))
	}
}

func TestRunInvalidAddressNeverSends(t *testing.T) {
	g := transporttest.New()
	cfg := testConfig()
	cfg.Gateway.Address = "192.0.2.10"
	a, err := New(cfg, g, event.NewReporter(), sensor.NewGenerator("1", 1))
	if err != nil {
		t.Fatal(err)
	}
	runFor(t, a, 80*time.Millisecond)

	if n := g.Sends(); n != 0 {
		t.Errorf("expected zero sends, got %d", n)
	}
}

func TestRunReconnects(t *testing.T) {
	g := transporttest.New()
	g.SetSilent(true)
	a, err := New(testConfig(), g, event.NewReporter(), sensor.NewGenerator("1", 1))
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(60 * time.Millisecond)
		g.SetSilent(false)
	}()
	runFor(t, a, 300*time.Millisecond)

	if n := g.Count(mqttsn.CONNECT); n < 2 {
		t.Errorf("expected reconnect attempts, got %d CONNECT", n)
	}
	if len(g.Published()) == 0 {
		t.Error("nothing published after the gateway came back")
	}
}

func TestPublishOnceNotConnected(t *testing.T) {
	g := transporttest.New()
	cfg := testConfig()
	cfg.Gateway.Address = "not-an-address"
	a, err := New(cfg, g, event.NewReporter(), sensor.NewGenerator("1", 1))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Connect(context.Background()); !errors.Is(err, session.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := a.PublishOnce(context.Background()); !errors.Is(err, session.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestNewWithWill(t *testing.T) {
	g := transporttest.New()
	cfg := testConfig()
	cfg.Client.Will.Topic = "sensor/status"
	cfg.Client.Will.Message = "offline"
	a, err := New(cfg, g, event.NewReporter(), sensor.NewGenerator("1", 1))
	if err != nil {
		t.Fatal(err)
	}
	a.Session().Start(context.Background())
	defer a.Session().Stop()

	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if topic, msg := g.Will(); topic != "sensor/status" || string(msg) != "offline" {
		t.Errorf("will = %q %q", topic, msg)
	}
}
