package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/mqttsn"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/session"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/transport/transporttest"
)

const requestTimeout = 60 * time.Millisecond

func connected(t *testing.T, opts ...session.Option) (*session.Manager, *transporttest.Gateway) {
	t.Helper()
	g := transporttest.New()
	base := []session.Option{
		session.WithClientID("gertrud"),
		session.WithRetry(50*time.Millisecond, 1),
		session.WithRequestTimeout(requestTimeout),
		session.WithPollInterval(5 * time.Millisecond),
	}
	m, err := session.New(g, append(base, opts...)...)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	m.Start(context.Background())
	t.Cleanup(func() {
		m.Stop()
		_ = g.Close()
	})
	if err := m.Connect(context.Background(), "2001:db8::1", 1883, nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return m, g
}

func TestResolveCachesTopicID(t *testing.T) {
	m, g := connected(t)
	r := New(m, 16)

	id, err := r.Resolve(context.Background(), "sensor/values")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != 1 {
		t.Errorf("expected topic id 1, got %d", id)
	}

	sends := g.Sends()
	again, err := r.Resolve(context.Background(), "sensor/values")
	if err != nil || again != id {
		t.Fatalf("second Resolve = %d, %v", again, err)
	}
	if g.Sends() != sends {
		t.Errorf("cache hit produced %d sends", g.Sends()-sends)
	}
	if got, ok := r.Lookup("sensor/values"); !ok || got != id {
		t.Errorf("Lookup = %d, %v", got, ok)
	}
}

func TestResolveFull(t *testing.T) {
	m, g := connected(t)
	r := New(m, 16)

	for i := 0; i < 16; i++ {
		if _, err := r.Resolve(context.Background(), fmt.Sprintf("topic/%d", i)); err != nil {
			t.Fatalf("Resolve %d: %v", i, err)
		}
	}
	registers := g.Count(mqttsn.REGISTER)

	_, err := r.Resolve(context.Background(), "topic/16")
	if !errors.Is(err, ErrRegistryFull) {
		t.Fatalf("expected ErrRegistryFull, got %v", err)
	}
	if g.Count(mqttsn.REGISTER) != registers {
		t.Error("full registry still sent REGISTER")
	}
	if r.Len() != 16 {
		t.Errorf("expected 16 entries, got %d", r.Len())
	}
	for i := 0; i < 16; i++ {
		if _, ok := r.Lookup(fmt.Sprintf("topic/%d", i)); !ok {
			t.Errorf("topic/%d lost", i)
		}
	}
}

func TestResolveTimeoutReleasesSlot(t *testing.T) {
	m, g := connected(t)
	r := New(m, 1)
	g.SetDrop(mqttsn.REGISTER, true)

	start := time.Now()
	_, err := r.Resolve(context.Background(), "a")
	if !errors.Is(err, ErrRegistrationTimeout) {
		t.Fatalf("expected ErrRegistrationTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < requestTimeout {
		t.Errorf("returned after %s", elapsed)
	}
	if r.Len() != 0 {
		t.Fatalf("slot not released, %d entries", r.Len())
	}

	g.SetDrop(mqttsn.REGISTER, false)
	if _, err := r.Resolve(context.Background(), "b"); err != nil {
		t.Fatalf("Resolve after timeout: %v", err)
	}
}

func TestResolveRejected(t *testing.T) {
	m, g := connected(t)
	r := New(m, 4)
	g.SetRegAck(mqttsn.RejectedCongestion)

	_, err := r.Resolve(context.Background(), "a")
	if !errors.Is(err, ErrRegistrationRejected) {
		t.Fatalf("expected ErrRegistrationRejected, got %v", err)
	}
	var rerr *RegistrationError
	if !errors.As(err, &rerr) || rerr.Topic != "a" {
		t.Errorf("unexpected error %#v", err)
	}
	if r.Len() != 0 {
		t.Error("rejected topic was stored")
	}
}

func TestResolveInvalidTopic(t *testing.T) {
	m, g := connected(t)
	r := New(m, 4, WithMaxTopicLength(8))
	sends := g.Sends()

	for _, name := range []string{"", strings.Repeat("x", 9), "a/#", "a/+/b"} {
		if _, err := r.Resolve(context.Background(), name); !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("%q: expected ErrInvalidTopic, got %v", name, err)
		}
	}
	if g.Sends() != sends {
		t.Error("invalid topic produced traffic")
	}
}

func TestResolveNotConnected(t *testing.T) {
	g := transporttest.New()
	m, err := session.New(g, session.WithClientID("gertrud"))
	if err != nil {
		t.Fatal(err)
	}
	r := New(m, 4)

	if _, err := r.Resolve(context.Background(), "a"); !errors.Is(err, session.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if g.Sends() != 0 || r.Len() != 0 {
		t.Error("failed registration left traces")
	}
}

func TestForget(t *testing.T) {
	m, g := connected(t)
	r := New(m, 4)

	if _, err := r.Resolve(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if !r.Forget("a") {
		t.Fatal("Forget returned false")
	}
	if r.Forget("a") {
		t.Error("second Forget returned true")
	}
	if _, err := r.Resolve(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if n := g.Count(mqttsn.REGISTER); n != 2 {
		t.Errorf("expected re-registration, got %d REGISTER", n)
	}
}

func TestNewSessionClearsRegistry(t *testing.T) {
	m, g := connected(t)
	r := New(m, 4)

	if _, err := r.Resolve(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if err := m.Connect(context.Background(), "2001:db8::1", 1883, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Lookup("a"); ok {
		t.Error("registration survived a clean session")
	}
	if _, err := r.Resolve(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if n := g.Count(mqttsn.REGISTER); n != 2 {
		t.Errorf("expected 2 REGISTER, got %d", n)
	}
	if regs := r.Registrations(); len(regs) != 1 || regs[0].Name != "a" {
		t.Errorf("unexpected registrations %+v", regs)
	}
}
