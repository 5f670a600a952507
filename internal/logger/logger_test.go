package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAsyncHandler(t *testing.T) {
	color.NoColor = true
	out := &lockedBuffer{}
	dir := t.TempDir()
	h := newAsyncHandler(out, dir, slog.LevelInfo, time.Hour)
	log := slog.New(h).With("component", "session")

	log.Debug("hidden")
	log.Info("connected", "gateway", "[2001:db8::1]:1883")
	log.WithGroup("publish").Warn("timeout", "topic", "sensor/values")
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	got := out.String()
	if strings.Contains(got, "hidden") {
		t.Errorf("debug record written at info level: %q", got)
	}
	for _, want := range []string{
		"INFO  | connected component=session gateway=[2001:db8::1]:1883",
		"WARN  | timeout component=session publish.topic=sensor/values",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q does not contain %q", got, want)
		}
	}

	file := filepath.Join(dir, time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	if string(data) != got {
		t.Errorf("file and stdout differ:\n%q\n%q", data, got)
	}
}

func TestShutdownCallbackIdempotent(t *testing.T) {
	h := newAsyncHandler(&lockedBuffer{}, "", slog.LevelDebug, 0)
	cb := &ShutdownCallback{handler: h}
	if err := cb.Invoke(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := cb.Invoke(context.Background()); err != nil {
		t.Fatal(err)
	}
	// writes after close are dropped rather than panicking
	h.Write([]byte("late\n"))
}
