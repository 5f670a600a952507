// Package influxdb exports protocol outcomes as InfluxDB points.
package influxdb

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	c "github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/config"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/event"
	"github.com/life-stream-dev/life-stream-go-mqttsn-client/internal/logger"
)

const (
	Measurement = "mqttsn_outcomes"

	defaultConnectTimeout = 10 * time.Second
)

// Client writes through the non-blocking write API; points are batched and
// flushed by the library.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu        sync.RWMutex
	connected bool
}

func Connect(cfg c.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	cl := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		connected: true,
	}
	go cl.handleWriteErrors(cl.writeAPI.Errors())
	logger.InfoF("Outcome metrics connected to %s (bucket %s)", cfg.URL, cfg.Bucket)
	return cl, nil
}

func (cl *Client) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		logger.WarnF("InfluxDB write failed: %v", err)
	}
}

func (cl *Client) IsConnected() bool {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.connected
}

// Record queues one point for o.
func (cl *Client) Record(_ context.Context, o event.Outcome) error {
	if !cl.IsConnected() {
		return ErrNotConnected
	}
	cl.writeAPI.WritePoint(NewPoint(o))
	return nil
}

// NewPoint converts an outcome. Kind, result and qos are tags; topic names
// stay out of the tag set to keep series cardinality bounded.
func NewPoint(o event.Outcome) *write.Point {
	result := "ok"
	if !o.Success() {
		result = "error"
	}
	tags := map[string]string{
		"kind":   string(o.Kind),
		"result": result,
	}
	if o.Kind == event.KindPublish {
		tags["qos"] = strconv.Itoa(o.QoS)
	}
	if o.ErrorKind != "" {
		tags["error_kind"] = o.ErrorKind
	}

	fields := map[string]interface{}{
		"latency_ms": float64(o.Latency) / float64(time.Millisecond),
	}
	if o.Kind == event.KindPublish {
		fields["payload_bytes"] = o.PayloadSize
	}
	if o.TopicID != 0 {
		fields["topic_id"] = int(o.TopicID)
	}

	ts := o.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(Measurement, tags, fields, ts)
}

// Close flushes pending points and closes the client.
func (cl *Client) Close() error {
	cl.mu.Lock()
	if !cl.connected {
		cl.mu.Unlock()
		return nil
	}
	cl.connected = false
	cl.mu.Unlock()

	cl.writeAPI.Flush()
	cl.client.Close()
	return nil
}

func (cl *Client) Invoke(_ context.Context) error {
	logger.Info("Flushing outcome metrics")
	return cl.Close()
}
