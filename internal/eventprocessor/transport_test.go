// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package eventprocessor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/customreports/internal/config"
)

func TestServerConfigFrom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url      string
		wantHost string
		wantPort int
	}{
		{"nats://127.0.0.1:4222", "127.0.0.1", 4222},
		{"nats://0.0.0.0:5222", "0.0.0.0", 5222},
		{"nats://127.0.0.1:-1", "127.0.0.1", -1},
		{"nats://localhost", "localhost", 4222},
		{"", "127.0.0.1", 4222},
	}
	for _, tt := range tests {
		sc := ServerConfigFrom(&config.NATSConfig{URL: tt.url, StoreDir: "/data/nats", MaxMemory: 1, MaxStore: 2})
		if sc.Host != tt.wantHost || sc.Port != tt.wantPort {
			t.Errorf("ServerConfigFrom(%q) = %s:%d, want %s:%d", tt.url, sc.Host, sc.Port, tt.wantHost, tt.wantPort)
		}
		if sc.StoreDir != "/data/nats" || sc.JetStreamMaxMem != 1 || sc.JetStreamMaxStore != 2 {
			t.Errorf("ServerConfigFrom(%q) dropped storage settings: %+v", tt.url, sc)
		}
	}
}

func TestStreamConfigFrom(t *testing.T) {
	t.Parallel()

	sc := StreamConfigFrom(&config.NATSConfig{StreamName: "CUSTOM_REPORTS", StreamRetention: time.Hour, DedupWindow: 2 * time.Minute})
	if sc.Name != "CUSTOM_REPORTS" || sc.MaxAge != time.Hour || sc.DuplicateWindow != 2*time.Minute {
		t.Errorf("StreamConfigFrom() = %+v", sc)
	}
	if len(sc.Subjects) != 1 || sc.Subjects[0] != "customreports.>" {
		t.Errorf("subjects = %v", sc.Subjects)
	}
	if sc.MaxBytes != -1 {
		t.Errorf("unset MaxStore should be unlimited, got %d", sc.MaxBytes)
	}
}

func TestJobSubscriberConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.NATSConfig{DurablePrefix: "reports", QueueGroupPrefix: "workers", AckWait: time.Minute, StreamName: "S"}
	sc := JobSubscriberConfig("nats://x", cfg, 0)
	if sc.SubscribersCount != 1 {
		t.Errorf("concurrency 0 should subscribe once, got %d", sc.SubscribersCount)
	}
	if sc.DurableName != "reports" || sc.QueueGroup != "workers" || sc.AckWaitTimeout != time.Minute || sc.StreamName != "S" {
		t.Errorf("JobSubscriberConfig() = %+v", sc)
	}

	ev := EventSubscriberConfig("nats://x", cfg)
	if ev.QueueGroup != "" || ev.DurableName != "" {
		t.Errorf("event subscriber must fan out, got %+v", ev)
	}
}

func TestJobTopic(t *testing.T) {
	t.Parallel()
	if got := JobTopic("prepare"); got != "customreports.jobs.prepare" {
		t.Errorf("JobTopic() = %q", got)
	}
}

// runRouter starts r and waits until every handler has subscribed.
func runRouter(t *testing.T, r *Router) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	select {
	case <-r.Running():
	case <-time.After(10 * time.Second):
		t.Fatal("router did not start")
	}
}

func TestChannelTransport_RoundTrip(t *testing.T) {
	t.Parallel()

	tr := NewChannelTransport(nil)
	t.Cleanup(func() { _ = tr.Close() })

	sub, err := tr.JobSubscriber("prepare", 2)
	if err != nil {
		t.Fatalf("JobSubscriber: %v", err)
	}

	r, err := NewRouter(nil, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	got := make(chan *message.Message, 1)
	r.AddConsumerHandler("prepare", JobTopic("prepare"), sub, func(msg *message.Message) error {
		got <- msg
		return nil
	})
	runRouter(t, r)

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"id":"r1"}`))
	if err := tr.Publisher.Publish(context.Background(), JobTopic("prepare"), msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case m := <-got:
		if string(m.Payload) != `{"id":"r1"}` {
			t.Errorf("payload = %s", m.Payload)
		}
		if m.Metadata.Get(natsgo.MsgIdHdr) != msg.UUID {
			t.Errorf("Nats-Msg-Id = %q, want message uuid", m.Metadata.Get(natsgo.MsgIdHdr))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	if h := r.HealthCheck(context.Background()); !h.Healthy {
		t.Errorf("running router unhealthy: %+v", h)
	}
}

func TestChannelTransport_RecoversPanics(t *testing.T) {
	t.Parallel()

	tr := NewChannelTransport(nil)
	t.Cleanup(func() { _ = tr.Close() })
	sub, _ := tr.JobSubscriber("q", 1)

	r, err := NewRouter(nil, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	var n atomic.Int32
	calls := make(chan struct{}, 4)
	r.AddConsumerHandler("q", JobTopic("q"), sub, func(*message.Message) error {
		calls <- struct{}{}
		if n.Add(1) == 1 {
			panic("boom")
		}
		return nil
	})
	runRouter(t, r)

	if err := tr.Publisher.Publish(context.Background(), JobTopic("q"), message.NewMessage(watermill.NewUUID(), nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// The panic nacks the message and the channel redelivers it.
	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(5 * time.Second):
			t.Fatalf("delivery %d missing", i+1)
		}
	}
}

func TestPublisher_Closed(t *testing.T) {
	t.Parallel()

	tr := NewChannelTransport(nil)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	err := tr.Publisher.Publish(context.Background(), EventsTopic, message.NewMessage(watermill.NewUUID(), nil))
	if !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("Publish after Close = %v, want ErrPublisherClosed", err)
	}
	if h := tr.Publisher.HealthCheck(context.Background()); h.Healthy {
		t.Error("closed publisher reported healthy")
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error { return errors.New("nats unavailable") }
func (failingPublisher) Close() error                              { return nil }

func TestPublisher_CircuitBreakerOpens(t *testing.T) {
	t.Parallel()

	cfg := DefaultCircuitBreakerConfig("test-publisher-" + t.Name())
	cfg.FailureThreshold = 3
	cfg.Timeout = time.Minute

	pub := WrapPublisher(failingPublisher{})
	cb := NewCircuitBreaker(cfg)
	pub.SetCircuitBreaker(cb)

	for i := 0; i < 3; i++ {
		_ = pub.Publish(context.Background(), EventsTopic, message.NewMessage(watermill.NewUUID(), nil))
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", cb.State())
	}

	err := pub.Publish(context.Background(), EventsTopic, message.NewMessage(watermill.NewUUID(), nil))
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Publish with open breaker = %v, want ErrOpenState", err)
	}
	if h := pub.HealthCheck(context.Background()); h.Healthy {
		t.Error("open breaker should make the publisher unhealthy")
	}
}

func TestNATSTransport_Embedded(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an embedded NATS server")
	}
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := &config.NATSConfig{
		Enabled:          true,
		EmbeddedServer:   true,
		URL:              "nats://127.0.0.1:-1",
		StoreDir:         t.TempDir(),
		MaxMemory:        64 << 20,
		MaxStore:         256 << 20,
		StreamName:       "CUSTOM_REPORTS_TEST",
		StreamRetention:  time.Hour,
		DedupWindow:      time.Minute,
		SubscribersCount: 1,
		DurablePrefix:    "test",
		QueueGroupPrefix: "test",
		AckWait:          30 * time.Second,
	}
	tr, err := NewNATSTransport(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("NewNATSTransport: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })

	if tr.JetStream() == nil {
		t.Fatal("NATS transport should expose JetStream")
	}

	hc := NewHealthChecker(5 * time.Second)
	tr.RegisterHealth(hc)
	if h := hc.CheckAll(ctx); !h.Healthy {
		t.Fatalf("transport unhealthy: %+v", h.Components)
	}

	sub, err := tr.JobSubscriber("prepare", 2)
	if err != nil {
		t.Fatalf("JobSubscriber: %v", err)
	}
	r, err := NewRouter(nil, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	got := make(chan string, 4)
	r.AddConsumerHandler("prepare", JobTopic("prepare"), sub, func(msg *message.Message) error {
		got <- string(msg.Payload)
		return nil
	})
	runRouter(t, r)

	msg := message.NewMessage(watermill.NewUUID(), []byte("job-1"))
	if err := tr.Publisher.Publish(ctx, JobTopic("prepare"), msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// Same Nats-Msg-Id inside the duplicate window is dropped by the stream.
	dup := message.NewMessage(watermill.NewUUID(), []byte("job-1-dup"))
	dup.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	if err := tr.Publisher.Publish(ctx, JobTopic("prepare"), dup); err != nil {
		t.Fatalf("Publish duplicate: %v", err)
	}

	select {
	case payload := <-got:
		if payload != "job-1" {
			t.Errorf("payload = %q", payload)
		}
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
	select {
	case payload := <-got:
		t.Errorf("duplicate delivered: %q", payload)
	case <-time.After(500 * time.Millisecond):
	}
}
