// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package eventprocessor

import (
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/customreports/internal/config"
)

// Subjects. Every topic lives under SubjectRoot so one stream captures them.
const (
	SubjectRoot    = "customreports"
	JobTopicPrefix = SubjectRoot + ".jobs."
	EventsTopic    = SubjectRoot + ".events"
)

// JobTopic returns the topic a queue's dispatch messages are published to.
func JobTopic(queue string) string {
	return JobTopicPrefix + queue
}

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// ServerConfigFrom derives the embedded server settings from cfg. The
// listen address is taken from cfg.URL.
func ServerConfigFrom(cfg *config.NATSConfig) ServerConfig {
	sc := ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          cfg.StoreDir,
		JetStreamMaxMem:   cfg.MaxMemory,
		JetStreamMaxStore: cfg.MaxStore,
	}
	if u, err := url.Parse(cfg.URL); err == nil && u.Host != "" {
		host, port, err := net.SplitHostPort(u.Host)
		if err == nil {
			sc.Host = host
			if p, err := strconv.Atoi(port); err == nil {
				sc.Port = p
			}
		} else {
			sc.Host = u.Host
		}
	}
	return sc
}

// PublisherConfig holds publisher configuration.
type PublisherConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ReconnectBuffer  int
	EnableTrackMsgID bool // nolint:revive // ID is correct per Go conventions
}

// DefaultPublisherConfig returns production defaults for publisher.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:              url,
		MaxReconnects:    -1, // Unlimited
		ReconnectWait:    2 * time.Second,
		ReconnectBuffer:  8 * 1024 * 1024, // 8MB
		EnableTrackMsgID: true,
	}
}

// SubscriberConfig holds subscriber configuration.
type SubscriberConfig struct {
	// Role labels the connection in logs and metrics.
	Role             string
	URL              string
	DurableName      string
	QueueGroup       string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	MaxDeliver       int
	MaxAckPending    int
	CloseTimeout     time.Duration
	MaxReconnects    int
	ReconnectWait    time.Duration
	// StreamName binds the subscriber to an existing stream instead of
	// auto-provisioning one per topic.
	StreamName string
}

// JobSubscriberConfig returns the settings of a queue's work subscriber.
// Instances share the durable consumer and queue group, so each dispatch
// message is delivered to one instance.
func JobSubscriberConfig(url string, cfg *config.NATSConfig, concurrency int) SubscriberConfig {
	if concurrency <= 0 {
		concurrency = 1
	}
	return SubscriberConfig{
		Role:             "jobs",
		URL:              url,
		DurableName:      cfg.DurablePrefix,
		QueueGroup:       cfg.QueueGroupPrefix,
		SubscribersCount: concurrency,
		AckWaitTimeout:   cfg.AckWait,
		MaxDeliver:       5,
		MaxAckPending:    1000,
		CloseTimeout:     30 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		StreamName:       cfg.StreamName,
	}
}

// EventSubscriberConfig returns the settings of the job event subscriber.
// It has no queue group and no durable name: every instance receives every
// event, starting from the time it subscribes.
func EventSubscriberConfig(url string, cfg *config.NATSConfig) SubscriberConfig {
	count := cfg.SubscribersCount
	if count <= 0 {
		count = 1
	}
	return SubscriberConfig{
		Role:             "events",
		URL:              url,
		SubscribersCount: count,
		AckWaitTimeout:   30 * time.Second,
		MaxDeliver:       1,
		MaxAckPending:    1000,
		CloseTimeout:     10 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		StreamName:       cfg.StreamName,
	}
}

// StreamConfig defines the report job stream settings.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// StreamConfigFrom derives the stream settings from cfg.
func StreamConfigFrom(cfg *config.NATSConfig) StreamConfig {
	maxBytes := cfg.MaxStore
	if maxBytes <= 0 {
		maxBytes = -1
	}
	return StreamConfig{
		Name:            cfg.StreamName,
		Subjects:        []string{SubjectRoot + ".>"},
		MaxAge:          cfg.StreamRetention,
		MaxBytes:        maxBytes,
		MaxMsgs:         -1,
		DuplicateWindow: cfg.DedupWindow,
		Replicas:        1,
	}
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // Allowed in half-open state
	Interval         time.Duration // Reset interval for counts
	Timeout          time.Duration // Time to stay open
	FailureThreshold uint32        // Failures before opening
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}
