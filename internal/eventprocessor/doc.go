// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

// Package eventprocessor is the messaging layer under the job queue.
//
// Two transports share one shape:
//
//   - NewChannelTransport: watermill's in-process go channel, for a single
//     instance and for tests.
//   - NewNATSTransport: NATS JetStream through watermill-nats, optionally
//     with an embedded server. One stream captures every subject under
//     "customreports.>".
//
// Subjects:
//
//	customreports.jobs.<queue>   job dispatch, one consumer group per queue
//	customreports.events         job lifecycle events, fanned out to every instance
//
// Dispatch messages only name a job; the job record itself lives in the
// job store, so a redelivered or duplicated message is harmless. The
// publisher sets Nats-Msg-Id on every message so JetStream also drops
// duplicates within the stream's duplicate window.
//
// HealthChecker aggregates component checks for the readiness endpoint.
package eventprocessor
