// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

// Package queue implements a persistent job queue with parent/child flows
// on top of the eventprocessor transport.
//
// Job records live in a JobStore (BadgerDB for one instance, a JetStream
// key-value bucket for several). The transport carries two kinds of
// message: dispatch notices on customreports.jobs.<queue>, naming a job and
// the token of its current run, and lifecycle events on
// customreports.events, which every instance relays into its EventBus.
//
// Processing a dispatch:
//
//  1. claim: waiting (or active with an expired lock) becomes active, but
//     only for the token the job currently carries.
//  2. run: the processor runs under watermill's Retry and Recoverer
//     middleware, each attempt bounded by the lock duration.
//  3. finish: the job is marked completed or failed, its event is
//     published, parents are advanced or failed, and the record is removed
//     when the job's options ask for it.
//
// The handler always acknowledges once the job is finished, since retries
// happen inside the handler and the outcome is recorded in the store.
//
// Adding a job whose id is waiting or active is an explicit no-op that
// returns the existing job. A finished job with the same id is rerun.
package queue
