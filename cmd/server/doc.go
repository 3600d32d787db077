// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

/*
Command server runs the custom reports service.

Startup order:

 1. Configuration (koanf: defaults, optional YAML, environment)
 2. Logging (zerolog)
 3. Metrics store and report registry (badger or MongoDB)
 4. Report cache (in-memory or Redis)
 5. Job transport (in-process channels, or NATS JetStream with an optional
    embedded server)
 6. Job store (badger or JetStream key-value)
 7. Queue, workers and report service
 8. HTTP API
 9. Supervisor tree, until SIGINT or SIGTERM

Single process development setup:

	STORE_BACKEND=badger BADGER_IN_MEMORY=true \
	PROVIDER_BASE_URL=https://analytics.example.com PROVIDER_API_KEY=... \
	./server

Several instances share work when they use MongoDB or a shared badger
path per instance, NATS for the transport and the kv job store:

	STORE_BACKEND=mongo MONGO_URI=mongodb://mongo:27017 \
	NATS_ENABLED=true NATS_URL=nats://nats:4222 QUEUE_JOB_STORE=kv \
	CACHE_BACKEND=redis REDIS_ADDRESS=redis:6379 \
	./server

On shutdown the HTTP server drains (open status streams end when their
context is canceled), the queue router waits for in-flight jobs up to
QUEUE_CLOSE_TIMEOUT, and stores are closed last.
*/
package main
