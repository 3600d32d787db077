// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

/*
Package supervisor runs the server's long-lived services under suture v4.

	customreports
	├── data-layer
	│   └── badger-gc (one per badger database)
	├── messaging-layer
	│   └── queue-router (job workers and queue event relay)
	└── api-layer
	    └── http-server

Services that return an error are restarted with suture's backoff. Events
(restarts, backoff, panics) are logged through sutureslog on the slog
adapter of package logging.

Typical use in main:

	tree, err := supervisor.NewSupervisorTree(logging.NewComponentSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(services.NewRouterService(router))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)
*/
package supervisor
