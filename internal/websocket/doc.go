// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

/*
Package websocket serves report status streams over WebSocket connections.

Each connection follows one report. The server sends a message per status
change and a normal close frame after the terminal status:

	{"type": "status", "data": {"status": "pending", "completedChildJobs": 1, "totalChildJobs": 4}}
	{"type": "status", "data": {"status": "complete", "completedChildJobs": 4, "totalChildJobs": 4, "data": {...}}}

Clients may send {"type": "ping"} and receive {"type": "pong"}. Protocol
level pings are sent every 54 seconds and the connection is dropped when no
pong arrives within 60 seconds.
*/
package websocket
