// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

/*
Package websocket streams broadcast hub subscriptions over WebSocket.

It is the alternative transport to server-sent events for clients that
prefer a socket. Each connection wraps one broadcast.Subscription: the
backlog arrives as initial_batch messages, live items as new_intel
messages, and the hub's keep-alive becomes a WebSocket ping.

Message format (server to client):

	{"type": "initial_batch", "id": "<last item id>", "data": [ ...items ]}
	{"type": "new_intel", "id": "<item id>", "data": { ...item }}
	{"type": "pong"}

Clients may send {"type": "ping"} and receive {"type": "pong"}. Any other
client message is ignored. The server closes the connection when the
subscription ends.
*/
package websocket
