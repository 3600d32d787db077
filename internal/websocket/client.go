// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package websocket

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/customreports/internal/logging"
	"github.com/tomtom215/customreports/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024 // clients only send pings
)

// Message types.
const (
	MessageTypeStatus = "status"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
)

// Message is the frame sent in both directions.
type Message struct {
	Type string                  `json:"type"`
	Data *models.ReportJobStatus `json:"data,omitempty"`
}

var clientIDCounter atomic.Uint64

// Client streams report statuses to one websocket connection. Only the
// write pump writes to the connection.
type Client struct {
	id   uint64
	conn *websocket.Conn
	send chan Message
}

// NewClient wraps conn.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		conn: conn,
		send: make(chan Message, 16),
	}
}

// ID returns the client's process-unique id.
func (c *Client) ID() uint64 {
	return c.id
}

// Serve writes every status from updates as a status message. When
// updates closes a normal close frame is sent. Serve returns when updates
// closes, the peer disconnects or ctx is done, and always closes the
// connection.
func (c *Client) Serve(ctx context.Context, updates <-chan models.ReportJobStatus) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.readPump(cancel)
	err := c.writePump(ctx, updates)
	_ = c.conn.Close()
	return err
}

// readPump handles pings and notices the peer going away.
func (c *Client) readPump(cancel context.CancelFunc) {
	defer cancel()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("Unexpected websocket close")
			}
			return
		}
		if msg.Type == MessageTypePing {
			select {
			case c.send <- Message{Type: MessageTypePong}:
			default:
			}
		}
	}
}

func (c *Client) writePump(ctx context.Context, updates <-chan models.ReportJobStatus) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case status, ok := <-updates:
			if !ok {
				return c.closeNormally()
			}
			if err := c.write(Message{Type: MessageTypeStatus, Data: &status}); err != nil {
				return err
			}

		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return err
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (c *Client) write(msg Message) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

func (c *Client) closeNormally() error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream complete"))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}
