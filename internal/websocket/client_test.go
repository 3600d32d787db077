// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/customreports/internal/models"
)

// serve starts a server that streams updates to the first connection and
// reports Serve's result on done.
func serve(t *testing.T, updates <-chan models.ReportJobStatus) (*httptest.Server, <-chan error) {
	t.Helper()
	done := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			done <- err
			return
		}
		done <- NewClient(conn).Serve(context.Background(), updates)
	}))
	t.Cleanup(srv.Close)
	return srv, done
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestClientServe_StreamsUntilClosed(t *testing.T) {
	t.Parallel()
	updates := make(chan models.ReportJobStatus, 2)
	updates <- models.ReportJobStatus{Status: models.ReportStatusPending, CompletedChildJobs: 1, TotalChildJobs: 2}
	updates <- models.ReportJobStatus{Status: models.ReportStatusComplete, CompletedChildJobs: 2, TotalChildJobs: 2}
	close(updates)

	srv, done := serve(t, updates)
	conn := dial(t, srv)

	first := readMessage(t, conn)
	if first.Type != MessageTypeStatus || first.Data == nil || first.Data.CompletedChildJobs != 1 {
		t.Fatalf("first message = %+v", first)
	}
	second := readMessage(t, conn)
	if second.Data == nil || second.Data.Status != models.ReportStatusComplete {
		t.Fatalf("second message = %+v", second)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
		t.Errorf("after last status err = %v, want normal close", err)
	}
	if err := waitDone(t, done); err != nil {
		t.Errorf("Serve: %v", err)
	}
}

func TestClientServe_AnswersPing(t *testing.T) {
	t.Parallel()
	updates := make(chan models.ReportJobStatus)
	srv, done := serve(t, updates)
	conn := dial(t, srv)

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != MessageTypePong {
		t.Errorf("reply = %+v, want pong", msg)
	}
	close(updates)
	waitDone(t, done)
}

func TestClientServe_PeerDisconnect(t *testing.T) {
	t.Parallel()
	updates := make(chan models.ReportJobStatus)
	srv, done := serve(t, updates)
	conn := dial(t, srv)

	_ = conn.Close()
	waitDone(t, done)
}

func TestNewClientIDsAreUnique(t *testing.T) {
	t.Parallel()
	a, b := NewClient(nil), NewClient(nil)
	if a.ID() == b.ID() {
		t.Errorf("client ids collide: %d", a.ID())
	}
}
