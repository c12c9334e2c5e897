// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"devblog/internal/paginate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait / 2
	maxCommandSize = 4 << 10
)

// upgrader keeps gorilla's default same-origin check.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// liveMessage is one server push on a live socket.
type liveMessage struct {
	Type    string         `json:"type"` // loading, snapshot or error
	Data    any            `json:"data,omitempty"`
	Page    *paginate.Info `json:"page,omitempty"`
	Message string         `json:"message,omitempty"`
}

// command is one client request on a live socket.
type command struct {
	Op    string `json:"op"` // next, prev, goto or resize
	Page  int    `json:"page,omitempty"`
	Width int    `json:"width,omitempty"`
}

// socket is a websocket connection with a single writer goroutine and a
// single reader goroutine. Sessions talk to it through emit and commands.
type socket struct {
	conn     *websocket.Conn
	send     chan liveMessage
	commands chan command
}

// serveSocket upgrades the request and runs session until it returns, the
// client goes away or the request context ends.
func serveSocket(w http.ResponseWriter, r *http.Request, name string, session func(ctx context.Context, s *socket) error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered the client.
		slog.Debug("websocket upgrade failed", "stream", name, "error", err)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &socket{
		conn:     conn,
		send:     make(chan liveMessage, 4),
		commands: make(chan command),
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		s.readLoop(ctx)
	}()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		s.writeLoop(ctx)
	}()

	slog.Debug("live stream opened", "stream", name, "remote", r.RemoteAddr)
	if err := session(ctx, s); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("live stream failed", "stream", name, "error", err)
	}

	close(s.send)
	<-writerDone
	cancel()
	conn.Close()
	<-readerDone
	slog.Debug("live stream closed", "stream", name)
}

func (s *socket) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxCommandSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd command
		if err := s.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read failed", "error", err)
			}
			return
		}
		select {
		case s.commands <- cmd:
		case <-ctx.Done():
			return
		}
	}
}

func (s *socket) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				slog.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// emit queues msg for the writer. Returns ctx.Err() once the socket ends.
func (s *socket) emit(ctx context.Context, msg liveMessage) error {
	select {
	case s.send <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *socket) loading(ctx context.Context) error {
	return s.emit(ctx, liveMessage{Type: "loading"})
}

// fail reports err to the client. The error text is not exposed.
func (s *socket) fail(ctx context.Context, err error) error {
	slog.Warn("live query failed", "error", err)
	s.emit(ctx, liveMessage{Type: "error", Message: "live query failed"})
	return nil
}
