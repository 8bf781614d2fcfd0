package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 120 * time.Second
)

// wsPingInterval must stay below wsPongTimeout so a healthy peer always has a
// ping to answer before its read deadline expires. Variable so tests can
// shorten it.
var wsPingInterval = 45 * time.Second

// wsEnvelope is the wire shape of every queue stream message.
type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// handleQueueWS streams job lifecycle events. A new observer first receives
// the current queue status and the full job list, then live events.
func (s *Server) handleQueueWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.StreamObservers.WithLabelValues("queue").Inc()
	defer s.metrics.StreamObservers.WithLabelValues("queue").Dec()

	events, unsubscribe := s.queue.Subscribe()
	defer unsubscribe()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(v)
	}

	if err := write(wsEnvelope{Type: "queue-status", Data: s.queue.Status()}); err != nil {
		return
	}
	if err := write(wsEnvelope{Type: "queue-jobs", Data: s.queue.Jobs()}); err != nil {
		return
	}

	done := watchClose(conn)
	pings := time.NewTicker(wsPingInterval)
	defer pings.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-pings.C:
			if err := writePing(conn); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := write(wsEnvelope{Type: string(ev.Type), Data: ev.Job}); err != nil {
				return
			}
		}
	}
}

// handleLogsWS replays the recent log backlog and then streams live lines.
// Every message is one JSON log line as emitted by the logger.
func (s *Server) handleLogsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.StreamObservers.WithLabelValues("logs").Inc()
	defer s.metrics.StreamObservers.WithLabelValues("logs").Dec()

	backlog, lines, unsubscribe := s.logs.Subscribe()
	defer unsubscribe()

	write := func(line []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, line)
	}

	for _, line := range backlog {
		if err := write(line); err != nil {
			return
		}
	}

	done := watchClose(conn)
	pings := time.NewTicker(wsPingInterval)
	defer pings.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-pings.C:
			if err := writePing(conn); err != nil {
				return
			}
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := write(line); err != nil {
				return
			}
		}
	}
}

// writePing keeps an otherwise idle observer connection alive; the pong it
// triggers extends the read deadline armed in watchClose.
func writePing(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// watchClose drains inbound frames so pings are answered and returns a
// channel closed when the peer goes away.
func watchClose(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}
