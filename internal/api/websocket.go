package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/mini-tycoon/internal/engine"
)

const maxWSConns = 16

type wsState struct {
	conns  atomic.Int32
	nextID atomic.Uint64
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsMessage is one frame of the live stream: a snapshot, a delta, or an
// event. A delta is a snapshot without the grid whose Interactions hold only
// the records added since the previous frame of the same epoch.
type wsMessage struct {
	Type     string           `json:"type"` // "snapshot", "delta" or "event"
	Snapshot *engine.Snapshot `json:"snapshot,omitempty"`
	Event    *engine.Event    `json:"event,omitempty"`
}

// handleWS streams the town to a display client: a full snapshot on connect,
// every event as it happens, and a delta after each tick, restart, and
// finished conversation. Client messages are ignored.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if n := s.ws.conns.Add(1); n > maxWSConns {
		s.ws.conns.Add(-1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.ws.conns.Add(-1)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	subID, events := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)
	sid := s.ws.nextID.Add(1)
	slog.Info("stream client connected", "session", sid, "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: only watches for the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(m wsMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteJSON(m)
	}
	snap := s.Sim.Snapshot()
	if err := send(wsMessage{Type: "snapshot", Snapshot: &snap}); err != nil {
		return
	}
	epoch, seen := snap.Epoch, snap.InteractionCount

	sendDelta := func() error {
		d := s.Sim.SnapshotSince(epoch, seen)
		d.Grid = nil
		epoch, seen = d.Epoch, d.InteractionCount
		return send(wsMessage{Type: "delta", Snapshot: &d})
	}

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			slog.Info("stream client disconnected", "session", sid)
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := send(wsMessage{Type: "event", Event: &e}); err != nil {
				return
			}
			switch e.Category {
			case engine.CategoryTick, engine.CategoryRestart, engine.CategoryConversation:
				if err := sendDelta(); err != nil {
					return
				}
			}
		}
	}
}
