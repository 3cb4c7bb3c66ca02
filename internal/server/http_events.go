package server

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	mcErrors "missioncontrol/internal/errors"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 4096
)

// eventConn serialises writes to one websocket
type eventConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *eventConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}

func (c *eventConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// upgrader accepts same-host origins, or the configured allow list when one is set
func (s *Server) upgrader() websocket.Upgrader {
	var allowed []string
	if s.AppConfig != nil {
		allowed = s.AppConfig.Server.AllowedOrigins
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if len(allowed) > 0 {
				return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
			}
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		},
	}
}

// eventsHandler streams workspace events. The first message is the current snapshot.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	ws, err := s.Workspaces.Get(r.PathValue("ws"), identityOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		s.writeError(w, r, errNotWebsocket)
		return
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request
		s.Logger.Debug("Websocket upgrade failed", "workspace", ws.ID, "error", err.Error())
		return
	}
	c := &eventConn{conn: conn}
	defer func() { _ = conn.Close() }()

	events, unsubscribe := ws.Subscribe()
	defer unsubscribe()

	snap := ws.Machine.Snapshot()
	spy := ws.Spyglass.Snapshot()
	if err := c.writeJSON(WorkspaceEvent{Type: "snapshot", Workspace: ws.ID, Mission: &snap, Spyglass: &spy, At: time.Now().UTC()}); err != nil {
		return
	}
	s.Logger.Debug("Websocket subscriber connected", "workspace", ws.ID)

	// The client sends nothing but control frames; reading keeps pongs flowing.
	closed := make(chan struct{})
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		ws.touch()
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = c.writeJSON(WorkspaceEvent{Type: "closed", Workspace: ws.ID, At: time.Now().UTC()})
				return
			}
			if err := c.writeJSON(ev); err != nil {
				s.Logger.Debug("Websocket write failed", "workspace", ws.ID, "error", err.Error())
				return
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		case <-closed:
			s.Logger.Debug("Websocket subscriber disconnected", "workspace", ws.ID)
			return
		case <-r.Context().Done():
			return
		}
	}
}

// errNotWebsocket is returned to plain HTTP requests on the event route
var errNotWebsocket = mcErrors.NewValidationError(mcErrors.ErrCodeInvalidRequest, "websocket upgrade required", nil)
