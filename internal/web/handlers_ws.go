package web

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/e7d/rustdesk-indicator/internal/rustdesk"
)

const wsWriteTimeout = 10 * time.Second

type wsMessage struct {
	Type  string          `json:"type"` // state, menu
	State *rustdesk.State `json:"state,omitempty"`
	Menu  *menuResponse   `json:"menu,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}

type wsConnWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConnWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(v)
}

// handleStateWS pushes the state, and the menu derived from it, on connect
// and after every cycle that changed. Client messages are ignored; the read
// loop only detects the close.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r) {
		return
	}

	updates, cancel := s.source.Subscribe()
	defer cancel()

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	writer := &wsConnWriter{conn: conn}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	push := func(st rustdesk.State) error {
		m := s.menuFor(st)
		return writer.WriteJSON(wsMessage{Type: "state", State: &st, Menu: &m})
	}
	if err := push(s.source.State()); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			_ = writer.WriteJSON(wsMessage{Type: "closing"})
			return
		case <-closed:
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			if !st.PendingChanges {
				continue
			}
			if err := push(st); err != nil {
				webLog.Debug("ws_write_failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}
