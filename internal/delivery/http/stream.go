package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/thanhvo2104/admitq/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamEntry upgrades to a websocket and forwards the entry's notification
// channel. Identity comes from query params because browsers cannot set
// headers on websocket handshakes.
func (h *Handler) StreamEntry(w http.ResponseWriter, r *http.Request) {
	entryID := mux.Vars(r)["entryId"]
	identity := identityFromQuery(r)

	ch, err := h.engine.OpenChannel(r.Context(), entryID, identity)
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Errorf(r.Context(), "http.StreamEntry upgrade: %v", err)
		return
	}

	h.pump(r, conn, ch, nil)
}

// WatchResource streams resource-level queue events to an owner dashboard.
func (h *Handler) WatchResource(w http.ResponseWriter, r *http.Request) {
	resourceID := mux.Vars(r)["resourceId"]

	ch, cancel := h.engine.WatchResource(resourceID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		h.l.Errorf(r.Context(), "http.WatchResource upgrade: %v", err)
		return
	}

	h.pump(r, conn, ch, cancel)
}

// pump writes events until the channel closes or the peer goes away. A
// closed channel means the entry resolved or the subscriber was replaced.
func (h *Handler) pump(r *http.Request, conn *websocket.Conn, ch <-chan models.NotificationEvent, cancel func()) {
	defer func() {
		if cancel != nil {
			cancel()
		}
		_ = conn.Close()
	}()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Drain the read side so close frames and pongs are processed.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func identityFromQuery(r *http.Request) models.Identity {
	q := r.URL.Query()
	return models.Identity{
		Kind:     models.IdentityKind(q.Get("kind")),
		MemberID: q.Get("member_id"),
		Name:     q.Get("name"),
		Contact:  q.Get("contact"),
	}
}
