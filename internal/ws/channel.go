package ws

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the API already handles cross-origin at the router level
	CheckOrigin: func(r *http.Request) bool { return true },
}

// gorillaChannel adapts a gorilla websocket connection to the Channel
// interface.
type gorillaChannel struct {
	conn *websocket.Conn
}

func (c *gorillaChannel) ReceiveText() (string, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return "", ErrClosed
		}
		return "", err
	}
	return string(data), nil
}

func (c *gorillaChannel) SendJSON(v interface{}) error {
	return c.conn.WriteJSON(v)
}

func (c *gorillaChannel) Close() error {
	return c.conn.Close()
}

// HandleWebSocket upgrades the request and hands the connection to the
// manager's receive loop. Route shape: GET /ws/{consultationID}.
func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	consultationID := chi.URLParam(r, "consultationID")
	if consultationID == "" {
		http.Error(w, "Missing consultation ID", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warn().Err(err).Str("consultation_id", consultationID).Msg("websocket upgrade failed")
		return
	}
	m.Serve(r.Context(), &gorillaChannel{conn: conn}, consultationID)
}
