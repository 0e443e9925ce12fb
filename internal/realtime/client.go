package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ccssmnn/alkalye-sub002/internal/roles"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	DocID     string
	AccountID string
	Role      roles.Role
	Title     string
	Send      chan []byte
}

// ServeWs upgrades the connection and attaches the client to its document
// room. The caller has already authenticated the account and resolved its
// effective role for the document.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, docID, docTitle, accountID string, role roles.Role) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		Hub:       hub,
		Conn:      conn,
		DocID:     docID,
		AccountID: accountID,
		Role:      role,
		Title:     docTitle,
		Send:      make(chan []byte, 256),
	}

	client.Hub.Register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("websocket read error", zap.String("accountId", c.AccountID), zap.Error(err))
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			c.Hub.log.Warn("unmarshal client message", zap.Error(err))
			continue
		}

		// Server-authoritative fields, clients cannot spoof them.
		msg.DocID = c.DocID
		msg.AccountID = c.AccountID

		if msg.Type == UpdateType && !roles.Can(c.Role, roles.ActionWrite) {
			c.Hub.log.Warn("update rejected for read-only client",
				zap.String("accountId", c.AccountID),
				zap.String("documentId", c.DocID),
				zap.String("role", string(c.Role)))
			continue
		}

		c.Hub.Broadcast <- msg
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.Conn.WriteMessage(websocket.TextMessage, message)
		case <-ticker.C:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
