// Package realtime runs the live-collaboration hub. Each open document has a
// room; clients exchange content updates, cursors, and presence over
// websockets.
package realtime

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	UpdateType         = "UPDATE"          // Document content changed
	CursorType         = "CURSOR"          // A user moved their cursor
	PresenceUpdateType = "PRESENCE_UPDATE" // A user joined or left
	MetadataType       = "METADATA"        // Document title/info
)

type WSMessage struct {
	Type      string          `json:"type"`
	DocID     string          `json:"documentId"`
	AccountID string          `json:"accountId"`
	Payload   json.RawMessage `json:"payload"`
}

// UpdatePayload is the body of an UPDATE message.
type UpdatePayload struct {
	Content string `json:"content"`
}

type UserStatus struct {
	AccountID string    `json:"accountId"`
	CursorPos int       `json:"cursorPos"`
	LastSeen  time.Time `json:"lastSeen"`
}

type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client

	db  *sql.DB
	log *zap.Logger

	// Current content per open document, flushed by SaveWorker.
	ContentCache map[string]string
	DirtyDocs    map[string]bool
	Presence     map[string]map[string]UserStatus // docID -> accountID -> status
	mu           sync.Mutex
}

func NewHub(db *sql.DB, log *zap.Logger) *Hub {
	return &Hub{
		Rooms:        make(map[string]map[*Client]bool),
		Broadcast:    make(chan WSMessage),
		Register:     make(chan *Client),
		Unregister:   make(chan *Client),
		db:           db,
		log:          log,
		ContentCache: make(map[string]string),
		DirtyDocs:    make(map[string]bool),
		Presence:     make(map[string]map[string]UserStatus),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.DocID] == nil {
				h.Rooms[client.DocID] = make(map[*Client]bool)
				h.Presence[client.DocID] = make(map[string]UserStatus)

				// First client in the room loads the document from the database.
				var content string
				err := h.db.QueryRow("SELECT content FROM documents WHERE id = $1", client.DocID).Scan(&content)
				if err != nil {
					h.log.Error("load document for room", zap.String("documentId", client.DocID), zap.Error(err))
					content = ""
				}
				h.ContentCache[client.DocID] = content
			}
			h.Rooms[client.DocID][client] = true
			h.Presence[client.DocID][client.AccountID] = UserStatus{AccountID: client.AccountID, LastSeen: time.Now()}
			currentContent := h.ContentCache[client.DocID]
			h.mu.Unlock()

			// New clients get the full current content so their editor is
			// up to date before any incremental updates arrive.
			initialPayload, _ := json.Marshal(UpdatePayload{Content: currentContent})
			initialMsg, _ := json.Marshal(WSMessage{Type: UpdateType, DocID: client.DocID, Payload: initialPayload})
			client.Send <- initialMsg

			metaPayload, _ := json.Marshal(map[string]string{"title": client.Title})
			metaMsg, _ := json.Marshal(WSMessage{Type: MetadataType, DocID: client.DocID, AccountID: client.AccountID, Payload: metaPayload})
			client.Send <- metaMsg

			h.broadcastPresenceUpdate(client.DocID)

		case client := <-h.Unregister:
			if h.removeClient(client) {
				h.broadcastPresenceUpdate(client.DocID)
			}

		case msg := <-h.Broadcast:
			h.mu.Lock()
			if msg.Type == UpdateType {
				var update UpdatePayload
				if err := json.Unmarshal(msg.Payload, &update); err == nil {
					h.ContentCache[msg.DocID] = update.Content
					h.DirtyDocs[msg.DocID] = true
				}
			}

			payload, err := json.Marshal(msg)
			if err != nil {
				h.log.Error("marshal broadcast message", zap.Error(err))
				h.mu.Unlock()
				continue
			}

			// Everyone in the room except the sender. Collected under the
			// lock, sent outside it.
			clientsToSend := make([]*Client, 0, len(h.Rooms[msg.DocID]))
			for client := range h.Rooms[msg.DocID] {
				if client.AccountID != msg.AccountID {
					clientsToSend = append(clientsToSend, client)
				}
			}
			h.mu.Unlock()

			// Slow clients are dropped directly. Sending them back through
			// Unregister would block Run on its own channel.
			var dropped []*Client
			for _, client := range clientsToSend {
				select {
				case client.Send <- payload:
				default:
					h.log.Warn("client send buffer full, dropping", zap.String("accountId", client.AccountID))
					dropped = append(dropped, client)
				}
			}
			for _, client := range dropped {
				if h.removeClient(client) {
					h.broadcastPresenceUpdate(client.DocID)
				}
			}
		}
	}
}

// removeClient detaches a client from its room, saving and closing the room
// when it was the last member. Reports whether the room still has members,
// decided while the lock is held.
func (h *Hub) removeClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	docID := client.DocID
	if _, ok := h.Rooms[docID][client]; !ok {
		return false
	}
	delete(h.Rooms[docID], client)
	delete(h.Presence[docID], client.AccountID)
	close(client.Send)

	if len(h.Rooms[docID]) == 0 {
		if h.DirtyDocs[docID] {
			_, err := h.db.Exec(`UPDATE documents SET content = $1, updated_at = NOW() WHERE id = $2`,
				h.ContentCache[docID], docID,
			)
			if err != nil {
				h.log.Error("save document on room close", zap.String("documentId", docID), zap.Error(err))
			}
		}
		delete(h.Rooms, docID)
		delete(h.Presence, docID)
		delete(h.ContentCache, docID)
		delete(h.DirtyDocs, docID)
		h.log.Info("closed empty room", zap.String("documentId", docID))
		return false
	}
	return true
}

// SaveWorker periodically flushes dirty documents to the database.
func (h *Hub) SaveWorker() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		docsToSave := make(map[string]string)

		h.mu.Lock()
		for docID, isDirty := range h.DirtyDocs {
			if isDirty {
				docsToSave[docID] = h.ContentCache[docID]
			}
		}
		h.mu.Unlock()

		for docID, content := range docsToSave {
			_, err := h.db.Exec(`UPDATE documents SET content = $1, updated_at = NOW() WHERE id = $2`, content, docID)
			if err != nil {
				h.log.Error("autosave document", zap.String("documentId", docID), zap.Error(err))
				continue // stays dirty, retried on the next tick
			}

			h.mu.Lock()
			// Only mark clean if the content has not changed again since
			// the save started.
			if h.ContentCache[docID] == content {
				h.DirtyDocs[docID] = false
			}
			h.mu.Unlock()

			h.log.Debug("autosaved document", zap.String("documentId", docID))
		}
	}
}

// RemoveDocument evicts a document from memory and disconnects its clients.
// Called when a document is deleted via the API.
func (h *Hub) RemoveDocument(docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.ContentCache, docID)
	delete(h.DirtyDocs, docID)
	delete(h.Presence, docID)

	if clients, ok := h.Rooms[docID]; ok {
		for client := range clients {
			client.Conn.Close() // readPump exits and unregisters
		}
		delete(h.Rooms, docID)
	}
}

func (h *Hub) broadcastPresenceUpdate(docID string) {
	var userStatuses []UserStatus
	var clientsToSend []*Client

	h.mu.Lock()
	if _, ok := h.Presence[docID]; ok {
		userStatuses = make([]UserStatus, 0, len(h.Presence[docID]))
		for _, status := range h.Presence[docID] {
			userStatuses = append(userStatuses, status)
		}

		clientsToSend = make([]*Client, 0, len(h.Rooms[docID]))
		for client := range h.Rooms[docID] {
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.mu.Unlock()

	if len(clientsToSend) == 0 {
		return
	}

	payload, err := json.Marshal(userStatuses)
	if err != nil {
		h.log.Error("marshal presence broadcast", zap.Error(err))
		return
	}
	broadcastPayload, _ := json.Marshal(WSMessage{Type: PresenceUpdateType, DocID: docID, Payload: payload})

	for _, client := range clientsToSend {
		select {
		case client.Send <- broadcastPayload:
		default:
			h.log.Warn("client send buffer full during presence update", zap.String("accountId", client.AccountID))
		}
	}
}
