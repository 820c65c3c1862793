package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/aml-engine/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced at the router layer
	},
}

// Hub maintains the set of active websocket clients and broadcasts the
// engine's event stream to compliance dashboards. Each subscriber picks a
// minimum severity (`/stream?minSeverity=high`): paging integrations
// subscribe at critical while the investigation console takes everything.
type Hub struct {
	clients   map[*websocket.Conn]models.Severity // conn -> subscribed minimum
	broadcast chan hubMessage
	mutex     sync.Mutex
}

type hubMessage struct {
	severity models.Severity
	payload  []byte
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan hubMessage, 256),
		clients:   make(map[*websocket.Conn]models.Severity),
	}
}

func (h *Hub) Run() {
	for msg := range h.broadcast {
		h.mutex.Lock()
		for client, minSeverity := range h.clients {
			if !msg.severity.MeetsThreshold(minSeverity) {
				continue
			}
			// Set write deadline to prevent blocked clients from hanging the hub
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := client.WriteMessage(websocket.TextMessage, msg.payload)
			if err != nil {
				log.Printf("[Hub] Write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe handles incoming websocket connections
func (h *Hub) Subscribe(c *gin.Context) {
	minSeverity := models.Severity(c.Query("minSeverity"))
	switch minSeverity {
	case models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
	default:
		minSeverity = models.SeverityLow
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Hub] Failed to upgrade websocket: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = minSeverity
	h.mutex.Unlock()

	log.Printf("[Hub] Client connected at min severity %s. Total clients: %d", minSeverity, len(h.clients))

	// Keep alive loop (we only care about pushing down, but we must read to handle disconnects)
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			h.mutex.Unlock()
			conn.Close()
			log.Printf("[Hub] Client disconnected. Total clients: %d", len(h.clients))
		}()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[Hub] Read error: %v", err)
				}
				break
			}
		}
	}()
}

// Publish queues JSON data for every subscriber whose minimum the event
// severity meets.
func (h *Hub) Publish(severity models.Severity, data []byte) {
	h.broadcast <- hubMessage{severity: severity, payload: data}
}
