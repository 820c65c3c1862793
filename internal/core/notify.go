package core

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/pkg/models"
)

// Notification Dispatch
//
// Critical-severity events (sanctions hits, critical alerts, SAR filings,
// escalations) are:
//   1. Broadcast to connected dashboards via the websocket callback
//   2. Pushed to registered webhook endpoints (case-management, SIEM)
//   3. Kept in a bounded in-memory recent-event history
//
// Webhook payloads are plain JSON; each endpoint filters on a minimum
// severity so low-priority noise never reaches paging integrations.

// Event is one dispatched notification.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Severity    models.Severity `json:"severity"`
	EventType   string          `json:"eventType"` // sanctions_hit/critical_alert/sar_filed/escalation
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	EntityID    uuid.UUID       `json:"entityId,omitempty"`
	Reference   string          `json:"reference,omitempty"` // alert/case/SAR number
}

// WebhookEndpoint is a registered webhook receiver.
type WebhookEndpoint struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Enabled     bool              `json:"enabled"`
	Headers     map[string]string `json:"headers,omitempty"`
	MinSeverity models.Severity   `json:"minSeverity"`
}

// Notifier dispatches events to the websocket hub and registered webhooks.
type Notifier struct {
	mu         sync.RWMutex
	webhooks   []WebhookEndpoint
	recent     []Event
	maxHistory int
	httpClient *http.Client
	broadcast  func(Event)
}

// NewNotifier creates a notifier. broadcast, when set, receives every
// emitted event synchronously (websocket hub hookup).
func NewNotifier(broadcast func(Event)) *Notifier {
	return &Notifier{
		maxHistory: 1000,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		broadcast:  broadcast,
	}
}

// SetBroadcast installs the broadcast callback after construction.
func (n *Notifier) SetBroadcast(fn func(Event)) {
	n.mu.Lock()
	n.broadcast = fn
	n.mu.Unlock()
}

// RegisterWebhook adds a webhook endpoint.
func (n *Notifier) RegisterWebhook(name, url string, minSeverity models.Severity, headers map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.webhooks = append(n.webhooks, WebhookEndpoint{
		Name:        name,
		URL:         url,
		Enabled:     true,
		Headers:     headers,
		MinSeverity: minSeverity,
	})
	log.Printf("[Notifier] Registered webhook %s -> %s (min %s)", name, url, minSeverity)
}

// RemoveWebhook removes a webhook by name.
func (n *Notifier) RemoveWebhook(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, wh := range n.webhooks {
		if wh.Name == name {
			n.webhooks = append(n.webhooks[:i], n.webhooks[i+1:]...)
			return
		}
	}
}

// Emit stores, broadcasts and delivers an event.
func (n *Notifier) Emit(event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	n.mu.Lock()
	n.recent = append(n.recent, event)
	if len(n.recent) > n.maxHistory {
		n.recent = n.recent[len(n.recent)-n.maxHistory:]
	}
	webhooks := make([]WebhookEndpoint, len(n.webhooks))
	copy(webhooks, n.webhooks)
	broadcast := n.broadcast
	n.mu.Unlock()

	if broadcast != nil {
		broadcast(event)
	}

	for _, wh := range webhooks {
		if !wh.Enabled {
			continue
		}
		if !event.Severity.MeetsThreshold(wh.MinSeverity) {
			continue
		}
		go n.sendWebhook(wh, event)
	}

	log.Printf("[Notifier] [%s] %s: %s (%s)", event.Severity, event.EventType, event.Title, event.Reference)
}

// Recent returns the most recent events, newest first.
func (n *Notifier) Recent(limit int) []Event {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if limit <= 0 || limit > len(n.recent) {
		limit = len(n.recent)
	}
	out := make([]Event, limit)
	for i := 0; i < limit; i++ {
		out[i] = n.recent[len(n.recent)-1-i]
	}
	return out
}

func (n *Notifier) sendWebhook(wh WebhookEndpoint, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Notifier] Failed to marshal event: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewBuffer(payload))
	if err != nil {
		log.Printf("[Notifier] Failed to build request for %s: %v", wh.Name, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for key, val := range wh.Headers {
		req.Header.Set(key, val)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		log.Printf("[Notifier] Delivery to %s failed: %v", wh.Name, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("[Notifier] %s returned status %d", wh.Name, resp.StatusCode)
	}
}
