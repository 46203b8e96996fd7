package services

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/Cyvadra/tv-autotrade/internal/models"
)

// Listener is a live subscriber of accepted alerts
type Listener interface {
	ID() string
	// Accepts reports whether the alert is visible to this listener
	Accepts(alert *models.Alert) bool
	Send(msg []byte) error
	// Close is called once the hub drops the listener
	Close() error
}

// AlertMessage is the payload pushed to listeners
type AlertMessage struct {
	Type  string        `json:"type"`
	Alert *models.Alert `json:"alert"`
}

// Hub is the registry of connected listeners
type Hub struct {
	mu        sync.Mutex
	listeners map[string]Listener
	logger    *log.Logger
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		listeners: make(map[string]Listener),
		logger:    log.New(log.Writer(), "[Hub] ", log.LstdFlags),
	}
}

// SetLogger sets a custom logger
func (h *Hub) SetLogger(logger *log.Logger) {
	h.logger = logger
}

// Register adds a listener
func (h *Hub) Register(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[l.ID()] = l
}

// Unregister removes a listener
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, id)
}

// Count returns the number of connected listeners
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Broadcast pushes an alert to every listener that accepts it. A listener
// whose send fails is dropped; others are unaffected.
func (h *Hub) Broadcast(alert *models.Alert) {
	msg, err := json.Marshal(AlertMessage{Type: "new_alert", Alert: alert})
	if err != nil {
		h.logger.Printf("Failed to encode alert %s: %v", alert.ID, err)
		return
	}

	h.mu.Lock()
	targets := make([]Listener, 0, len(h.listeners))
	for _, l := range h.listeners {
		if l.Accepts(alert) {
			targets = append(targets, l)
		}
	}
	h.mu.Unlock()

	var failed []Listener
	for _, l := range targets {
		if err := l.Send(msg); err != nil {
			h.logger.Printf("Dropping listener %s: %v", l.ID(), err)
			failed = append(failed, l)
		}
	}

	if len(failed) == 0 {
		return
	}
	h.mu.Lock()
	for _, l := range failed {
		delete(h.listeners, l.ID())
	}
	h.mu.Unlock()

	for _, l := range failed {
		_ = l.Close()
	}
}

// AlertVisibleTo reports whether a user may see an alert: shared-feed
// subscribers see the primary feed, everyone sees alerts of their own feed.
func AlertVisibleTo(alert *models.Alert, user *models.User) bool {
	if alert.Source == models.SourceCustomFeed {
		return user != nil && alert.SourceOwner == user.ID
	}
	return user == nil || user.Feed != models.FeedPersonal
}
