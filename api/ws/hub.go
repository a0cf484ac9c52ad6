// Package ws streams job events to websocket subscribers.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"command-center/core/models"

	"github.com/sirupsen/logrus"
)

// Hub fans job events out to connected clients. It implements events.Sink.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	logger  *logrus.Logger
}

// NewHub creates an empty hub
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients: make(map[*Client]bool),
		logger:  logger,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.WithFields(logrus.Fields{"client_id": c.id, "clients": n}).Debug("Event subscriber connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.WithField("client_id", c.id).Debug("Event subscriber disconnected")
}

// Emit delivers event to every subscriber watching its job. A client whose
// buffer is full misses the event.
func (h *Hub) Emit(_ context.Context, event models.JobUpdateEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for c := range h.clients {
		if c.jobID != "" && c.jobID != event.ID {
			continue
		}
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.WithFields(logrus.Fields{"job_id": event.ID, "dropped": dropped}).Warn("Slow event subscribers skipped")
	}
	return nil
}

// Clients returns the number of connected subscribers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
