// Package streambridge exposes a task's live NormalizedEntry stream over a
// websocket connection, so an external UI can tail an in-flight agent run
// the same way it would tail log output.
package streambridge

import (
	"encoding/json"
	"sync"

	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/event"
	"go.uber.org/zap"
)

// Hub fans NormalizedEntry values out to every client subscribed to the
// entry's task.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Client]bool // taskID -> clients

	register   chan subscription
	unregister chan subscription
	publish    chan taskEntry

	log *logger.Logger
}

type subscription struct {
	taskID string
	client *Client
}

type taskEntry struct {
	taskID string
	entry  event.NormalizedEntry
}

// NewHub constructs an idle Hub; call Run to start its dispatch loop.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Client]bool),
		register:    make(chan subscription),
		unregister:  make(chan subscription),
		publish:     make(chan taskEntry, 256),
		log:         log.WithFields(zap.String("component", "streambridge")),
	}
}

// Run drives the hub's subscribe/unsubscribe/publish loop until stop is
// closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			h.closeAll()
			return
		case sub := <-h.register:
			h.mu.Lock()
			if h.subscribers[sub.taskID] == nil {
				h.subscribers[sub.taskID] = make(map[*Client]bool)
			}
			h.subscribers[sub.taskID][sub.client] = true
			h.mu.Unlock()
		case sub := <-h.unregister:
			h.mu.Lock()
			delete(h.subscribers[sub.taskID], sub.client)
			if len(h.subscribers[sub.taskID]) == 0 {
				delete(h.subscribers, sub.taskID)
			}
			h.mu.Unlock()
		case te := <-h.publish:
			h.dispatch(te)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.subscribers {
		for c := range clients {
			c.closeSend()
		}
	}
	h.subscribers = make(map[string]map[*Client]bool)
}

func (h *Hub) dispatch(te taskEntry) {
	data, err := json.Marshal(te.entry)
	if err != nil {
		h.log.Warn("failed to marshal normalized entry", zap.Error(err))
		return
	}
	h.mu.RLock()
	clients := h.subscribers[te.taskID]
	h.mu.RUnlock()
	for c := range clients {
		c.send(data)
	}
}

// Publish forwards entry to every client subscribed to taskID. Safe to call
// from the goroutine draining an Executor's NormalizeOutput channel.
func (h *Hub) Publish(taskID string, entry event.NormalizedEntry) {
	h.publish <- taskEntry{taskID: taskID, entry: entry}
}

// Subscribe registers client for taskID's stream.
func (h *Hub) Subscribe(taskID string, client *Client) {
	h.register <- subscription{taskID: taskID, client: client}
}

// Unsubscribe removes client from taskID's stream.
func (h *Hub) Unsubscribe(taskID string, client *Client) {
	h.unregister <- subscription{taskID: taskID, client: client}
}

// BridgeChannel drains ch, publishing every entry under taskID, until ch
// closes. Meant to run alongside an Executor.NormalizeOutput consumer.
func (h *Hub) BridgeChannel(taskID string, ch <-chan event.NormalizedEntry) {
	for entry := range ch {
		h.Publish(taskID, entry)
	}
}
