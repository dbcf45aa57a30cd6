package overlay

import (
	"image"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one message on the overlay stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExecutedData mirrors the host's "executed" message payload.
type ExecutedData struct {
	Node   string         `json:"node"`
	Output ExecutedOutput `json:"output"`
}

// ExecutedOutput lists the images produced by a node.
type ExecutedOutput struct {
	Images []ImageRef `json:"images"`
}

// Executed builds the event the browser overlay listens for.
func Executed(node string, refs []ImageRef) Event {
	return Event{Type: "executed", Data: ExecutedData{Node: node, Output: ExecutedOutput{Images: refs}}}
}

const (
	subscriberBuffer = 16
	writeTimeout     = 5 * time.Second
)

// Hub fans events out to websocket subscribers. A subscriber whose buffer is
// full is dropped so the emitter never blocks.
type Hub struct {
	mu        sync.RWMutex
	listeners map[chan Event]struct{}
	upgrader  websocket.Upgrader
}

// NewHub returns an empty hub. Browser connections are accepted only when
// allow approves their Origin; connections without one always are.
func NewHub(allow func(origin string) bool) *Hub {
	return &Hub{
		listeners: make(map[chan Event]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return allow != nil && allow(origin)
			},
		},
	}
}

// Subscribe registers a listener.
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.listeners[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.listeners[ch]; ok {
		delete(h.listeners, ch)
		close(ch)
	}
}

// Subscribers returns the number of connected listeners.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Emit sends ev to every listener without blocking.
func (h *Hub) Emit(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.listeners {
		select {
		case ch <- ev:
		default:
			log.Printf("overlay: dropping slow subscriber")
			delete(h.listeners, ch)
			close(ch)
		}
	}
}

// ServeHTTP upgrades to a websocket and streams events until either side
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	updates := h.Subscribe()
	defer h.Unsubscribe(updates)

	// reads only detect the peer closing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// Channel is the native preview channel: it stores images and announces
// them to the overlay.
type Channel struct {
	Store *TempStore
	Hub   *Hub
}

// Emit stores images and sends an executed event for nodeID.
func (c *Channel) Emit(nodeID string, images []image.Image) ([]ImageRef, error) {
	refs, err := c.Store.Write(images)
	if len(refs) > 0 && c.Hub != nil {
		c.Hub.Emit(Executed(nodeID, refs))
	}
	return refs, err
}
