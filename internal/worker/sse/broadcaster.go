// Package sse streams run events to dashboard listeners.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/semdedup/pkg/models"
)

const (
	// WriteTimeout bounds a single write to a listener.
	WriteTimeout = 2 * time.Second
	// KeepAliveInterval is how often an idle stream gets a comment line.
	KeepAliveInterval = 30 * time.Second
)

// Event types.
const (
	EventConnected   = "connected"
	EventRunStarted  = "run_started"
	EventRunFinished = "run_finished"
	EventRunFailed   = "run_failed"
)

// Event is one message on the stream.
type Event struct {
	Type     string      `json:"type"`
	TenantID string      `json:"tenant_id,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	At       int64       `json:"at"`
}

// Client represents a connected listener.
type Client struct {
	Writer  http.ResponseWriter
	Flusher http.Flusher
	Done    chan struct{}
	ID      string
	writeMu sync.Mutex
	once    sync.Once
}

// close marks the client done exactly once.
func (c *Client) close() {
	c.once.Do(func() { close(c.Done) })
}

// Broadcaster fans run events out to every connected listener.
type Broadcaster struct {
	clients map[string]*Client
	mu      sync.RWMutex
	nextID  int
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*Client),
	}
}

// AddClient registers a listener.
func (b *Broadcaster) AddClient(w http.ResponseWriter) (*Client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	b.mu.Lock()
	b.nextID++
	client := &Client{
		ID:      fmt.Sprintf("listener-%d", b.nextID),
		Writer:  w,
		Flusher: flusher,
		Done:    make(chan struct{}),
	}
	b.clients[client.ID] = client
	count := len(b.clients)
	b.mu.Unlock()

	log.Debug().
		Str("clientId", client.ID).
		Int("totalClients", count).
		Msg("SSE client connected")

	return client, nil
}

// RemoveClient unregisters a listener.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.mu.Lock()
	delete(b.clients, client.ID)
	count := len(b.clients)
	b.mu.Unlock()

	client.close()

	log.Debug().
		Str("clientId", client.ID).
		Int("totalClients", count).
		Msg("SSE client disconnected")
}

// Publish sends an event to all listeners. Listeners that fail or time out are dropped.
func (b *Broadcaster) Publish(event Event) {
	if event.At == 0 {
		event.At = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("type", event.Type).Msg("Failed to marshal SSE event")
		return
	}
	message := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	dead := make(chan *Client, len(clients))
	var wg sync.WaitGroup
	for _, client := range clients {
		select {
		case <-client.Done:
			continue
		default:
		}
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if !b.write(c, message) {
				dead <- c
			}
		}(client)
	}
	wg.Wait()
	close(dead)

	for c := range dead {
		b.RemoveClient(c)
	}
}

// PublishRun announces a finished run.
func (b *Broadcaster) PublishRun(summary *models.RunSummary) {
	if summary == nil {
		return
	}
	b.Publish(Event{Type: EventRunFinished, TenantID: summary.TenantID, Data: summary})
}

// write sends one message and reports whether the client is still healthy.
func (b *Broadcaster) write(c *Client, message string) bool {
	done := make(chan error, 1)
	go func() {
		select {
		case <-c.Done:
			done <- nil
			return
		default:
		}
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		_, err := c.Writer.Write([]byte(message))
		if err == nil {
			c.Flusher.Flush()
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Debug().Err(err).Str("clientId", c.ID).Msg("SSE write failed, dropping client")
			return false
		}
		return true
	case <-time.After(WriteTimeout):
		log.Warn().
			Str("clientId", c.ID).
			Dur("timeout", WriteTimeout).
			Msg("SSE write timed out, dropping client")
		return false
	case <-c.Done:
		return true
	}
}

// ClientCount returns the number of connected listeners.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// HandleSSE serves an event stream until the request is cancelled.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client, err := b.AddClient(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer b.RemoveClient(client)

	if !b.write(client, fmt.Sprintf("event: %s\ndata: {\"type\":%q,\"client_id\":%q}\n\n", EventConnected, EventConnected, client.ID)) {
		return
	}

	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.Done:
			return
		case <-ticker.C:
			if !b.write(client, ": keepalive\n\n") {
				return
			}
		}
	}
}
