// Package sse streams session snapshots to control surfaces as Server-Sent Events.
package sse

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// WriteTimeout bounds a single write so a stale panel cannot block broadcasts.
const WriteTimeout = 2 * time.Second

// Event is the envelope of every frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Client represents a connected SSE client.
type Client struct {
	Writer  http.ResponseWriter
	Flusher http.Flusher
	Done    chan struct{}
	ID      string

	writeMu   sync.Mutex
	detached  bool
	closeOnce sync.Once
}

var errDetached = errors.New("client detached")

// detach waits for any in-flight write and blocks later ones.
// Handler calls it before returning so no write outlives the request.
func (c *Client) detach() {
	c.writeMu.Lock()
	c.detached = true
	c.writeMu.Unlock()
}

// Broadcaster fans events out to connected clients.
type Broadcaster struct {
	clients map[string]*Client
	mu      sync.RWMutex
	nextID  int
}

// NewBroadcaster creates a new SSE broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*Client),
	}
}

// AddClient registers w as a client.
func (b *Broadcaster) AddClient(w http.ResponseWriter) (*Client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	b.mu.Lock()
	b.nextID++
	client := &Client{
		ID:      fmt.Sprintf("panel-%d", b.nextID),
		Writer:  w,
		Flusher: flusher,
		Done:    make(chan struct{}),
	}
	b.clients[client.ID] = client
	clientCount := len(b.clients)
	b.mu.Unlock()

	log.Debug().Str("clientId", client.ID).Int("totalClients", clientCount).Msg("SSE client connected")
	return client, nil
}

// RemoveClient unregisters client and closes its Done channel.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.mu.Lock()
	delete(b.clients, client.ID)
	clientCount := len(b.clients)
	b.mu.Unlock()

	client.closeOnce.Do(func() { close(client.Done) })

	log.Debug().Str("clientId", client.ID).Int("totalClients", clientCount).Msg("SSE client disconnected")
}

// Broadcast sends an event to all connected clients.
func (b *Broadcaster) Broadcast(eventType string, data any) {
	frame, err := encode(Event{Type: eventType, Data: data})
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("Failed to marshal SSE event")
		return
	}

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	deadClientsCh := make(chan *Client, len(clients))
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
			if !writeWithTimeout(c, frame) {
				deadClientsCh <- c
			}
		}(client)
	}
	wg.Wait()
	close(deadClientsCh)

	for c := range deadClientsCh {
		b.RemoveClient(c)
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Handler streams events; initial, when non-nil, is sent as a "snapshot" first.
func (b *Broadcaster) Handler(initial func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		client, err := b.AddClient(w)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer client.detach()
		defer b.RemoveClient(client)

		first := Event{Type: "connected", Data: map[string]string{"clientId": client.ID}}
		if frame, err := encode(first); err == nil {
			writeWithTimeout(client, frame)
		}
		if initial != nil {
			if frame, err := encode(Event{Type: "snapshot", Data: initial()}); err == nil {
				writeWithTimeout(client, frame)
			}
		}

		select {
		case <-r.Context().Done():
		case <-client.Done:
		}
	}
}

func encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, data)), nil
}

// writeWithTimeout reports false when the client should be dropped.
func writeWithTimeout(client *Client, frame []byte) bool {
	done := make(chan error, 1)
	go func() {
		client.writeMu.Lock()
		defer client.writeMu.Unlock()
		if client.detached {
			done <- errDetached
			return
		}
		if _, err := client.Writer.Write(frame); err != nil {
			done <- err
			return
		}
		client.Flusher.Flush()
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Debug().Str("clientId", client.ID).Err(err).Msg("SSE write failed, dropping client")
			return false
		}
		return true
	case <-time.After(WriteTimeout):
		log.Warn().Str("clientId", client.ID).Dur("timeout", WriteTimeout).Msg("SSE write timed out, dropping client")
		return false
	case <-client.Done:
		return true
	}
}
