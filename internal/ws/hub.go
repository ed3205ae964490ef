// Package ws pushes admin activity events to open admin pages over
// websockets.
package ws

import (
	"context"
	"encoding/json"
	"log"
)

// Event describes a mutation other admins should see.
type Event struct {
	Type   string `json:"type"`
	ID     uint   `json:"id"`
	Title  string `json:"title,omitempty"`
	UserID uint   `json:"userId,omitempty"`
}

// Hub owns the set of connected clients and fans broadcasts out to them.
type Hub struct {
	clients    map[*Client]bool
	Broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done. It must run in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case message := <-h.Broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow reader, drop it.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// Publish queues ev for every client. It never blocks the caller; events
// are dropped when the queue is full.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Error marshalling WS event: %v", err)
		return
	}
	select {
	case h.Broadcast <- msg:
	default:
		log.Printf("WS broadcast queue full, dropping %s event", ev.Type)
	}
}
