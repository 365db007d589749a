package sse

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType defines the SSE event name.
type EventType string

const (
	EventBookingCreated       EventType = "booking.created"
	EventBookingStatusChanged EventType = "booking.status_changed"
	EventPaymentRecovered     EventType = "payment.recovered"
)

const (
	clientBuffer = 64
	replaySize   = 128
)

// BookingEvent is the payload broadcast to admin SSE clients.
type BookingEvent struct {
	Event         EventType `json:"event"`
	BookingID     string    `json:"bookingId"`
	ReferenceID   string    `json:"referenceId"`
	ClientName    string    `json:"clientName"`
	ClientEmail   string    `json:"clientEmail"`
	Status        string    `json:"status"`
	PaymentID     *string   `json:"paymentId,omitempty"`
	OrderID       *string   `json:"orderId,omitempty"`
	PaymentStatus *string   `json:"paymentStatus,omitempty"`
	Amount        string    `json:"amount"`
	Services      []string  `json:"services,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Message is one encoded event with its stream sequence number.
type Message struct {
	Seq  uint64
	Data []byte
}

// Client is a connected admin console tab.
type Client struct {
	ID     string
	Events chan Message
}

// Hub fans booking events out to admin clients. The most recent events are
// kept so a reconnecting client can resume from its Last-Event-ID.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	seq     uint64
	recent  []Message
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		recent:  make([]Message, 0, replaySize),
	}
}

// Register adds a client. Events newer than lastSeq still held by the hub
// are queued before any live event; pass 0 to skip replay.
func (h *Hub) Register(clientID string, lastSeq uint64) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &Client{ID: clientID, Events: make(chan Message, clientBuffer)}
	if lastSeq > 0 {
		for _, m := range h.recent {
			if m.Seq <= lastSeq {
				continue
			}
			select {
			case c.Events <- m:
			default:
			}
		}
	}
	h.clients[clientID] = c
	log.Info().
		Str("client_id", clientID).
		Uint64("resume_from", lastSeq).
		Int("total_clients", len(h.clients)).
		Msg("SSE client connected")
	return c
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	close(c.Events)
	delete(h.clients, clientID)
	log.Info().Str("client_id", clientID).Int("total_clients", len(h.clients)).Msg("SSE client disconnected")
}

// Broadcast numbers the event, remembers it for replay and delivers it to
// every client. A client whose buffer is full misses the event.
func (h *Hub) Broadcast(event *BookingEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	msg := Message{Seq: h.seq, Data: data}
	if len(h.recent) == replaySize {
		copy(h.recent, h.recent[1:])
		h.recent = h.recent[:replaySize-1]
	}
	h.recent = append(h.recent, msg)

	for _, c := range h.clients {
		select {
		case c.Events <- msg:
		default:
			log.Warn().Str("client_id", c.ID).Uint64("seq", msg.Seq).Msg("SSE client buffer full, dropping event")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
