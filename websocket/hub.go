package websocket

import (
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const (
	EventAvailabilityUpdate  = "availability_update"
	EventBookingNotification = "booking_notification"
	EventClassReminder       = "class_reminder"
	EventAttendanceUpdate    = "attendance_update"
)

// Event is a fire-and-forget delta pushed to every subscriber of its scope.
// There is no delivery guarantee and no replay; clients that reconnect must
// re-fetch slot counts and booking status over REST.
type Event struct {
	Type      string      `json:"type"`
	Scope     string      `json:"scope"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

func OrgScope(organizationID uuid.UUID) string {
	return "org:" + organizationID.String()
}

func UserScope(userID uuid.UUID) string {
	return "user:" + userID.String()
}

func ClassScope(classSlotID uuid.UUID) string {
	return "class:" + classSlotID.String()
}

type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID // uuid.Nil for unauthenticated spectators
	Conn   *websocket.Conn

	send   chan Event
	scopes map[string]bool // touched only by the hub goroutine
}

func NewClient(conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		ID:     uuid.New(),
		UserID: userID,
		Conn:   conn,
		send:   make(chan Event, 64),
		scopes: make(map[string]bool),
	}
}

// WritePump is the single writer for a connection; events arrive through the
// send channel in publish order, which keeps per-channel delivery FIFO.
func (c *Client) WritePump() {
	for event := range c.send {
		if err := c.Conn.WriteJSON(event); err != nil {
			log.Printf("Error sending event to client %s: %v", c.ID, err)
			c.Conn.Close()
			return
		}
	}
}

type subscription struct {
	clientID uuid.UUID
	scope    string
	active   bool
}

type Hub struct {
	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	publish     chan Event
	clients     map[uuid.UUID]*Client
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription, 16),
		publish:    make(chan Event, 256),
		clients:    make(map[uuid.UUID]*Client),
	}
}

var DefaultHub = NewHub()

func RunHub() {
	DefaultHub.Run()
}

// Run dispatches on a single goroutine, so registration, subscription and
// fan-out are serialized without locking.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			log.Printf("Realtime client registered: %s", client.ID)
			h.clients[client.ID] = client
			if client.UserID != uuid.Nil {
				client.scopes[UserScope(client.UserID)] = true
			}
		case client := <-h.unregister:
			if existing, ok := h.clients[client.ID]; ok && existing == client {
				log.Printf("Realtime client unregistered: %s", client.ID)
				delete(h.clients, client.ID)
				close(client.send)
			}
		case sub := <-h.subscribe:
			if client, ok := h.clients[sub.clientID]; ok {
				if sub.active {
					client.scopes[sub.scope] = true
				} else {
					delete(client.scopes, sub.scope)
				}
			}
		case event := <-h.publish:
			for _, client := range h.clients {
				if !client.scopes[event.Scope] {
					continue
				}
				select {
				case client.send <- event:
				default:
					// Slow consumer; the contract is best effort, so the
					// event is dropped rather than blocking dispatch.
					log.Printf("Dropping %s event for slow client %s", event.Type, client.ID)
				}
			}
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) Subscribe(clientID uuid.UUID, scope string) {
	h.subscribe <- subscription{clientID: clientID, scope: scope, active: true}
}

func (h *Hub) Unsubscribe(clientID uuid.UUID, scope string) {
	h.subscribe <- subscription{clientID: clientID, scope: scope}
}

// Publish queues an event for every subscriber of event.Scope. It never
// blocks the caller; if the hub's buffer is full the event is dropped.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.publish <- event:
	default:
		log.Printf("Realtime hub backlogged, dropping %s event for scope %s", event.Type, event.Scope)
	}
}
