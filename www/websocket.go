package www

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/icodeforyou/priceplan-go/types"

	ws "github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client is a websocket subscriber for the recommendations of one meter.
type Client struct {
	logger *slog.Logger
	hub    *Hub
	conn   *ws.Conn
	send   chan []byte
	meter  types.MeterID
}

func NewClient(hub *Hub, w http.ResponseWriter, r *http.Request, meter types.MeterID) (*Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	return &Client{
		logger: hub.logger.With(slog.String("meter", meter.String()), slog.String("remoteAddr", r.RemoteAddr)),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 16),
		meter:  meter,
	}, nil
}

// ReadPump only exists to process pongs and notice when the peer goes away.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("web socket set read deadline failed", slog.Any("error", err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseNormalClosure) {
				c.logger.Warn("web socket closed unexpectedly", slog.Any("error", err))
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.hub.unregister(c)
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("web socket set write deadline failed", slog.Any("error", err))
				return
			}

			if !ok {
				if err := c.conn.WriteMessage(ws.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("web socket close message failed", slog.Any("error", err))
				}
				return
			}

			if err := c.conn.WriteMessage(ws.TextMessage, message); err != nil {
				c.logger.Warn("web socket write failed", slog.Any("error", err))
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("web socket set write deadline failed", slog.Any("error", err))
				return
			}
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				c.logger.Warn("web socket ping message failed", slog.Any("error", err))
				return
			}
		}
	}
}

type meterMessage struct {
	meter types.MeterID
	data  []byte
}

// Hub keeps the subscribers of every meter and delivers messages only to the
// subscribers of the meter they are for.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan meterMessage
	clients    map[types.MeterID]map[*Client]struct{}
	mutex      sync.RWMutex
	done       chan struct{}
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan meterMessage),
		clients:    make(map[types.MeterID]map[*Client]struct{}),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// HasSubscribers tells if anyone listens for meter.
func (h *Hub) HasSubscribers(meter types.MeterID) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients[meter]) > 0
}

// Publish hands data to the hub for delivery. It gives up when ctx is done
// or the hub has stopped.
func (h *Hub) Publish(ctx context.Context, meter types.MeterID, data []byte) bool {
	select {
	case h.Broadcast <- meterMessage{meter: meter, data: data}:
		return true
	case <-ctx.Done():
		return false
	case <-h.done:
		return false
	}
}

func (h *Hub) register(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// Run serves the hub until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mutex.Lock()
		for meter, set := range h.clients {
			for client := range set {
				close(client.send)
			}
			delete(h.clients, meter)
		}
		h.mutex.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.logger.Debug("registering client", slog.String("meter", client.meter.String()))

			h.mutex.Lock()
			set, ok := h.clients[client.meter]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.meter] = set
			}
			set[client] = struct{}{}
			h.mutex.Unlock()

		case client := <-h.Unregister:
			h.mutex.Lock()
			if set, ok := h.clients[client.meter]; ok {
				if _, ok := set[client]; ok {
					h.logger.Debug("unregistering client", slog.String("meter", client.meter.String()))
					delete(set, client)
					close(client.send)
				}
				if len(set) == 0 {
					delete(h.clients, client.meter)
				}
			}
			h.mutex.Unlock()

		case message := <-h.Broadcast:
			h.mutex.RLock()
			for client := range h.clients[message.meter] {
				select {
				case client.send <- message.data:
				default: // Client's channel is full, drop the message
					h.logger.Warn("client send buffer full, dropping message", slog.String("meter", message.meter.String()))
				}
			}
			h.mutex.RUnlock()
		}
	}
}
