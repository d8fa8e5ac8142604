package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

const (
	TypePortfolio = "portfolio"
	TypePool      = "pool"
)

type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type Client struct {
	Manager  *Manager
	Conn     *websocket.Conn
	Identity string
	Send     chan []byte
}

// Manager keeps one live connection per identity and pushes session changes to it.
type Manager struct {
	clients    map[string]*Client
	mu         sync.RWMutex
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	log        *slog.Logger
}

func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.log.Info("websocket manager loop stopping")
			close(m.done)
			m.closeAll()
			return
		case client := <-m.register:
			m.registerClient(client)
		case client := <-m.unregister:
			m.unregisterClient(client)
		}
	}
}

// Register reports false when the manager is no longer running.
func (m *Manager) Register(client *Client) bool {
	select {
	case m.register <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) Unregister(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

func (m *Manager) Connected(identity string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.clients[identity]
	return ok
}

func (m *Manager) NotifyPortfolio(identity string, view models.PortfolioView) {
	m.push(identity, Message{Type: TypePortfolio, Data: view})
}

func (m *Manager) NotifyPool(identity string, pool []models.LeaderboardEntry) {
	m.push(identity, Message{Type: TypePool, Data: pool})
}

func (m *Manager) push(identity string, msg Message) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, ok := m.clients[identity]
	if !ok {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		m.log.Error("failed to marshal websocket message", "type", msg.Type, slog.Any("error", err))
		return
	}

	select {
	case client.Send <- data:
	default:
		m.log.Warn("client send channel is full, dropping message", "identity", identity, "type", msg.Type)
	}
}

func (m *Manager) registerClient(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, exists := m.clients[client.Identity]; exists {
		m.log.Warn("client re-registering, closing old connection", "identity", client.Identity)
		close(old.Send)
	}

	m.clients[client.Identity] = client
	m.log.Info("new client registered", "identity", client.Identity)
}

func (m *Manager) unregisterClient(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.clients[client.Identity]; ok && cur == client {
		delete(m.clients, client.Identity)
		close(client.Send)
		m.log.Info("client unregistered", "identity", client.Identity)
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, client := range m.clients {
		close(client.Send)
		delete(m.clients, id)
	}
}

func (c *Client) Writer() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Manager.log.Warn("failed to write message to client", "identity", c.Identity)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) Reader() {
	defer func() {
		c.Manager.Unregister(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Manager.log.Warn("unexpected close error", "identity", c.Identity, "error", err)
			}
			break
		}
	}
}
