package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"securestay-risk/internal/assess"
)

// ErrFeedBacklog is returned by Notify when the broadcast queue is full.
var ErrFeedBacklog = errors.New("live feed backlog full")

const (
	hubBacklog     = 100
	hubWriteWait   = 5 * time.Second
	hubMessageType = "assessment"
)

// ClientGauge tracks connected clients.
type ClientGauge interface {
	Set(float64)
	Add(float64)
}

type feedMessage struct {
	Type       string             `json:"type"`
	Assessment *assess.Assessment `json:"assessment"`
}

// Hub streams stored assessments to websocket clients. It is an
// assess.Notifier; slow consumers are dropped rather than blocking assessment.
type Hub struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex // guards clients and gauge, serialises writes
	broadcast chan []byte
	stop      chan struct{}
	gauge     ClientGauge

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewHub(gauge ClientGauge) *Hub {
	return &Hub{
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, hubBacklog),
		stop:      make(chan struct{}),
		gauge:     gauge,
	}
}

// Start launches the broadcaster. Calling it more than once has no effect.
func (h *Hub) Start() {
	h.startOnce.Do(func() {
		h.wg.Add(1)
		go h.broadcaster()
	})
}

// Stop closes every client and ends the broadcaster.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		h.wg.Wait()

		h.clientsMu.Lock()
		for client := range h.clients {
			_ = client.Close()
		}
		h.clients = make(map[*websocket.Conn]bool)
		h.setGauge(0)
		h.clientsMu.Unlock()
	})
}

func (h *Hub) Name() string { return "websocket" }

// Notify queues an assessment for broadcast.
func (h *Hub) Notify(_ context.Context, a *assess.Assessment) error {
	data, err := json.Marshal(feedMessage{Type: hubMessageType, Assessment: a})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
		return nil
	default:
		return ErrFeedBacklog
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcaster() {
	defer h.wg.Done()
	for {
		select {
		case data := <-h.broadcast:
			h.broadcastToClients(data)
		case <-h.stop:
			return
		}
	}
}

func (h *Hub) broadcastToClients(data []byte) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for client := range h.clients {
		_ = client.SetWriteDeadline(time.Now().Add(hubWriteWait))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Str("remote", client.RemoteAddr().String()).Msg("dropping live feed client")
			_ = client.Close()
			delete(h.clients, client)
			h.addGauge(-1)
		}
	}
}

// ServeWS upgrades the request and keeps the client registered until it
// disconnects. Client messages are read and discarded.
func (h *Hub) ServeWS(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return nil
	}

	h.clientsMu.Lock()
	select {
	case <-h.stop:
		h.clientsMu.Unlock()
		_ = conn.Close()
		return nil
	default:
	}
	h.clients[conn] = true
	h.addGauge(1)
	h.clientsMu.Unlock()

	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("live feed client connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.clientsMu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		h.addGauge(-1)
	}
	h.clientsMu.Unlock()
	_ = conn.Close()
	return nil
}

func (h *Hub) addGauge(v float64) {
	if h.gauge != nil {
		h.gauge.Add(v)
	}
}

func (h *Hub) setGauge(v float64) {
	if h.gauge != nil {
		h.gauge.Set(v)
	}
}
