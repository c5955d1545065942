package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS already restricts browser origins for the REST API
	},
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10 // must stay below pongWait
	maxMessageSize = 512               // client frames are tiny control messages
	sendBuffer     = 64
	queueSize      = 256
)

// StreamMessage is one frame of the /ws stream.
//
// Server to client types: "snapshot" (on connect), "rates", "stocks", "pong".
// Client to server types: "ping", "snapshot".
type StreamMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// StreamHub fans repository publishes out to connected subscribers. All
// membership changes happen on the Run goroutine; mu only guards reads
// from Len.
type StreamHub struct {
	mu        sync.RWMutex
	members   map[*Subscriber]struct{}
	broadcast chan StreamMessage
	join      chan *Subscriber
	leave     chan *Subscriber
	direct    chan directMessage
	done      chan struct{}
	stopOnce  sync.Once
}

type directMessage struct {
	to  *Subscriber
	msg StreamMessage
}

// Subscriber is one connected /ws client.
type Subscriber struct {
	hub  *StreamHub
	send chan StreamMessage
}

func newSubscriber(h *StreamHub) *Subscriber {
	return &Subscriber{hub: h, send: make(chan StreamMessage, sendBuffer)}
}

// NewStreamHub returns a hub; call Run to start it.
func NewStreamHub() *StreamHub {
	return &StreamHub{
		members:   make(map[*Subscriber]struct{}),
		broadcast: make(chan StreamMessage, queueSize),
		join:      make(chan *Subscriber),
		leave:     make(chan *Subscriber),
		direct:    make(chan directMessage),
		done:      make(chan struct{}),
	}
}

// Run owns the member set until Stop is called.
func (h *StreamHub) Run() {
	for {
		select {
		case sub := <-h.join:
			h.mu.Lock()
			h.members[sub] = struct{}{}
			n := len(h.members)
			h.mu.Unlock()
			log.Debug().Int("subscribers", n).Msg("Stream subscriber joined")

		case sub := <-h.leave:
			h.evict(sub)

		case d := <-h.direct:
			h.mu.RLock()
			_, member := h.members[d.to]
			h.mu.RUnlock()
			if member && !offer(d.to, d.msg) {
				h.evict(d.to)
			}

		case msg := <-h.broadcast:
			h.fanOut(msg)

		case <-h.done:
			h.mu.Lock()
			for sub := range h.members {
				close(sub.send)
			}
			h.members = make(map[*Subscriber]struct{})
			h.mu.Unlock()
			return
		}
	}
}

// offer hands msg to sub without blocking.
func offer(sub *Subscriber, msg StreamMessage) bool {
	select {
	case sub.send <- msg:
		return true
	default:
		return false
	}
}

func (h *StreamHub) fanOut(msg StreamMessage) {
	var lagging []*Subscriber
	h.mu.RLock()
	for sub := range h.members {
		if !offer(sub, msg) {
			lagging = append(lagging, sub)
		}
	}
	h.mu.RUnlock()
	for _, sub := range lagging {
		log.Warn().Str("type", msg.Type).Msg("Evicting lagging stream subscriber")
		h.evict(sub)
	}
}

func (h *StreamHub) evict(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.members[sub]; ok {
		delete(h.members, sub)
		close(sub.send)
	}
}

// Stop closes every subscriber and ends Run. Safe to call more than once.
func (h *StreamHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Publish queues msg for all subscribers. It never blocks; when the queue
// is full the message is discarded.
func (h *StreamHub) Publish(msg StreamMessage) {
	select {
	case h.broadcast <- msg:
	default:
		log.Warn().Str("type", msg.Type).Msg("Stream queue full, discarding message")
	}
}

// Len reports the number of subscribers.
func (h *StreamHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// Join adds sub. It returns false if the hub has stopped.
func (h *StreamHub) Join(sub *Subscriber) bool {
	select {
	case h.join <- sub:
		return true
	case <-h.done:
		return false
	}
}

// SendTo queues msg for sub alone.
func (h *StreamHub) SendTo(sub *Subscriber, msg StreamMessage) {
	select {
	case h.direct <- directMessage{to: sub, msg: msg}:
	case <-h.done:
	}
}

// Leave removes sub.
func (h *StreamHub) Leave(sub *Subscriber) {
	select {
	case h.leave <- sub:
	case <-h.done:
	}
}

// snapshot is the full state pushed to a newly connected client.
func (s *Server) snapshot() StreamMessage {
	return StreamMessage{
		Type: "snapshot",
		Data: map[string]interface{}{
			"rates":  s.rates.Latest(),
			"stocks": s.stocks.Snapshot(),
		},
	}
}

// handleWebSocket serves /ws. The subscriber gets a snapshot first, then
// every rates and stocks publish.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sub := newSubscriber(s.hub)
	sub.send <- s.snapshot()
	if !s.hub.Join(sub) {
		conn.Close()
		return
	}

	go sub.writeLoop(conn)
	go sub.readLoop(conn, s.snapshot)
}

// readLoop answers "ping" and "snapshot" requests until the peer goes away.
func (sub *Subscriber) readLoop(conn *websocket.Conn, snapshot func() StreamMessage) {
	defer func() {
		sub.hub.Leave(sub)
		conn.Close()
	}()

	extend := func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) }
	conn.SetReadLimit(maxMessageSize)
	_ = extend("")
	conn.SetPongHandler(extend)

	for {
		var req StreamMessage
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Stream subscriber read failed")
			}
			return
		}
		if json.Unmarshal(raw, &req) != nil {
			continue
		}
		switch req.Type {
		case "ping":
			sub.hub.SendTo(sub, StreamMessage{Type: "pong"})
		case "snapshot":
			sub.hub.SendTo(sub, snapshot())
		}
	}
}

// writeLoop drains sub.send onto conn and keeps the connection alive with
// pings. A closed send channel means the hub evicted sub.
func (sub *Subscriber) writeLoop(conn *websocket.Conn) {
	keepalive := time.NewTicker(pingPeriod)
	defer keepalive.Stop()
	defer conn.Close()

	for {
		var err error
		select {
		case msg, open := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err = conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("type", msg.Type).Msg("Stream subscriber write failed")
			}
		case <-keepalive.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}
