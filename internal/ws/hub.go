package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	diag "github.com/themkat/shade-eval-print-loop/internal/diagnostics"
)

const (
	writeWait = 200 * time.Millisecond
	// sendQueue is how many messages a slow client may fall behind before
	// new ones are dropped for it.
	sendQueue = 16
)

// Resizer receives screen size requests from control clients.
type Resizer interface {
	Resize(w, h uint32)
}

// Uniform is the JSON form of one uniform in a snapshot.
type Uniform struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Value   any    `json:"value"`
	Texture uint64 `json:"texture,omitempty"`
}

// Snapshot is what frame clients receive for every published frame.
type Snapshot struct {
	T           int64     `json:"t"`
	FrameID     uint64    `json:"frame_id"`
	Program     uint64    `json:"program"`
	Placeholder bool      `json:"placeholder"`
	Diagnostic  string    `json:"diagnostic,omitempty"`
	Width       uint32    `json:"width"`
	Height      uint32    `json:"height"`
	Elapsed     float32   `json:"elapsed"`
	Uniforms    []Uniform `json:"uniforms"`
}

// Hub serves the status endpoints and fans published frames and
// diagnostics out to websocket clients. Publishing only queues; each
// client has its own writer goroutine.
type Hub struct {
	mu             sync.RWMutex
	clients        map[*client]bool
	diagClients    map[*client]bool
	controlClients map[*client]bool
	closed         bool
	lastDiag       *diag.Diagnostic
	last           Snapshot
	startTime      time.Time
	resizer        Resizer

	log zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:        map[*client]bool{},
		diagClients:    map[*client]bool{},
		controlClients: map[*client]bool{},
		startTime:      time.Now(),
		log:            log,
	}
}

func (h *Hub) SetResizer(r Resizer) {
	h.mu.Lock()
	h.resizer = r
	h.mu.Unlock()
}

// Handler routes the hub endpoints.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc("/diag", h.HandleDiagWS)
	mux.HandleFunc("/ws", h.HandleFramesWS)
	mux.HandleFunc("/control", h.HandleControlWS)
	return mux
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// client is one websocket connection. Only its writer goroutine writes to
// conn, since gorilla allows one writer per connection.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan []byte, sendQueue), done: make(chan struct{})}
}

// enqueue never blocks. It reports false when the message was dropped.
func (c *client) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (h *Hub) writePump(c *client) {
	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.log.Debug().Err(err).Msg("write")
				c.close()
				return
			}
		}
	}
}

// register upgrades the request and adds the client to set. first, when
// non-nil, is queued before any broadcast can reach the client.
func (h *Hub) register(w http.ResponseWriter, r *http.Request, set map[*client]bool, first func() []byte) *client {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil
	}
	c := newClient(conn)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return nil
	}
	set[c] = true
	if first != nil {
		if b := first(); b != nil {
			c.enqueue(b)
		}
	}
	h.mu.Unlock()
	go h.writePump(c)
	return c
}

func (h *Hub) forget(c *client, set map[*client]bool) {
	h.mu.Lock()
	delete(set, c)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	if c := h.register(w, r, h.clients, nil); c != nil {
		go h.drain(c, h.clients)
	}
}

func (h *Hub) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	c := h.register(w, r, h.diagClients, func() []byte {
		if h.lastDiag == nil {
			return nil
		}
		b, _ := json.Marshal(h.lastDiag)
		return b
	})
	if c != nil {
		go h.drain(c, h.diagClients)
	}
}

// drain reads until the peer goes away, then forgets the connection.
func (h *Hub) drain(c *client, set map[*client]bool) {
	defer h.forget(c, set)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// HandleControlWS accepts {"resize":{"width":W,"height":H}} messages and
// answers each with the health document.
func (h *Hub) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	c := h.register(w, r, h.controlClients, nil)
	if c == nil {
		return
	}
	defer h.forget(c, h.controlClients)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Debug().Err(err).Msg("bad control message")
			continue
		}
		h.applyControl(msg)
		b, _ := json.Marshal(h.health())
		c.enqueue(b)
	}
}

func (h *Hub) applyControl(msg map[string]any) {
	v, ok := msg["resize"].(map[string]any)
	if !ok {
		return
	}
	wf, ok1 := v["width"].(float64)
	hf, ok2 := v["height"].(float64)
	if !ok1 || !ok2 || wf < 1 || hf < 1 {
		h.log.Debug().Interface("resize", v).Msg("ignoring resize")
		return
	}
	h.mu.RLock()
	rz := h.resizer
	h.mu.RUnlock()
	if rz != nil {
		rz.Resize(uint32(wf), uint32(hf))
	}
}

func (h *Hub) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.health())
}

func (h *Hub) health() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	resp := map[string]any{
		"frame_id":    h.last.FrameID,
		"uptime_s":    time.Since(h.startTime).Seconds(),
		"program":     h.last.Program,
		"placeholder": h.last.Placeholder,
		"width":       h.last.Width,
		"height":      h.last.Height,
		"clients":     len(h.clients),
	}
	if h.lastDiag != nil {
		resp["diagnostic"] = h.lastDiag
	}
	return resp
}

// PublishDiagnostic records d and queues it for diagnostic clients.
func (h *Hub) PublishDiagnostic(d diag.Diagnostic) {
	b, _ := json.Marshal(d)
	h.mu.Lock()
	h.lastDiag = &d
	conns := keys(h.diagClients)
	h.mu.Unlock()
	h.broadcast(conns, b)
}

// PublishFrame records s and queues it for frame clients.
func (h *Hub) PublishFrame(s Snapshot) {
	if s.T == 0 {
		s.T = time.Now().UnixNano()
	}
	h.mu.Lock()
	h.last = s
	conns := keys(h.clients)
	h.mu.Unlock()
	if len(conns) == 0 {
		return
	}
	b, _ := json.Marshal(s)
	h.broadcast(conns, b)
}

func (h *Hub) broadcast(conns []*client, b []byte) {
	for _, c := range conns {
		if !c.enqueue(b) {
			h.log.Debug().Msg("client queue full, message dropped")
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := append(keys(h.clients), keys(h.diagClients)...)
	conns = append(conns, keys(h.controlClients)...)
	h.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

func keys(m map[*client]bool) []*client {
	out := make([]*client, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	return out
}
