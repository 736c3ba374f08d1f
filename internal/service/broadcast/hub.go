package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
	domsvc "SigPull/internal/domain/service"
	"SigPull/internal/service/ratelimit"
	rtmetrics "SigPull/internal/service/metrics"
	"SigPull/internal/usecase"
	"SigPull/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	msgNoSignal      = "No signal ready"
	msgRateLimited   = "Rate limited"
	msgExecPending   = "exec placeholder"
	writeWait        = 10 * time.Second
	defaultPingEvery = 30 * time.Second
)

// SignalRequester computes and stores a signal for one symbol on demand.
type SignalRequester interface {
	EmitNow(ctx context.Context, symbol string) (models.Signal, error)
}

// OffsetSource reports the measured clock offset in milliseconds.
type OffsetSource interface {
	Offset() int64
}

type HubConfig struct {
	SendBuffer   int
	PingInterval time.Duration
}

// Hub owns the websocket clients. It pushes every published event to all of
// them and answers their control messages.
type Hub struct {
	cfg      HubConfig
	clock    domsvc.Clock
	offset   OffsetSource
	signals  SignalRequester
	limiter  *ratelimit.Limiter
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	nextID  atomic.Uint64
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func NewHub(cfg HubConfig, clock domsvc.Clock, offset OffsetSource, signals SignalRequester, limiter *ratelimit.Limiter, lgr *logger.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingEvery
	}
	if clock == nil {
		clock = domsvc.SystemClock{}
	}
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &Hub{
		cfg:     cfg,
		clock:   clock,
		offset:  offset,
		signals: signals,
		limiter: limiter,
		log:     lgr.With("hub"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

var _ domrepo.Broadcaster = (*Hub)(nil)

// SetSignals attaches the on-demand signal source after construction. The
// emitter publishes through the hub, so one of the two is wired late.
func (h *Hub) SetSignals(s SignalRequester) {
	h.mu.Lock()
	h.signals = s
	h.mu.Unlock()
}

// Publish queues e for every client. A client whose buffer is full is dropped.
func (h *Hub) Publish(_ context.Context, e models.Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- raw:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("dropping slow client", logger.String("client", c.id))
		h.unregister(c)
	}
	rtmetrics.EventsBroadcast.WithLabelValues("ws", string(e.Type)).Inc()
	return nil
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
		rtmetrics.WSClients.Dec()
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", logger.Error(err))
		return
	}
	c := &client{
		id:   "ws-" + strconv.FormatUint(h.nextID.Add(1), 10),
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	h.register(c)
	defer h.unregister(c)

	h.reply(c, h.greeting())
	go h.writePump(c)
	h.readPump(r.Context(), c)
}

func (h *Hub) greeting() models.Greeting {
	var off int64
	if h.offset != nil {
		off = h.offset.Offset()
	}
	return models.Greeting{Type: models.EventInfo, ServerTime: h.clock.Now(), ServerOffset: off}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	rtmetrics.WSClients.Inc()
	h.log.Debug("client connected", logger.String("client", c.id))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
	if ok {
		rtmetrics.WSClients.Dec()
		if h.limiter != nil {
			h.limiter.Forget(c.id)
		}
		h.log.Debug("client disconnected", logger.String("client", c.id))
	}
}

// reply queues a message for one client only.
func (h *Hub) reply(c *client, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		h.log.Warn("encode reply", logger.Error(err))
		return
	}
	select {
	case c.send <- raw:
	case <-c.done:
	default:
		h.log.Warn("reply dropped", logger.String("client", c.id))
	}
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg models.ControlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.log.Debug("bad control message", logger.String("client", c.id), logger.Error(err))
			continue
		}
		h.handleControl(ctx, c, msg)
	}
}

func (h *Hub) handleControl(ctx context.Context, c *client, msg models.ControlMessage) {
	switch msg.Type {
	case models.ControlSignalNow, models.ControlExecTrade:
	default:
		return
	}
	if h.limiter != nil && !h.limiter.Allow(c.id) {
		rtmetrics.WSControl.WithLabelValues(msg.Type, "throttled").Inc()
		h.reply(c, models.Event{Type: models.EventError, Data: msgRateLimited})
		return
	}

	switch msg.Type {
	case models.ControlSignalNow:
		h.mu.RLock()
		signals := h.signals
		h.mu.RUnlock()
		if signals == nil {
			h.reply(c, models.Event{Type: models.EventError, Data: msgNoSignal})
			return
		}
		sig, err := signals.EmitNow(ctx, msg.Pair)
		if err != nil {
			if !errors.Is(err, usecase.ErrNoSignal) {
				h.log.Warn("signal request failed", logger.Symbol(msg.Pair), logger.Error(err))
			}
			rtmetrics.WSControl.WithLabelValues(msg.Type, "none").Inc()
			h.reply(c, models.Event{Type: models.EventError, Data: msgNoSignal})
			return
		}
		rtmetrics.WSControl.WithLabelValues(msg.Type, "ok").Inc()
		h.reply(c, models.Event{Type: models.EventSignal, Data: sig})
	case models.ControlExecTrade:
		// No broker execution behind this yet.
		rtmetrics.WSControl.WithLabelValues(msg.Type, "ok").Inc()
		h.reply(c, models.Event{Type: models.EventInfo, Data: msgExecPending})
	}
}

func (h *Hub) writePump(c *client) {
	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-c.done:
			return
		case raw := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.close()
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		}
	}
}
