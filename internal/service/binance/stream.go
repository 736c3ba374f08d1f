package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"SigPull/internal/domain/models"
	drepo "SigPull/internal/domain/repository"
	"SigPull/pkg/logger"

	"github.com/gorilla/websocket"
)

const source = "binance"

var errNotConnected = errors.New("binance: not connected")

type Config struct {
	URL              string
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	BufferSize       int
}

// Stream reads the combined <symbol>@trade stream.
type Stream struct {
	cfg Config
	lgr *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	nextID    int64
	connected atomic.Bool
}

func New(cfg Config, lgr *logger.Logger) *Stream {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &Stream{cfg: cfg, lgr: lgr.With("binance")}
}

var _ drepo.TickStream = (*Stream)(nil)

func (s *Stream) Name() string { return source }

func (s *Stream) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)
	s.lgr.Info("connected", logger.String("url", s.cfg.URL))
	return nil
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// Streams maps symbols to their @trade stream names. Binance only quotes
// USDT pairs here, so other symbols are left out.
func Streams(symbols []string) []string {
	var out []string
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if strings.HasSuffix(sym, "USDT") {
			out = append(out, strings.ToLower(sym)+"@trade")
		}
	}
	return out
}

func (s *Stream) Subscribe(_ context.Context, symbols []string) error {
	streams := Streams(symbols)
	if len(streams) == 0 {
		return fmt.Errorf("binance: no USDT symbols in %v", symbols)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.connected.Load() {
		return errNotConnected
	}
	s.nextID++
	req := subscribeRequest{Method: "SUBSCRIBE", Params: streams, ID: s.nextID}
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("subscribe %v: %w", streams, err)
	}
	s.lgr.Info("subscribed", logger.Strings("streams", streams))
	return nil
}

type tradeEnvelope struct {
	Stream string `json:"stream"`
	Data   trade  `json:"data"`
}

type trade struct {
	Symbol string `json:"s"`
	Price  string `json:"p"`
	Qty    string `json:"q"`
	Time   int64  `json:"T"` // ms
}

// ParseTrade decodes one combined-stream frame. Both the combined envelope and a
// bare trade payload are accepted; subscription acks have no symbol and fail.
func ParseTrade(b []byte) (models.Tick, error) {
	var env tradeEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return models.Tick{}, fmt.Errorf("decode frame: %w", err)
	}
	d := env.Data
	if d.Symbol == "" {
		if err := json.Unmarshal(b, &d); err != nil {
			return models.Tick{}, fmt.Errorf("decode trade: %w", err)
		}
	}
	if d.Symbol == "" {
		return models.Tick{}, fmt.Errorf("frame without symbol")
	}
	price, err := strconv.ParseFloat(d.Price, 64)
	if err != nil {
		return models.Tick{}, fmt.Errorf("price %q: %w", d.Price, err)
	}
	qty, err := strconv.ParseFloat(d.Qty, 64)
	if err != nil {
		return models.Tick{}, fmt.Errorf("qty %q: %w", d.Qty, err)
	}
	return models.Tick{
		Symbol: strings.ToUpper(d.Symbol),
		Price:  price,
		Qty:    qty,
		Time:   d.Time / 1000,
		Source: source,
	}, nil
}

// Read streams ticks until the socket fails or ctx ends.
func (s *Stream) Read(ctx context.Context) (<-chan models.Tick, <-chan error) {
	ticks := make(chan models.Tick, s.cfg.BufferSize)
	errs := make(chan error, 1)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		errs <- errNotConnected
		close(ticks)
		close(errs)
		return ticks, errs
	}

	readCtx, cancel := context.WithCancel(ctx)

	// ping loop
	go func() {
		t := time.NewTicker(s.cfg.PingInterval)
		defer t.Stop()
		for {
			select {
			case <-readCtx.Done():
				return
			case <-t.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					s.lgr.Warn("ping failed", logger.Error(err))
					return
				}
			}
		}
	}()

	// unblock ReadMessage when ctx ends
	go func() {
		<-readCtx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	// read loop
	go func() {
		defer cancel()
		defer close(ticks)
		defer close(errs)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				s.connected.Store(false)
				if ctx.Err() != nil {
					return
				}
				errs <- fmt.Errorf("binance read: %w", err)
				return
			}
			tick, err := ParseTrade(b)
			if err != nil {
				s.lgr.Debug("skip frame", logger.Error(err))
				continue
			}
			select {
			case ticks <- tick:
			case <-ctx.Done():
				return
			default:
				// drop on backpressure
			}
		}
	}()

	return ticks, errs
}

func (s *Stream) Close() error {
	s.connected.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Stream) IsConnected() bool { return s.connected.Load() }
