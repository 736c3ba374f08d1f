package api

import (
	"context"
	"net/http"
	"time"

	models "SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
	domsvc "SigPull/internal/domain/service"
	"SigPull/internal/usecase"
	"SigPull/pkg/cache"
	xhttp "SigPull/pkg/http"
	xlogger "SigPull/pkg/logger"
	"SigPull/pkg/runner"

	"github.com/labstack/echo/v4"
)

const historyTTL = 2 * time.Second

// LearnerView exposes the learner's current state.
type LearnerView interface {
	State() models.LearnerState
}

// Handler serves the read API and mounts the websocket hub.
type Handler struct {
	logger   *xlogger.Logger
	watch    *usecase.Watchlist
	signals  domrepo.SignalStore
	bars     *usecase.BarsUseCase
	learner  LearnerView
	registry *runner.Registry
	ws       http.Handler
	clock    domsvc.Clock
	cache    cache.Service
}

func NewHandler(
	logger *xlogger.Logger,
	watch *usecase.Watchlist,
	signals domrepo.SignalStore,
	bars *usecase.BarsUseCase,
	learner LearnerView,
	registry *runner.Registry,
	ws http.Handler,
	clock domsvc.Clock,
	c cache.Service,
) *Handler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if clock == nil {
		clock = domsvc.SystemClock{}
	}
	return &Handler{
		logger:   logger.With("api"),
		watch:    watch,
		signals:  signals,
		bars:     bars,
		learner:  learner,
		registry: registry,
		ws:       ws,
		clock:    clock,
		cache:    c,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/pairs", h.Pairs)
	g.GET("/signals/history", h.History)
	g.GET("/bars", h.Bars)
	g.GET("/learner", h.Learner)
	g.GET("/health", h.Health)
	if h.ws != nil {
		e.GET("/ws", echo.WrapHandler(h.ws))
	}
}

type pairsResponse struct {
	Pairs      []models.Pair `json:"pairs"`
	ServerTime time.Time     `json:"server_time"`
}

func (h *Handler) Pairs(c echo.Context) error {
	return xhttp.SuccessResponse(c, pairsResponse{Pairs: h.watch.Pairs(), ServerTime: h.clock.Now()})
}

func (h *Handler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	rows, err := h.history(ctx, req.Limit)
	if err != nil {
		h.logger.Error("history query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("history unavailable").WithError(err))
	}
	if req.Symbol != "" {
		pair, ok := h.watch.Lookup(req.Symbol)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown symbol %q", req.Symbol))
		}
		filtered := rows[:0:0]
		for _, s := range rows {
			if s.Symbol == pair.Symbol {
				filtered = append(filtered, s)
			}
		}
		rows = filtered
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// history reads through a short-lived cache so polling clients do not hit the
// signal store on every request.
func (h *Handler) history(ctx context.Context, limit int) ([]models.Signal, error) {
	key := cache.Key("api", "history", limit)
	if h.cache != nil {
		var rows []models.Signal
		if err := h.cache.Get(ctx, key, &rows); err == nil {
			return rows, nil
		}
	}
	rows, err := h.signals.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.Signal{}
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, key, rows, historyTTL); err != nil {
			h.logger.Debug("history cache set", xlogger.Error(err))
		}
	}
	return rows, nil
}

func (h *Handler) Bars(c echo.Context) error {
	req := &models.BarsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	pair, ok := h.watch.Lookup(req.Symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown symbol %q", req.Symbol))
	}

	res, err := h.bars.GetBars(c.Request().Context(), usecase.GetBarsParams{
		Symbol:    pair.Symbol,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
		Limit:     req.Limit,
	})
	if err != nil {
		h.logger.Error("bars usecase error", xlogger.Symbol(pair.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *Handler) Learner(c echo.Context) error {
	if h.learner == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("learner not running"))
	}
	return xhttp.SuccessResponse(c, h.learner.State())
}

type healthResponse struct {
	Healthy    bool            `json:"healthy"`
	ServerTime time.Time       `json:"server_time"`
	Components []runner.Status `json:"components"`
}

// Health reports 503 while any supervised component is degraded.
func (h *Handler) Health(c echo.Context) error {
	res := healthResponse{Healthy: true, ServerTime: h.clock.Now(), Components: []runner.Status{}}
	if h.registry != nil {
		res.Healthy = h.registry.Healthy()
		res.Components = h.registry.Snapshot()
	}
	status := http.StatusOK
	if !res.Healthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, xhttp.APIResponse{Status: status, Message: http.StatusText(status), Data: res})
}
