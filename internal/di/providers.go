package di

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"SigPull/internal/domain/models"
	domrepo "SigPull/internal/domain/repository"
	domsvc "SigPull/internal/domain/service"
	"SigPull/internal/handler/api"
	mid "SigPull/internal/middleware"
	internalrepo "SigPull/internal/repository"
	"SigPull/internal/service/binance"
	"SigPull/internal/service/broadcast"
	"SigPull/internal/service/manipulation"
	rtmetrics "SigPull/internal/service/metrics"
	"SigPull/internal/service/ratelimit"
	"SigPull/internal/service/synthetic"
	"SigPull/internal/service/timesync"
	"SigPull/internal/usecase"
	"SigPull/pkg/cache"
	pkgch "SigPull/pkg/clickhouse"
	"SigPull/pkg/config"
	xhttp "SigPull/pkg/http"
	pkgkafka "SigPull/pkg/kafka"
	applogger "SigPull/pkg/logger"
	"SigPull/pkg/metrics"
	"SigPull/pkg/runner"
	"SigPull/pkg/server"
)

const initTimeout = 10 * time.Second

// ProvideLogger builds the root logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lgr, err := applogger.New(&applogger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: time.RFC3339,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return lgr, nil
}

// ProvidePrometheus creates the registry every component registers on.
func ProvidePrometheus() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rtmetrics.Register(reg)
	pkgkafka.SetMetricsRegisterer(reg)
	return reg
}

// ProvideMetrics creates the domain metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) domrepo.Metrics {
	return metrics.New(reg)
}

// ProvideRunnerRegistry tracks the health of background components.
func ProvideRunnerRegistry() *runner.Registry {
	return runner.NewRegistry()
}

// ProvideCache returns redis when enabled, otherwise the in-process cache.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(cache.WithMemoryCleanup(time.Minute)), nil
	}
	c, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(10, 2),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideClickHouseClient connects and applies the schema. It returns nil when
// neither the signal store nor the tick archive uses clickhouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Storage.Backend != "clickhouse" && !cfg.Ingest.ArchiveTicks {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.Ingest.ArchiveTicks, false),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer returns nil unless ticks or events go through kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Ingest.Backend != usecase.BackendKafka && !cfg.Kafka.PublishEvents {
		return nil, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(p.RequiredAcks),
		pkgkafka.WithBatching(p.BatchSize, p.BatchBytes, p.Linger),
		pkgkafka.WithWriteTimeout(p.WriteTimeout),
		pkgkafka.WithMaxAttempts(p.MaxAttempts),
		pkgkafka.WithAsync(p.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalStore picks the signal log backend.
func ProvideSignalStore(cfg *config.Config, ch *pkgch.Client, c cache.Service, lgr *applogger.Logger) domrepo.SignalStore {
	if cfg.Storage.Backend == "clickhouse" && ch != nil {
		return internalrepo.NewCHSignalStore(ch, c, lgr)
	}
	return internalrepo.NewMemorySignalStore(0)
}

// ProvideLearnerStore picks where learner weights survive restarts.
func ProvideLearnerStore(cfg *config.Config, c cache.Service) domrepo.LearnerStore {
	if cfg.Learner.Store == "redis" {
		return internalrepo.NewCacheLearnerStore(c, cfg.Learner.Key)
	}
	return internalrepo.NewFileLearnerStore(cfg.Learner.Path)
}

// ProvideLearner returns nil and marks the learner degraded when it cannot be
// built; emission and resolution then run without learned boosts.
func ProvideLearner(cfg *config.Config, store domrepo.LearnerStore, m domrepo.Metrics, registry *runner.Registry, lgr *applogger.Logger) *usecase.Learner {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	l, err := usecase.NewLearner(ctx, store, cfg.Learner.Alpha, m, lgr)
	if err != nil {
		registry.MarkDegraded("learner", err)
		lgr.Error("learner not started", applogger.Error(err))
		return nil
	}
	return l
}

// ProvideWatchlist marks USDT pairs live when the binance feed is on.
func ProvideWatchlist(cfg *config.Config) *usecase.Watchlist {
	w := cfg.Watchlist
	var live func(string) bool
	if cfg.Binance.Enabled {
		live = func(sym string) bool { return strings.HasSuffix(sym, "USDT") }
	}
	return usecase.NewWatchlist([]usecase.MarketSymbols{
		{Market: models.MarketReal, Symbols: w.Real},
		{Market: models.MarketOTC, Symbols: w.OTC},
		{Market: models.MarketCrypto, Symbols: w.Crypto},
		{Market: models.MarketCommodities, Symbols: w.Commodities},
	}, live)
}

func ProvideBarAggregator(cfg *config.Config, m domrepo.Metrics) *usecase.BarAggregator {
	return usecase.NewBarAggregator(cfg.Bars.HistoryMax, m)
}

func ProvideBarsUseCase(bars *usecase.BarAggregator) *usecase.BarsUseCase {
	return usecase.NewBarsUseCase(bars)
}

// ProvideManipulation chains the local rules with the remote scorer when one is configured.
func ProvideManipulation(cfg *config.Config, lgr *applogger.Logger) domsvc.ManipulationDetector {
	detectors := []domsvc.ManipulationDetector{manipulation.Rules{}}
	if cfg.Manipulation.RemoteURL != "" {
		detectors = append(detectors, manipulation.NewRemote(cfg.Manipulation.RemoteURL, cfg.Manipulation.Timeout, cfg.Manipulation.Attempts))
	}
	return manipulation.NewChain(lgr, detectors...)
}

// ProvideSimulator returns nil when synthetic ticks are disabled.
func ProvideSimulator(cfg *config.Config) usecase.TickSimulator {
	if !cfg.Signals.Synthetic {
		return nil
	}
	return synthetic.New(uint64(time.Now().UnixNano()))
}

func ProvideSyncer(cfg *config.Config, lgr *applogger.Logger) *timesync.Syncer {
	return timesync.New(cfg.TimeSync.URL, cfg.TimeSync.Timeout, lgr)
}

// ProvideClock uses the synced clock when time sync is on.
func ProvideClock(cfg *config.Config, s *timesync.Syncer) domsvc.Clock {
	if cfg.TimeSync.Enabled {
		return s
	}
	return domsvc.SystemClock{}
}

// ProvideHub builds the websocket hub. Its signal source is attached in ProvideApp.
func ProvideHub(cfg *config.Config, clock domsvc.Clock, s *timesync.Syncer, lgr *applogger.Logger) *broadcast.Hub {
	limiter := ratelimit.New(cfg.Server.ControlBurst, cfg.Server.ControlPerSec)
	return broadcast.NewHub(broadcast.HubConfig{}, clock, s, nil, limiter, lgr)
}

// ProvideBroadcaster fans events out to the hub and, optionally, the events topic.
func ProvideBroadcaster(cfg *config.Config, hub *broadcast.Hub, producer *pkgkafka.Producer) domrepo.Broadcaster {
	sinks := broadcast.Fanout{hub}
	if cfg.Kafka.PublishEvents && producer != nil {
		sinks = append(sinks, broadcast.NewKafkaBroadcaster(producer, cfg.Kafka.EventsTopic))
	}
	return sinks
}

func ProvideSignalEmitter(
	cfg *config.Config,
	watch *usecase.Watchlist,
	bars *usecase.BarAggregator,
	learner *usecase.Learner,
	manip domsvc.ManipulationDetector,
	store domrepo.SignalStore,
	bus domrepo.Broadcaster,
	sim usecase.TickSimulator,
	clock domsvc.Clock,
	m domrepo.Metrics,
	lgr *applogger.Logger,
) *usecase.SignalEmitter {
	return usecase.NewSignalEmitter(usecase.EmitterConfig{
		MinConfidence: cfg.Signals.MinConfidence,
		Expiry:        cfg.Signals.Expiry,
		Window:        cfg.Signals.Window,
		HTFSeconds:    cfg.Signals.HTFSeconds,
		MinHistory:    cfg.Signals.MinHistory,
	}, watch, bars, learner, manip, store, bus, sim, clock, m, lgr)
}

func ProvideResultResolver(
	cfg *config.Config,
	store domrepo.SignalStore,
	bars *usecase.BarAggregator,
	learner *usecase.Learner,
	bus domrepo.Broadcaster,
	clock domsvc.Clock,
	m domrepo.Metrics,
	registry *runner.Registry,
	lgr *applogger.Logger,
) *usecase.ResultResolver {
	r, err := usecase.NewResultResolver(store, bars, learner, bus, clock, cfg.Resolver.ScanLimit, m, lgr)
	if err != nil {
		registry.MarkDegraded("resolver", err)
		lgr.Error("resolver not started", applogger.Error(err))
		return nil
	}
	return r
}

func ProvideHousekeeper(cfg *config.Config, bars *usecase.BarAggregator, lgr *applogger.Logger) *usecase.Housekeeper {
	return usecase.NewHousekeeper(bars, cfg.Housekeeping.DriftThreshold, lgr)
}

// ProvideTickProcessor routes ticks directly or via kafka, archiving to clickhouse when asked.
func ProvideTickProcessor(cfg *config.Config, bars *usecase.BarAggregator, producer *pkgkafka.Producer, ch *pkgch.Client, m domrepo.Metrics) *usecase.TickProcessor {
	var pub domrepo.TickPublisher
	if cfg.Ingest.Backend == usecase.BackendKafka && producer != nil {
		pub = internalrepo.NewKafkaTickPublisher(producer, cfg.Kafka.TicksTopic)
	}
	var archive domrepo.TickArchive
	if cfg.Ingest.ArchiveTicks && ch != nil {
		archive = internalrepo.NewCHTickArchive(ch)
	}
	return usecase.NewTickProcessor(cfg.Ingest.Backend, bars, pub, archive, m, cfg.Kafka.Producer.BatchSize)
}

func ProvidePipeline(cfg *config.Config, proc *usecase.TickProcessor, m domrepo.Metrics, lgr *applogger.Logger) *mid.RealtimePipeline {
	return mid.NewRealtimePipeline(proc, m,
		mid.WithMaxRPS(cfg.Ingest.MaxPerSecond),
		mid.WithBufferSize(cfg.Ingest.BufferSize),
		mid.WithLogger(lgr),
	)
}

// ProvideTickCollector returns nil when no watched symbol has a live feed.
func ProvideTickCollector(cfg *config.Config, watch *usecase.Watchlist, pipeline *mid.RealtimePipeline, m domrepo.Metrics, lgr *applogger.Logger) *usecase.TickCollector {
	if !cfg.Binance.Enabled {
		return nil
	}
	live := watch.Live()
	if len(binance.Streams(live)) == 0 {
		return nil
	}
	stream := binance.New(binance.Config{
		URL:              cfg.Binance.WebSocketURL,
		PingInterval:     cfg.Binance.PingInterval,
		HandshakeTimeout: cfg.Binance.HandshakeLimit,
		BufferSize:       cfg.Ingest.BufferSize,
	}, lgr)
	return usecase.NewTickCollector(stream, live, pipeline, m, lgr)
}

// ProvideConsumer returns nil unless ticks are ingested through kafka.
func ProvideConsumer(cfg *config.Config, bars *usecase.BarAggregator, m domrepo.Metrics, lgr *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Ingest.Backend != usecase.BackendKafka {
		return nil, nil
	}
	cc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(lgr,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cc.GroupID),
		pkgkafka.WithConsumerWorkers(cc.Workers),
		pkgkafka.WithConsumerBufferSize(cc.BufferSize),
		pkgkafka.WithConsumerRetry(cc.RetryMax, cc.BackoffMin, cc.BackoffMax),
		pkgkafka.WithConsumerDLQ(cc.DLQTopic),
		pkgkafka.WithConsumerFetch(cc.MinBytes, cc.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, bars, m))
	return consumer, nil
}

func ProvideHandler(
	lgr *applogger.Logger,
	watch *usecase.Watchlist,
	store domrepo.SignalStore,
	bars *usecase.BarsUseCase,
	learner *usecase.Learner,
	registry *runner.Registry,
	hub *broadcast.Hub,
	clock domsvc.Clock,
	c cache.Service,
) *api.Handler {
	// Typed nils would defeat the handler's nil checks.
	var view api.LearnerView
	if learner != nil {
		view = learner
	}
	var ws http.Handler
	if hub != nil {
		ws = hub
	}
	return api.NewHandler(lgr, watch, store, bars, view, registry, ws, clock, c)
}

func ProvideHTTPServer(cfg *config.Config, h *api.Handler, reg *prometheus.Registry, lgr *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORSOrigins),
		xhttp.WithLogger(lgr),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg, reg))
	} else {
		opts = append(opts, xhttp.WithMetrics("", nil, nil))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideApp assembles the background components and the shutdown order.
func ProvideApp(
	cfg *config.Config,
	lgr *applogger.Logger,
	m domrepo.Metrics,
	registry *runner.Registry,
	httpServer *xhttp.Server,
	hub *broadcast.Hub,
	bus domrepo.Broadcaster,
	emitter *usecase.SignalEmitter,
	resolver *usecase.ResultResolver,
	keeper *usecase.Housekeeper,
	syncer *timesync.Syncer,
	proc *usecase.TickProcessor,
	pipeline *mid.RealtimePipeline,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	c cache.Service,
) *server.App {
	hub.SetSignals(emitter)

	if cfg.Logging.CollectErrors {
		lgr.AttachCollector(&applogger.CollectionConfig{
			FlushInterval:  cfg.Logging.FlushInterval,
			CountThreshold: cfg.Logging.CountThreshold,
			Sink:           broadcast.NewLogSink(bus),
		})
	}

	components := []server.Component{pipeline}
	if cfg.TimeSync.Enabled {
		ts := runner.NewTask("timesync", cfg.TimeSync.Interval, syncer.Sync, lgr, registry, m)
		ts.Immediate = true
		components = append(components, ts)
	}
	if collector != nil {
		sup := runner.NewSupervisor("collector", collector.Run, lgr, registry, m)
		sup.BackoffMin, sup.BackoffMax = cfg.Binance.BackoffMin, cfg.Binance.BackoffMax
		components = append(components, sup)
	}
	if consumer != nil {
		sup := runner.NewSupervisor("consumer", consumer.Run, lgr, registry, m)
		sup.BackoffMin, sup.BackoffMax = cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax
		components = append(components, sup)
	}
	if cfg.Ingest.ArchiveTicks {
		components = append(components, runner.NewTask("archive", time.Second, proc.Flush, lgr, registry, m))
	}
	emit := runner.NewTask("emitter", cfg.Signals.EmitInterval, emitter.EmitCycle, lgr, registry, m)
	emit.Immediate = true
	components = append(components, emit)
	if resolver != nil {
		components = append(components, runner.NewTask("resolver", cfg.Resolver.Interval, resolver.ResolveCycle, lgr, registry, m))
	}
	components = append(components,
		runner.NewTask("repair", cfg.Housekeeping.Interval, keeper.Repair, lgr, registry, m),
		runner.NewTask("drift", cfg.Housekeeping.DriftInterval, keeper.Drift, lgr, registry, m),
	)

	closers := []server.Closer{
		{Name: "hub", Close: func(context.Context) error { hub.Close(); return nil }},
		{Name: "ticks", Close: proc.Close},
		{Name: "log collector", Close: func(context.Context) error { lgr.DetachCollector(); return nil }},
	}
	if producer != nil {
		closers = append(closers, server.Closer{Name: "kafka producer", Close: func(context.Context) error { return producer.Close() }})
	}
	if ch != nil {
		closers = append(closers, server.Closer{Name: "clickhouse", Close: func(context.Context) error { return ch.Close() }})
	}
	closers = append(closers, server.Closer{Name: "cache", Close: func(context.Context) error { return c.Close() }})

	return server.New(lgr, httpServer, components, closers, cfg.Server.ShutdownTimeout)
}
