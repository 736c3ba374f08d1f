//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SigPull/pkg/config"
	"SigPull/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvidePrometheus,
		ProvideMetrics,
		ProvideRunnerRegistry,

		// Infrastructure clients
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideSignalStore,
		ProvideLearnerStore,

		// Domain services
		ProvideLearner,
		ProvideWatchlist,
		ProvideBarAggregator,
		ProvideBarsUseCase,
		ProvideManipulation,
		ProvideSimulator,
		ProvideSyncer,
		ProvideClock,

		// Broadcast
		ProvideHub,
		ProvideBroadcaster,

		// Use cases
		ProvideSignalEmitter,
		ProvideResultResolver,
		ProvideHousekeeper,
		ProvideTickProcessor,
		ProvidePipeline,
		ProvideTickCollector,
		ProvideConsumer,

		// Application server
		ProvideHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
