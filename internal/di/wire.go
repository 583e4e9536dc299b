//go:build wireinject
// +build wireinject

package di

import (
	"SignalFuse/pkg/config"
	"SignalFuse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvidePostgresPool,
		ProvideCache,

		// Repositories
		ProvideFeatureStore,
		ProvideSignalPublisher,
		ProvideSignalJournal,

		// Fusion pipeline
		ProvideEngine,
		ProvideHub,
		ProvideAnalyzeUseCase,
		ProvideKafkaBarsHandler,
		ProvideKafkaConsumer,

		// Application server
		ProvideHealthHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
