//go:build wireinject
// +build wireinject

package di

import (
	"FinPolicy/pkg/config"
	"FinPolicy/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires every component from the loaded config.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideStore,
		ProvideRedis,
		ProvidePostgres,
		ProvideModelIndex,
		ProvideClickHouse,
		ProvideResources,

		// Repositories
		ProvideSampleStore,
		ProvideTrainingSink,
		ProvidePredictionPipeline,
		ProvidePredictionLog,

		// Core services
		ProvideRegistry,
		ProvideTrainer,
		ProvideRiskEngine,
		ProvideHub,
		ProvideInference,
		ProvideScheduler,

		// Use cases
		ProvideMarket,
		ProvideOutcomeHandler,
		ProvideKafkaConsumer,

		// HTTP and application
		ProvideHTTPHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
