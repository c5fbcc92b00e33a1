//go:build wireinject
// +build wireinject

package di

import (
	"RecessionLens/pkg/config"
	"RecessionLens/pkg/server"

	"github.com/google/wire"
)

var storageSet = wire.NewSet(
	ProvideMetrics,
	ProvideClickHouseClient,
	ProvideIndicatorStore,
	ProvideIndicatorSource,
	ProvideArtifactStore,
	ProvideTrainer,
)

// InitializePipeline wires the components of the batch commands.
func InitializePipeline(cfg *config.Config) (*Pipeline, error) {
	wire.Build(
		ProvideCLILogger,
		storageSet,
		ProvideEvaluator,
		ProvidePipeline,
	)
	return &Pipeline{}, nil
}

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Logging
		ProvideHub,
		ProvideLogger,

		// Storage and training
		storageSet,
		ProvideModelRegistry,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvidePredictionStore,

		// Use cases
		ProvidePredictionSink,
		ProvideSinkBuffer,
		ProvidePredictionService,
		ProvideTrainJob,
		ProvideTrainQueue,
		ProvideTrainCron,
		ProvideTrainScheduler,
		ProvidePredictionEventsHandler,

		// HTTP
		ProvideRateLimit,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
