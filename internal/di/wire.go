//go:build wireinject
// +build wireinject

package di

import (
	"SignalScan/internal/usecase"
	"SignalScan/pkg/config"
	"SignalScan/pkg/server"

	"github.com/google/wire"
)

var scanSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,

	// Upstream API
	ProvideHTTPClient,
	ProvideLimiter,
	ProvideFetchClient,
	ProvideResolver,
	ProvideSeriesFetcher,

	// Results
	ProvideResultStore,
	ProvideKafkaProducer,
	ProvideClickHouseClient,
	ProvideResultSinks,

	ProvideScanner,
	ProvideScanConfigs,
	ProvideScanSession,
)

// InitializeApp wires the HTTP service.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		scanSet,
		ProvideScansHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeSession wires a session for one-shot CLI scans.
func InitializeSession(cfg *config.Config) (*usecase.ScanSession, func(), error) {
	wire.Build(scanSet)
	return nil, nil, nil
}
