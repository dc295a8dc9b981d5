package di

import (
	"context"
	"testing"

	"SignalScan/internal/domain/models"
	"SignalScan/internal/domain/repository"
	"SignalScan/pkg/config"
	applogger "SignalScan/pkg/logger"
	"SignalScan/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	return cfg
}

func TestInitializeSession_DefaultsNeedNoInfrastructure(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Log.Level = "error"

	session, cleanup, err := InitializeSession(cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.False(t, session.Running())
	_, err = session.Latest(context.Background(), models.KindEMACross)
	assert.ErrorIs(t, err, repository.ErrResultNotFound)
}

func TestProvideResultSinks_DisabledSinks(t *testing.T) {
	cfg := defaultConfig(t)
	producer, _, err := ProvideKafkaProducer(cfg, ProvideRegistry(), applogger.Nop())
	require.NoError(t, err)
	ch, _, err := ProvideClickHouseClient(cfg)
	require.NoError(t, err)

	sinks, err := ProvideResultSinks(cfg, producer, ch, applogger.Nop())
	require.NoError(t, err)
	assert.Empty(t, sinks)
}

func TestProvideLimiterAndMetrics(t *testing.T) {
	cfg := defaultConfig(t)
	assert.Nil(t, ProvideLimiter(cfg))

	cfg.API.RateLimit.RPS = 5
	assert.True(t, ProvideLimiter(cfg).Enabled())

	cfg.Metrics.Enabled = false
	assert.IsType(t, metrics.Nop{}, ProvideMetrics(cfg, ProvideRegistry()))
}
