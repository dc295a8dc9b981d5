package di

import (
	"context"
	"fmt"
	"time"

	"SignalScan/internal/domain/models"
	"SignalScan/internal/domain/repository"
	"SignalScan/internal/handler/api"
	internalrepo "SignalScan/internal/repository"
	"SignalScan/internal/service/marketapi"
	"SignalScan/internal/service/ratelimit"
	"SignalScan/internal/usecase"
	"SignalScan/pkg/cache"
	pkgch "SignalScan/pkg/clickhouse"
	"SignalScan/pkg/config"
	xhttp "SignalScan/pkg/http"
	pkgkafka "SignalScan/pkg/kafka"
	applogger "SignalScan/pkg/logger"
	"SignalScan/pkg/metrics"
	"SignalScan/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideRegistry returns a private registry with the Go and process collectors.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config, reg *prometheus.Registry) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New(reg)
}

func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(
		xhttp.WithTimeout(cfg.API.Timeout*2),
		xhttp.WithUserAgent(cfg.API.UserAgent),
		xhttp.WithMaxIdleConns(64),
	)
}

// ProvideLimiter returns nil when no rate is configured; the fetch client treats that as unlimited.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	if cfg.API.RateLimit.RPS <= 0 {
		return nil
	}
	return ratelimit.New(cfg.API.RateLimit.RPS, cfg.API.RateLimit.Burst)
}

func ProvideFetchClient(
	cfg *config.Config,
	h *xhttp.Client,
	limiter *ratelimit.Limiter,
	m repository.Metrics,
	l *applogger.Logger,
) *marketapi.Client {
	opts := []marketapi.Option{
		marketapi.WithRetryStatuses(cfg.API.RetryStatuses),
		marketapi.WithLimiter(limiter),
		marketapi.WithMetrics(m),
		marketapi.WithLogger(l.With(applogger.String("component", "marketapi"))),
	}
	if cfg.API.Breaker.Enabled {
		opts = append(opts, marketapi.WithBreaker(cfg.API.Breaker.ConsecutiveFailures, cfg.API.Breaker.OpenTimeout))
	}
	return marketapi.NewClient(h, opts...)
}

func ProvideResolver(cfg *config.Config, c *marketapi.Client) *marketapi.Resolver {
	return marketapi.NewResolver(c, cfg.API.TickerPath)
}

func ProvideSeriesFetcher(cfg *config.Config, c *marketapi.Client) *marketapi.SeriesFetcher {
	return marketapi.NewSeriesFetcher(c, cfg.API.KlinesPath)
}

func ProvideScanner(r *marketapi.Resolver, s *marketapi.SeriesFetcher, m repository.Metrics, l *applogger.Logger) *usecase.Scanner {
	return usecase.NewScanner(r, s, m, l.With(applogger.String("component", "scanner")))
}

func ProvideScanConfigs(cfg *config.Config) map[models.Kind]usecase.ScanConfig {
	return usecase.ScanConfigs(cfg)
}

// ProvideResultStore keeps results in process memory, or in Redis behind a small memory layer.
func ProvideResultStore(cfg *config.Config, l *applogger.Logger) (repository.ResultStore, func(), error) {
	var c cache.Service
	switch cfg.Results.Store {
	case "redis":
		rc, err := cache.NewRedisCache(
			cache.WithRedisHost(cfg.Results.Redis.Host),
			cache.WithRedisPort(cfg.Results.Redis.Port),
			cache.WithRedisPassword(cfg.Results.Redis.Password),
			cache.WithRedisDB(cfg.Results.Redis.DB),
			cache.WithRedisPrefix(cfg.Results.Redis.Prefix),
			cache.WithRedisPool(cfg.Results.Redis.PoolSize, cfg.Results.Redis.MinIdle, 0),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("result store: %w", err)
		}
		c = cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(16), cache.WithLayeredMemoryTTL(30*time.Second))
	default:
		c = cache.NewMemoryCache(
			cache.WithMemoryMaxSize(16),
			cache.WithMemoryDefaultTTL(cfg.Results.TTL),
			cache.WithMemoryCleanup(time.Hour),
		)
	}

	store := internalrepo.NewCacheResultStore(c, cfg.Results.TTL, l.With(applogger.String("component", "results")))
	cleanup := func() {
		if err := store.Close(); err != nil {
			l.Warn("result store close error", applogger.Error(err))
		}
	}
	return store, cleanup, nil
}

// ProvideKafkaProducer returns nil when the Kafka sink is disabled. When a collect topic
// is configured the producer also receives aggregated error logs.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	k := cfg.Sink.Kafka
	if !k.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithMaxAttempts(k.MaxAttempts),
		pkgkafka.WithBatching(k.BatchSize, k.BatchTimeout),
		pkgkafka.WithWriteTimeout(k.WriteTimeout),
		pkgkafka.WithAutoCreateTopic(k.AutoCreate),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	if cfg.Log.CollectTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: cfg.Log.CollectInterval,
			Topic:        cfg.Log.CollectTopic,
			Publisher:    producer,
		})
	}

	cleanup := func() {
		l.RemoveCollector()
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideClickHouseClient returns nil when the ClickHouse sink is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	ch := cfg.Sink.ClickHouse
	if !ch.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(4, 2),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideResultSinks collects the enabled sinks. The ClickHouse schema is created here.
func ProvideResultSinks(
	cfg *config.Config,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	l *applogger.Logger,
) ([]repository.ResultSink, error) {
	var sinks []repository.ResultSink
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaResultSink(producer, cfg.Sink.Kafka.Topic))
	}
	if ch != nil {
		sink := internalrepo.NewCHHitSink(ch, cfg.Sink.ClickHouse.Database, l.With(applogger.String("component", "clickhouse")))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sink.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

func ProvideScanSession(
	scanner *usecase.Scanner,
	configs map[models.Kind]usecase.ScanConfig,
	store repository.ResultStore,
	sinks []repository.ResultSink,
	l *applogger.Logger,
) *usecase.ScanSession {
	return usecase.NewScanSession(scanner, configs, store, sinks, l.With(applogger.String("component", "session")))
}

func ProvideScansHandler(l *applogger.Logger, s *usecase.ScanSession) *api.ScansEchoHandler {
	return api.NewScansEchoHandler(l.With(applogger.String("component", "api")), s, api.StreamConfig{})
}

func ProvideHTTPServer(cfg *config.Config, h *api.ScansEchoHandler, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg, reg))
	}
	return xhttp.NewServer(h, l.With(applogger.String("component", "http")), opts...)
}

func ProvideApp(cfg *config.Config, srv *xhttp.Server, s *usecase.ScanSession, l *applogger.Logger) *server.App {
	return server.New(cfg, srv, s, l)
}
