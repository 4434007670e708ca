package di

import (
	"context"
	"fmt"
	"time"

	"CopyRelay/internal/handler/api"
	"CopyRelay/internal/repository"
	"CopyRelay/internal/service/ratelimit"
	"CopyRelay/internal/service/stream"
	"CopyRelay/internal/usecase"
	"CopyRelay/pkg/cache"
	pkgch "CopyRelay/pkg/clickhouse"
	"CopyRelay/pkg/config"
	pkgkafka "CopyRelay/pkg/kafka"
	applogger "CopyRelay/pkg/logger"
	"CopyRelay/pkg/metrics"
	"CopyRelay/pkg/queue"
	"CopyRelay/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideRecorder creates the Prometheus metrics recorder.
func ProvideRecorder() *metrics.Recorder {
	return metrics.New()
}

// ProvideRegistry creates the connected-account registry.
func ProvideRegistry() *usecase.Registry {
	return usecase.NewRegistry()
}

// ProvideSignalLog creates the bounded in-memory signal log.
func ProvideSignalLog(cfg *config.Config) *usecase.SignalLog {
	return usecase.NewSignalLog(cfg.Signals.MaxRetained)
}

// ProvideReaper creates the staleness reaper.
func ProvideReaper(reg *usecase.Registry, cfg *config.Config, l *applogger.Logger, rec *metrics.Recorder) *usecase.Reaper {
	return usecase.NewReaper(reg, cfg.Registry.ReapInterval, cfg.Registry.StaleAfter, l, rec)
}

// ProvideHub creates the WebSocket fan-out hub, nil when streaming is off.
func ProvideHub(cfg *config.Config, l *applogger.Logger) *stream.Hub {
	if !cfg.Stream.Enabled {
		return nil
	}
	return stream.NewHub(l)
}

// ProvideLimiter creates the per-key token bucket, nil when disabled.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New()
}

// ProvideCache creates the cache service configured by cache.type.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	switch cfg.Cache.Type {
	case "memory":
		return cache.NewMemoryCache(), nil
	case "redis":
		return newRedisCache(cfg)
	case "layered":
		redis, err := newRedisCache(cfg)
		if err != nil {
			return nil, err
		}
		return cache.NewLayeredCache(redis), nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Cache.Type)
	}
}

func newRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	c, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Cache.Redis.Host),
		cache.WithRedisPort(cfg.Cache.Redis.Port),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideArchive creates the signal archive configured by archive.type.
func ProvideArchive(cfg *config.Config) (repository.SignalArchive, error) {
	switch cfg.Archive.Type {
	case "none":
		return repository.NopArchive{}, nil
	case "kafka":
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(cfg.Archive.Kafka.Brokers),
			pkgkafka.WithCompression(cfg.Archive.Kafka.Compression),
			pkgkafka.WithRequiredAcks(cfg.Archive.Kafka.RequiredAcks),
			pkgkafka.WithMaxAttempts(cfg.Archive.Kafka.MaxAttempts),
			pkgkafka.WithTimeouts(cfg.Archive.Kafka.WriteTimeout, cfg.Archive.Kafka.ReadTimeout),
			pkgkafka.WithAsync(cfg.Archive.Kafka.Async),
			pkgkafka.WithHashByKey(true),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		return repository.NewKafkaArchive(producer, cfg.Archive.Kafka.Topic), nil
	case "clickhouse":
		ch := cfg.Archive.ClickHouse
		client, err := pkgch.NewClient(
			pkgch.WithHost(ch.Host),
			pkgch.WithPort(ch.Port),
			pkgch.WithDatabase(ch.Database),
			pkgch.WithCredentials(ch.User, ch.Password),
			pkgch.WithHTTP(ch.UseHTTP),
			pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout, ch.ReadTimeout),
			pkgch.WithMaxConnections(10, 5),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}

		table := ch.Database + ".signals"
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.InitSchema(ctx, repository.ArchiveSchema(ch.Database, table)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		return repository.NewClickHouseArchive(client.DB(), table), nil
	default:
		return nil, fmt.Errorf("unknown archive type %q", cfg.Archive.Type)
	}
}

// ProvideQueue creates the in-process worker queue. It carries archive
// writes and, when enabled, aggregated error-log summaries; nil when
// neither consumer is configured.
func ProvideQueue(cfg *config.Config, archive repository.SignalArchive, l *applogger.Logger, rec *metrics.Recorder) *queue.MemoryQueue {
	archiving := cfg.Archive.Type != "none"
	if !archiving && !cfg.Log.AggregateErrors {
		return nil
	}
	q := queue.NewMemoryQueue(queue.QueueConfig{
		Workers:    cfg.Archive.Workers,
		QueueSize:  1024,
		RetryLimit: 3,
		RetryDelay: 2 * time.Second,
	})
	if archiving {
		q.RegisterJob(usecase.NewArchiveSignalJob(archive, cfg.Archive.Type, l, rec))
	}
	if cfg.Log.AggregateErrors {
		q.RegisterJob(usecase.NewLogSummaryJob(l))
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          usecase.MsgLogSummary,
			Publisher:      q,
		})
	}
	return q
}

// ProvideHandler creates the relay HTTP handler.
func ProvideHandler(
	cfg *config.Config,
	l *applogger.Logger,
	reg *usecase.Registry,
	signals *usecase.SignalLog,
	rec *metrics.Recorder,
	hub *stream.Hub,
	q *queue.MemoryQueue,
	cacheSvc cache.Service,
	limiter *ratelimit.Limiter,
) *api.RelayHandler {
	hc := api.RelayConfig{
		Logger:        l,
		Registry:      reg,
		Signals:       signals,
		Recorder:      rec,
		Hub:           hub,
		Cache:         cacheSvc,
		Limiter:       limiter,
		APIKey:        cfg.Auth.APIKey,
		QueryCacheTTL: cfg.Signals.QueryCacheTTL,
		RateCapacity:  cfg.RateLimit.Capacity,
		RateRefill:    cfg.RateLimit.RefillPerSec,
	}
	// Assigning a nil *MemoryQueue into the interface field would defeat the
	// handler's nil check.
	if q != nil {
		hc.Queue = q
	}
	return api.NewRelayHandler(hc)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	h *api.RelayHandler,
	reaper *usecase.Reaper,
	hub *stream.Hub,
	q *queue.MemoryQueue,
	archive repository.SignalArchive,
) *server.App {
	return server.New(cfg, l, h, reaper, hub, q, archive)
}
