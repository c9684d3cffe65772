package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"rollcall/internal/anomaly"
	anomalystore "rollcall/internal/anomaly/store"
	"rollcall/internal/attendance"
	"rollcall/internal/biometric"
	biometricstore "rollcall/internal/biometric/store"
	httpapi "rollcall/internal/http"
	jwttoken "rollcall/internal/jwt_token"
	"rollcall/internal/notify"
	"rollcall/internal/otp"
	"rollcall/internal/otp/cache"
	"rollcall/internal/platform/config"
	"rollcall/internal/platform/metrics"
	"rollcall/internal/platform/postgres"
	platformredis "rollcall/internal/platform/redis"
	"rollcall/internal/ratelimit"
	"rollcall/internal/verification"
	"rollcall/internal/verification/handler"
)

const cacheCleanupInterval = time.Minute

// app is the assembled server. run holds the background loops that must live
// as long as the server; closers release connections in reverse order.
type app struct {
	handler http.Handler
	run     []func(ctx context.Context)
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// stores groups the persistence backends selected by configuration.
type stores struct {
	enrollments biometric.Store
	anomalies   anomaly.Store
	records     attendance.Store
}

// buildApp wires every service from configuration. Backends fall back to
// in-memory implementations when their connection setting is empty. Metrics
// are registered with reg and /metrics serves gatherer.
func buildApp(ctx context.Context, cfg config.Server, holder *config.PolicyHolder, log *slog.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	m := metrics.New(reg)
	health := map[string]httpapi.HealthCheck{}

	sink, err := newSink(ctx, cfg.Kafka, log, a, health)
	if err != nil {
		return nil, err
	}
	dispatcher, err := notify.NewDispatcher(sink, notify.WithLogger(log), notify.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	a.run = append(a.run, func(ctx context.Context) { _ = dispatcher.Run(ctx) })

	rdb, err := openRedis(ctx, cfg.Redis, a, health)
	if err != nil {
		return nil, err
	}
	codeCache := newCodeCache(rdb, a)
	limiter := ratelimit.New(newLimitStore(rdb, cfg.RateLimit.Window, a),
		cfg.RateLimit.Requests, cfg.RateLimit.Window,
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(m),
	)
	st, err := newStores(ctx, cfg.Postgres, log, a, health)
	if err != nil {
		return nil, err
	}

	index := biometric.NewFlatIndex(cfg.EmbeddingDimension)
	warmed, err := biometric.Warm(ctx, st.enrollments, index)
	if err != nil {
		return nil, fmt.Errorf("warm embedding index: %w", err)
	}
	m.SetIndexSize(warmed)
	log.Info("embedding index warmed", "entries", warmed, "dimension", cfg.EmbeddingDimension)
	extractor := biometric.NewPrecomputedExtractor(cfg.EmbeddingDimension)

	policy := holder.Load()
	codes, err := otp.New(codeCache,
		otp.WithConfig(otpConfig(policy)),
		otp.WithLogger(log),
		otp.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}
	enroller, err := biometric.NewEnroller(st.enrollments, index, extractor,
		biometric.WithEnrollmentConfig(enrollmentConfig(policy)),
		biometric.WithEnrollerLogger(log),
		biometric.WithEnrollerMetrics(m),
	)
	if err != nil {
		return nil, err
	}
	tracker, err := anomaly.New(st.anomalies,
		anomaly.WithThreshold(policy.Strikes.Threshold),
		anomaly.WithLogger(log),
		anomaly.WithMetrics(m),
		anomaly.WithPublisher(dispatcher),
	)
	if err != nil {
		return nil, err
	}
	sessions := verification.NewSessionRegistry()
	verifier, err := verification.New(st.enrollments, extractor, codes, tracker, st.records,
		verification.WithConfigSource(func() verification.Config { return verificationConfig(holder.Load()) }),
		verification.WithSessions(sessions),
		verification.WithPublisher(dispatcher),
		verification.WithLogger(log),
		verification.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	verifyHandler := handler.New(verifier, sessions, log)
	codeHandler := handler.NewCodeHandler(codes, log)
	a.handler = httpapi.NewRouter(httpapi.Config{
		Logger:      log,
		Metrics:     m,
		Gatherer:    gatherer,
		Tokens:      jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience),
		ClientLimit: limiter.PerClient,
		Health:      health,
		Public:      []httpapi.PublicRoutes{verifyHandler, codeHandler},
		Authority: []httpapi.AuthorityRoutes{
			verifyHandler,
			codeHandler,
			handler.NewEnrollmentHandler(enroller, log),
			handler.NewAnomalyHandler(tracker, log),
			handler.NewAttendanceHandler(st.records, log),
		},
	})
	return a, nil
}

// newSink selects Kafka when brokers are configured and structured logs
// otherwise.
func newSink(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger, a *app, health map[string]httpapi.HealthCheck) (notify.Sink, error) {
	if len(cfg.Brokers) == 0 {
		log.Info("no kafka brokers configured, notifications go to the log")
		return notify.NewLogSink(log), nil
	}
	sink, err := notify.NewKafkaSink(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, sink.Close)
	if err := sink.EnsureTopic(ctx); err != nil {
		log.Warn("kafka topic setup failed, relying on broker auto-creation", "topic", cfg.Topic, "error", err)
	}
	health["kafka"] = sink.Ping
	return sink, nil
}

// openRedis connects the shared Redis client, or returns nil when none is
// configured.
func openRedis(ctx context.Context, cfg config.RedisConfig, a *app, health map[string]httpapi.HealthCheck) (*platformredis.Client, error) {
	client, err := platformredis.New(ctx, cfg)
	if err != nil || client == nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	health["redis"] = client.Health
	return client, nil
}

func newCodeCache(client *platformredis.Client, a *app) cache.Cache {
	if client != nil {
		return cache.NewRedis(client.Client)
	}
	mem := cache.NewInMemory()
	a.every(cacheCleanupInterval, func() { mem.Cleanup() })
	return mem
}

func newLimitStore(client *platformredis.Client, window time.Duration, a *app) ratelimit.Store {
	if client != nil {
		return ratelimit.NewRedis(client.Client)
	}
	mem := ratelimit.NewInMemory()
	a.every(cacheCleanupInterval, func() { mem.Cleanup(window) })
	return mem
}

// every runs fn on a ticker for the life of the server.
func (a *app) every(interval time.Duration, fn func()) {
	a.run = append(a.run, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	})
}

func newStores(ctx context.Context, cfg config.PostgresConfig, log *slog.Logger, a *app, health map[string]httpapi.HealthCheck) (*stores, error) {
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		log.Warn("no database configured, records are kept in memory")
		return &stores{
			enrollments: biometricstore.NewInMemory(),
			anomalies:   anomalystore.NewInMemory(),
			records:     attendance.NewInMemoryStore(),
		}, nil
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	if err := postgres.Migrate(ctx, db); err != nil {
		return nil, err
	}
	health["postgres"] = db.PingContext
	return postgresStores(db), nil
}

func postgresStores(db *sql.DB) *stores {
	return &stores{
		enrollments: biometricstore.NewPostgres(db),
		anomalies:   anomalystore.NewPostgres(db),
		records:     attendance.NewPostgresStore(db),
	}
}
