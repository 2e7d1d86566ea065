package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vidgate/internal/cache"
	cachestore "vidgate/internal/cache/store"
	identityservice "vidgate/internal/identity/service"
	"vidgate/internal/identity/store"
	identitystore "vidgate/internal/identity/store/identity"
	revocationstore "vidgate/internal/identity/store/revocation"
	sessionstore "vidgate/internal/identity/store/session"
	"vidgate/internal/identity/token"
	"vidgate/internal/platform/config"
	"vidgate/internal/platform/httpserver"
	"vidgate/internal/platform/logger"
	"vidgate/internal/platform/metrics"
	"vidgate/internal/platform/postgres"
	platformredis "vidgate/internal/platform/redis"
	"vidgate/internal/quota"
	quotastore "vidgate/internal/quota/store"
	"vidgate/internal/reaper"
	httptransport "vidgate/internal/transport/http"
	"vidgate/internal/upstream"
	"vidgate/pkg/platform/audit/publisher"
	"vidgate/pkg/platform/audit/publishers/kafka"
	auditmemory "vidgate/pkg/platform/audit/store/memory"
)

// main wires storage, services, and the HTTP surface, then runs the
// server until a shutdown signal arrives. Business logic lives in the
// internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err.Error())
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		log.Warn("no redis configured, using in-memory stores")
	}

	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		log.Error("postgres connection failed", "error", err.Error())
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	auditPub, err := buildAuditPublisher(ctx, cfg, log)
	if err != nil {
		log.Error("audit publisher setup failed", "error", err.Error())
		os.Exit(1)
	}
	defer auditPub.Close()

	codec, err := token.NewCodec(cfg.JWTSigningKey)
	if err != nil {
		log.Error("token codec setup failed", "error", err.Error())
		os.Exit(1)
	}

	m := metrics.New()

	identities, sessions, revocations, quotaLedger, responseCache := buildStores(redisClient, db)

	quotaSvc, err := quota.New(quotaLedger,
		quota.WithLogger(log),
		quota.WithAuditEmitter(auditPub),
		quota.WithMetrics(m),
	)
	if err != nil {
		log.Error("quota service setup failed", "error", err.Error())
		os.Exit(1)
	}

	identitySvc, err := identityservice.New(identities, sessions, revocations, quotaSvc, codec,
		identityservice.Config{
			IdentityTTL:           cfg.IdentityTTL,
			QuotaLimit:            cfg.QuotaLimit,
			AbuseSessionThreshold: cfg.AbuseSessionThreshold,
		},
		identityservice.WithLogger(log),
		identityservice.WithAuditEmitter(auditPub),
		identityservice.WithMetrics(m),
	)
	if err != nil {
		log.Error("identity service setup failed", "error", err.Error())
		os.Exit(1)
	}

	upstreamClient, err := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, cfg.Upstream.Timeout,
		upstream.WithLogger(log),
	)
	if err != nil {
		log.Error("upstream client setup failed", "error", err.Error())
		os.Exit(1)
	}

	cacheSvc, err := cache.New(responseCache, upstreamClient,
		cache.WithLogger(log),
		cache.WithAuditEmitter(auditPub),
	)
	if err != nil {
		log.Error("cache service setup failed", "error", err.Error())
		os.Exit(1)
	}

	sweeper := reaper.New(cfg.ReaperInterval,
		reaper.WithLogger(log),
		reaper.WithAuditEmitter(auditPub),
	)
	sweeper.Register("identities", identities)
	sweeper.Register("sessions", sessions)
	sweeper.Register("revocations", revocations)
	sweeper.Register("quotas", quotaLedger)
	sweeper.Register("cache", responseCache)
	go sweeper.Run(ctx)

	router := httptransport.NewRouter(
		httptransport.NewAuthHandler(identitySvc, log),
		httptransport.NewAPIHandler(quotaSvc, cacheSvc, identitySvc, cfg.IdentityTTL, log),
		httptransport.NewAdminHandler(cacheSvc, sweeper, cfg.AdminAPIKeyHash, log),
		identitySvc,
		healthCheck(redisClient, db),
		log,
	)

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting vidgate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
		os.Exit(1)
	}
}

// buildStores picks the storage tier: redis when configured, in-memory
// otherwise. The revocation ledger additionally prefers postgres when a
// database is available, for durability across redis flushes.
func buildStores(redisClient *platformredis.Client, db *sql.DB) (
	store.IdentityStore,
	store.SessionStore,
	store.RevocationStore,
	quota.Store,
	cache.Store,
) {
	if redisClient == nil {
		var revocations store.RevocationStore = revocationstore.NewInMemoryStore()
		if db != nil {
			revocations = revocationstore.NewPostgresStore(db)
		}
		return identitystore.NewInMemoryStore(),
			sessionstore.NewInMemoryStore(),
			revocations,
			quotastore.NewInMemoryStore(),
			cachestore.NewInMemoryStore()
	}

	var revocations store.RevocationStore = revocationstore.NewRedisStore(redisClient.Client)
	if db != nil {
		revocations = revocationstore.NewPostgresStore(db)
	}
	return identitystore.NewRedisStore(redisClient.Client),
		sessionstore.NewRedisStore(redisClient.Client),
		revocations,
		quotastore.NewRedisStore(redisClient.Client),
		cachestore.NewRedisStore(redisClient.Client)
}

func buildAuditPublisher(ctx context.Context, cfg config.Config, log *slog.Logger) (*publisher.Publisher, error) {
	opts := []publisher.Option{
		publisher.WithLogger(log),
		publisher.WithAsyncBuffer(256),
	}

	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := kafka.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		if err := sink.EnsureTopic(ctx); err != nil {
			return nil, err
		}
		opts = append(opts, publisher.WithSink(sink))
		log.Info("audit events fan out to kafka", "topic", cfg.Kafka.Topic)
	}

	return publisher.NewPublisher(auditmemory.NewInMemoryStore(), opts...), nil
}

func healthCheck(redisClient *platformredis.Client, db *sql.DB) httptransport.HealthChecker {
	return func(ctx context.Context) error {
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				return err
			}
		}
		if db != nil {
			return db.PingContext(ctx)
		}
		return nil
	}
}
