// Package main is the entry point of the fitmatch API: REST endpoints for
// matching and conversations plus the websocket push channel.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fitmatch/fitmatch-core/config"
	"github.com/fitmatch/fitmatch-core/internal/application/command"
	"github.com/fitmatch/fitmatch-core/internal/application/query"
	"github.com/fitmatch/fitmatch-core/internal/domain/conversation"
	"github.com/fitmatch/fitmatch-core/internal/domain/fitness"
	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
	"github.com/fitmatch/fitmatch-core/internal/infrastructure/external/strava"
	"github.com/fitmatch/fitmatch-core/internal/infrastructure/messaging"
	"github.com/fitmatch/fitmatch-core/internal/infrastructure/persistence/memory"
	"github.com/fitmatch/fitmatch-core/internal/infrastructure/persistence/postgres"
	"github.com/fitmatch/fitmatch-core/internal/infrastructure/persistence/redis"
	"github.com/fitmatch/fitmatch-core/internal/infrastructure/scheduler"
	"github.com/fitmatch/fitmatch-core/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/fitmatch/fitmatch-core/internal/interface/http"
	"github.com/fitmatch/fitmatch-core/pkg/logger"
	"github.com/fitmatch/fitmatch-core/pkg/retry"
	"github.com/fitmatch/fitmatch-core/pkg/seal"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// userStore is what both persistence backends expose for users.
type userStore interface {
	matching.UserDirectory
	httpapi.LastActiveWriter
}

// stores groups the repositories of one backend.
type stores struct {
	users       userStore
	fitness     fitness.Repository
	matches     matching.MatchRepository
	preferences matching.PreferencesRepository
	messages    conversation.Repository
	health      []httpapi.Checker
	close       func()
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting fitmatch API",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. PERSISTENCE
	// ─────────────────────────────────────────────────────────────────────────
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS AND EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	localBus := messaging.InMemoryEventBusConfig{
		AsyncMode:      cfg.Messaging.AsyncBus,
		WorkerPoolSize: cfg.Messaging.WorkerPoolSize,
		Logger:         log,
	}

	var (
		bus      pushBus
		presence httpapi.Presence
		tracker  *redis.PresenceTracker
	)
	cache, err := connectRedis(ctx, cfg, log)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
		st.health = append(st.health, cache)
		tracker = redis.NewPresenceTracker(cache, st.users)
		presence = tracker

		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         messaging.NewGoRedisClient(cache.Client()),
			ChannelName:    cfg.Redis.Channel,
			LocalBusConfig: localBus,
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("failed to start redis event bus: %w", err)
		}
		bus = redisBus
	} else {
		presence = httpapi.NewDirectPresence(st.users, redis.DefaultFlushInterval)
		bus = messaging.NewInMemoryEventBus(localBus)
	}
	defer func() {
		log.Info("closing event bus")
		_ = bus.Close()
	}()
	pusher := messaging.NewPusher(bus, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. FITNESS PROVIDER
	// ─────────────────────────────────────────────────────────────────────────
	stravaCfg := strava.DefaultConfig()
	if cfg.Strava.BaseURL != "" {
		stravaCfg.BaseURL = cfg.Strava.BaseURL
	}
	if cfg.Strava.Timeout > 0 {
		stravaCfg.Timeout = cfg.Strava.Timeout
	}
	stravaCfg.PerPage = cfg.Strava.PerPage
	stravaCfg.MaxPages = cfg.Strava.MaxPages
	stravaCfg.MaxAttempts = cfg.Strava.MaxRetries
	stravaCfg.BreakerFailures = cfg.Strava.BreakerThreshold
	stravaCfg.BreakerOpenFor = cfg.Strava.BreakerTimeout
	if cfg.Strava.RequestsPerSecond > 0 {
		stravaCfg.RateLimiterConfig.RequestsPerSecond = cfg.Strava.RequestsPerSecond
	}
	if cfg.Strava.Burst > 0 {
		stravaCfg.RateLimiterConfig.BurstSize = cfg.Strava.Burst
	}
	stravaCfg.Logger = log.With("component", "strava")
	stravaClient := strava.NewClient(stravaCfg, strava.ContextTokenSource{})

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	gate := conversation.NewGate(st.matches)
	threshold := fitness.Threshold{
		MinWeeklyActivities: cfg.Fitness.MinWeeklyActivities,
		MinWeeklyDistance:   cfg.Fitness.MinWeeklyDistance,
	}

	httpLogger := logger.FromSlog(log)

	hub := httpapi.NewHub(httpapi.HubConfig{
		Rooms:       gate,
		Pusher:      pusher,
		Presence:    presence,
		Features:    cfg.Features,
		Logger:      httpLogger,
		CheckOrigin: originChecker(cfg.HTTP.AllowedOrigins),
	})
	deliver := messaging.Chain(hub.Deliver,
		messaging.Recovery(log),
		messaging.Logging(log, cfg.HTTP.SlowRequest),
	)
	if err := bus.Subscribe(messaging.EventDelivery, deliver); err != nil {
		return fmt.Errorf("failed to subscribe push delivery: %w", err)
	}

	health := httpapi.NewHealthChecker(cfg.App.Version)
	for _, c := range st.health {
		health.Add(c)
	}

	deps := httpapi.Dependencies{
		CreateMatch:            command.NewCreateMatchHandler(st.matches, st.users),
		ArchiveMatch:           command.NewArchiveMatchHandler(st.matches),
		UpdatePreferences:      command.NewUpdatePreferencesHandler(st.preferences),
		SendMessage:            command.NewSendMessageHandler(gate, st.messages),
		MarkAsRead:             command.NewMarkAsReadHandler(gate, st.messages),
		MarkConversationAsRead: command.NewMarkConversationAsReadHandler(gate, st.messages),
		DeleteMessage:          command.NewDeleteMessageHandler(gate, st.messages),
		SyncFitness:            command.NewSyncFitnessHandler(stravaClient, st.fitness, threshold, cfg.Fitness.WindowDays, cfg.Features),

		GetPotentialMatches: query.NewGetPotentialMatchesHandler(st.users, st.preferences, st.matches, matching.NewScorer(), cfg.Matching.CandidatePoolCeiling),
		GetUserMatches:      query.NewGetUserMatchesHandler(st.matches, st.users),
		AreMatched:          query.NewAreMatchedHandler(st.matches),
		GetPreferences:      query.NewGetPreferencesHandler(st.preferences),
		GetMessages:         query.NewGetMessagesHandler(gate, st.messages),
		GetConversations:    query.NewGetConversationsHandler(st.matches, st.messages, st.users),
		GetUnreadCount:      query.NewGetUnreadCountHandler(st.messages),
		GetMatchStats:       query.NewGetMatchStatsHandler(query.NewAdminPolicy(cfg.Auth.AdminIDs), st.matches, st.messages, st.users),

		ProviderToken: strava.WithAccessToken,
		Auth:          httpapi.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Pusher:        pusher,
		Hub:           hub,
		Health:        health,
		Logger:        httpLogger,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Addr = cfg.HTTP.Addr
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.SlowRequest = cfg.HTTP.SlowRequest
	server := httpapi.NewServer(httpCfg, deps)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HOUSEKEEPING JOBS
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{Logger: log})
	if err := sched.Register(jobs.NewLedgerStatsJob(st.matches, log), scheduler.Every(15*time.Minute)); err != nil {
		return err
	}
	if tracker != nil {
		if err := sched.Register(jobs.NewPresenceCleanupJob(tracker, log), scheduler.Every(redis.TTLPresence)); err != nil {
			return err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. RUN UNTIL SIGNALLED
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		if err := sched.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return sched.Stop()
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown", "timeout", cfg.App.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// pushBus is the part of both event buses the API uses.
type pushBus interface {
	shared.EventPublisher
	Subscribe(eventType shared.EventType, handler shared.EventHandler) error
	Close() error
}

// openStores connects PostgreSQL, or falls back to the in-memory store when
// no database URL is configured.
func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL is empty, using the in-memory store")
		mem := memory.NewStore()
		return &stores{
			users:       mem.Users(),
			fitness:     mem.Fitness(),
			matches:     mem.Matches(),
			preferences: mem.Preferences(),
			messages:    mem.Messages(),
			close:       func() {},
		}, nil
	}

	var sealer *seal.Sealer
	if cfg.Features.IsEnabled(config.FeatureEncryption) {
		if cfg.Messaging.EncryptionKey == "" {
			return nil, errors.New("message encryption is enabled but MESSAGING_ENCRYPTION_KEY is empty")
		}
		s, err := seal.FromBase64(cfg.Messaging.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key: %w", err)
		}
		sealer = s
	}

	opts := postgres.DefaultPoolOptions()
	opts.MaxConns = cfg.Database.MaxConns
	opts.MinConns = cfg.Database.MinConns
	opts.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	opts.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	opts.ConnectTimeout = cfg.Database.ConnectTimeout

	log.Info("connecting to database")
	var conn *postgres.Connection
	err := retry.DatabaseRetrier().Do(ctx, func(ctx context.Context) error {
		c, err := postgres.Connect(ctx, cfg.Database.URL, opts)
		if err != nil {
			return retry.Retryable(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")

	migrator := postgres.NewMigrator(conn)
	if cfg.Database.AutoMigrate {
		if err := migrator.Migrate(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	} else if status, err := migrator.Status(ctx); err != nil {
		log.Warn("could not read migration status", "error", err)
	} else if pending := postgres.Pending(status); len(pending) > 0 {
		log.Warn("database schema is behind; enable auto-migrate or apply migrations",
			"pending", pending)
	}

	return &stores{
		users:       postgres.NewUserRepository(conn),
		fitness:     postgres.NewFitnessRepository(conn),
		matches:     postgres.NewMatchRepository(conn),
		preferences: postgres.NewPreferencesRepository(conn),
		messages:    postgres.NewMessageRepository(conn, sealer),
		health:      []httpapi.Checker{conn},
		close: func() {
			log.Info("closing database connection")
			conn.Close()
		},
	}, nil
}

// connectRedis returns nil when Redis is disabled. A configured but
// unreachable Redis is fatal outside development.
func connectRedis(ctx context.Context, cfg *config.Config, log *slog.Logger) (*redis.Cache, error) {
	if cfg.Redis.Disabled {
		log.Info("redis disabled, running single instance")
		return nil, nil
	}

	rc := redis.DefaultConfig()
	rc.URL = cfg.Redis.URL
	if cfg.Redis.Addr != "" {
		rc.Addr = cfg.Redis.Addr
	}
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout

	cache, err := redis.NewCache(ctx, rc)
	if err != nil {
		if cfg.IsDevelopment() {
			log.Warn("failed to connect to Redis, falling back to in-process push", "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("Redis connection established")
	return cache, nil
}

// originChecker accepts websocket handshakes from the CORS allow list.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return nil
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// setupLogger configures slog for the infrastructure layers.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logger.ParseLevel(cfg.Observability.LogLevel)}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.IsProduction() || strings.EqualFold(cfg.Observability.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
