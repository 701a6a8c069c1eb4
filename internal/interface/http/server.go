// Package http is the REST and websocket surface of the matching core.
// Every route except /health runs behind bearer-token identity; handlers
// translate requests into commands and queries and publish the resulting
// outbox to the push channel.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/fitmatch/fitmatch-core/internal/application/command"
	"github.com/fitmatch/fitmatch-core/internal/application/query"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
	"github.com/fitmatch/fitmatch-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// MaxBodyBytes bounds JSON request bodies.
	MaxBodyBytes int64

	// AllowedOrigins for CORS.
	AllowedOrigins []string

	// SlowRequest requests are logged at WARN.
	SlowRequest time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   64 << 10,
		AllowedOrigins: []string{"*"},
		SlowRequest:    500 * time.Millisecond,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Pusher delivers handler outboxes to connected clients.
type Pusher interface {
	Push(ctx context.Context, outbox []shared.Delivery)
}

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Commands (write side)
	CreateMatch            *command.CreateMatchHandler
	ArchiveMatch           *command.ArchiveMatchHandler
	UpdatePreferences      *command.UpdatePreferencesHandler
	SendMessage            *command.SendMessageHandler
	MarkAsRead             *command.MarkAsReadHandler
	MarkConversationAsRead *command.MarkConversationAsReadHandler
	DeleteMessage          *command.DeleteMessageHandler
	SyncFitness            *command.SyncFitnessHandler

	// Queries (read side)
	GetPotentialMatches *query.GetPotentialMatchesHandler
	GetUserMatches      *query.GetUserMatchesHandler
	AreMatched          *query.AreMatchedHandler
	GetPreferences      *query.GetPreferencesHandler
	GetMessages         *query.GetMessagesHandler
	GetConversations    *query.GetConversationsHandler
	GetUnreadCount      *query.GetUnreadCountHandler
	GetMatchStats       *query.GetMatchStatsHandler

	// ProviderToken attaches a fitness provider token to a sync request.
	ProviderToken func(ctx context.Context, token string) context.Context

	Auth   *Authenticator
	Pusher Pusher
	Hub    *Hub
	Health *HealthChecker
	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	s := &Server{
		config: config,
		deps:   deps,
		router: mux.NewRouter(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	if s.deps.Health == nil {
		s.deps.Health = NewHealthChecker("")
	}

	s.setupRoutes()

	origins := config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           86400,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:           config.Addr,
		Handler:        s.handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler returns the fully wrapped handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(s.requestIDMiddleware, s.recoveryMiddleware, s.loggingMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.deps.Auth.Middleware, s.bodyLimitMiddleware)

	// ─────────────────────────────────────────────────────────────────────────
	// Matching
	// ─────────────────────────────────────────────────────────────────────────
	api.HandleFunc("/matching/potential", s.handleGetPotentialMatches).Methods(http.MethodGet)
	api.HandleFunc("/matching/match", s.handleCreateMatch).Methods(http.MethodPost)
	api.HandleFunc("/matching/matches", s.handleGetUserMatches).Methods(http.MethodGet)
	api.HandleFunc("/matching/matches/{id}/archive", s.handleArchiveMatch).Methods(http.MethodPut)
	api.HandleFunc("/matching/matched/{userId}", s.handleAreMatched).Methods(http.MethodGet)
	api.HandleFunc("/matching/preferences", s.handleGetPreferences).Methods(http.MethodGet)
	api.HandleFunc("/matching/preferences", s.handleUpdatePreferences).Methods(http.MethodPut)

	// ─────────────────────────────────────────────────────────────────────────
	// Messages (static segments first: mux matches in registration order)
	// ─────────────────────────────────────────────────────────────────────────
	api.HandleFunc("/messages", s.handleSendMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages/conversations", s.handleGetConversations).Methods(http.MethodGet)
	api.HandleFunc("/messages/unread-count", s.handleGetUnreadCount).Methods(http.MethodGet)
	api.HandleFunc("/messages/conversations/{matchId}/read", s.handleMarkConversationAsRead).Methods(http.MethodPut)
	api.HandleFunc("/messages/{matchId}", s.handleGetMessages).Methods(http.MethodGet)
	api.HandleFunc("/messages/{messageId}/read", s.handleMarkAsRead).Methods(http.MethodPut)
	api.HandleFunc("/messages/{messageId}", s.handleDeleteMessage).Methods(http.MethodDelete)

	// ─────────────────────────────────────────────────────────────────────────
	// Fitness, admin, realtime
	// ─────────────────────────────────────────────────────────────────────────
	api.HandleFunc("/fitness/sync", s.handleSyncFitness).Methods(http.MethodPost)
	api.HandleFunc("/admin/stats", s.handleGetMatchStats).Methods(http.MethodGet)
	if s.deps.Hub != nil {
		api.HandleFunc("/ws", s.deps.Hub.ServeWS).Methods(http.MethodGet)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// push hands an outbox to the push channel after the write succeeded.
func (s *Server) push(ctx context.Context, outbox []shared.Delivery) {
	if s.deps.Pusher == nil || len(outbox) == 0 {
		return
	}
	s.deps.Pusher.Push(context.WithoutCancel(ctx), outbox)
}
