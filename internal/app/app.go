// Package app wires the session store, its transports and the change feed
// from environment configuration. Every binary builds one App.
package app

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"livechat-backend/internal/api"
	"livechat-backend/internal/api/router"
	"livechat-backend/internal/assistant"
	"livechat-backend/internal/database"
	"livechat-backend/internal/env"
	internaljwt "livechat-backend/internal/jwt"
	"livechat-backend/internal/queue"
	authservice "livechat-backend/internal/service/auth"
	sessionservice "livechat-backend/internal/service/session"
	"livechat-backend/internal/websocket"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

const (
	WidgetPrefix    = "/api/public/v1"
	DashboardPrefix = "/api/client/v1"
	FeedPrefix      = "/api/ws/v1"
)

type App struct {
	Sessions *sessionservice.Service
	Auth     *authservice.Service
	Hub      *websocket.Hub
	Feed     *websocket.Handler

	redis          *redis.Client
	allowedOrigins []string
	cleanup        []func()
}

// New opens the configured store and builds the services on top of it.
func New(ctx context.Context) (*App, error) {
	cfg := sessionservice.StoreConfigFromEnv()
	if err := env.Validate(env.RequiredFor(cfg.Backend)...); err != nil {
		return nil, err
	}

	a := &App{allowedOrigins: env.GetList(env.AllowedOrigins, nil)}

	repo, closeRepo, err := sessionservice.OpenRepository(ctx, cfg, time.Now)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	a.cleanup = append(a.cleanup, closeRepo)

	if addr := env.Get(env.ChatRedisURL); addr != "" {
		client, err := database.NewRedisClient(ctx, addr, env.Get(env.ChatRedisPass))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("feed redis: %w", err)
		}
		a.redis = client
		a.cleanup = append(a.cleanup, func() { client.Close() })
	}

	a.Hub = websocket.NewHub()
	a.Feed = websocket.NewHandler(a.Hub, a.redis, a.allowedOrigins)

	opts := []sessionservice.Option{
		sessionservice.WithPublisher(websocket.NewFeed(a.Feed, a.redis)),
	}
	if provider := assistant.NewFromEnv(); provider != nil {
		opts = append(opts, sessionservice.WithAssistant(provider, env.GetInt(env.AssistantHistory, 20)))
	} else {
		log.Printf("[app] %s not set, AI replies are disabled", env.AssistantAPIKey)
	}
	a.Sessions = sessionservice.New(repo, opts...)

	if a.Auth, err = authFromEnv(); err != nil {
		a.Close()
		return nil, err
	}

	log.Printf("[app] store=%s ttl=%s feed_redis=%t employee_auth=%t", cfg.Backend, cfg.TTL, a.redis != nil, a.Auth != nil)
	return a, nil
}

// authFromEnv returns nil when EMPLOYEE_SECRET is unset.
func authFromEnv() (*authservice.Service, error) {
	secret := env.Get(env.EmployeeSecretKey)
	if secret == "" {
		return nil, nil
	}
	if err := env.Validate(env.EmployeeRosterFile); err != nil {
		return nil, err
	}
	roster, err := authservice.LoadRosterFile(env.Get(env.EmployeeRosterFile))
	if err != nil {
		return nil, err
	}
	issuer := internaljwt.NewIssuer(secret, env.GetDuration(env.EmployeeTokenTTL, internaljwt.DefaultTokenTTL))
	return authservice.New(roster, issuer), nil
}

func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

func (a *App) services() api.Services {
	return api.Services{
		Sessions: a.Sessions,
		Auth:     a.Auth,
		Feed:     a.Feed,
	}
}

func (a *App) newServer(addr string, registrars ...api.RouteRegistrar) *api.APIServer {
	queueManager := queue.NewRequestQueueManager(env.GetInt(env.QueueSize, 10), env.GetInt(env.QueueWorkers, 10))
	a.cleanup = append(a.cleanup, queueManager.Shutdown)
	return api.NewAPIServer(addr, queueManager, a.services(), registrars...).WithAllowedOrigins(a.allowedOrigins)
}

func (a *App) WidgetServer(addr string) *api.APIServer {
	return a.newServer(addr,
		router.UtilsRoutes(WidgetPrefix, "widget"),
		router.WidgetRoutes(WidgetPrefix),
	)
}

func (a *App) DashboardServer(addr string) *api.APIServer {
	return a.newServer(addr,
		router.UtilsRoutes(DashboardPrefix, "dashboard"),
		router.AuthRoutes(DashboardPrefix),
		router.DashboardRoutes(DashboardPrefix),
	)
}

func (a *App) FeedServer(addr string) *api.APIServer {
	return a.newServer(addr,
		router.UtilsRoutes(FeedPrefix, "ws"),
		router.FeedRoutes(FeedPrefix),
	)
}

// Serve runs the servers and the feed hub until SIGINT/SIGTERM or the first
// failure, then shuts everything down.
func (a *App) Serve(ctx context.Context, servers ...*api.APIServer) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return a.Feed.SubscribeToRedisChannels(ctx)
	})
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	return g.Wait()
}
