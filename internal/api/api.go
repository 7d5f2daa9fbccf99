package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"livechat-backend/internal/api/middleware"
	"livechat-backend/internal/queue"
	authservice "livechat-backend/internal/service/auth"
	sessionservice "livechat-backend/internal/service/session"
	"livechat-backend/internal/websocket"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 10 * time.Second

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

// Services are the process-wide dependencies handed to route registrars.
// Auth and Feed are nil when the deployment does not enable them.
type Services struct {
	Sessions *sessionservice.Service
	Auth     *authservice.Service
	Feed     *websocket.Handler
}

type APIServer struct {
	listenAddr          string
	requestQueueManager *queue.RequestQueueManager
	services            Services
	cors                middleware.CORSConfig
	routeRegistrars     []RouteRegistrar
	metrics             *metrics
}

func NewAPIServer(listenAddr string, rqm *queue.RequestQueueManager, services Services, registrars ...RouteRegistrar) *APIServer {
	return &APIServer{
		listenAddr:          listenAddr,
		requestQueueManager: rqm,
		services:            services,
		cors:                defaultCORSConfig(),
		routeRegistrars:     registrars,
		metrics:             newMetrics(prometheus.DefaultRegisterer, listenAddr, rqm),
	}
}

// WithAllowedOrigins replaces the CORS origin list.
func (s *APIServer) WithAllowedOrigins(origins []string) *APIServer {
	if len(origins) > 0 {
		s.cors.AllowedOrigins = origins
	}
	return s
}

// Routes builds the instrumented mux with every registered route plus
// /metrics. A panicking handler answers 500 instead of killing the server.
func (s *APIServer) Routes() http.Handler {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.Handle("/metrics", s.metrics.metricsHandler())

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(log.New(log.Writer(), "[api] panic: ", log.LstdFlags)),
		handlers.PrintRecoveryStack(true),
	)
	return s.metrics.instrument(recovery(mux))
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *APIServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("[api] listening on http://localhost%s", s.listenAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Printf("[api] shutting down %s", s.listenAddr)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *APIServer) Sessions() *sessionservice.Service {
	return s.services.Sessions
}

func (s *APIServer) Auth() *authservice.Service {
	return s.services.Auth
}

func (s *APIServer) Handler() *websocket.Handler {
	return s.services.Feed
}
