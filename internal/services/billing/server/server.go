package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/momentum-oss/momentum/internal/platform/httpserver"
	"github.com/momentum-oss/momentum/internal/platform/timeouts"
	"github.com/momentum-oss/momentum/internal/services/billing/api/rest"
	"github.com/momentum-oss/momentum/internal/services/billing/app"
	"github.com/momentum-oss/momentum/internal/services/billing/storage"
	"github.com/momentum-oss/momentum/internal/services/billing/storage/postgres"
)

// HealthService is the gRPC health identity the dev host gates on.
const HealthService = "momentum.billing"

// limiterIdleTTL is how long an idle client bucket survives before the
// rate limiter sweeps it.
const limiterIdleTTL = 10 * time.Minute

// Config holds the process-level settings for the billing service.
type Config struct {
	// GRPCPort carries the health endpoint.
	GRPCPort int
	// HTTPAddr carries the REST API.
	HTTPAddr    string
	PostgresDSN string
	// AuthSecret enables JWT checks on mutating routes when set.
	AuthSecret string
	// RateLimitRPS and RateLimitBurst throttle per-client traffic when positive.
	RateLimitRPS   float64
	RateLimitBurst int
	// MaxConns bounds concurrent HTTP connections when positive.
	MaxConns int
	Logger   *slog.Logger
}

// Server hosts the billing REST API next to its gRPC health endpoint.
type Server struct {
	listener     net.Listener
	grpcServer   *grpc.Server
	health       *health.Server
	httpListener net.Listener
	httpServer   *http.Server
	closeStore   func() error
	logger       *slog.Logger
}

// New opens the billing store and builds a configured server.
func New(ctx context.Context, cfg Config) (*Server, error) {
	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	ready := func(ctx context.Context) error {
		return store.DB().PingContext(ctx)
	}
	srv, err := newWithStore(cfg, store, ready, store.Close)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return srv, nil
}

// newWithStore wires the server around an already-open store so tests can
// substitute a fake.
func newWithStore(cfg Config, store storage.Store, ready func(context.Context) error, closeStore func() error) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	application, err := app.New(app.Options{
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build billing app: %w", err)
	}

	handler, err := rest.NewHandler(rest.Options{
		App:         application,
		Ready:       ready,
		Auth:        httpserver.NewAuthenticator(cfg.AuthSecret),
		RateLimiter: httpserver.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, limiterIdleTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("build billing REST handler: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return nil, fmt.Errorf("listen on gRPC port %d: %w", cfg.GRPCPort, err)
	}
	httpListener, err := httpserver.Listen(cfg.HTTPAddr, cfg.MaxConns)
	if err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen on http addr %s: %w", cfg.HTTPAddr, err)
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		listener:     listener,
		grpcServer:   grpcServer,
		health:       healthServer,
		httpListener: httpListener,
		httpServer: &http.Server{
			Handler:           handler.Routes(),
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		closeStore: closeStore,
		logger:     logger,
	}, nil
}

// Addr returns the gRPC listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// HTTPAddr returns the REST listener address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Run creates and serves a billing server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	srv, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve starts the billing server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.close()

	s.logger.Info("billing gRPC health listening", "addr", s.listener.Addr().String())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	s.logger.Info("billing REST API listening", "addr", s.httpListener.Addr().String())
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- s.httpServer.Serve(s.httpListener)
	}()

	handleErr := func(err error) error {
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}

	shutdownGRPC := func() {
		if s.health != nil {
			s.health.Shutdown()
		}
		s.grpcServer.GracefulStop()
	}
	shutdownHTTP := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}

	select {
	case <-ctx.Done():
		shutdownGRPC()
		shutdownHTTP()
		err := <-serveErr
		return handleErr(err)
	case err := <-serveErr:
		shutdownHTTP()
		return handleErr(err)
	case err := <-httpErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		shutdownGRPC()
		if grpcErr := handleErr(<-serveErr); grpcErr != nil {
			return grpcErr
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

func (s *Server) close() {
	if s == nil || s.closeStore == nil {
		return
	}
	if err := s.closeStore(); err != nil {
		s.logger.Error("close billing store", "error", err)
	}
}
