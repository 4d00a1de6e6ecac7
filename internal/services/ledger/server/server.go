// Package server hosts the ledger runtime: the per-tenant actor
// registry, the invoice projection consumer, the REST API, and a gRPC
// health endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/momentum-oss/momentum/internal/messaging"
	"github.com/momentum-oss/momentum/internal/platform/discovery"
	"github.com/momentum-oss/momentum/internal/platform/httpserver"
	"github.com/momentum-oss/momentum/internal/platform/timeouts"
	"github.com/momentum-oss/momentum/internal/services/ledger/actor"
	"github.com/momentum-oss/momentum/internal/services/ledger/api/rest"
	"github.com/momentum-oss/momentum/internal/services/ledger/cache"
	"github.com/momentum-oss/momentum/internal/services/ledger/consumer"
	"github.com/momentum-oss/momentum/internal/services/ledger/storage/postgres"
)

// HealthService is the gRPC health identity the dev host gates on.
const HealthService = "momentum.ledger"

const (
	defaultRedisAddr = "localhost:6379"
	// projectionDurable names the JetStream consumer so delivery
	// progress survives restarts.
	projectionDurable = "ledger-projection"
	// redisPingTimeout caps the startup snapshot-store probe so a
	// missing Redis fails fast instead of hanging the boot.
	redisPingTimeout = 2 * time.Second
)

// Config holds the process-level settings for the ledger service.
type Config struct {
	// GRPCPort carries the health endpoint.
	GRPCPort int
	// HTTPAddr carries the ledger REST API.
	HTTPAddr    string
	PostgresDSN string
	NATSURL     string
	RedisAddr   string
	// CacheTTL bounds state snapshots in Redis; zero takes the cache
	// default.
	CacheTTL time.Duration
	// ActorIdle is how long an actor may sit without mail before it
	// deactivates; zero takes the runtime default.
	ActorIdle time.Duration
	// MailboxSize bounds queued calls per actor; zero takes the
	// runtime default.
	MailboxSize int
	// MaxConns bounds concurrent HTTP connections when positive.
	MaxConns int
	Logger   *slog.Logger
}

// Run starts the ledger dependencies and blocks until the context ends
// or a loop fails.
func Run(ctx context.Context, cfg Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.NATSURL = discovery.OrDefaultNATSURL(cfg.NATSURL)
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		cfg.RedisAddr = defaultRedisAddr
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("close ledger store", "error", closeErr)
		}
	}()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			logger.Error("close redis client", "error", closeErr)
		}
	}()
	pingCtx, cancelPing := context.WithTimeout(ctx, redisPingTimeout)
	err = redisClient.Ping(pingCtx).Err()
	cancelPing()
	if err != nil {
		return fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
	}

	registry, err := actor.New(actor.Options{
		Store:       store,
		Cache:       cache.New(redisClient, cfg.CacheTTL),
		MailboxSize: cfg.MailboxSize,
		IdleTTL:     cfg.ActorIdle,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build actor registry: %w", err)
	}

	conn, err := messaging.Connect(messaging.Config{
		URL:    cfg.NATSURL,
		Name:   "momentum-ledger",
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	projection, err := consumer.NewProjection(consumer.Options{
		Actors: registry,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("build invoice projection: %w", err)
	}
	pull, err := conn.PullConsumer(messaging.ConsumerConfig{
		Subject: projection.Subject(),
		Durable: projectionDurable,
	})
	if err != nil {
		return fmt.Errorf("build projection pull consumer: %w", err)
	}

	handler, err := rest.NewHandler(rest.Options{
		Actors: registry,
		Ready: func(ctx context.Context) error {
			return store.DB().PingContext(ctx)
		},
	})
	if err != nil {
		return fmt.Errorf("build rest handler: %w", err)
	}
	httpListener, err := httpserver.Listen(cfg.HTTPAddr, cfg.MaxConns)
	if err != nil {
		return fmt.Errorf("listen on http addr %s: %w", cfg.HTTPAddr, err)
	}
	httpServer := &http.Server{
		Handler:           handler.Routes(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		_ = httpListener.Close()
		return fmt.Errorf("listen on gRPC port %d: %w", cfg.GRPCPort, err)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(grpcListener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()
	logger.Info("ledger gRPC health listening", "addr", grpcListener.Addr().String())

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- httpServer.Serve(httpListener)
	}()
	logger.Info("ledger REST API listening", "addr", httpListener.Addr().String())

	runCtx, cancelLoops := context.WithCancel(ctx)
	defer cancelLoops()

	loopErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pull.Run(runCtx, projection.Handle); err != nil && runCtx.Err() == nil {
			loopErr <- fmt.Errorf("invoice projection: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-loopErr:
		runErr = err
	case err := <-httpErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("serve rest API: %w", err)
		}
	}

	cancelLoops()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	wg.Wait()

	// Flush actor snapshots once no caller or projection can reach them.
	if err := registry.Close(shutdownCtx); err != nil {
		logger.Error("close actor registry", "error", err)
	}
	return runErr
}
