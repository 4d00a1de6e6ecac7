// Package server hosts the backoffice runtime: the outbox relay, the
// payment consumer, the traffic simulator and overdue sweeper, the live
// event tail, and a read-only ops API, all next to a gRPC health endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
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
	"github.com/momentum-oss/momentum/internal/services/backoffice/consumer"
	"github.com/momentum-oss/momentum/internal/services/backoffice/jobs"
	"github.com/momentum-oss/momentum/internal/services/backoffice/relay"
	backofficesqlite "github.com/momentum-oss/momentum/internal/services/backoffice/storage/sqlite"
	"github.com/momentum-oss/momentum/internal/services/backoffice/tail"
	"github.com/momentum-oss/momentum/internal/services/billing/app"
	"github.com/momentum-oss/momentum/internal/services/billing/storage/postgres"
)

// HealthService is the gRPC health identity the dev host gates on.
const HealthService = "momentum.backoffice"

const (
	defaultJournalDB = "data/backoffice.db"
	defaultRedisAddr = "localhost:6379"
	// paymentsDurable names the JetStream consumer so delivery progress
	// survives restarts.
	paymentsDurable = "backoffice-payments"
	// redisPingTimeout caps the startup dedupe-store probe so a missing
	// Redis fails fast instead of hanging the boot.
	redisPingTimeout = 2 * time.Second
)

// Config holds the process-level settings for the backoffice service.
type Config struct {
	// GRPCPort carries the health endpoint.
	GRPCPort int
	// HTTPAddr carries the ops API and the WebSocket event tail.
	HTTPAddr    string
	PostgresDSN string
	NATSURL     string
	RedisAddr   string
	// JournalDBPath locates the local sqlite processing journal.
	JournalDBPath string
	// ScenarioPath points at a YAML traffic scenario; empty uses the
	// built-in default.
	ScenarioPath string
	// SimulatorEnabled turns synthetic invoice traffic on.
	SimulatorEnabled bool
	// SimulatorSeed fixes the traffic pattern; zero seeds from the clock.
	SimulatorSeed int64
	// Relay loop knobs; zero values take the relay defaults.
	Consumer      string
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	// MaxConns bounds concurrent HTTP connections when positive.
	MaxConns int
	Logger   *slog.Logger
}

// Run starts the backoffice dependencies and background loops and blocks
// until the context ends or a loop fails.
func Run(ctx context.Context, cfg Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.JournalDBPath) == "" {
		cfg.JournalDBPath = defaultJournalDB
	}
	cfg.NATSURL = discovery.OrDefaultNATSURL(cfg.NATSURL)
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		cfg.RedisAddr = defaultRedisAddr
	}

	if dir := filepath.Dir(cfg.JournalDBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}
	journal, err := backofficesqlite.Open(cfg.JournalDBPath)
	if err != nil {
		return fmt.Errorf("open backoffice journal: %w", err)
	}
	defer func() {
		if closeErr := journal.Close(); closeErr != nil {
			logger.Error("close backoffice journal", "error", closeErr)
		}
	}()

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("close billing store", "error", closeErr)
		}
	}()

	application, err := app.New(app.Options{
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("build billing app: %w", err)
	}

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

	conn, err := messaging.Connect(messaging.Config{
		URL:    cfg.NATSURL,
		Name:   "momentum-backoffice",
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	eventTail := tail.New(tail.Options{Logger: logger})

	relayLoop, err := relay.New(relay.Options{
		Outbox:    store,
		Publisher: conn,
		Journal:   journal,
		Config: relay.Config{
			Consumer:      cfg.Consumer,
			PollInterval:  cfg.PollInterval,
			LeaseTTL:      cfg.LeaseTTL,
			MaxAttempts:   cfg.MaxAttempts,
			RetryBackoff:  cfg.RetryBackoff,
			RetryMaxDelay: cfg.RetryMaxDelay,
		},
		Logger: logger,
		Sink:   eventTail.Broadcast,
	})
	if err != nil {
		return fmt.Errorf("build outbox relay: %w", err)
	}

	payments, err := consumer.NewPayments(consumer.Options{
		App:     application,
		Deduper: consumer.NewRedisDeduper(redisClient, 0),
		Journal: journal,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("build payments consumer: %w", err)
	}
	pull, err := conn.PullConsumer(messaging.ConsumerConfig{
		Subject: payments.Topic(),
		Durable: paymentsDurable,
	})
	if err != nil {
		return fmt.Errorf("build payments pull consumer: %w", err)
	}

	scenario, err := jobs.LoadScenario(cfg.ScenarioPath)
	if err != nil {
		return fmt.Errorf("load simulator scenario: %w", err)
	}
	runner := jobs.NewRunner(logger)
	if cfg.SimulatorEnabled {
		simulator, err := jobs.NewSimulator(jobs.SimulatorOptions{
			App:      application,
			Scenario: scenario,
			Journal:  journal,
			Seed:     cfg.SimulatorSeed,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("build payment simulator: %w", err)
		}
		if err := runner.Add(simulator.Schedule(), "payment simulator", simulator.Tick); err != nil {
			return fmt.Errorf("schedule payment simulator: %w", err)
		}
	}
	sweeper, err := jobs.NewSweeper(jobs.SweeperOptions{
		App:     application,
		Journal: journal,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("build overdue sweeper: %w", err)
	}
	if err := runner.Add(jobs.DefaultSweeperSchedule, "overdue sweeper", sweeper.Tick); err != nil {
		return fmt.Errorf("schedule overdue sweeper: %w", err)
	}

	handler := newRouter(routerOptions{
		Journal: journal,
		Outbox:  store,
		Ready: func(ctx context.Context) error {
			return store.DB().PingContext(ctx)
		},
		EventTail: eventTail.Handler(),
	})
	httpListener, err := httpserver.Listen(cfg.HTTPAddr, cfg.MaxConns)
	if err != nil {
		return fmt.Errorf("listen on http addr %s: %w", cfg.HTTPAddr, err)
	}
	httpServer := &http.Server{
		Handler:           handler,
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
	logger.Info("backoffice gRPC health listening", "addr", grpcListener.Addr().String())

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- httpServer.Serve(httpListener)
	}()
	logger.Info("backoffice ops API listening", "addr", httpListener.Addr().String())

	runCtx, cancelLoops := context.WithCancel(ctx)
	defer cancelLoops()

	loopErr := make(chan error, 3)
	var wg sync.WaitGroup
	startLoop := func(name string, loop func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loop(runCtx); err != nil && runCtx.Err() == nil {
				loopErr <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	startLoop("outbox relay", relayLoop.Run)
	startLoop("payments consumer", func(ctx context.Context) error {
		return pull.Run(ctx, payments.Handle)
	})
	startLoop("job runner", runner.Run)

	shutdownHTTP := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-loopErr:
		runErr = err
	case err := <-httpErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("serve ops API: %w", err)
		}
	}

	cancelLoops()
	shutdownHTTP()
	wg.Wait()
	return runErr
}
