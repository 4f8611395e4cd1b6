package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/dashpulse/internal/adapter/httpserver"
	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/adapter/redis"
	"github.com/pscheid92/dashpulse/internal/adapter/websocket"
	"github.com/pscheid92/dashpulse/internal/app"
	"github.com/pscheid92/dashpulse/internal/broadcast"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/pscheid92/dashpulse/internal/platform/config"
	"github.com/pscheid92/dashpulse/internal/platform/logging"
	"github.com/pscheid92/dashpulse/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const leaderLockKey = "dashpulse:sweeper:leader"

// backgroundTasks tracks goroutines that stop when their context is cancelled.
type backgroundTasks struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (b *backgroundTasks) stop() {
	b.cancel()
	b.wg.Wait()
}

func runGracefulShutdown(cfg *config.Config, srv *httpserver.Server, hub *broadcast.Hub, background *backgroundTasks, redisClient *goredis.Client) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := hub.Controller.Shutdown(shutdownCtx); err != nil {
			slog.Error("Connection shutdown error", "error", err)
		}

		background.stop()

		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				slog.Error("Failed to close Redis client", "error", err)
			}
		}

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config, relayMetrics *metrics.RelayMetrics) *goredis.Client {
	hook := redis.NewCircuitBreakerHook(relayMetrics)
	client, err := redis.NewClient(ctx, cfg.RedisURL, hook)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "build", version.Get().String(), "env", cfg.AppEnv, "port", cfg.Port)

	registry := metrics.NewRegistry()
	hub := broadcast.NewHub(metrics.NewHubMetrics(registry))

	bgCtx, bgCancel := context.WithCancel(context.Background())
	background := &backgroundTasks{cancel: bgCancel}

	var (
		redisClient  *goredis.Client
		publisher    domain.EventPublisher = app.NewLocalPublisher(hub.Dispatcher)
		leader       app.Leadership
		healthChecks []httpserver.HealthCheck
	)
	if cfg.RedisURL != "" {
		relayMetrics := metrics.NewRelayMetrics(registry)
		redisClient = setupRedis(context.Background(), cfg, relayMetrics)

		relay := redis.NewRelay(redisClient, cfg.RedisEventsChannel, hub.Dispatcher, relayMetrics)
		publisher = relay
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "redis", Check: relay.Ping})

		background.wg.Add(1)
		go func() {
			defer background.wg.Done()
			if err := relay.Run(bgCtx); err != nil {
				slog.Error("Relay stopped, events stay on this instance", "error", err)
			}
		}()

		leader = app.NewLeaderElector(redisClient, leaderLockKey, uuid.NewString(), cfg.SweeperLeaseTTL())
	} else {
		slog.Info("REDIS_URL not set, events stay on this instance")
	}

	appSvc := app.NewService(app.NewSeededMemoryStore(), publisher, clock)

	if cfg.AgentStaleAfter > 0 {
		sweeper := app.NewAgentSweeper(appSvc, cfg.AgentSweepInterval, cfg.AgentStaleAfter, leader)
		background.wg.Add(1)
		go func() {
			defer background.wg.Done()
			sweeper.Run(bgCtx)
		}()
	}

	limits := websocket.NewConnectionLimits(
		int64(cfg.MaxWebSocketConnections),
		cfg.MaxConnectionsPerIP,
		cfg.ConnectionRate,
		cfg.ConnectionBurst,
		clock,
	)
	wsHandler := websocket.NewHandler(
		hub.Controller,
		limits,
		websocket.NewCheckOrigin(cfg.AppURL, cfg.CORSOrigins, cfg.IsDevelopment()),
		websocket.Options{
			SendBuffer:   cfg.WSSendBuffer,
			WriteTimeout: cfg.WSWriteTimeout,
			PingInterval: cfg.WSPingInterval,
			IdleTimeout:  cfg.WSIdleTimeout,
			Clock:        clock,
			Metrics:      metrics.NewWebSocketMetrics(registry),
		},
	)
	metrics.RegisterAdmissionGauges(registry,
		func() float64 { return float64(limits.Global().Current()) },
		func() float64 { return float64(limits.PerIP().UniqueIPs()) },
	)

	srv := httpserver.NewServer(cfg, httpserver.Dependencies{
		App:              appSvc,
		Broadcaster:      hub.Dispatcher,
		Hub:              hub,
		WebSocketHandler: wsHandler,
		MetricsHandler:   metrics.Handler(registry),
		HTTPMetrics:      metrics.NewHTTPMetrics(registry),
		HealthChecks:     healthChecks,
		Clock:            clock,
	})

	done := runGracefulShutdown(cfg, srv, hub, background, redisClient)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
