// Command gateway runs one Echo realtime-core process: HTTP API, duplex
// socket endpoint, and the metrics server, wired from internal/config.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	_ "go.uber.org/automaxprocs"

	"github.com/echo-chat/realtime-core/internal/apperr"
	"github.com/echo-chat/realtime-core/internal/auth"
	"github.com/echo-chat/realtime-core/internal/config"
	"github.com/echo-chat/realtime-core/internal/eventbus"
	"github.com/echo-chat/realtime-core/internal/gateway"
	"github.com/echo-chat/realtime-core/internal/httpapi"
	"github.com/echo-chat/realtime-core/internal/logging"
	"github.com/echo-chat/realtime-core/internal/membership"
	"github.com/echo-chat/realtime-core/internal/metrics"
	"github.com/echo-chat/realtime-core/internal/ratelimit"
	"github.com/echo-chat/realtime-core/internal/room"
	"github.com/echo-chat/realtime-core/internal/store"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides ECHO_LOG_LEVEL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: logging.Format(cfg.LogFormat), Service: "echo-gateway"})
	cfg.Log(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := store.Open(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open postgres pool")
	}
	defer pool.Close()

	bus, err := eventbus.Connect(eventbus.Config{
		URL: cfg.NATSURL, MaxReconnects: 10, ReconnectWait: time.Second, ReconnectJitter: 200 * time.Millisecond,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to event bus")
	}
	defer bus.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	reg := prometheus.NewRegistry()
	mx := metrics.New(reg)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	membershipStore := store.NewMembershipStore(pool)
	oracle := membership.NewOracle(membershipStore, redisClient, cfg.MembershipCacheTTL, logger)
	messages := store.NewMessageStore(pool, cfg.AllocatorMaxRetries, cfg.ContentMaxLength, cfg.CorrelationDedupeWindow)
	readReceipts := store.NewReadPositionStore(pool)
	rooms := room.NewManager(cfg.RoomShardCount, logger, bus)
	defer rooms.Stop()

	guard := ratelimit.NewGuard(cfg.MaxConnections, cfg.CPURejectThreshold)
	defer guard.Close()
	connLimiter := ratelimit.NewConnectionRateLimiter(5, 10, 500, 1000)

	handlers := &httpapi.Handlers{
		Verifier: verifier, Membership: oracle, Messages: messages, ReadReceipt: readReceipts,
		Bus: bus, Logger: logger, HistoryMaxLimit: cfg.HistoryMaxLimit,
	}

	mux := handlers.Mux()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if ok := connLimiter.Allow(ip); !ok {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		if admitted, reason := guard.Admit(); !admitted {
			logger.Warn().Str("reason", reason).Msg("rejecting connection, admission control")
			http.Error(w, "server at capacity", http.StatusServiceUnavailable)
			return
		}
		release := guard.Track()
		defer release()

		sess, err := gateway.Upgrade(w, r, uuid.NewString(), gateway.Deps{
			Verifier: verifier, Membership: oracle, Rooms: rooms, Logger: logger,
			HeartbeatInterval: cfg.HeartbeatInterval, HeartbeatMissThreshold: cfg.HeartbeatMissThreshold,
			OutboundQueueCapacity: cfg.OutboundQueueCapacity,
		})
		if err != nil {
			var appErr *apperr.Error
			if e, ok := apperr.As(err); ok {
				appErr = e
			}
			logger.Warn().Err(appErr).Msg("failed to upgrade socket")
			return
		}

		mx.ActiveSockets.Inc()
		defer mx.ActiveSockets.Dec()
		sess.Run()
	})

	server := &http.Server{Addr: cfg.Addr, Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("gateway server failed")
		}
	}()
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Dur("grace", cfg.ShutdownGrace).Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("gateway shutdown error")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics shutdown error")
	}
}
