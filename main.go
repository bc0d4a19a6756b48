package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"whatsapp-relay/db"
	"whatsapp-relay/events"
	"whatsapp-relay/handlers"
	"whatsapp-relay/logger"
	"whatsapp-relay/utils"
	"whatsapp-relay/whatsapp"
)

func main() {
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	config, err := utils.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: load %s: %w", configPath, err)
	}

	logger.Init(logger.Config{
		Service:   config.Logging.Service,
		Version:   config.Logging.Version,
		Env:       logger.ParseEnv(config.Logging.Env),
		Backend:   logger.Backend(config.Logging.Backend),
		Debug:     config.Logging.Debug,
		AddSource: config.Logging.AddSource,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- store ---
	store, err := db.Open(ctx, config.Database)
	if err != nil {
		return fmt.Errorf("db: open %s: %w", config.Database.Driver, err)
	}
	defer store.Close()

	// --- realtime ---
	hub := handlers.NewHub()
	defer hub.Close()

	var broadcaster events.Broadcaster = hub
	if config.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		defer rdb.Close()

		relay := events.NewRedisRelay(rdb, config.Redis.Channel, hub)
		go func() {
			if err := relay.Run(ctx); err != nil {
				slog.Error("relay: stopped", "error", err)
			}
		}()
		broadcaster = relay
		slog.Info("relay: redis enabled", "addr", config.Redis.Addr, "channel", config.Redis.Channel)
	}

	fanout := events.Multi{broadcaster}
	if len(config.Kafka.Brokers) > 0 {
		sink := events.NewKafkaSink(config.Kafka.Brokers, config.Kafka.Topic)
		defer sink.Close()
		fanout = append(fanout, sink)
		slog.Info("kafka: sink enabled", "brokers", config.Kafka.Brokers, "topic", config.Kafka.Topic)
	}

	// --- HTTP ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger())

	ingester := whatsapp.NewIngester(store, fanout)
	api := handlers.NewAPI(store, ingester, fanout, hub)
	handlers.SetupAPIRoutes(router, api)
	handlers.SetupStaticRoutes(router, config.Server.StaticDir)

	httpSrv := &http.Server{
		Addr:         config.Server.Addr(),
		Handler:      router,
		ReadTimeout:  config.Server.ReadTimeoutOr(10 * time.Second),
		WriteTimeout: config.Server.WriteTimeoutOr(15 * time.Second),
		IdleTimeout:  60 * time.Second,
	}

	return serve(ctx, httpSrv, config.Server.ShutdownTimeoutOr(10*time.Second))
}

// serve runs srv until ctx is done or the listener fails, then shuts it
// down. A listener failure is returned; a signal-driven stop is not an error.
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case serveErr = <-errCh:
		slog.Error("server error", "error", serveErr)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	slog.Info("stopped")

	if serveErr != nil {
		return fmt.Errorf("http: %w", serveErr)
	}
	return nil
}
