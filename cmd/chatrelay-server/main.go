// Package main provides the chat relay server executable: a STOMP-over-websocket
// endpoint backed by a message broker, with an admin HTTP API and metrics.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coregx/chatrelay"
	amqpadapter "github.com/coregx/chatrelay/adapters/amqp"
	jwtadapter "github.com/coregx/chatrelay/adapters/jwt"
	mongoadapter "github.com/coregx/chatrelay/adapters/mongo"
	natsadapter "github.com/coregx/chatrelay/adapters/nats"
	promadapter "github.com/coregx/chatrelay/adapters/prometheus"
	redisadapter "github.com/coregx/chatrelay/adapters/redis"
	"github.com/coregx/chatrelay/adapters/relica"
	"github.com/coregx/chatrelay/adapters/zaplog"
	"github.com/coregx/chatrelay/cmd/chatrelay-server/internal/api"
	"github.com/coregx/chatrelay/cmd/chatrelay-server/internal/config"
	"github.com/coregx/chatrelay/transport/stompws"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := zaplog.New("chatrelay", cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Errorf("Server stopped with error: %v", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zaplog.Logger) error {
	logger.Infof("Starting chat relay v%s: addr=%s, store=%s, broker=%s",
		version, cfg.Server.Addr(), cfg.Database.Store, cfg.Broker.Kind)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	cache := redisadapter.NewFingerprintCache(rdb)
	logger.Info("Fingerprint cache connected")

	rawBroker, err := openBroker(cfg, logger)
	if err != nil {
		return err
	}
	broker, err := chatrelay.NewBreakerGateway(rawBroker, chatrelay.DefaultBreakerSettings(), logger)
	if err != nil {
		_ = rawBroker.Close()
		return err
	}
	defer func() { _ = broker.Close() }()

	observer, err := promadapter.NewObserver(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	hub := stompws.NewHub(logger)

	relayPool, err := chatrelay.NewWorkerPool("relay", cfg.Relay.RelayWorkers, logger)
	if err != nil {
		return err
	}
	commandPool, err := chatrelay.NewWorkerPool("commands", cfg.Relay.CommandWorkers, logger)
	if err != nil {
		return err
	}

	manager, err := chatrelay.NewChannelManager(
		chatrelay.WithBroker(broker),
		chatrelay.WithCache(cache),
		chatrelay.WithLocalDelivery(hub),
		chatrelay.WithRelayPool(relayPool),
		chatrelay.WithLogger(logger),
		chatrelay.WithObserver(observer),
		chatrelay.WithExchange(cfg.Broker.Exchange),
		chatrelay.WithOperationTimeout(cfg.Relay.OperationTimeout),
		chatrelay.WithDrainGrace(cfg.Relay.DrainGrace),
	)
	if err != nil {
		return err
	}
	if err := manager.DeclareExchange(ctx); err != nil {
		return err
	}

	publisher, err := chatrelay.NewPublisher(
		chatrelay.WithPublisherBroker(broker, manager),
		chatrelay.WithPublisherCache(cache),
		chatrelay.WithPublisherDelivery(hub),
		chatrelay.WithPublisherLogger(logger),
		chatrelay.WithPublisherObserver(observer),
		chatrelay.WithDedupWindow(cfg.Relay.DedupWindow),
		chatrelay.WithPublisherTimeout(cfg.Relay.OperationTimeout),
	)
	if err != nil {
		return err
	}

	handlers, err := chatrelay.NewCommandHandlers(
		chatrelay.WithHandlersPublisher(publisher),
		chatrelay.WithHandlersRepository(store),
		chatrelay.WithHandlersDelivery(hub),
		chatrelay.WithHandlersLogger(logger),
	)
	if err != nil {
		return err
	}

	router, err := chatrelay.NewRouter(handlers, commandPool, logger)
	if err != nil {
		return err
	}

	validator, err := jwtadapter.NewValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return err
	}
	gate, err := chatrelay.NewAuthGate(validator, logger)
	if err != nil {
		return err
	}

	wsServer, err := stompws.NewServer(
		stompws.WithHub(hub),
		stompws.WithGate(gate),
		stompws.WithRouter(router),
		stompws.WithLogger(logger),
		stompws.WithRateLimit(rate.Limit(cfg.Relay.SendRatePerSession), cfg.Relay.SendBurst),
	)
	if err != nil {
		return err
	}

	apiHandler := api.NewHandler(manager, func() map[string]interface{} {
		return map[string]interface{}{
			"broker":          broker.State(),
			"relayInFlight":   relayPool.InFlight(),
			"commandInFlight": commandPool.InFlight(),
		}
	}, logger, version)

	mux := http.NewServeMux()
	mux.Handle("GET /ws", wsServer)
	mux.Handle("GET /metrics", promhttp.Handler())
	apiHandler.Register(mux)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      loggingMiddleware(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	// Relays get their drain grace on top of the HTTP shutdown budget.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Relay.DrainGrace+30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Server forced to shutdown: %v", err)
	}
	// Commands still running may activate channels, so they finish first.
	if err := commandPool.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Command pool shutdown incomplete: %v", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Channel manager shutdown incomplete: %v", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// openStore connects the configured message store and returns its close func.
func openStore(ctx context.Context, cfg *config.Config, logger chatrelay.Logger) (chatrelay.MessageRepository, func(), error) {
	if cfg.Database.Store == "mongo" {
		client, err := mongoadapter.Connect(ctx, cfg.Mongo.URL, cfg.Mongo.RetryAttempts, cfg.Mongo.RetryInterval)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("Mongo connection established: database=%s", cfg.Mongo.Database)

		closeFn := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(disconnectCtx); err != nil {
				logger.Warnf("Failed to disconnect mongo: %v", err)
			}
		}
		return mongoadapter.NewMessageRepository(client.Database(cfg.Mongo.Database)), closeFn, nil
	}

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			logger.Warnf("Failed to close database: %v", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := chatrelay.ApplyMigrations(ctx, db, cfg.Database.Prefix); err != nil {
		closeFn()
		return nil, nil, err
	}
	logger.Infof("Database connection established: driver=%s", cfg.Database.Driver)

	return relica.NewMessageRepositoryWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix), closeFn, nil
}

// openBroker dials the configured broker.
func openBroker(cfg *config.Config, logger chatrelay.Logger) (chatrelay.BrokerGateway, error) {
	switch cfg.Broker.Kind {
	case "nats":
		gw, err := natsadapter.Dial(cfg.Broker.NATSURL,
			natsadapter.WithPendingLimit(cfg.Broker.Prefetch),
			natsadapter.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		logger.Infof("Connected to NATS: url=%s", cfg.Broker.NATSURL)
		return gw, nil

	default:
		gw, err := amqpadapter.Dial(cfg.Broker.AMQPURL,
			amqpadapter.WithPrefetch(cfg.Broker.Prefetch),
			amqpadapter.WithConsumers(cfg.Broker.Consumers),
			amqpadapter.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to AMQP broker")
		return gw, nil
	}
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler, logger chatrelay.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debugf("%s %s - %v", r.Method, r.URL.Path, time.Since(start))
	})
}
