package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"semaphore/posts/internal/clients"
	"semaphore/posts/internal/config"
	"semaphore/posts/internal/db"
	"semaphore/posts/internal/events"
	postsgrpc "semaphore/posts/internal/grpc"
	internalhttp "semaphore/posts/internal/http"
	"semaphore/posts/internal/log"
	"semaphore/posts/internal/metrics"
)

func main() {
	cfg := config.Load()

	logger, err := log.NewLogger(cfg.Env)
	if err != nil {
		stdlog.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error("store close error", zap.Error(err))
		}
	}()

	m := metrics.New()
	identity := clients.NewIdentityClient(cfg.AuthServiceURL, cfg.UserServiceURL, cfg.IdentityHTTPTimeout, logger, m)

	var publisher events.Publisher = events.Nop{}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.Fatal("redis ping failed", zap.Error(err))
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("redis close error", zap.Error(err))
			}
		}()
		publisher = events.NewRedisPublisher(redisClient, cfg.RedisEventsChannel, m)
		logger.Info("post events enabled", zap.String("channel", cfg.RedisEventsChannel))
	}

	server := internalhttp.NewServer(cfg, store, identity, identity, publisher, logger, m)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("posts http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	grpcServer, healthServer, err := postsgrpc.NewServer(cfg.ServiceAuthToken)
	if err != nil {
		logger.Fatal("grpc init failed", zap.Error(err))
	}
	if cfg.GRPCAddr != "" {
		listener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("grpc listen error", zap.Error(err))
		}
		go func() {
			logger.Info("posts grpc listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcServer.Serve(listener); err != nil {
				logger.Fatal("grpc server error", zap.Error(err))
			}
		}()
		postsgrpc.SetServing(healthServer, true)
	}

	<-ctx.Done()
	postsgrpc.SetServing(healthServer, false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (db.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DBAutoMigrate {
			if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("database migrations applied")
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return db.NewPostgresStore(pool), nil
	case "mongo", "mongodb":
		return db.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case "memory":
		logger.Warn("using in-memory store; posts are lost on restart")
		return db.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
