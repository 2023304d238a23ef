package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketchat/backend/internal/api/handler"
	"marketchat/backend/internal/auth"
	"marketchat/backend/internal/catalog"
	"marketchat/backend/internal/chat"
	"marketchat/backend/internal/chathub"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/events"
	"marketchat/backend/internal/logger"
	"marketchat/backend/internal/notify"
	"marketchat/backend/internal/presence"
	"marketchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupStore opens the configured Conversation Store and the catalog that goes with it.
func setupStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, chat.ProfileResolver) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store, history is lost on restart")
		return storage.NewMemoryStore(nil), catalog.Static{}
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), storage.GormConfig())
	if err != nil {
		log.Fatal("failed to connect PostgreSQL", zap.Error(err))
	}

	s := storage.NewStorageService(db)
	if err := s.Migrate(ctx); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
	log.Info("database connection established, migrations complete")
	return s, catalog.NewDirectory(db)
}

// setupRedis returns nil when Redis is unreachable; presence facts and
// offline notifications then degrade to no-op and log-only.
func setupRedis(ctx context.Context, cfg *config.Config, log *zap.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, presence publishing disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func main() {
	cfg, dotenv, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	log, err := logger.New(cfg.IsDevelopment(), cfg.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	if !dotenv {
		log.Debug("no .env file found, using process environment")
	}
	log.Info("starting marketchat backend", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Dependencies
	store, names := setupStore(ctx, cfg, log)

	var (
		presencePub presence.Publisher      = presence.Nop{}
		notifier    chathub.OfflineNotifier = notify.Log{Logger: log}
		breaker     handler.BreakerState
	)
	if rdb := setupRedis(ctx, cfg, log); rdb != nil {
		defer func() { _ = rdb.Close() }()
		presencePub = presence.NewRedisPublisher(rdb)
		qn := notify.NewRedisNotifier(rdb, log)
		notifier, breaker = qn, qn
	}

	var publisher chat.EventPublisher = events.Nop{}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		producer := events.NewProducer(brokers, cfg.KafkaTopicMessageSent, log)
		defer func() {
			if err := producer.Close(); err != nil {
				log.Warn("kafka producer close", zap.Error(err))
			}
		}()
		publisher = producer
		log.Info("publishing message events", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaTopicMessageSent))
	}

	// 2. Chat service and hub
	chats := chat.NewService(store, names, publisher, log)
	hub := chathub.NewManagerService(chats, presence.NewDirectory(), presencePub, notifier, log)
	go hub.Run(ctx)

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	conn := chathub.ConnSettings{
		WriteWait:       cfg.WSWriteWait,
		PongWait:        cfg.WSPongWait,
		MaxMessageSize:  cfg.WSMaxMessageBytes,
		EventsPerSecond: cfg.WSEventsPerSecond,
		EventBurst:      cfg.WSEventBurst,
	}

	// 3. Routing
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), handler.RequestLogger(log))

	h := handler.NewHandler(hub, chats, verifier, conn, log)
	h.Notifier = breaker
	h.Register(r)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	hub.Shutdown()
}
