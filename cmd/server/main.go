package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"postdrop/backend/internal/config"
	"postdrop/backend/internal/directory"
	"postdrop/backend/internal/domain"
	"postdrop/backend/internal/engine"
	"postdrop/backend/internal/ingest"
	"postdrop/backend/internal/logger"
	"postdrop/backend/internal/monitoring"
	"postdrop/backend/internal/pool"
	"postdrop/backend/internal/push"
	"postdrop/backend/internal/smtp"
	"postdrop/backend/internal/storage/memory"
	redisCache "postdrop/backend/internal/storage/redis"
	sqlstore "postdrop/backend/internal/storage/sql"
	"postdrop/backend/internal/storage/sqlite"
	httptransport "postdrop/backend/internal/transport/http"
	"postdrop/backend/internal/websocket"
)

// main 启动同时包含 SMTP 入口、机器人长轮询和 Web 视图的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("starting postdrop server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 存储层
	store, err := initializeStorage(cfg, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize storage: %v", err))
	}
	defer store.Close()

	// 可选 Redis 读缓存
	var cache directory.Cache
	if cfg.Redis.Address != "" {
		redisClient, err := redisCache.NewCache(cfg.Redis, log)
		if err != nil {
			panic(fmt.Sprintf("failed to connect to redis: %v", err))
		}
		defer redisClient.Close()
		cache = redisClient
		log.Info("redis cache enabled", zap.String("address", cfg.Redis.Address))
	}

	metrics := monitoring.NewMetrics()

	// 目录服务
	dir := directory.NewService(store, cache, cfg.Mailbox, log)

	// 通知协程池
	workers := pool.NewWorkerPool(8, 256, log)

	// WebSocket Hub（Web 视图实时推送）
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log)

	// 机器人传输与呈现引擎
	var notifiers []ingest.Notifier
	var eng *engine.Engine
	var poller *push.Poller
	if cfg.Bot.Token != "" {
		client := push.NewClient(cfg.Bot, log)
		eng = engine.NewEngine(client, dir, cfg.Engine, cfg.Bot.AdminID, metrics, log)
		poller = push.NewPoller(client, eng, cfg.Bot.PollTimeout, log)
		notifiers = append(notifiers, eng)
	} else {
		log.Warn("bot token not configured, chat interface disabled")
	}
	notifiers = append(notifiers, wsHub)

	// 摄取管道与 SMTP 入口
	pipeline := ingest.NewPipeline(dir, workers, metrics, log, notifiers...)
	smtpServer := smtp.NewServer(cfg.SMTP, pipeline, log)

	// Web 视图
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:       cfg,
		Directory:    dir,
		WebSocketHub: wsHub,
		Logger:       log,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workers.Start(ctx)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		log.Info("smtp server listening", zap.String("addr", cfg.SMTP.BindAddr))
		if err := smtpServer.ListenAndServe(); err != nil {
			select {
			case <-groupCtx.Done():
				return nil
			default:
				return fmt.Errorf("smtp server: %w", err)
			}
		}
		return nil
	})

	if poller != nil {
		group.Go(func() error {
			log.Info("bot poller started")
			if err := poller.Run(groupCtx); err != nil && err != context.Canceled {
				return fmt.Errorf("bot poller: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		wsHub.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown failed", zap.Error(err))
		}
		if err := smtpServer.Close(); err != nil {
			log.Warn("smtp shutdown failed", zap.Error(err))
		}
		workers.Stop()
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
	log.Info("server stopped")
}

// initializeStorage 根据配置选择存储实现。
func initializeStorage(cfg *config.Config, log *zap.Logger) (domain.Store, error) {
	switch cfg.Database.Type {
	case "":
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil

	case "sqlite":
		log.Info("using sqlite storage", zap.String("dsn", cfg.Database.DSN))
		return sqlite.NewStore(cfg.Database.DSN)

	case "mysql", "postgres":
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
		return sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
}
