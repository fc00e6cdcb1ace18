package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"autoreply/backend/internal/config"
	"autoreply/backend/internal/gateway/imapgw"
	"autoreply/backend/internal/health"
	"autoreply/backend/internal/llm"
	"autoreply/backend/internal/logger"
	"autoreply/backend/internal/monitoring"
	"autoreply/backend/internal/scheduler"
	"autoreply/backend/internal/service"
	"autoreply/backend/internal/storage"
	"autoreply/backend/internal/storage/memory"
	"autoreply/backend/internal/storage/postgres"
	"autoreply/backend/internal/storage/sqlite"
	httptransport "autoreply/backend/internal/transport/http"
	"autoreply/backend/internal/websocket"
)

// main 启动收件循环与评审 HTTP 服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("starting autoreply server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化草稿存储
	var store storage.DraftRepository
	switch cfg.Storage.Backend {
	case "sqlite":
		store, err = sqlite.NewStore(cfg.Storage.SQLitePath)
		if err != nil {
			panic(fmt.Sprintf("failed to open sqlite store: %v", err))
		}
		log.Info("using sqlite storage", zap.String("path", cfg.Storage.SQLitePath))
	case "postgres":
		store, err = postgres.NewStore(ctx, cfg.Storage.PostgresDSN, cfg.Storage.MaxOpenConns, 2, 30*time.Minute)
		if err != nil {
			panic(fmt.Sprintf("failed to connect to postgres: %v", err))
		}
		log.Info("using postgres storage")
	default:
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 初始化邮箱网关
	gw := imapgw.New(imapgw.Config{
		IMAPAddr:      cfg.Mail.IMAPAddr,
		SMTPAddr:      cfg.Mail.SMTPAddr,
		Username:      cfg.Mail.Username,
		Password:      cfg.Mail.Password,
		FromAddress:   cfg.Mail.FromAddress,
		InboxMailbox:  cfg.Mail.InboxMailbox,
		DraftsMailbox: cfg.Mail.DraftsMailbox,
		MaxResults:    cfg.Mail.MaxResults,
		RateLimit:     rate.Limit(cfg.Mail.RateLimit),
		RateBurst:     cfg.Mail.RateLimit,
	}, log)

	// 初始化回信生成
	generator := llm.NewClient(llm.Config{
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		SystemPrompt: cfg.LLM.SystemPrompt,
		MaxTokens:    cfg.LLM.MaxTokens,
		Temperature:  cfg.LLM.Temperature,
		Timeout:      cfg.LLM.Timeout,
	})

	// 初始化健康检查
	healthChecker := health.NewChecker(store, gw, log)

	// 创建 WebSocket Hub
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log)

	// 初始化服务层
	draftService := service.NewDraftService(store, gw, wsHub, metrics, log)
	intakeService := service.NewIntakeService(store, gw, generator, wsHub, metrics, log)
	intakeService.SetConcurrency(cfg.Poll.Concurrency)

	// 收件调度：定时触发 + 评审面手动触发共用一条执行路径
	sched := scheduler.New(cfg.Poll.Interval, func(ctx context.Context) {
		if err := intakeService.RunCycle(ctx); err != nil {
			log.Error("intake cycle failed", zap.Error(err))
		}
	}, log)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:        cfg,
		DraftService:  draftService,
		TriggerIntake: sched.TriggerNow,
		WebSocketHub:  wsHub,
		Metrics:       metrics,
		Health:        healthChecker,
		Logger:        log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 收件调度 goroutine
	group.Go(func() error {
		sched.Start(groupCtx)
		<-groupCtx.Done()
		sched.Stop()
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Error("server exited with error", zap.Error(err))
	}
	log.Info("server stopped")
}
