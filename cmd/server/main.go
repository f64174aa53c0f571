package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"studio/backend/internal/auth"
	jwtpkg "studio/backend/internal/auth/jwt"
	"studio/backend/internal/bootstrap"
	"studio/backend/internal/config"
	"studio/backend/internal/domain"
	"studio/backend/internal/health"
	"studio/backend/internal/logger"
	"studio/backend/internal/monitoring"
	"studio/backend/internal/notify"
	"studio/backend/internal/pool"
	"studio/backend/internal/service"
	"studio/backend/internal/smtp"
	"studio/backend/internal/storage"
	httptransport "studio/backend/internal/transport/http"
	"studio/backend/internal/websocket"
)

// main 启动 HTTP API，可选启动邮件收件入口。
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
	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting studio backend",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("database", cfg.Database.Type),
		zap.String("timezone", cfg.Contact.Location.String()),
	)

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化存储层
	store, err := bootstrap.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close storage", zap.Error(err))
		}
	}()

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 初始化认证服务
	jwtManager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry)
	authService := auth.NewService(store, jwtManager)

	log.Info("JWT configuration",
		zap.String("issuer", cfg.JWT.Issuer),
		zap.Duration("expiry", cfg.JWT.Expiry),
	)

	if cfg.Seed.Enabled {
		seedAdmin(ctx, authService, cfg.Seed, log)
	}

	// 初始化留言服务，指标先于其他观察者注册
	messageService := service.NewMessageService(store,
		service.WithLocation(cfg.Contact.Location),
		service.WithLogger(log),
		service.WithStatsCache(cfg.Contact.StatsCacheTTL),
		service.WithObservers(metrics),
	)

	// 新留言邮件通知
	var workers *pool.WorkerPool
	if cfg.Notify.Enabled() {
		workers = pool.NewWorkerPool(cfg.Notify.Workers, cfg.Notify.QueueSize, log)
		mailer := notify.NewMailer(cfg.Notify, workers,
			notify.WithRecorder(metrics),
			notify.WithLocation(cfg.Contact.Location),
			notify.WithLogger(log),
		)
		messageService.Subscribe(mailer)
		log.Info("email notifications enabled",
			zap.String("smtp_addr", cfg.Notify.SMTPAddr),
			zap.Strings("to", cfg.Notify.To),
		)
	}

	// 后台实时推送
	var wsHub *websocket.Hub
	if cfg.WebSocket.Enabled {
		wsHub = websocket.NewHub(cfg.CORS.AllowedOrigins, metrics, log)
		messageService.Subscribe(wsHub)
	}

	// 初始化健康检查
	healthChecker := health.NewHealthChecker(store, workers, log)

	var rateLimits storage.RateLimitRepository
	if counter, ok := store.(storage.RateLimitRepository); ok {
		rateLimits = counter
	}

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		MessageService: messageService,
		AuthService:    authService,
		RateLimits:     rateLimits,
		Metrics:        metrics,
		Health:         healthChecker,
		WebSocketHub:   wsHub,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	// 邮件收件入口
	var smtpServer *gosmtp.Server
	if cfg.Intake.Enabled() {
		smtpServer = smtp.NewServer(smtp.NewBackend(messageService, cfg.Intake, log), cfg.Intake)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	if smtpServer != nil {
		group.Go(func() error {
			log.Info("starting email intake",
				zap.String("address", cfg.Intake.BindAddr),
				zap.String("domain", cfg.Intake.Domain),
				zap.Strings("addresses", cfg.Intake.Addresses),
			)
			if err := smtpServer.ListenAndServe(); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
				log.Error("SMTP server error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	// 通知协程池不随信号退出，由 Stop 关闭队列
	if workers != nil {
		workers.Start(context.Background())
	}

	// WebSocket Hub goroutine
	if wsHub != nil {
		group.Go(func() error {
			log.Info("starting WebSocket hub")
			wsHub.Run(groupCtx)
			return nil
		})
	}

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// 关闭 HTTP 服务器
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		// 关闭 SMTP 服务器
		if smtpServer != nil {
			if err := smtpServer.Close(); err != nil {
				log.Warn("SMTP server close warning", zap.Error(err))
			}
		}

		// 等待已排队的通知发送完毕
		if workers != nil {
			workers.Stop()
		}

		log.Info("servers stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// seedAdmin 创建默认管理员，已存在时跳过
func seedAdmin(ctx context.Context, authService *auth.Service, seed config.SeedConfig, log *zap.Logger) {
	user, created, err := authService.EnsureUser(ctx, auth.NewUserInput{
		Name:     seed.AdminName,
		Username: seed.AdminUsername,
		Password: seed.AdminPassword,
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		log.Error("failed to seed admin user", zap.Error(err))
		return
	}
	if !created {
		log.Info("admin user already exists, skipping seed", zap.String("username", user.Username))
		return
	}
	log.Info("admin user created", zap.String("username", user.Username))
}
