// Package main 是服务端的入口点
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"slop-factory-server/internal/cache"
	"slop-factory-server/internal/config"
	"slop-factory-server/internal/handler"
	"slop-factory-server/internal/llm"
	"slop-factory-server/internal/middleware"
	"slop-factory-server/internal/model"
	"slop-factory-server/internal/repository"
	"slop-factory-server/internal/service"
	"slop-factory-server/internal/websocket"
	"slop-factory-server/pkg/token"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// 加载配置
	cfg, err := config.Load("./configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	// 初始化数据库
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}

	// 自动迁移数据库表
	if err := autoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 初始化 Redis
	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		log.Fatalf("Failed to init redis: %v", err)
	}

	// 初始化 LLM 客户端
	completer, err := llm.NewAnthropicClient(cfg)
	if err != nil {
		log.Fatalf("Failed to init llm client: %v", err)
	}

	// 初始化服务令牌
	tokenService := token.NewService(cfg.Auth.ServiceSecret, cfg.Auth.ServiceExpire)

	// 初始化 Repository 层
	projectRepo := repository.NewProjectRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// 初始化 Service 层
	generationService := service.NewGenerationService(projectRepo, messageRepo, completer, zapLogger)
	generationService.SetHTMLCache(redisCache)
	generationService.SetNotifier(redisCache)

	dispatcher := service.NewDispatcher(messageRepo, generationService, redisCache, zapLogger, cfg.Dispatch)

	projectService := service.NewProjectService(projectRepo, messageRepo, zapLogger)
	projectService.SetHTMLCache(redisCache)
	projectService.SetTrigger(dispatcher) // 新消息入库后立即触发生成

	// 初始化 WebSocket Hub
	wsHub := websocket.NewHub(projectService, redisCache)
	go wsHub.Run() // 在单独的 goroutine 中运行

	// 后台任务的生命周期由 bgCtx 控制，关停时统一取消
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	go wsHub.RunPubSub(bgCtx)

	// 启动轮询调度器，兜底事件触发漏掉的消息
	go dispatcher.StartPolling(bgCtx, cfg.Dispatch.PollInterval)

	// 初始化 Handler 层
	projectHandler := handler.NewProjectHandler(projectService)
	dispatchHandler := handler.NewDispatchHandler(dispatcher)
	wsHandler := websocket.NewHandler(wsHub, projectService)

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	router := gin.New()

	// 全局中间件
	router.Use(middleware.RecoveryMiddleware(zapLogger)) // 恢复 panic
	router.Use(middleware.LoggerMiddleware(zapLogger))   // 请求日志
	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.Server.CORS) > 0 {
		corsConfig.AllowOrigins = cfg.Server.CORS
	}
	router.Use(middleware.CORSMiddleware(corsConfig)) // CORS

	// 注册路由
	registerRoutes(router, tokenService, projectHandler, dispatchHandler, wsHandler)

	// 创建 HTTP 服务器
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// 生成同步接口（/internal/dispatch/message）要等 LLM 返回
		// 写超时需要覆盖一次完整的生成调用
		WriteTimeout: cfg.AI.Timeout + 30*time.Second,
	}

	// 在 goroutine 中启动服务器
	go func() {
		zapLogger.Info("server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down server")

	// 停止后台任务（轮询调度器、Pub/Sub 消费）
	bgCancel()

	// 创建关闭上下文，设置超时
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// 关闭 Redis 连接
	if err := redisCache.Close(); err != nil {
		zapLogger.Warn("failed to close redis", zap.Error(err))
	}

	zapLogger.Info("server exited")
}

// initLogger 根据配置构建 zap 日志器
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Log.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// initDatabase 初始化数据库连接
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	// 构建 DSN (Data Source Name)
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		cfg.MySQL.Username,
		cfg.MySQL.Password,
		cfg.MySQL.Host,
		cfg.MySQL.Port,
		cfg.MySQL.Database,
		cfg.MySQL.Charset,
	)

	// 配置 GORM logger
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.Server.Mode == "release" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	// 连接数据库
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 获取底层 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 配置连接池
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MySQL.MaxLifetime) * time.Second)

	log.Println("Database connected successfully")
	return db, nil
}

// autoMigrate 自动迁移数据库表
func autoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if err := db.AutoMigrate(
		&model.Project{},
		&model.Message{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	log.Println("Database migrations completed")
	return nil
}

// registerRoutes 注册所有路由
func registerRoutes(
	router *gin.Engine,
	tokenService *token.Service,
	projectHandler *handler.ProjectHandler,
	dispatchHandler *handler.DispatchHandler,
	wsHandler *websocket.Handler,
) {
	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 路由组（公开，前端直接调用）
	v1 := router.Group("/api/v1")

	// 项目相关
	projects := v1.Group("/projects")
	{
		projects.POST("", projectHandler.CreateProject)
		projects.GET("", projectHandler.ListProjects)
		projects.GET("/:id", projectHandler.GetProject)
		projects.GET("/:id/preview", projectHandler.GetProjectPreview)
		projects.POST("/:id/messages", projectHandler.CreateMessage)
		projects.GET("/:id/messages", projectHandler.GetMessages)
	}

	// 内部调度接口（需要服务令牌）
	internal := router.Group("/internal")
	internal.Use(middleware.ServiceAuthMiddleware(tokenService))
	{
		internal.POST("/dispatch/run", dispatchHandler.RunCycle)
		internal.POST("/dispatch/message", dispatchHandler.DispatchMessage)
	}

	// WebSocket 路由
	wsHandler.RegisterRoutes(router)
}
