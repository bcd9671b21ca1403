// Package main 是协调服务的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photokeeper-go/internal/config"
	"photokeeper-go/internal/handler"
	"photokeeper-go/internal/hub"
	"photokeeper-go/internal/middleware"
	"photokeeper-go/internal/model"
	"photokeeper-go/internal/repository"
	"photokeeper-go/internal/service"
	"photokeeper-go/pkg/database"
	"photokeeper-go/pkg/es"
	"photokeeper-go/pkg/kafka"
	"photokeeper-go/pkg/log"
	"photokeeper-go/pkg/storage"
	"photokeeper-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储与搜索引擎
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.AutoMigrate(
		&model.FileRecord{},
		&model.DuplicateGroup{},
		&model.SelectionPreference{},
		&model.SelectionSession{},
		&model.CleanerJob{},
		&model.CleanerJobFile{},
	)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	fileRepo := repository.NewFileRepository(database.DB)
	groupRepo := repository.NewGroupRepository(database.DB)
	prefRepo := repository.NewPreferenceRepository(database.DB)
	sessionRepo := repository.NewSessionRepository(database.DB, database.RDB)
	jobRepo := repository.NewJobRepository(database.DB, database.RDB)

	// 5. 初始化协调中枢与 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	workerHub := hub.New()
	selectionService := service.NewSelectionService(prefRepo, groupRepo, fileRepo, cfg.Selection)
	sessionService := service.NewSessionService(sessionRepo, groupRepo)
	groupService := service.NewGroupService(groupRepo, fileRepo, sessionService, true)
	groupingService := service.NewGroupingService(fileRepo, groupRepo, selectionService, true)
	cleanerService := service.NewCleanerService(jobRepo, groupRepo, fileRepo, groupService, workerHub, true)

	// 6. 启动后台 Kafka 消费者，消化索引管道发来的文件记录
	go kafka.StartConsumer(cfg.Kafka, groupingService)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	authHandler := handler.NewAuthHandler(jwtManager, cfg.Server)
	selectionHandler := handler.NewSelectionHandler(selectionService)
	groupHandler := handler.NewGroupHandler(groupService, cleanerService, groupingService)
	sessionHandler := handler.NewSessionHandler(sessionService, groupService)
	jobHandler := handler.NewJobHandler(cleanerService, cfg.MinIO)
	workerHandler := handler.NewWorkerHandler(workerHub, cleanerService, jwtManager)

	// WebSocket 入口不经过 Bearer 中间件，令牌通过查询参数校验
	r.GET("/ws/worker", workerHandler.HandleWorker)
	r.GET("/ws/observer", workerHandler.HandleObserver)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/token", authHandler.IssueToken)
		}

		// 审核接口，仅限 reviewer 角色
		reviewer := apiV1.Group("/")
		reviewer.Use(middleware.AuthMiddleware(jwtManager), middleware.RequireRole(token.RoleReviewer))
		{
			preferences := reviewer.Group("/selection/preferences")
			{
				preferences.GET("", selectionHandler.GetPreferences)
				preferences.PUT("", selectionHandler.SavePreferences)
				preferences.DELETE("", selectionHandler.ResetPreferences)
			}
			reviewer.POST("/selection/recalculate", selectionHandler.Recalculate)

			groups := reviewer.Group("/groups")
			{
				groups.GET("", groupHandler.ListGroups)
				groups.GET("/:id", groupHandler.GetGroup)
				groups.POST("/:id/propose", groupHandler.Propose)
				groups.POST("/:id/validate", groupHandler.Validate)
				groups.POST("/:id/skip", groupHandler.Skip)
				groups.POST("/:id/undo", groupHandler.Undo)
				groups.POST("/:id/delete-non-originals", groupHandler.DeleteNonOriginals)
				groups.POST("/:id/clean", groupHandler.StartCleaning)
				groups.POST("/rebuild", groupHandler.Rebuild)
			}

			sessions := reviewer.Group("/sessions")
			{
				sessions.POST("/start", sessionHandler.Start)
				sessions.GET("/current", sessionHandler.Current)
				sessions.POST("/advance", sessionHandler.Advance)
			}

			jobs := reviewer.Group("/jobs")
			{
				jobs.GET("", jobHandler.ListJobs)
				jobs.GET("/:id", jobHandler.GetJob)
				jobs.POST("/:id/cancel", jobHandler.CancelJob)
				jobs.GET("/:id/files/:fileId/archive-url", jobHandler.ArchiveURL)
			}

			workers := reviewer.Group("/workers")
			{
				workers.GET("", workerHandler.GetWorkers)
				workers.POST("/commands", workerHandler.SendCommand)
			}
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
