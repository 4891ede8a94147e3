package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/SlpAus/pushup-tracker-backend/api"
	"github.com/SlpAus/pushup-tracker-backend/internal/chat"
	"github.com/SlpAus/pushup-tracker-backend/internal/notify"
	"github.com/SlpAus/pushup-tracker-backend/internal/platform/config"
	"github.com/SlpAus/pushup-tracker-backend/internal/platform/database"
	"github.com/SlpAus/pushup-tracker-backend/internal/platform/shutdown"
	"github.com/SlpAus/pushup-tracker-backend/internal/platform/startup"
	"github.com/SlpAus/pushup-tracker-backend/internal/record"
	"github.com/SlpAus/pushup-tracker-backend/internal/user"
	"github.com/SlpAus/pushup-tracker-backend/internal/workout"
	"github.com/SlpAus/pushup-tracker-backend/pkg/lifecycle"
)

func main() {
	// .env只在本地开发存在，缺失不是错误
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Println("配置加载失败:", err)
		os.Exit(1)
	}
	gin.SetMode(cfg.Server.Mode)

	db, err := database.OpenDB(cfg.Database)
	if err != nil {
		fmt.Println("数据库连接失败:", err)
		os.Exit(1)
	}
	rdb, err := database.OpenRedis(cfg.Redis)
	if err != nil {
		fmt.Println("Redis连接失败:", err)
		os.Exit(1)
	}

	// 迁移失败直接退出，绝不在可疑的表结构上提供服务
	if err := startup.InitializeDatabase(db); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	manager := lifecycle.NewManager()
	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.Enabled && cfg.Auth.BotToken != "" {
		handle, err := manager.NewServiceHandle("telegram-notifier")
		if err != nil {
			fmt.Println("通知服务注册失败:", err)
			os.Exit(1)
		}
		tg, err := notify.NewTelegram(cfg.Auth.BotToken, handle)
		if err != nil {
			fmt.Println("通知服务初始化失败:", err)
			os.Exit(1)
		}
		notifier = tg
	}

	userRepo := user.NewRepository(db)
	chatRepo := chat.NewRepository(db)
	workoutRepo := workout.NewRepository(db)
	recordRepo := record.NewRepository(db)

	workoutService := workout.NewService(workoutRepo, chatRepo, recordRepo)
	issuer := user.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTLDays)

	handlers := api.Handlers{
		Users:          user.NewHandler(userRepo, issuer, cfg.Auth.BotToken),
		Chats:          chat.NewHandler(chatRepo),
		Workouts:       workout.NewHandler(workoutService, userRepo, chatRepo, notifier),
		Records:        record.NewHandler(recordRepo, userRepo, chatRepo),
		ChatRepo:       chatRepo,
		Issuer:         issuer,
		Limiter:        api.NewRateLimiter(rdb, cfg.Limits.AddPerMinute),
		InternalSecret: cfg.Auth.BotToken,
	}

	router := gin.Default()
	if len(cfg.Server.Cors.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.Server.Cors.AllowedOrigins
		corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
		router.Use(cors.New(corsConfig))
	}
	api.SetupRoutes(router, handlers)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		fmt.Println("服务启动于", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Println("服务异常退出:", err)
			os.Exit(1)
		}
	}()

	shutdown.NewCoordinator(server, manager).Wait()
}
